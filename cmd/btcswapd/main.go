package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jessevdk/go-flags"
	"go.etcd.io/bbolt"

	"github.com/elementsproject/btcswap/gbitcoin"
	"github.com/elementsproject/btcswap/log"
	"github.com/elementsproject/btcswap/policy"
	"github.com/elementsproject/btcswap/swap"
	"github.com/elementsproject/btcswap/txwatcher"
)

type options struct {
	DataDir    string `long:"datadir" description:"Directory for the swap database." default:"~/.btcswap"`
	PolicyFile string `long:"policyfile" description:"Path to the policy file."`
	Network    string `long:"network" description:"Bitcoin network (mainnet, testnet, regtest, signet)." default:"mainnet"`

	BitcoindRpcHost     string `long:"bitcoind.rpchost" description:"Host of the bitcoind rpc interface." default:"http://127.0.0.1"`
	BitcoindRpcPort     uint   `long:"bitcoind.rpcport" description:"Port of the bitcoind rpc interface." default:"8332"`
	BitcoindRpcUser     string `long:"bitcoind.rpcuser" description:"Bitcoind rpc user."`
	BitcoindRpcPassword string `long:"bitcoind.rpcpassword" description:"Bitcoind rpc password."`
}

func (o *options) chainParams() (*chaincfg.Params, error) {
	switch o.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	}
	return nil, fmt.Errorf("unknown network %s", o.Network)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "btcswapd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &options{}
	parser := flags.NewParser(opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return nil
		}
		return err
	}

	chain, err := opts.chainParams()
	if err != nil {
		return err
	}

	pol, err := policy.CreateFromFile(opts.PolicyFile)
	if err != nil {
		return err
	}
	log.Infof("using policy:\n%s", pol)

	dataDir := expandHome(opts.DataDir)
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return err
	}
	db, err := bbolt.Open(filepath.Join(dataDir, "swaps.db"), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return err
	}
	defer db.Close()

	bitcoin := gbitcoin.NewBitcoin(opts.BitcoindRpcUser, opts.BitcoindRpcPassword)
	bitcoin.SetTimeout(30)
	if err := bitcoin.StartUp(opts.BitcoindRpcHost, opts.BitcoindRpcPort); err != nil {
		return fmt.Errorf("connect to bitcoind: %w", err)
	}
	if _, err := bitcoin.Ping(); err != nil {
		return fmt.Errorf("bitcoind not responding: %w", err)
	}
	info, err := bitcoin.GetChainInfo()
	if err != nil {
		return err
	}
	if !chainMatches(info.Chain, opts.Network) {
		return fmt.Errorf("bitcoind runs on %s, daemon configured for %s", info.Chain, opts.Network)
	}
	log.Infof("connected to bitcoind on %s, height %d", info.Chain, info.Blocks)

	if fee, err := bitcoin.EstimateFee(6, "ECONOMICAL"); err == nil && fee.SatPerKb() > 0 {
		log.Debugf("node fee estimate %d sat/kb", fee.SatPerKb())
	}

	cfg := swap.DefaultConfig(chain)
	cfg.MinTxConfirmations = pol.MinTxConfirmations
	cfg.LockTimeSec = pol.LockTimeSec
	cfg.WithdrawFeeSat = pol.WithdrawFeeSat

	service := swap.NewService(db, bitcoin, cfg, driveSwap)
	defer service.Stop()
	if err := service.Resume(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := txwatcher.NewBlockWatcher(bitcoin, 10*time.Second)
	if err := watcher.StartWatchingTxs(ctx); err != nil {
		return err
	}
	service.ForEachSwap(func(a *swap.ActiveSwap) {
		watcher.AddWatcher(a.ID, a.Updater.UpdateAsync)
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("received %v, shutting down", sig)
	return nil
}

// driveSwap advances one swap by a single update step. Every entry
// point is poll safe: it reports not-ready instead of blocking, so the
// sequence below simply stops at the first step that is still pending
// and resumes there on the next update.
func driveSwap(a *swap.ActiveSwap) {
	if err := a.Updater.Failure(); err != nil {
		log.Infof("[%s] halted: %v", a.ID, err)
		return
	}

	ok, err := a.Side.Initial()
	if err != nil || !ok {
		reportErr(a, err)
		return
	}
	if err := a.Side.InitLockTime(); err != nil {
		reportErr(a, err)
		return
	}

	if a.Side.Role().IsBtcOwner {
		ok, err = a.Side.SendLockTx()
		if err != nil || !ok {
			reportErr(a, err)
			return
		}
		// the refund tx is non-final until the lock window has
		// passed; an early broadcast would be rejected by the node
		due, err := a.Side.RefundDue(uint64(time.Now().Unix()))
		if err != nil || !due {
			reportErr(a, err)
			return
		}
		ok, err = a.Side.SendRefund()
		if err != nil || !ok {
			reportErr(a, err)
			return
		}
		log.Infof("[%s] refund registered", a.ID)
		return
	}

	ok, err = a.Side.ConfirmLockTx()
	if err != nil || !ok {
		reportErr(a, err)
		return
	}
	ok, err = a.Side.SendRedeem()
	if err != nil || !ok {
		reportErr(a, err)
		return
	}
	log.Infof("[%s] redeem registered", a.ID)
}

func reportErr(a *swap.ActiveSwap, err error) {
	if err != nil {
		log.Infof("[%s] update: %v", a.ID, err)
	}
}

// chainMatches maps bitcoind's chain name onto the daemon's network
// flag value.
func chainMatches(nodeChain, network string) bool {
	switch nodeChain {
	case "main":
		return network == "mainnet"
	case "test":
		return network == "testnet" || network == "testnet3"
	default:
		return nodeChain == network
	}
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
