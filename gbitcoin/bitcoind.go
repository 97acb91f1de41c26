package gbitcoin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/elementsproject/btcswap/jrpc2"
)

// taken from bitcoind
const defaultClientTimeout int = 900
const defaultRpcHost string = "http://localhost"

// Bitcoin talks to a bitcoind node over the JSON-RPC HTTP interface.
// Every call is a typed request struct naming its RPC method plus a
// typed result it decodes the reply into, so callers never touch the
// raw response envelope.
type Bitcoin struct {
	httpClient     *http.Client
	port           uint
	host           string
	requestCounter int64
	username       string
	password       string
}

func NewBitcoin(username, password string) *Bitcoin {
	bt := &Bitcoin{}

	tr := &http.Transport{
		MaxIdleConns:    20,
		IdleConnTimeout: time.Duration(defaultClientTimeout) * time.Second,
	}
	bt.httpClient = &http.Client{Transport: tr}
	bt.username = username
	bt.password = password
	return bt
}

func (b *Bitcoin) Endpoint() string {
	return b.host + ":" + strconv.Itoa(int(b.port))
}

func (b *Bitcoin) SetTimeout(secs uint) {
	tr := &http.Transport{
		MaxIdleConns:    20,
		IdleConnTimeout: time.Duration(secs) * time.Second,
	}
	b.httpClient = &http.Client{Transport: tr}
}

// StartUp points the client at a node and checks that it answers.
func (b *Bitcoin) StartUp(host string, port uint) error {
	if host == "" {
		b.host = defaultRpcHost
	} else {
		b.host = host
	}
	b.port = port

	_, err := b.GetBlockHeight()
	return err
}

// Blocking!
func (b *Bitcoin) request(m jrpc2.Method, resp interface{}) error {
	id := b.NextId()
	mr := &jrpc2.Request{Id: id, Method: m}
	jbytes, err := json.Marshal(mr)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", b.Endpoint(), bytes.NewBuffer(jbytes))
	if err != nil {
		return err
	}

	req.Header.Set("Host", b.host)
	req.Header.Set("Connection", "close")
	req.SetBasicAuth(b.username, b.password)
	req.Header.Set("Content-Type", "application/json")

	rezp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer rezp.Body.Close()

	switch rezp.StatusCode {
	case http.StatusUnauthorized:
		return errors.New("authorization failed: incorrect user or password")
	case http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError:
		// bitcoind returns rpc errors with these codes, fall through
		// to the error field of the response body
	default:
		if rezp.StatusCode > http.StatusBadRequest {
			return fmt.Errorf("server returned HTTP error %d", rezp.StatusCode)
		} else if rezp.ContentLength == 0 {
			return errors.New("no response from server")
		}
	}

	var rawResp jrpc2.RawResponse
	decoder := json.NewDecoder(rezp.Body)
	if err = decoder.Decode(&rawResp); err != nil {
		return err
	}

	if rawResp.Error != nil {
		return rawResp.Error
	}

	return json.Unmarshal(rawResp.Raw, resp)
}

// for now, use a counter as the id for requests
func (b *Bitcoin) NextId() *jrpc2.Id {
	val := atomic.AddInt64(&b.requestCounter, 1)
	return jrpc2.NewIdAsInt(val)
}

type PingRequest struct{}

func (r *PingRequest) Name() string {
	return "ping"
}

func (b *Bitcoin) Ping() (bool, error) {
	var result string
	err := b.request(&PingRequest{}, &result)
	return err == nil, err
}

type GetChainInfoRequest struct{}

func (r *GetChainInfoRequest) Name() string {
	return "getblockchaininfo"
}

type ChainInfo struct {
	Chain                string  `json:"chain"`
	Blocks               uint64  `json:"blocks"`
	Headers              uint64  `json:"headers"`
	BestBlockHash        string  `json:"bestblockhash"`
	VerificationProgress float64 `json:"verificationprogress"`
	InitialBlockDownload bool    `json:"initialblockdownload"`
}

func (b *Bitcoin) GetChainInfo() (*ChainInfo, error) {
	var result ChainInfo
	err := b.request(&GetChainInfoRequest{}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type GetBlockCountRequest struct{}

func (r *GetBlockCountRequest) Name() string {
	return "getblockcount"
}

func (b *Bitcoin) GetBlockHeight() (uint64, error) {
	var result uint64
	err := b.request(&GetBlockCountRequest{}, &result)
	return result, err
}

type GetRawChangeAddressRequest struct {
	AddressType string `json:"address_type,omitempty"`
}

type AddrType int

const (
	Bech32 AddrType = iota
	P2shSegwit
	Legacy
)

func (a AddrType) String() string {
	return []string{"bech32", "p2sh-segwit", "legacy"}[a]
}

func (r *GetRawChangeAddressRequest) Name() string {
	return "getrawchangeaddress"
}

func (b *Bitcoin) GetRawChangeAddress(addrType AddrType) (string, error) {
	var result string
	err := b.request(&GetRawChangeAddressRequest{
		AddressType: addrType.String(),
	}, &result)
	return result, err
}

type FundRawTransactionReq struct {
	TxString string `json:"hexstring"`
}

func (r *FundRawTransactionReq) Name() string {
	return "fundrawtransaction"
}

type FundRawResult struct {
	TxString string  `json:"hex"`
	Fee      float64 `json:"fee"`
	// Position of the added change output, or -1
	ChangePosition int `json:"changepos"`
}

func (f *FundRawResult) HasChange() bool {
	return f.ChangePosition != -1
}

// FundRawTx has the node select inputs for fees and change so that the
// passed transaction becomes fully funded.
func (b *Bitcoin) FundRawTx(txstring string) (*FundRawResult, error) {
	var resp FundRawResult
	err := b.request(&FundRawTransactionReq{
		TxString: txstring,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

type SignRawTransactionWithWalletReq struct {
	TxString string `json:"hexstring"`
}

func (r *SignRawTransactionWithWalletReq) Name() string {
	return "signrawtransactionwithwallet"
}

type SignRawResult struct {
	Hex      string `json:"hex"`
	Complete bool   `json:"complete"`
}

func (b *Bitcoin) SignRawTxWithWallet(txstring string) (*SignRawResult, error) {
	var resp SignRawResult
	err := b.request(&SignRawTransactionWithWalletReq{
		TxString: txstring,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

type TxIn struct {
	TxId     string `json:"txid"`
	Vout     uint   `json:"vout"`
	Sequence uint   `json:"sequence,omitempty"`
}

type TxOut struct {
	Address string
	Satoshi uint64
}

func (o *TxOut) Marshal() []byte {
	// createrawtransaction wants the amount in bitcoin
	amt := float64(o.Satoshi) / 1e8
	return []byte(fmt.Sprintf(`{"%s":"%s"}`, o.Address, strconv.FormatFloat(amt, 'f', 8, 64)))
}

// Because we're using a weird JSON marshaler for parameter packing
// we encode the outputs before passing them along as a request (instead
// of writing a custom json Marshaler)
func stringifyOutputs(outs []*TxOut) []json.RawMessage {
	results := make([]json.RawMessage, len(outs))

	for i := 0; i < len(outs); i++ {
		results[i] = json.RawMessage(outs[i].Marshal())
	}

	return results
}

type CreateRawTransactionReq struct {
	Ins      []*TxIn           `json:"inputs"`
	Outs     []json.RawMessage `json:"outputs"`
	Locktime *uint32           `json:"locktime,omitempty"`
}

func (r *CreateRawTransactionReq) Name() string {
	return "createrawtransaction"
}

func (b *Bitcoin) CreateRawTx(ins []*TxIn, outs []*TxOut, locktime *uint32) (string, error) {
	if len(outs) == 0 {
		return "", errors.New("must provide at least one output")
	}

	// bitcoind requires at least an empty array
	if ins == nil {
		ins = make([]*TxIn, 0)
	}
	request := &CreateRawTransactionReq{
		Ins:      ins,
		Outs:     stringifyOutputs(outs),
		Locktime: locktime,
	}

	var resp string
	err := b.request(request, &resp)
	return resp, err
}

type DumpPrivKeyReq struct {
	Address string `json:"address"`
}

func (r *DumpPrivKeyReq) Name() string {
	return "dumpprivkey"
}

// DumpPrivKey exports the private key for a wallet address in WIF.
func (b *Bitcoin) DumpPrivKey(address string) (string, error) {
	var result string
	err := b.request(&DumpPrivKeyReq{Address: address}, &result)
	return result, err
}

type SendRawTransactionReq struct {
	TxString string `json:"hexstring"`
}

func (r *SendRawTransactionReq) Name() string {
	return "sendrawtransaction"
}

func (b *Bitcoin) SendRawTx(txstring string) (string, error) {
	var result string
	err := b.request(&SendRawTransactionReq{
		TxString: txstring,
	}, &result)
	return result, err
}

type EstimateFeeRequest struct {
	Blocks uint32 `json:"conf_target"`
	Mode   string `json:"estimate_mode,omitempty"`
}

func (r *EstimateFeeRequest) Name() string {
	return "estimatesmartfee"
}

type FeeResponse struct {
	FeeRate float64  `json:"feerate,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Blocks  uint32   `json:"blocks"`
}

// SatPerKb returns the estimate in satoshi per kilobyte, or 0 when the
// node had no estimate.
func (f *FeeResponse) SatPerKb() uint64 {
	return uint64(f.FeeRate * 1e8)
}

func (b *Bitcoin) EstimateFee(blocks uint32, mode string) (*FeeResponse, error) {
	var result FeeResponse
	err := b.request(&EstimateFeeRequest{Blocks: blocks, Mode: mode}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type GetTxOutRequest struct {
	TxId           string `json:"txid"`
	Vout           uint32 `json:"n"`
	IncludeMempool bool   `json:"include_mempool"`
}

func (r *GetTxOutRequest) Name() string {
	return "gettxout"
}

type TxOutResp struct {
	BestBlockHash string     `json:"bestblock"`
	Confirmations uint32     `json:"confirmations"`
	Value         float64    `json:"value"`
	ScriptPubKey  *OutScript `json:"scriptPubKey"`
	Coinbase      bool       `json:"coinbase"`
}

type Script struct {
	Asm string `json:"asm"`
	Hex string `json:"hex"`
}

type OutScript struct {
	Script
	Type      string   `json:"type"`
	Addresses []string `json:"addresses"`
}

// GetTxOut returns nil without an error if the output is unknown to the
// node, which covers both unconfirmed-unseen and already spent outputs.
func (b *Bitcoin) GetTxOut(txid string, vout uint32) (*TxOutResp, error) {
	var result TxOutResp
	err := b.request(&GetTxOutRequest{txid, vout, true}, &result)

	// return a nil rather than an empty
	if result == (TxOutResp{}) {
		return nil, err
	}

	return &result, err
}
