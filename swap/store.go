package swap

import (
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	paramBucket = []byte("swap-params")
)

// BboltStore persists the parameters of a single swap in a nested
// bucket keyed by the swap id. All swaps share one database file.
type BboltStore struct {
	db     *bbolt.DB
	swapID string
}

func NewBboltStore(db *bbolt.DB, swapID string) (*BboltStore, error) {
	tx, err := db.Begin(true)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	root, err := tx.CreateBucketIfNotExists(paramBucket)
	if err != nil {
		return nil, err
	}
	if _, err := root.CreateBucketIfNotExists([]byte(swapID)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &BboltStore{db: db, swapID: swapID}, nil
}

func (p *BboltStore) GetParam(id ParamID, subTx SubTxID) ([]byte, bool, error) {
	tx, err := p.db.Begin(false)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	b := tx.Bucket(paramBucket)
	if b == nil {
		return nil, false, fmt.Errorf("bucket nil")
	}
	sb := b.Bucket([]byte(p.swapID))
	if sb == nil {
		return nil, false, fmt.Errorf("swap bucket nil")
	}

	data := sb.Get(paramKey(id, subTx))
	if data == nil {
		return nil, false, nil
	}
	// the returned slice is only valid for the life of the tx
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (p *BboltStore) SetParam(id ParamID, subTx SubTxID, data []byte) error {
	tx, err := p.db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	b := tx.Bucket(paramBucket)
	if b == nil {
		return fmt.Errorf("bucket nil")
	}
	sb := b.Bucket([]byte(p.swapID))
	if sb == nil {
		return fmt.Errorf("swap bucket nil")
	}

	if err := sb.Put(paramKey(id, subTx), data); err != nil {
		return err
	}
	return tx.Commit()
}

func paramKey(id ParamID, subTx SubTxID) []byte {
	return []byte(fmt.Sprintf("%d/%d", id, subTx))
}

// ListSwapIDs returns the ids of all swaps with persisted parameters,
// used to resume unfinished swaps after a restart.
func ListSwapIDs(db *bbolt.DB) ([]string, error) {
	tx, err := db.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b := tx.Bucket(paramBucket)
	if b == nil {
		return nil, nil
	}

	var ids []string
	err = b.ForEachBucket(func(k []byte) error {
		ids = append(ids, string(k))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
