package swap

import (
	"sync"
)

// InMemStore is a map backed parameter store used in tests.
type InMemStore struct {
	sync.RWMutex
	params map[string][]byte
}

func NewInMemStore() *InMemStore {
	return &InMemStore{params: make(map[string][]byte)}
}

func (i *InMemStore) GetParam(id ParamID, subTx SubTxID) ([]byte, bool, error) {
	i.RLock()
	defer i.RUnlock()
	data, ok := i.params[string(paramKey(id, subTx))]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (i *InMemStore) SetParam(id ParamID, subTx SubTxID, data []byte) error {
	i.Lock()
	defer i.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	i.params[string(paramKey(id, subTx))] = buf
	return nil
}
