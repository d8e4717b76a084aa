package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"arthchain/core/events"
	"arthchain/core/types"
	"arthchain/storage"
)

var accountPrefix = []byte("account/")

// Manager funnels every ledger mutation through a single serialized,
// all-or-nothing transaction. This reproduces the atomic-revert execution
// model the protocol was designed for: a failing operation leaves no trace,
// and no two operations ever interleave.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	emitter events.Emitter
}

// NewManager constructs a manager bound to the provided storage backend.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, emitter: events.NoopEmitter{}}
}

// SetEmitter configures where committed events are broadcast. Passing nil
// resets the emitter to a no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// Apply runs fn against a buffered transaction. Writes and events reach the
// database and the emitter only when fn returns nil; any error discards the
// entire buffer.
func (m *Manager) Apply(fn func(*Txn) error) error {
	if m == nil || m.db == nil {
		return errors.New("state: manager not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := &Txn{db: m.db, writes: make(map[string][]byte)}
	if err := fn(txn); err != nil {
		return err
	}
	if len(txn.writes) > 0 {
		if err := m.db.WriteBatch(txn.writes); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	for _, evt := range txn.events {
		m.emitter.Emit(committedEvent{evt: evt})
	}
	return nil
}

// View runs fn against a read-only transaction. Writes buffered by fn are
// always discarded, which makes View safe for query handlers.
func (m *Manager) View(fn func(*Txn) error) error {
	if m == nil || m.db == nil {
		return errors.New("state: manager not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := &Txn{db: m.db, writes: make(map[string][]byte)}
	return fn(txn)
}

// Txn buffers reads and writes for one ledger operation. Reads observe the
// buffered writes, so an operation sees its own effects mid-flight.
type Txn struct {
	db     storage.Database
	writes map[string][]byte
	events []*types.Event
}

// KVGet decodes the record stored under key into out, reporting whether the
// key exists.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if buffered, ok := t.writes[string(key)]; ok {
		if buffered == nil {
			return false, nil
		}
		if err := rlp.DecodeBytes(buffered, out); err != nil {
			return false, fmt.Errorf("state: decode %q: %w", key, err)
		}
		return true, nil
	}
	raw, err := t.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value and buffers it under key.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	t.writes[string(key)] = encoded
	return nil
}

// KVDelete buffers the removal of key.
func (t *Txn) KVDelete(key []byte) {
	t.writes[string(key)] = nil
}

// GetAccount loads the account record for addr, returning a zero-balance
// account when none exists yet.
func (t *Txn) GetAccount(addr types.Address) (*types.Account, error) {
	account := new(types.Account)
	ok, err := t.KVGet(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	return account.Normalize(), nil
}

// PutAccount buffers the account record for addr.
func (t *Txn) PutAccount(addr types.Address, account *types.Account) error {
	return t.KVPut(accountKey(addr), account.Normalize())
}

// AppendEvent buffers an event for emission once the transaction commits.
func (t *Txn) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	t.events = append(t.events, evt)
}

// Events exposes the buffered events, primarily for tests asserting on the
// exact emission set of an operation.
func (t *Txn) Events() []*types.Event {
	return t.events
}

func accountKey(addr types.Address) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return buf
}

type committedEvent struct {
	evt *types.Event
}

func (e committedEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e committedEvent) Event() *types.Event { return e.evt }
