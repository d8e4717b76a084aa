package state

import (
	"errors"
	"math/big"
	"testing"

	"arthchain/core/events"
	"arthchain/core/types"
	"arthchain/storage"
)

type captureEmitter struct {
	emitted []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.emitted = append(c.emitted, evt.Event())
}

func TestApplyCommitsWritesAndEvents(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	emitter := &captureEmitter{}
	manager.SetEmitter(emitter)

	key := []byte("test/value")
	if err := manager.Apply(func(txn *Txn) error {
		if err := txn.KVPut(key, uint64(42)); err != nil {
			return err
		}
		txn.AppendEvent(&types.Event{Type: "Bonded", Attributes: map[string]string{"amount": "42"}})
		return nil
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	var decoded uint64
	if err := manager.View(func(txn *Txn) error {
		ok, err := txn.KVGet(key, &decoded)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("key missing after commit")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if decoded != 42 {
		t.Fatalf("decoded %d, want 42", decoded)
	}
	if len(emitter.emitted) != 1 || emitter.emitted[0].Type != "Bonded" {
		t.Fatalf("unexpected emitted events: %+v", emitter.emitted)
	}
}

func TestApplyRollsBackOnError(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	emitter := &captureEmitter{}
	manager.SetEmitter(emitter)

	addr := types.Address{0x01}
	failure := errors.New("boom")
	err := manager.Apply(func(txn *Txn) error {
		account, err := txn.GetAccount(addr)
		if err != nil {
			return err
		}
		account.BalanceCash = big.NewInt(1000)
		if err := txn.PutAccount(addr, account); err != nil {
			return err
		}
		if err := txn.KVPut([]byte("test/partial"), uint64(7)); err != nil {
			return err
		}
		txn.AppendEvent(&types.Event{Type: "Staked"})
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("apply error = %v, want %v", err, failure)
	}

	if err := manager.View(func(txn *Txn) error {
		account, err := txn.GetAccount(addr)
		if err != nil {
			return err
		}
		if account.BalanceCash.Sign() != 0 {
			t.Fatalf("balance leaked through rollback: %s", account.BalanceCash)
		}
		ok, err := txn.KVGet([]byte("test/partial"), new(uint64))
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("kv write leaked through rollback")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(emitter.emitted) != 0 {
		t.Fatalf("events emitted despite rollback: %+v", emitter.emitted)
	}
}

// failingBatchDB rejects every commit, standing in for a backend write error.
type failingBatchDB struct {
	*storage.MemDB
	err error
}

func (db failingBatchDB) WriteBatch(map[string][]byte) error {
	return db.err
}

func TestApplySuppressesEventsOnCommitError(t *testing.T) {
	diskFull := errors.New("disk full")
	manager := NewManager(failingBatchDB{MemDB: storage.NewMemDB(), err: diskFull})
	emitter := &captureEmitter{}
	manager.SetEmitter(emitter)

	err := manager.Apply(func(txn *Txn) error {
		if err := txn.KVPut([]byte("test/one"), uint64(1)); err != nil {
			return err
		}
		if err := txn.KVPut([]byte("test/two"), uint64(2)); err != nil {
			return err
		}
		txn.AppendEvent(&types.Event{Type: "Bonded"})
		return nil
	})
	if !errors.Is(err, diskFull) {
		t.Fatalf("apply error = %v, want %v", err, diskFull)
	}

	// The batch never reached the backing store, so nothing is readable and
	// no event escaped.
	if err := manager.View(func(txn *Txn) error {
		for _, key := range []string{"test/one", "test/two"} {
			ok, err := txn.KVGet([]byte(key), new(uint64))
			if err != nil {
				return err
			}
			if ok {
				t.Fatalf("%s leaked through a failed commit", key)
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(emitter.emitted) != 0 {
		t.Fatalf("events emitted despite commit failure: %+v", emitter.emitted)
	}
}

func TestTxnReadsItsOwnWrites(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	if err := manager.Apply(func(txn *Txn) error {
		if err := txn.KVPut([]byte("test/self"), uint64(9)); err != nil {
			return err
		}
		var value uint64
		ok, err := txn.KVGet([]byte("test/self"), &value)
		if err != nil {
			return err
		}
		if !ok || value != 9 {
			t.Fatalf("mid-transaction read ok=%v value=%d", ok, value)
		}
		txn.KVDelete([]byte("test/self"))
		ok, err = txn.KVGet([]byte("test/self"), &value)
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("buffered delete still readable")
		}
		return nil
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestViewDiscardsWrites(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	if err := manager.View(func(txn *Txn) error {
		return txn.KVPut([]byte("test/view"), uint64(1))
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if err := manager.View(func(txn *Txn) error {
		ok, err := txn.KVGet([]byte("test/view"), new(uint64))
		if err != nil {
			return err
		}
		if ok {
			t.Fatal("view write reached storage")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}
