package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestMemDBWriteBatch(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("keep"), []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := db.Put([]byte("drop"), []byte("gone")); err != nil {
		t.Fatal(err)
	}

	payload := []byte("new")
	if err := db.WriteBatch(map[string][]byte{
		"keep":  payload,
		"drop":  nil,
		"fresh": []byte("first"),
	}); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	got, err := db.Get([]byte("keep"))
	if err != nil {
		t.Fatalf("get keep: %v", err)
	}
	if !bytes.Equal(got, []byte("new")) {
		t.Fatalf("keep = %q, want %q", got, "new")
	}
	if _, err := db.Get([]byte("drop")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("drop still present, err = %v", err)
	}
	if ok, _ := db.Has([]byte("fresh")); !ok {
		t.Fatal("fresh key missing")
	}

	// The store must hold its own copy of batched values.
	payload[0] = 'X'
	got, _ = db.Get([]byte("keep"))
	if !bytes.Equal(got, []byte("new")) {
		t.Fatalf("stored value aliased the caller's buffer: %q", got)
	}
}

func TestMemDBWriteBatchEmpty(t *testing.T) {
	db := NewMemDB()
	if err := db.WriteBatch(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestPersistentBackendsWriteBatch(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T) Database
	}{
		{"leveldb", func(t *testing.T) Database {
			db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
			if err != nil {
				t.Fatalf("open leveldb: %v", err)
			}
			return db
		}},
		{"bolt", func(t *testing.T) Database {
			db, err := NewBoltDB(filepath.Join(t.TempDir(), "ledger.db"))
			if err != nil {
				t.Fatalf("open bolt: %v", err)
			}
			return db
		}},
	}
	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			db := backend.open(t)
			defer db.Close()

			if err := db.Put([]byte("drop"), []byte("gone")); err != nil {
				t.Fatal(err)
			}
			if err := db.WriteBatch(map[string][]byte{
				"keep": []byte("value"),
				"drop": nil,
			}); err != nil {
				t.Fatalf("write batch: %v", err)
			}
			got, err := db.Get([]byte("keep"))
			if err != nil {
				t.Fatalf("get keep: %v", err)
			}
			if !bytes.Equal(got, []byte("value")) {
				t.Fatalf("keep = %q, want %q", got, "value")
			}
			if _, err := db.Get([]byte("drop")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("drop still present, err = %v", err)
			}
		})
	}
}
