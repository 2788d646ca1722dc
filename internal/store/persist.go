package store

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/codec"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Persister keeps encoded snapshots by store name.
type Persister interface {
	Load(ctx context.Context, name string) (data []byte, ok bool, err error)
	Save(ctx context.Context, name string, data []byte) error
}

// Snapshot is the persisted part of a store: flags, errors and import
// results are session state and never written.
type Snapshot[T core.Record] struct {
	Name       string      `cbor:"name"`
	Collection []T         `cbor:"collection"`
	Stats      *core.Stats `cbor:"stats,omitempty"`
	SavedAt    time.Time   `cbor:"saved_at"`
}

type snapshotBody[T core.Record] struct {
	Collection []T         `cbor:"collection"`
	Stats      *core.Stats `cbor:"stats,omitempty"`
}

// KVPersister stores snapshots in the snapshots namespace of a key-value store.
type KVPersister struct {
	kv storage.KeyValue
}

func NewKVPersister(kv storage.KeyValue) *KVPersister {
	return &KVPersister{kv: kv}
}

func (p *KVPersister) Load(ctx context.Context, name string) ([]byte, bool, error) {
	return p.kv.Get(ctx, storage.NamespaceSnapshots, name)
}

func (p *KVPersister) Save(ctx context.Context, name string, data []byte) error {
	return p.kv.Put(ctx, storage.NamespaceSnapshots, name, data)
}

func encodeSnapshot[T core.Record](snap Snapshot[T]) ([]byte, error) {
	data, err := codec.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", snap.Name, err)
	}
	return data, nil
}

func decodeSnapshot[T core.Record](data []byte) (Snapshot[T], error) {
	var snap Snapshot[T]
	if err := codec.Unmarshal(data, &snap); err != nil {
		return Snapshot[T]{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
