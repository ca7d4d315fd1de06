// Package prefs is a flat, namespaced string key/value store. Writes are
// batched through an Editor and applied atomically across namespaces.
package prefs

import (
	"context"
	"errors"
	"strconv"
)

var (
	// ErrClosed is returned when a backend is used before Load/Init or after Close.
	ErrClosed = errors.New("preference store is not open")
)

// OpKind identifies a mutation in a batch.
type OpKind int

const (
	OpPut OpKind = iota
	OpRemove
	// OpRemovePrefix removes every key in the namespace starting with Key.
	OpRemovePrefix
)

// Op is a single mutation.
type Op struct {
	Kind      OpKind
	Namespace string
	Key       string
	Value     string
}

// Store is implemented by every preference backend.
type Store interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	All(ctx context.Context, namespace string) (map[string]string, error)
	// Apply commits every op or none of them.
	Apply(ctx context.Context, ops []Op) error
}

// Editor accumulates ops for a single atomic commit.
type Editor struct {
	store Store
	ops   []Op
}

// Edit starts a batch against s.
func Edit(s Store) *Editor {
	return &Editor{store: s}
}

func (e *Editor) PutString(ns, key, value string) *Editor {
	e.ops = append(e.ops, Op{Kind: OpPut, Namespace: ns, Key: key, Value: value})
	return e
}

func (e *Editor) PutInt(ns, key string, v int) *Editor {
	return e.PutString(ns, key, strconv.Itoa(v))
}

func (e *Editor) PutInt64(ns, key string, v int64) *Editor {
	return e.PutString(ns, key, strconv.FormatInt(v, 10))
}

func (e *Editor) PutBool(ns, key string, v bool) *Editor {
	return e.PutString(ns, key, strconv.FormatBool(v))
}

func (e *Editor) PutFloat(ns, key string, v float64) *Editor {
	return e.PutString(ns, key, strconv.FormatFloat(v, 'f', -1, 64))
}

// PutMap queues every pair in m.
func (e *Editor) PutMap(ns string, m map[string]string) *Editor {
	for k, v := range m {
		e.PutString(ns, k, v)
	}
	return e
}

func (e *Editor) Remove(ns, key string) *Editor {
	e.ops = append(e.ops, Op{Kind: OpRemove, Namespace: ns, Key: key})
	return e
}

func (e *Editor) RemovePrefix(ns, prefix string) *Editor {
	e.ops = append(e.ops, Op{Kind: OpRemovePrefix, Namespace: ns, Key: prefix})
	return e
}

// Len reports the number of queued ops.
func (e *Editor) Len() int { return len(e.ops) }

// Commit applies the queued ops. An empty batch is a no-op.
func (e *Editor) Commit(ctx context.Context) error {
	if len(e.ops) == 0 {
		return nil
	}
	if err := e.store.Apply(ctx, e.ops); err != nil {
		return err
	}
	e.ops = nil
	return nil
}
