package prefs

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Store used by tests and dry runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: map[string]map[string]string{}}
}

func (m *Memory) Get(_ context.Context, ns, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[ns][key]
	return v, ok, nil
}

func (m *Memory) All(_ context.Context, ns string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data[ns]))
	for k, v := range m.data[ns] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Apply(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		bucket := m.data[op.Namespace]
		switch op.Kind {
		case OpPut:
			if bucket == nil {
				bucket = map[string]string{}
				m.data[op.Namespace] = bucket
			}
			bucket[op.Key] = op.Value
		case OpRemove:
			delete(bucket, op.Key)
		case OpRemovePrefix:
			for k := range bucket {
				if strings.HasPrefix(k, op.Key) {
					delete(bucket, k)
				}
			}
		}
	}
	return nil
}
