// Package boxstore reads data box records: a named provider profile with the
// raw credential material and configuration it was saved with.
//
// Records keep their historical shape. Credentials may be a JSON object, a
// JSON-encoded string holding an object, or any other string (kept under the
// "raw" key) and are handed to the credential resolver untouched.
package boxstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/filestore/providers"
)

// Name is the provider label used in errors raised by box stores.
const Name = "boxstore"

// Box is one saved provider profile.
type Box struct {
	Name        string         `json:"name"`
	Provider    string         `json:"provider"`
	Credentials map[string]any `json:"-"`
	Config      map[string]any `json:"config,omitempty"`
}

// FromRow builds a Box from a table row whose credentials and config
// columns hold JSON text.
func FromRow(name, provider string, credentials, config []byte) Box {
	return Box{
		Name:        name,
		Provider:    provider,
		Credentials: Decode(credentials),
		Config:      Decode(config),
	}
}

// Settings returns the configuration record with the box's provider tag
// filled in when the record does not carry one.
func (b Box) Settings() map[string]any {
	out := make(map[string]any, len(b.Config)+1)
	for k, v := range b.Config {
		out[k] = v
	}
	if _, ok := out["provider"]; !ok && b.Provider != "" {
		out["provider"] = b.Provider
	}
	return out
}

// Store looks up data boxes by name.
type Store interface {
	Get(ctx context.Context, name string) (*Box, error)
	List(ctx context.Context) ([]Box, error)
	Close(ctx context.Context) error
}

// Open fetches the named box from boxes and builds the filestore.Store for
// it.
func Open(ctx context.Context, boxes Store, name string, env filestore.Env) (filestore.Store, *Box, error) {
	box, err := boxes.Get(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if env.Log != nil {
		env.Log = env.Log.ForBox(box.Name)
	}
	st, err := providers.Open(box.Credentials, box.Settings(), env)
	if err != nil {
		return nil, box, err
	}
	return st, box, nil
}

// NotFound is the error returned for an unknown box name.
func NotFound(name string) error {
	return &errs.ProviderError{
		Kind:     errs.KindNotFound,
		Provider: Name,
		Op:       "Get",
		Message:  "no data box named \"" + name + "\"",
	}
}

// Decode turns a stored credential or config value into a record. Objects
// pass through, strings holding a JSON object are parsed, any other
// non-empty string is kept as {"raw": s}.
func Decode(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return t
	case []byte:
		return Decode(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return map[string]any{}
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
			return obj
		}
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return Decode(inner)
		}
		return map[string]any{"raw": t}
	}
	return map[string]any{"raw": v}
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	boxes map[string]Box
}

// NewMemory returns a Memory holding boxes.
func NewMemory(boxes ...Box) *Memory {
	m := &Memory{boxes: make(map[string]Box, len(boxes))}
	for _, b := range boxes {
		m.Put(b)
	}
	return m
}

// Put adds or replaces a box.
func (m *Memory) Put(b Box) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes[b.Name] = b
}

func (m *Memory) Get(_ context.Context, name string) (*Box, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.boxes[name]
	if !ok {
		return nil, NotFound(name)
	}
	return &b, nil
}

func (m *Memory) List(_ context.Context) ([]Box, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Box, 0, len(m.boxes))
	for _, b := range m.boxes {
		out = append(out, b)
	}
	Sort(out)
	return out, nil
}

func (m *Memory) Close(context.Context) error { return nil }

// Sort orders boxes by name.
func Sort(boxes []Box) {
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].Name < boxes[j].Name })
}
