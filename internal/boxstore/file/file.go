// Package file is a boxstore.Store backed by a YAML profiles file:
//
//	boxes:
//	  - name: reports
//	    provider: s3
//	    credentials:
//	      accessKeyId: AKIA...
//	      secretAccessKey: ...
//	    config:
//	      bucket: reports
//	      region: eu-west-1
//	  - name: archive
//	    provider: gcs
//	    credentials: '{"type":"service_account", ...}'
//
// credentials and config accept a mapping or a string holding JSON.
package file

import (
	"context"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/cloudbox/internal/boxstore"
)

type document struct {
	Boxes []record `yaml:"boxes"`
}

type record struct {
	Name        string `yaml:"name"`
	Provider    string `yaml:"provider"`
	Credentials any    `yaml:"credentials"`
	Config      any    `yaml:"config"`
}

// Store serves the boxes read from one file. The file is read once.
type Store struct {
	path string
	mem  *boxstore.Memory
}

// Open reads and parses the profiles file at path.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("boxstore: reading %s: %w", path, err)
	}
	boxes, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("boxstore: %s: %w", path, err)
	}
	return &Store{path: path, mem: boxstore.NewMemory(boxes...)}, nil
}

// Parse decodes a profiles document. Names must be present and unique.
func Parse(data []byte) ([]boxstore.Box, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	seen := make(map[string]bool, len(doc.Boxes))
	out := make([]boxstore.Box, 0, len(doc.Boxes))
	for i, r := range doc.Boxes {
		if r.Name == "" {
			return nil, fmt.Errorf("box #%d has no name", i+1)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate box %q", r.Name)
		}
		seen[r.Name] = true
		out = append(out, boxstore.Box{
			Name:        r.Name,
			Provider:    r.Provider,
			Credentials: boxstore.Decode(normalize(r.Credentials)),
			Config:      boxstore.Decode(normalize(r.Config)),
		})
	}
	return out, nil
}

// Path returns the file the store was read from.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(ctx context.Context, name string) (*boxstore.Box, error) {
	return s.mem.Get(ctx, name)
}

func (s *Store) List(ctx context.Context) ([]boxstore.Box, error) {
	return s.mem.List(ctx)
}

func (s *Store) Close(context.Context) error { return nil }

// normalize converts nested YAML mappings with non-string keys into
// map[string]any so the credential resolver sees plain JSON-like records.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[fmt.Sprint(k)] = normalize(inner)
		}
		return out
	case []any:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	}
	return v
}
