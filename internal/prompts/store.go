package prompts

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jonathan/filing-validator/internal/storage"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.json
var defaultTemplates []byte

// Container is the object-store container holding prompt documents
const Container = "prompts"

// Store loads a complete, validated template set
type Store interface {
	Load(ctx context.Context) (Templates, error)
}

// EmbeddedStore serves the templates compiled into the binary
type EmbeddedStore struct{}

// Load parses the embedded defaults
func (EmbeddedStore) Load(_ context.Context) (Templates, error) {
	var t Templates
	if err := json.Unmarshal(defaultTemplates, &t); err != nil {
		return nil, &LoadError{Source: "embedded defaults", Message: "invalid JSON", Cause: err}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// BlobStore reads a YAML template document from object storage
type BlobStore struct {
	store     storage.Store
	container string
	name      string
}

// NewBlobStore reads the named document from the prompts container
func NewBlobStore(store storage.Store, name string) *BlobStore {
	return &BlobStore{store: store, container: Container, name: name}
}

// Load fetches and parses the YAML document
func (b *BlobStore) Load(ctx context.Context) (Templates, error) {
	source := fmt.Sprintf("%s/%s", b.container, b.name)
	if b.name == "" {
		return nil, &LoadError{Source: b.container, Message: "no prompt file configured"}
	}

	data, err := b.store.Get(ctx, b.container, b.name)
	if err != nil {
		return nil, &LoadError{Source: source, Message: "read failed", Cause: err}
	}

	t, err := ParseYAML(data)
	if err != nil {
		return nil, &LoadError{Source: source, Message: "invalid YAML", Cause: err}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseYAML decodes a top-level mapping of template names to text.
// Scalar values that YAML types as numbers or booleans are kept as their source text.
func ParseYAML(data []byte) (Templates, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return Templates{}, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("prompt document must be a mapping, got line %d", root.Line)
	}

	t := make(Templates, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("prompt %q must be a string (line %d)", key.Value, value.Line)
		}
		t[key.Value] = value.Value
	}
	return t, nil
}

// LivePromptSource returns the templates of the prompt currently marked live
type LivePromptSource interface {
	LivePromptTemplates(ctx context.Context) (map[string]string, error)
}

// DBStore reads the live prompt from the database
type DBStore struct {
	source LivePromptSource
}

// NewDBStore wraps a live prompt source
func NewDBStore(source LivePromptSource) *DBStore {
	return &DBStore{source: source}
}

// Load returns the live prompt's templates
func (d *DBStore) Load(ctx context.Context) (Templates, error) {
	m, err := d.source.LivePromptTemplates(ctx)
	if err != nil {
		return nil, &LoadError{Source: "database", Message: "live prompt lookup failed", Cause: err}
	}
	t := Templates(m)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
