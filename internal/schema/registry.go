package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

// Registry holds schema definitions keyed by name, one entry per version.
// Definitions are copied in and out; registered state is never mutated.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string][]*Definition
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		schemas: make(map[string][]*Definition),
		logger:  logger,
	}
}

// Register validates and stores a definition. Field order is kept exactly as declared.
func (r *Registry) Register(def Definition) error {
	err := def.Validate()
	if err != nil {
		return fmt.Errorf("register %s: %w", def.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.schemas[def.Name] {
		if existing.Version == def.Version {
			return fmt.Errorf("register %s: %w", def.ID(), types.ErrSchemaExists)
		}
	}

	r.schemas[def.Name] = append(r.schemas[def.Name], def.clone())

	r.logger.Debug("schema-registered",
		zap.String("schema", def.Name),
		zap.String("version", def.Version),
		zap.String("primary-type", def.PrimaryType),
		zap.Int("fields", len(def.Fields)))

	return nil
}

// Get returns the most recently registered version of name.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.schemas[name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownSchema, name)
	}
	return versions[len(versions)-1].clone(), nil
}

// GetVersion returns one specific version of name.
func (r *Registry) GetVersion(name string, version string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, def := range r.schemas[name] {
		if def.Version == version {
			return def.clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %q version %q", types.ErrUnknownSchema, name, version)
}

// List returns every registered definition sorted by name then version.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.schemas))
	for _, versions := range r.schemas {
		for _, def := range versions {
			out = append(out, def.clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}
