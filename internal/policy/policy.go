// Package policy models the YAML policy documents stored in the policy
// bucket and loads them on demand.
package policy

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/catherinevee/custodianhub/internal/apperrors"
	"github.com/catherinevee/custodianhub/internal/logger"
	"github.com/catherinevee/custodianhub/internal/storage"
)

var log = logger.New("policy")

// Policy is one entry of a policy file's top-level policies array. Filters
// and Actions stay loosely typed; the engine's registries interpret them.
type Policy struct {
	Name        string                   `yaml:"name"`
	Resource    string                   `yaml:"resource"`
	Description string                   `yaml:"description,omitempty"`
	Filters     []map[string]interface{} `yaml:"filters,omitempty"`
	Actions     []interface{}            `yaml:"actions,omitempty"`
	Mode        map[string]interface{}   `yaml:"mode,omitempty"`
}

// File is a parsed policy document.
type File struct {
	Policies []Policy `yaml:"policies"`
}

// Find returns the named policy, or nil when the file does not contain it.
func (f *File) Find(name string) *Policy {
	for i := range f.Policies {
		if f.Policies[i].Name == name {
			return &f.Policies[i]
		}
	}
	return nil
}

// Loader fetches policy files from object storage, caching each file for
// the lifetime of one invocation. Not safe for concurrent use; each
// invocation owns its Loader.
type Loader struct {
	store  storage.ObjectGetter
	prefix string
	cache  map[string]*File
}

// NewLoader creates a Loader reading keys under the given prefix.
func NewLoader(store storage.ObjectGetter, prefix string) *Loader {
	return &Loader{
		store:  store,
		prefix: prefix,
		cache:  make(map[string]*File),
	}
}

// Load fetches and parses the named policy file. The ".yml" suffix is
// optional in the name; the S3 key always carries it.
func (l *Loader) Load(ctx context.Context, name string) (*File, error) {
	base := strings.TrimSuffix(name, ".yml")
	if cached, ok := l.cache[base]; ok {
		return cached, nil
	}

	key := strings.ReplaceAll(l.prefix+base+".yml", "//", "/")
	body, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPolicyLoad, fmt.Sprintf("failed to load policy file %q", base), err)
	}

	var file File
	if err := yaml.Unmarshal(body, &file); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPolicyLoad, fmt.Sprintf("failed to parse policy file %q", base), err)
	}
	if len(file.Policies) == 0 {
		return nil, apperrors.Newf(apperrors.KindPolicyLoad, "policy file %q has no 'policies' entries", base)
	}

	log.Info("loaded policy file",
		logger.String("file", base),
		logger.Int("policies", len(file.Policies)))

	l.cache[base] = &file
	return &file, nil
}
