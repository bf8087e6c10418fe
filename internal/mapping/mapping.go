// Package mapping loads the account policy mapping from object storage and
// resolves (tenant, event name) pairs to the policies that must run.
package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/catherinevee/custodianhub/internal/apperrors"
	"github.com/catherinevee/custodianhub/internal/logger"
	"github.com/catherinevee/custodianhub/internal/storage"
)

var log = logger.New("mapping")

// PolicyRef names one policy to execute for an event.
type PolicyRef struct {
	SourceFile string `json:"source_file"`
	PolicyName string `json:"policy_name"`
	Resource   string `json:"resource"`
	ModeType   string `json:"mode_type"`
}

// AccountConfig is a tenant's entry in the mapping, optionally overriding
// the global event mapping.
type AccountConfig struct {
	Name         string                 `json:"name"`
	Environment  string                 `json:"environment"`
	EventMapping map[string][]PolicyRef `json:"event_mapping"`
}

// PolicyMapping is the immutable configuration document. Shared read-only;
// re-fetched every invocation.
type PolicyMapping struct {
	Version        string                   `json:"version"`
	EventMapping   map[string][]PolicyRef   `json:"event_mapping"`
	AccountMapping map[string]AccountConfig `json:"account_mapping"`
}

// Load fetches and validates the mapping document from object storage.
// Validation failures abort the invocation with KindConfigInvalid.
func Load(ctx context.Context, store storage.ObjectGetter, key string) (*PolicyMapping, error) {
	body, err := store.Get(ctx, key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfigInvalid, "failed to load account policy mapping", err)
	}

	var m PolicyMapping
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfigInvalid, "failed to parse account policy mapping", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	log.Info("loaded account policy mapping",
		logger.String("version", m.Version),
		logger.Int("event_types", len(m.EventMapping)),
		logger.Int("accounts", len(m.AccountMapping)))

	return &m, nil
}

// Validate enforces the structural invariants: version and event_mapping
// are required, and every PolicyRef carries policy_name, resource, and
// source_file.
func (m *PolicyMapping) Validate() error {
	if m.Version == "" {
		return apperrors.New(apperrors.KindConfigInvalid, "mapping missing required field 'version'")
	}
	if m.EventMapping == nil {
		return apperrors.New(apperrors.KindConfigInvalid, "mapping missing required field 'event_mapping'")
	}

	for eventName, refs := range m.EventMapping {
		if err := validateRefs(eventName, refs); err != nil {
			return err
		}
	}
	for accountID, account := range m.AccountMapping {
		for eventName, refs := range account.EventMapping {
			if err := validateRefs(fmt.Sprintf("%s/%s", accountID, eventName), refs); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateRefs(scope string, refs []PolicyRef) error {
	for i, ref := range refs {
		switch {
		case ref.PolicyName == "":
			return apperrors.Newf(apperrors.KindConfigInvalid, "event %q policy %d: missing required field 'policy_name'", scope, i)
		case ref.Resource == "":
			return apperrors.Newf(apperrors.KindConfigInvalid, "event %q policy %d: missing required field 'resource'", scope, i)
		case ref.SourceFile == "":
			return apperrors.Newf(apperrors.KindConfigInvalid, "event %q policy %d: missing required field 'source_file'", scope, i)
		}
	}
	return nil
}

// Environment returns the environment configured for a tenant, or "unknown".
func (m *PolicyMapping) Environment(accountID string) string {
	if account, ok := m.AccountMapping[accountID]; ok && account.Environment != "" {
		return account.Environment
	}
	return "unknown"
}

// AccountName returns the display name configured for a tenant, falling
// back to the account ID.
func (m *PolicyMapping) AccountName(accountID string) string {
	if account, ok := m.AccountMapping[accountID]; ok && account.Name != "" {
		return account.Name
	}
	return accountID
}

// Resolve returns the policies to execute for (tenant, event name), grouped
// by source file so the execution loop reads each policy file once.
// Tenant-specific entries win; the global table is the fallback; no entry
// at all resolves to nothing, which the invocation treats as success with
// nothing to do.
func (m *PolicyMapping) Resolve(accountID, eventName string) []PolicyRef {
	refs := m.refsFor(accountID, eventName)
	if len(refs) == 0 {
		log.Info("no policies configured",
			logger.String("account", accountID),
			logger.String("event_name", eventName))
		return nil
	}

	grouped := make([]PolicyRef, len(refs))
	copy(grouped, refs)
	sort.SliceStable(grouped, func(i, j int) bool {
		return grouped[i].SourceFile < grouped[j].SourceFile
	})

	files := make(map[string]struct{}, len(grouped))
	for _, ref := range grouped {
		files[ref.SourceFile] = struct{}{}
	}
	log.Info("resolved policies",
		logger.String("account", accountID),
		logger.String("event_name", eventName),
		logger.Int("policies", len(grouped)),
		logger.Int("files", len(files)))

	return grouped
}

func (m *PolicyMapping) refsFor(accountID, eventName string) []PolicyRef {
	if account, ok := m.AccountMapping[accountID]; ok {
		if refs := account.EventMapping[eventName]; len(refs) > 0 {
			return refs
		}
	}
	return m.EventMapping[eventName]
}
