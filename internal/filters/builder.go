package filters

import (
	"context"
	"strings"

	"github.com/catherinevee/custodianhub/internal/events"
	"github.com/catherinevee/custodianhub/internal/logger"
)

var log = logger.New("filters")

// Provenance attributes written onto descriptors so downstream renderers
// can attribute a finding to the originating principal.
const (
	MatchedFiltersKey = "c7n:MatchedFilters"
	CreatorNameKey    = "c7n:CreatorName"
	eventFilterMark   = "event-filter"
)

// Resource is a cloud-SDK-shaped descriptor of a concrete resource.
type Resource map[string]interface{}

// Filter is a value-equality filter emitted from event context. It renders
// into the engine's generic filter vocabulary.
type Filter struct {
	Key   string
	Value interface{}
}

// Spec renders the filter in the form the policy engine consumes.
func (f Filter) Spec() map[string]interface{} {
	return map[string]interface{}{
		"type":  "value",
		"key":   f.Key,
		"value": f.Value,
	}
}

// BuildResult is the builder's output: either filters to prepend to the
// policy, or descriptors that replace enumeration, never both. Prefetch
// wins because supplying descriptors is strictly stronger than filtering.
type BuildResult struct {
	Filters  []Filter
	Provided []Resource
}

// Build produces the policy input for one (event, resource type) pair.
// Strategy, first match wins: ARN with a compatible service, then an ID
// passing the type's prefix guard, then a name. The prefetch pass then
// tries to describe the named resources through the tenant session; on
// success the filters are cleared. Prefetch never fails the build; any
// error degrades to filters only.
func Build(ctx context.Context, info *events.EventInfo, resourceType string, clients *Clients, region string) BuildResult {
	result := BuildResult{}
	spec, mapped := fieldsFor(resourceType)
	generic := info.Generic

	if arn := firstMatchingARN(generic.ARNs, resourceType); arn != "" && spec.ARNField != "" {
		result.Filters = append(result.Filters, Filter{Key: spec.ARNField, Value: arn})
	} else if id := firstMatchingID(generic.IDs, spec); id != "" && spec.IDField != "" {
		result.Filters = append(result.Filters, Filter{Key: spec.IDField, Value: id})
	} else if len(generic.Names) > 0 && spec.NameField != "" {
		result.Filters = append(result.Filters, Filter{Key: spec.NameField, Value: generic.Names[0]})
	}

	if clients != nil {
		result.Provided = prefetch(ctx, info, resourceType, clients, region)
	}

	if len(result.Provided) > 0 {
		// Descriptors were fetched for the exact resources; filters would
		// only re-match on field names that may not line up.
		log.Info("prefetched resources, clearing event filters",
			logger.String("resource_type", resourceType),
			logger.Int("resources", len(result.Provided)))
		result.Filters = nil
		return result
	}

	// Last resort for unmapped types: naive equality filters give the
	// engine something to narrow on.
	if len(result.Filters) == 0 && !mapped && !generic.Empty() {
		for _, id := range generic.IDs {
			result.Filters = append(result.Filters, Filter{Key: "Id", Value: id})
		}
		for _, name := range generic.Names {
			result.Filters = append(result.Filters, Filter{Key: "Name", Value: name})
		}
		for _, arn := range generic.ARNs {
			result.Filters = append(result.Filters, Filter{Key: "Arn", Value: arn})
		}
	}

	return result
}

// firstMatchingARN returns the first ARN whose service component is
// compatible with the resource type.
func firstMatchingARN(arns []string, resourceType string) string {
	for _, arn := range arns {
		if ARNMatchesType(arn, resourceType) {
			return arn
		}
	}
	return ""
}

// firstMatchingID returns the first ID passing the type's prefix guard.
// The guard prevents cross-assignment when one event mentions several kinds
// of IDs (an instance ID and an AMI ID in the same RunInstances response).
func firstMatchingID(ids []string, spec fieldSpec) string {
	for _, id := range ids {
		if spec.IDPrefix == "" || strings.HasPrefix(id, spec.IDPrefix) {
			return id
		}
	}
	return ""
}

// filterIDs returns the subset of ids carrying the given prefix, or all ids
// when the prefix is empty.
func filterIDs(ids []string, prefix string) []string {
	if prefix == "" {
		return ids
	}
	var out []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out
}
