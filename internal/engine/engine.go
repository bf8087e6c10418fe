// Package engine runs one policy against the resources an event names:
// event-derived filters first, then the policy's authored filters, then its
// actions, all through the tenant's assumed session.
package engine

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/catherinevee/custodianhub/internal/credentials"
	"github.com/catherinevee/custodianhub/internal/events"
	"github.com/catherinevee/custodianhub/internal/filters"
	"github.com/catherinevee/custodianhub/internal/logger"
	"github.com/catherinevee/custodianhub/internal/policy"
)

var log = logger.New("engine")

// ExecutionResult reports one policy run. Error is set (and Success false)
// when the run failed; sibling policies are unaffected.
type ExecutionResult struct {
	PolicyName       string `json:"policy_name"`
	TenantID         string `json:"tenant_id"`
	ResourceType     string `json:"resource_type"`
	ResourcesMatched int    `json:"resources_matched"`
	ActionTaken      bool   `json:"action_taken"`
	Dryrun           bool   `json:"dryrun"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
}

// Engine executes policies for one tenant session. All service clients are
// built from the assumed credentials, so every downstream call runs in the
// tenant account.
type Engine struct {
	tenantID    string
	region      string
	accountName string
	environment string
	clients     *filters.Clients
	ec2         EC2ActionsAPI
	queue       SQSAPI
	queueURL    string
}

// New builds an engine over an assumed tenant session.
func New(session *credentials.Session, region, accountName, environment, queueURL string) *Engine {
	return &Engine{
		tenantID:    session.TenantID,
		region:      region,
		accountName: accountName,
		environment: environment,
		clients:     filters.NewClients(session.Config),
		ec2:         ec2.NewFromConfig(session.Config),
		queue:       NewQueueClient(session.Config),
		queueURL:    queueURL,
	}
}

// NewWithClients wires an engine over pre-built clients.
func NewWithClients(tenantID, region, accountName, environment, queueURL string, clients *filters.Clients, ec2API EC2ActionsAPI, queue SQSAPI) *Engine {
	return &Engine{
		tenantID:    tenantID,
		region:      region,
		accountName: accountName,
		environment: environment,
		clients:     clients,
		ec2:         ec2API,
		queue:       queue,
		queueURL:    queueURL,
	}
}

// Clients exposes the tenant-scoped service clients so the filter builder
// can prefetch through the same session the policy will execute under.
func (e *Engine) Clients() *filters.Clients {
	return e.clients
}

// Execute runs one policy. Event-derived filters are prepended so they
// evaluate before authored filters; pre-fetched descriptors replace
// enumeration. Failures are folded into the result rather than returned,
// because one failing policy must not abort its siblings.
func (e *Engine) Execute(ctx context.Context, pol *policy.Policy, info *events.EventInfo, build filters.BuildResult, dryrun bool) ExecutionResult {
	result := ExecutionResult{
		PolicyName:   pol.Name,
		TenantID:     e.tenantID,
		ResourceType: pol.Resource,
		Dryrun:       dryrun,
	}

	// Pre-fetched descriptors replace enumeration. Findings-driven events
	// skip enumeration entirely: their policies act on the finding, not on
	// an account-wide sweep.
	resources := build.Provided
	if len(resources) == 0 && info.Source != events.SourceSecurityHub {
		enumerated, err := filters.Enumerate(ctx, e.clients, pol.Resource)
		switch {
		case err == nil:
			resources = enumerated
		case errors.Is(err, filters.ErrEnumerationUnsupported) && len(build.Filters) > 0:
			// The event named concrete resources the tenant clients cannot
			// list. Nothing to act on, but that is a clean zero-candidate
			// run, not a policy failure.
			log.Warn("resource type not enumerable, proceeding with zero candidates",
				logger.String("policy", pol.Name),
				logger.String("resource_type", pol.Resource))
		default:
			result.Error = err.Error()
			return result
		}
	}

	e.enrich(resources, info, pol.Resource)

	matched, err := e.filterResources(resources, pol, build.Filters)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.ResourcesMatched = len(matched)

	log.Info("policy filter pass complete",
		logger.String("policy", pol.Name),
		logger.String("tenant_id", e.tenantID),
		logger.Int("candidates", len(resources)),
		logger.Int("matched", len(matched)))

	if dryrun {
		result.Success = true
		return result
	}

	// Findings-driven policies notify on the event itself; their envelope
	// may carry no resources at all.
	runEmpty := len(matched) == 0 && info.Source == events.SourceSecurityHub

	if len(matched) > 0 || runEmpty {
		for _, raw := range pol.Actions {
			actionType, spec, err := parseAction(raw)
			if err != nil {
				result.Error = err.Error()
				return result
			}
			if len(matched) == 0 && actionType != "notify" {
				continue
			}
			if err := e.runAction(ctx, pol, info, spec, actionType, matched); err != nil {
				result.Error = err.Error()
				return result
			}
			result.ActionTaken = true
		}
	}

	result.Success = true
	return result
}

// filterResources applies event-derived filters then the authored chain.
func (e *Engine) filterResources(resources []filters.Resource, pol *policy.Policy, eventFilters []filters.Filter) ([]filters.Resource, error) {
	specs := make([]map[string]interface{}, 0, len(eventFilters)+len(pol.Filters))
	for _, f := range eventFilters {
		specs = append(specs, f.Spec())
	}
	specs = append(specs, pol.Filters...)

	var matched []filters.Resource
	for _, r := range resources {
		ok, err := evalFilters(specs, r)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// enrich writes provenance onto every descriptor before the first filter
// runs, so notify actions serialise it. Instance descriptors also get the
// principal appended to their tag list for downstream renderers.
func (e *Engine) enrich(resources []filters.Resource, info *events.EventInfo, resourceType string) {
	principal := info.Principal()
	if principal == "" {
		return
	}
	for _, r := range resources {
		r[filters.CreatorNameKey] = principal
		if _, ok := r[filters.MatchedFiltersKey]; !ok {
			r[filters.MatchedFiltersKey] = []string{"event-filter"}
		}
		if resourceType == "aws.ec2" {
			appendCreatorTag(r, principal)
		}
	}
}

func appendCreatorTag(r filters.Resource, principal string) {
	tags, _ := r["Tags"].([]interface{})
	for _, raw := range tags {
		if tag, ok := raw.(map[string]interface{}); ok {
			if k, _ := tag["Key"].(string); k == filters.CreatorNameKey {
				return
			}
		}
	}
	r["Tags"] = append(tags, map[string]interface{}{
		"Key":   filters.CreatorNameKey,
		"Value": principal,
	})
}
