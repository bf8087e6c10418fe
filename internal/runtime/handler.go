// Package runtime orchestrates one invocation end to end: classify the
// event, resolve the policies mapped to it, assume the tenant role, run
// each policy, and drain the resulting notifications.
package runtime

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"

	"github.com/catherinevee/custodianhub/internal/apperrors"
	"github.com/catherinevee/custodianhub/internal/config"
	"github.com/catherinevee/custodianhub/internal/credentials"
	"github.com/catherinevee/custodianhub/internal/engine"
	"github.com/catherinevee/custodianhub/internal/events"
	"github.com/catherinevee/custodianhub/internal/filters"
	"github.com/catherinevee/custodianhub/internal/logger"
	"github.com/catherinevee/custodianhub/internal/mapping"
	"github.com/catherinevee/custodianhub/internal/notify"
	"github.com/catherinevee/custodianhub/internal/policy"
	"github.com/catherinevee/custodianhub/internal/storage"
)

var log = logger.New("runtime")

// deadlineMargin is subtracted from the platform deadline; policies that
// would start inside the margin are skipped instead.
const deadlineMargin = 5 * time.Second

// deadlineExceededError marks policies skipped because the invocation ran
// out of budget.
const deadlineExceededError = "deadline_exceeded"

// PolicyRunner is the engine surface the handler drives.
type PolicyRunner interface {
	Clients() *filters.Clients
	Execute(ctx context.Context, pol *policy.Policy, info *events.EventInfo, build filters.BuildResult, dryrun bool) engine.ExecutionResult
}

// Drainer drains this invocation's notifications after the policy pass.
type Drainer interface {
	Drain(ctx context.Context, invocationID string) (notify.Stats, error)
}

// SessionBroker acquires tenant credentials.
type SessionBroker interface {
	Acquire(ctx context.Context, tenantID, region string) (*credentials.Session, error)
}

// Handler holds the invocation-independent wiring. One Handler serves the
// whole process lifetime; per-invocation state (sessions, loaders, caches)
// is created inside Handle.
type Handler struct {
	cfg    *config.Config
	store  storage.ObjectGetter
	broker SessionBroker
	dryrun bool

	newRunner  func(session *credentials.Session, region, accountName, environment string) PolicyRunner
	newDrainer func(environment string) Drainer
}

// New wires a Handler over the hub credentials.
func New(cfg *config.Config, hubConfig aws.Config, dryrun bool) *Handler {
	return &Handler{
		cfg:    cfg,
		store:  storage.NewBucket(hubConfig, cfg.PolicyBucket),
		broker: credentials.NewBroker(hubConfig, cfg.CrossAccountRoleName, cfg.ExternalIDPrefix),
		dryrun: dryrun,
		newRunner: func(session *credentials.Session, region, accountName, environment string) PolicyRunner {
			return engine.New(session, region, accountName, environment, cfg.NotifyQueueURL)
		},
		newDrainer: func(environment string) Drainer {
			return notify.NewProcessorFromConfig(hubConfig, cfg.NotifyQueueURL, cfg.NotifyTopicARN, environment)
		},
	}
}

// Handle processes one inbound event and returns the exit contract. The
// error return is always nil: failures are encoded in the response status
// so the host sees a well-formed result either way.
func (h *Handler) Handle(ctx context.Context, raw map[string]interface{}) (Response, error) {
	invocationID := invocationIDFrom(ctx)
	ctx = engine.WithInvocationID(ctx, invocationID)

	log.Info("invocation started", logger.String("invocation_id", invocationID))

	info, err := events.Classify(raw)
	if err != nil {
		log.Error("event classification failed", logger.Error(err))
		return errorResponse(apperrors.StatusCode(err), "", "", "", err), nil
	}

	tenantID := info.SourceAccountID
	region := info.Region
	if tenantID == "" {
		err := apperrors.New(apperrors.KindMalformedEvent, "event carries no account ID")
		return errorResponse(apperrors.StatusCode(err), "", region, info.EventName, err), nil
	}

	log.Info("event classified",
		logger.String("invocation_id", invocationID),
		logger.String("source", string(info.Source)),
		logger.String("event_name", info.EventName),
		logger.String("tenant_id", tenantID),
		logger.String("region", region))

	m, err := mapping.Load(ctx, h.store, h.cfg.AccountMappingKey)
	if err != nil {
		log.Error("mapping load failed", logger.Error(err))
		return errorResponse(apperrors.StatusCode(err), tenantID, region, info.EventName, err), nil
	}

	refs := m.Resolve(tenantID, info.EventName)
	if len(refs) == 0 {
		return successResponse(tenantID, region, info.EventName, nil, notify.Stats{}), nil
	}

	session, err := h.broker.Acquire(ctx, tenantID, region)
	if err != nil {
		log.Error("credential acquisition failed",
			logger.String("tenant_id", tenantID),
			logger.Error(err))
		return errorResponse(apperrors.StatusCode(err), tenantID, region, info.EventName, err), nil
	}

	accountName := m.AccountName(tenantID)
	environment := m.Environment(tenantID)
	runner := h.newRunner(session, region, accountName, environment)
	loader := policy.NewLoader(h.store, h.cfg.PolicyPrefix)

	results := h.runPolicies(ctx, refs, info, runner, loader)

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}

	stats := notify.Stats{}
	if successful > 0 && h.cfg.NotifyQueueURL != "" && h.cfg.NotifyTopicARN != "" {
		stats, err = h.newDrainer(environment).Drain(ctx, invocationID)
		if err != nil {
			log.Error("notification drain failed", logger.Error(err))
		}
	}

	log.Info("invocation complete",
		logger.String("invocation_id", invocationID),
		logger.Int("policies", len(results)),
		logger.Int("successful", successful),
		logger.Int("notifications", stats.Published))

	return successResponse(tenantID, region, info.EventName, results, stats), nil
}

// runPolicies executes every resolved policy sequentially, isolating
// failures per policy and honouring the invocation deadline.
func (h *Handler) runPolicies(ctx context.Context, refs []mapping.PolicyRef, info *events.EventInfo, runner PolicyRunner, loader *policy.Loader) []engine.ExecutionResult {
	results := make([]engine.ExecutionResult, 0, len(refs))

	for _, ref := range refs {
		if deadlineReached(ctx) {
			log.Warn("deadline reached, skipping remaining policies",
				logger.String("policy", ref.PolicyName))
			results = append(results, engine.ExecutionResult{
				PolicyName:   ref.PolicyName,
				TenantID:     info.SourceAccountID,
				ResourceType: ref.Resource,
				Error:        deadlineExceededError,
			})
			continue
		}

		file, err := loader.Load(ctx, ref.SourceFile)
		if err != nil {
			results = append(results, engine.ExecutionResult{
				PolicyName:   ref.PolicyName,
				TenantID:     info.SourceAccountID,
				ResourceType: ref.Resource,
				Error:        err.Error(),
			})
			continue
		}

		pol := file.Find(ref.PolicyName)
		if pol == nil {
			results = append(results, engine.ExecutionResult{
				PolicyName:   ref.PolicyName,
				TenantID:     info.SourceAccountID,
				ResourceType: ref.Resource,
				Error:        "policy not found in source file",
			})
			continue
		}

		build := filters.Build(ctx, info, pol.Resource, runner.Clients(), info.Region)
		results = append(results, runner.Execute(ctx, pol, info, build, h.dryrun))
	}
	return results
}

func deadlineReached(ctx context.Context) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return false
	}
	return time.Until(deadline) < deadlineMargin
}

// invocationIDFrom returns the platform request ID, or a fresh UUID when
// running outside the platform (local mode, tests).
func invocationIDFrom(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}
