// Package credentials brokers the short-lived tenant sessions every
// cross-account call runs under. Role ARN and external ID are deterministic
// functions of the tenant ID so the tenant's trust policy can bind to them
// without any shared secret distribution.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/catherinevee/custodianhub/internal/apperrors"
	"github.com/catherinevee/custodianhub/internal/logger"
)

var log = logger.New("credentials")

// SessionDuration is the fixed, non-extending lifetime of a tenant session.
const SessionDuration = 900 * time.Second

// Session is an assumed tenant session. Owned by exactly one invocation and
// discarded when it ends.
type Session struct {
	Config     aws.Config
	TenantID   string
	RoleARN    string
	Expiration time.Time
	// Hub is true when the event originated in the hub account and the
	// ambient credentials were used without role assumption.
	Hub bool
}

// STSAPI is the STS surface the broker needs.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Broker acquires tenant sessions.
type Broker struct {
	hubConfig        aws.Config
	stsClient        STSAPI
	roleName         string
	externalIDPrefix string

	hubAccountID string

	// newSTS builds an STS client over an assumed config for identity
	// verification. Injected so tests can observe the verification call.
	newSTS func(aws.Config) STSAPI
}

// NewBroker creates a Broker over the hub account's ambient configuration.
func NewBroker(hubConfig aws.Config, roleName, externalIDPrefix string) *Broker {
	return &Broker{
		hubConfig:        hubConfig,
		stsClient:        sts.NewFromConfig(hubConfig),
		roleName:         roleName,
		externalIDPrefix: externalIDPrefix,
		newSTS:           func(cfg aws.Config) STSAPI { return sts.NewFromConfig(cfg) },
	}
}

// NewBrokerWithClient creates a Broker with explicit STS clients, for tests.
func NewBrokerWithClient(hubConfig aws.Config, client STSAPI, roleName, externalIDPrefix string, newSTS func(aws.Config) STSAPI) *Broker {
	return &Broker{
		hubConfig:        hubConfig,
		stsClient:        client,
		roleName:         roleName,
		externalIDPrefix: externalIDPrefix,
		newSTS:           newSTS,
	}
}

// RoleARN returns the deterministic role ARN for a tenant.
func (b *Broker) RoleARN(tenantID string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", tenantID, b.roleName)
}

// ExternalID returns the deterministic external ID for a tenant.
func (b *Broker) ExternalID(tenantID string) string {
	return fmt.Sprintf("%s-%s", b.externalIDPrefix, tenantID)
}

// HubAccountID resolves and caches the hub account's own identity.
func (b *Broker) HubAccountID(ctx context.Context) (string, error) {
	if b.hubAccountID != "" {
		return b.hubAccountID, nil
	}
	out, err := b.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve hub account identity: %w", err)
	}
	b.hubAccountID = aws.ToString(out.Account)
	return b.hubAccountID, nil
}

// Acquire returns a session for the tenant in the given region. When the
// tenant is the hub account itself, the ambient credentials are used and no
// role is assumed.
func (b *Broker) Acquire(ctx context.Context, tenantID, region string) (*Session, error) {
	hubID, err := b.HubAccountID(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindCredentialFailure, "could not determine hub account", err)
	}

	if tenantID == hubID {
		log.Info("event is from the hub account, using ambient credentials",
			logger.String("account", tenantID))
		cfg := b.hubConfig.Copy()
		cfg.Region = region
		return &Session{
			Config:   cfg,
			TenantID: tenantID,
			Hub:      true,
		}, nil
	}

	roleARN := b.RoleARN(tenantID)
	externalID := b.ExternalID(tenantID)

	log.Info("assuming tenant role",
		logger.String("account", tenantID),
		logger.String("role_arn", roleARN))

	out, err := b.stsClient.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String("custodian-session-" + tenantID),
		ExternalId:      aws.String(externalID),
		DurationSeconds: aws.Int32(int32(SessionDuration / time.Second)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDenied" {
			return nil, apperrors.Wrap(apperrors.KindCredentialFailure,
				fmt.Sprintf("assume role denied for %s: verify the tenant trust policy allows this execution role and that external ID %q matches", roleARN, externalID),
				err)
		}
		return nil, apperrors.Wrap(apperrors.KindCredentialFailure,
			fmt.Sprintf("failed to assume role %s", roleARN), err)
	}

	creds := out.Credentials
	cfg := b.hubConfig.Copy()
	cfg.Region = region
	cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		aws.ToString(creds.AccessKeyId),
		aws.ToString(creds.SecretAccessKey),
		aws.ToString(creds.SessionToken),
	))

	session := &Session{
		Config:     cfg,
		TenantID:   tenantID,
		RoleARN:    roleARN,
		Expiration: aws.ToTime(creds.Expiration),
	}

	b.verifyIdentity(ctx, session)

	log.Info("assumed tenant role",
		logger.String("account", tenantID),
		logger.String("expires", session.Expiration.Format(time.RFC3339)))

	return session, nil
}

// verifyIdentity asserts the assumed session really is in the tenant
// account. A mismatch is logged as a warning, not an error: the credentials
// are still honored, the log line makes the misconfiguration observable.
func (b *Broker) verifyIdentity(ctx context.Context, session *Session) {
	verifier := b.newSTS(session.Config)
	identity, err := verifier.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		log.Warn("could not verify assumed role identity",
			logger.String("account", session.TenantID),
			logger.Error(err))
		return
	}
	if got := aws.ToString(identity.Account); got != session.TenantID {
		log.Warn("assumed role account does not match target account",
			logger.String("expected", session.TenantID),
			logger.String("actual", got),
			logger.String("arn", aws.ToString(identity.Arn)))
	}
}

// TestConnectivity probes the tenant session with a caller-identity call.
// Used by the local debug path to validate the cross-account wiring.
func (b *Broker) TestConnectivity(ctx context.Context, session *Session) error {
	verifier := b.newSTS(session.Config)
	identity, err := verifier.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("tenant connectivity check failed: %w", err)
	}
	log.Info("tenant connectivity verified",
		logger.String("account", aws.ToString(identity.Account)),
		logger.String("arn", aws.ToString(identity.Arn)))
	return nil
}
