package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/custodianhub/internal/apperrors"
)

type fakeSTS struct {
	hubAccount      string
	assumeInput     *sts.AssumeRoleInput
	assumeErr       error
	identityAccount string
	identityCalls   int
}

func (f *fakeSTS) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.assumeInput = params
	if f.assumeErr != nil {
		return nil, f.assumeErr
	}
	expiry := time.Now().Add(15 * time.Minute)
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("AKIAFAKE"),
			SecretAccessKey: aws.String("secret"),
			SessionToken:    aws.String("token"),
			Expiration:      &expiry,
		},
	}, nil
}

func (f *fakeSTS) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.identityCalls++
	account := f.hubAccount
	if f.identityAccount != "" {
		account = f.identityAccount
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(account),
		Arn:     aws.String("arn:aws:sts::" + account + ":assumed-role/role/session"),
	}, nil
}

type accessDenied struct{}

func (accessDenied) Error() string                 { return "AccessDenied: not authorized" }
func (accessDenied) ErrorCode() string             { return "AccessDenied" }
func (accessDenied) ErrorMessage() string          { return "not authorized" }
func (accessDenied) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func newTestBroker(hub *fakeSTS, tenant *fakeSTS) *Broker {
	return NewBrokerWithClient(aws.Config{Region: "us-east-1"}, hub,
		"CloudCustodianExecutionRole", "cloud-custodian",
		func(cfg aws.Config) STSAPI { return tenant })
}

func TestDeterministicIdentifiers(t *testing.T) {
	b := newTestBroker(&fakeSTS{}, &fakeSTS{})

	assert.Equal(t, "arn:aws:iam::222222222222:role/CloudCustodianExecutionRole", b.RoleARN("222222222222"))
	assert.Equal(t, "cloud-custodian-222222222222", b.ExternalID("222222222222"))
}

func TestAcquireHubBypass(t *testing.T) {
	hub := &fakeSTS{hubAccount: "111111111111"}
	b := newTestBroker(hub, &fakeSTS{})

	session, err := b.Acquire(context.Background(), "111111111111", "eu-west-1")
	require.NoError(t, err)

	assert.True(t, session.Hub)
	assert.Equal(t, "111111111111", session.TenantID)
	assert.Equal(t, "eu-west-1", session.Config.Region)
	assert.Empty(t, session.RoleARN)
	assert.Nil(t, hub.assumeInput)
}

func TestAcquireAssumesTenantRole(t *testing.T) {
	hub := &fakeSTS{hubAccount: "111111111111"}
	tenant := &fakeSTS{identityAccount: "222222222222"}
	b := newTestBroker(hub, tenant)

	session, err := b.Acquire(context.Background(), "222222222222", "us-west-2")
	require.NoError(t, err)

	assert.False(t, session.Hub)
	assert.Equal(t, "arn:aws:iam::222222222222:role/CloudCustodianExecutionRole", session.RoleARN)
	assert.Equal(t, "us-west-2", session.Config.Region)
	assert.False(t, session.Expiration.IsZero())

	require.NotNil(t, hub.assumeInput)
	assert.Equal(t, "custodian-session-222222222222", aws.ToString(hub.assumeInput.RoleSessionName))
	assert.Equal(t, "cloud-custodian-222222222222", aws.ToString(hub.assumeInput.ExternalId))
	assert.Equal(t, int32(900), aws.ToInt32(hub.assumeInput.DurationSeconds))

	// Post-assume identity verification probed the tenant session.
	assert.Equal(t, 1, tenant.identityCalls)

	creds, err := session.Config.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIAFAKE", creds.AccessKeyID)
}

func TestAcquireAccessDeniedDiagnostic(t *testing.T) {
	hub := &fakeSTS{hubAccount: "111111111111", assumeErr: accessDenied{}}
	b := newTestBroker(hub, &fakeSTS{})

	_, err := b.Acquire(context.Background(), "222222222222", "us-east-1")
	require.Error(t, err)

	assert.Equal(t, apperrors.KindCredentialFailure, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "trust policy")
	assert.Contains(t, err.Error(), "cloud-custodian-222222222222")
}

func TestAcquireOtherAssumeError(t *testing.T) {
	hub := &fakeSTS{hubAccount: "111111111111", assumeErr: assert.AnError}
	b := newTestBroker(hub, &fakeSTS{})

	_, err := b.Acquire(context.Background(), "222222222222", "us-east-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindCredentialFailure, apperrors.KindOf(err))
}

func TestHubAccountIDCached(t *testing.T) {
	hub := &fakeSTS{hubAccount: "111111111111"}
	b := newTestBroker(hub, &fakeSTS{})

	for i := 0; i < 3; i++ {
		id, err := b.HubAccountID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "111111111111", id)
	}
	assert.Equal(t, 1, hub.identityCalls)
}

func TestTestConnectivity(t *testing.T) {
	tenant := &fakeSTS{identityAccount: "222222222222"}
	b := newTestBroker(&fakeSTS{hubAccount: "111111111111"}, tenant)

	err := b.TestConnectivity(context.Background(), &Session{TenantID: "222222222222"})
	require.NoError(t, err)
	assert.Equal(t, 1, tenant.identityCalls)
}
