package engine

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/custodianhub/internal/events"
	"github.com/catherinevee/custodianhub/internal/filters"
	"github.com/catherinevee/custodianhub/internal/notify"
	"github.com/catherinevee/custodianhub/internal/policy"
)

type fakeSQS struct {
	sent []*sqs.SendMessageInput
	err  error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &sqs.SendMessageOutput{}, nil
}

type fakeEC2Actions struct {
	tagged  []*ec2.CreateTagsInput
	stopped []*ec2.StopInstancesInput
}

func (f *fakeEC2Actions) CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	f.tagged = append(f.tagged, params)
	return &ec2.CreateTagsOutput{}, nil
}

func (f *fakeEC2Actions) StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	f.stopped = append(f.stopped, params)
	return &ec2.StopInstancesOutput{}, nil
}

func testEngine(queue SQSAPI, ec2API EC2ActionsAPI) *Engine {
	return NewWithClients("222222222222", "us-east-1", "prod-payments", "prod",
		"https://sqs.us-east-1.amazonaws.com/1/notify", &filters.Clients{}, ec2API, queue)
}

func runInstancesInfo() *events.EventInfo {
	return &events.EventInfo{
		EventName: "RunInstances",
		Source:    events.SourceCloudTrail,
		UserIdentity: events.UserIdentity{
			UserName: "alice",
		},
		RawEvent: map[string]interface{}{
			"detail": map[string]interface{}{"eventName": "RunInstances"},
		},
	}
}

func providedInstances() filters.BuildResult {
	return filters.BuildResult{
		Provided: []filters.Resource{
			{"InstanceId": "i-0abc", "InstanceType": "t3.micro"},
			{"InstanceId": "i-0def", "InstanceType": "m5.large"},
		},
	}
}

func TestExecuteFiltersProvidedResources(t *testing.T) {
	queue := &fakeSQS{}
	e := testEngine(queue, &fakeEC2Actions{})

	pol := &policy.Policy{
		Name:     "ec2-micro-only",
		Resource: "aws.ec2",
		Filters: []map[string]interface{}{
			{"type": "value", "key": "InstanceType", "value": "t3.micro"},
		},
		Actions: []interface{}{
			map[string]interface{}{"type": "notify", "subject": "alert"},
		},
	}

	result := e.Execute(context.Background(), pol, runInstancesInfo(), providedInstances(), false)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 1, result.ResourcesMatched)
	assert.True(t, result.ActionTaken)
	assert.Equal(t, "ec2-micro-only", result.PolicyName)
	assert.Equal(t, "222222222222", result.TenantID)

	require.Len(t, queue.sent, 1)
	env, err := notify.Decode(aws.ToString(queue.sent[0].MessageBody))
	require.NoError(t, err)
	assert.Equal(t, "prod-payments", env.Account)
	assert.Equal(t, "222222222222", env.AccountID)
	require.Len(t, env.Resources, 1)
	assert.Equal(t, "i-0abc", env.Resources[0]["InstanceId"])
	assert.Equal(t, "alice", env.Resources[0][filters.CreatorNameKey])
}

func TestExecuteEnrichesInstanceTags(t *testing.T) {
	e := testEngine(&fakeSQS{}, &fakeEC2Actions{})
	build := providedInstances()

	pol := &policy.Policy{Name: "p", Resource: "aws.ec2"}
	result := e.Execute(context.Background(), pol, runInstancesInfo(), build, true)

	require.True(t, result.Success)
	tags, ok := build.Provided[0]["Tags"].([]interface{})
	require.True(t, ok)
	require.Len(t, tags, 1)
	tag := tags[0].(map[string]interface{})
	assert.Equal(t, filters.CreatorNameKey, tag["Key"])
	assert.Equal(t, "alice", tag["Value"])
}

func TestExecuteDryrunSkipsActions(t *testing.T) {
	queue := &fakeSQS{}
	ec2API := &fakeEC2Actions{}
	e := testEngine(queue, ec2API)

	pol := &policy.Policy{
		Name:     "stop-everything",
		Resource: "aws.ec2",
		Actions:  []interface{}{"stop"},
	}

	result := e.Execute(context.Background(), pol, runInstancesInfo(), providedInstances(), true)

	require.True(t, result.Success)
	assert.Equal(t, 2, result.ResourcesMatched)
	assert.False(t, result.ActionTaken)
	assert.Empty(t, queue.sent)
	assert.Empty(t, ec2API.stopped)
}

func TestExecuteStopAction(t *testing.T) {
	ec2API := &fakeEC2Actions{}
	e := testEngine(&fakeSQS{}, ec2API)

	pol := &policy.Policy{Name: "stop", Resource: "aws.ec2", Actions: []interface{}{"stop"}}
	result := e.Execute(context.Background(), pol, runInstancesInfo(), providedInstances(), false)

	require.True(t, result.Success, result.Error)
	require.Len(t, ec2API.stopped, 1)
	assert.ElementsMatch(t, []string{"i-0abc", "i-0def"}, ec2API.stopped[0].InstanceIds)
}

func TestExecuteTagAction(t *testing.T) {
	ec2API := &fakeEC2Actions{}
	e := testEngine(&fakeSQS{}, ec2API)

	pol := &policy.Policy{
		Name:     "mark",
		Resource: "aws.ec2",
		Actions: []interface{}{
			map[string]interface{}{"type": "tag", "key": "Reviewed", "value": "pending"},
		},
	}
	result := e.Execute(context.Background(), pol, runInstancesInfo(), providedInstances(), false)

	require.True(t, result.Success, result.Error)
	require.Len(t, ec2API.tagged, 1)
	assert.ElementsMatch(t, []string{"i-0abc", "i-0def"}, ec2API.tagged[0].Resources)
	assert.Equal(t, "Reviewed", aws.ToString(ec2API.tagged[0].Tags[0].Key))
}

func TestExecuteUnsupportedActionFailsPolicy(t *testing.T) {
	e := testEngine(&fakeSQS{}, &fakeEC2Actions{})

	pol := &policy.Policy{Name: "p", Resource: "aws.ec2", Actions: []interface{}{"terminate"}}
	result := e.Execute(context.Background(), pol, runInstancesInfo(), providedInstances(), false)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "terminate")
}

func TestExecuteSecurityHubNotifiesWithoutResources(t *testing.T) {
	queue := &fakeSQS{}
	e := testEngine(queue, &fakeEC2Actions{})

	info := &events.EventInfo{
		EventName: "SecurityHubFinding",
		Source:    events.SourceSecurityHub,
		RawEvent: map[string]interface{}{
			"detail": map[string]interface{}{
				"findings": []interface{}{
					map[string]interface{}{"Title": "Root account used"},
				},
			},
		},
	}
	pol := &policy.Policy{
		Name:     "securityhub-critical",
		Resource: "aws.account",
		Actions: []interface{}{
			map[string]interface{}{"type": "notify", "subject": "finding"},
		},
	}

	result := e.Execute(context.Background(), pol, info, filters.BuildResult{}, false)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 0, result.ResourcesMatched)
	assert.True(t, result.ActionTaken)
	require.Len(t, queue.sent, 1)

	env, err := notify.Decode(aws.ToString(queue.sent[0].MessageBody))
	require.NoError(t, err)
	assert.Empty(t, env.Resources)
	assert.NotNil(t, env.Event["detail"])
}

func TestExecuteUnenumerableTypeWithEventFilter(t *testing.T) {
	queue := &fakeSQS{}
	e := testEngine(queue, &fakeEC2Actions{})

	build := filters.BuildResult{
		Filters: []filters.Filter{{Key: "TopicArn", Value: "arn:aws:sns:us-east-1:222222222222:alerts"}},
	}
	pol := &policy.Policy{
		Name:     "sns-policy",
		Resource: "aws.sns",
		Actions:  []interface{}{map[string]interface{}{"type": "notify"}},
	}

	result := e.Execute(context.Background(), pol, runInstancesInfo(), build, false)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 0, result.ResourcesMatched)
	assert.False(t, result.ActionTaken)
	assert.Empty(t, queue.sent)
}

func TestExecuteUnenumerableTypeWithoutFiltersFails(t *testing.T) {
	e := testEngine(&fakeSQS{}, &fakeEC2Actions{})

	pol := &policy.Policy{Name: "sns-policy", Resource: "aws.sns"}
	result := e.Execute(context.Background(), pol, runInstancesInfo(), filters.BuildResult{}, false)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no listing for resource type")
}

func TestExecuteNotifyFailureCaptured(t *testing.T) {
	e := testEngine(&fakeSQS{err: assert.AnError}, &fakeEC2Actions{})

	pol := &policy.Policy{
		Name:     "p",
		Resource: "aws.ec2",
		Actions:  []interface{}{map[string]interface{}{"type": "notify"}},
	}
	result := e.Execute(context.Background(), pol, runInstancesInfo(), providedInstances(), false)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "failed to queue notification")
}
