package notify

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	batches [][]sqstypes.Message
	deleted []string
}

func (f *fakeQueue) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if len(f.batches) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (f *fakeQueue) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeTopic struct {
	published []*sns.PublishInput
	err       error
}

func (f *fakeTopic) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, params)
	return &sns.PublishOutput{}, nil
}

func queueMessage(t *testing.T, invocationID, receipt string) sqstypes.Message {
	t.Helper()
	body, err := Encode(sampleEnvelope())
	require.NoError(t, err)
	return sqstypes.Message{
		Body:          aws.String(body),
		ReceiptHandle: aws.String(receipt),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			InvocationAttribute: {
				DataType:    aws.String("String"),
				StringValue: aws.String(invocationID),
			},
		},
	}
}

func TestDrainPublishesMatchingMessages(t *testing.T) {
	queue := &fakeQueue{batches: [][]sqstypes.Message{{
		queueMessage(t, "inv-1", "r1"),
		queueMessage(t, "inv-1", "r2"),
	}}}
	topic := &fakeTopic{}
	p := NewProcessor(queue, topic, "https://queue", "arn:aws:sns:us-east-1:1:alerts", "prod")

	stats, err := p.Drain(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, Stats{Processed: 2, Published: 2}, stats)
	assert.Equal(t, []string{"r1", "r2"}, queue.deleted)
	require.Len(t, topic.published, 2)
	assert.Equal(t, "arn:aws:sns:us-east-1:1:alerts", aws.ToString(topic.published[0].TopicArn))
}

func TestDrainLeavesForeignMessages(t *testing.T) {
	queue := &fakeQueue{batches: [][]sqstypes.Message{{
		queueMessage(t, "other-invocation", "r1"),
	}}}
	topic := &fakeTopic{}
	p := NewProcessor(queue, topic, "https://queue", "arn:sns", "prod")

	stats, err := p.Drain(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, queue.deleted)
	assert.Empty(t, topic.published)
}

func TestDrainSkipsUndecodableMessage(t *testing.T) {
	bad := sqstypes.Message{
		Body:          aws.String("garbage"),
		ReceiptHandle: aws.String("r1"),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			InvocationAttribute: {DataType: aws.String("String"), StringValue: aws.String("inv-1")},
		},
	}
	queue := &fakeQueue{batches: [][]sqstypes.Message{{bad, queueMessage(t, "inv-1", "r2")}}}
	topic := &fakeTopic{}
	p := NewProcessor(queue, topic, "https://queue", "arn:sns", "prod")

	stats, err := p.Drain(context.Background(), "inv-1")
	require.NoError(t, err)

	// The bad message counts as processed but stays in the queue for the
	// redrive policy; the good one publishes.
	assert.Equal(t, Stats{Processed: 2, Published: 1}, stats)
	assert.Equal(t, []string{"r2"}, queue.deleted)
}

func TestDrainPublishFailureLeavesMessage(t *testing.T) {
	queue := &fakeQueue{batches: [][]sqstypes.Message{{queueMessage(t, "inv-1", "r1")}}}
	topic := &fakeTopic{err: assert.AnError}
	p := NewProcessor(queue, topic, "https://queue", "arn:sns", "prod")

	stats, err := p.Drain(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, Stats{Processed: 1, Published: 0}, stats)
	assert.Empty(t, queue.deleted)
}
