package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/catherinevee/custodianhub/internal/logger"
)

var log = logger.New("notify")

// Drain loop bounds. Receives stop after this many rounds or after one
// empty round, whichever comes first; the queue is expected to hold only
// the handful of messages this invocation just wrote.
const (
	maxReceiveRounds   = 5
	messagesPerReceive = 10
	receiveWaitSeconds = 1
)

type QueueAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type TopicAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Stats summarises one drain pass.
type Stats struct {
	Processed int `json:"processed"`
	Published int `json:"published"`
}

// Processor drains the internal notification queue and republishes rendered
// messages on the outbound topic.
type Processor struct {
	queue       QueueAPI
	topic       TopicAPI
	queueURL    string
	topicARN    string
	environment string
}

// NewProcessor builds a processor over an existing queue and topic client.
func NewProcessor(queue QueueAPI, topic TopicAPI, queueURL, topicARN, environment string) *Processor {
	return &Processor{
		queue:       queue,
		topic:       topic,
		queueURL:    queueURL,
		topicARN:    topicARN,
		environment: environment,
	}
}

// NewProcessorFromConfig builds the queue and topic clients from the hub
// credentials.
func NewProcessorFromConfig(cfg aws.Config, queueURL, topicARN, environment string) *Processor {
	return NewProcessor(sqs.NewFromConfig(cfg), sns.NewFromConfig(cfg), queueURL, topicARN, environment)
}

// Drain receives messages written by this invocation's notify actions,
// renders them, and publishes the result. Messages carrying a different
// invocation ID belong to a concurrent invocation and stay in the queue;
// messages that fail to decode or render are logged and left for the
// queue's redrive policy. Only a receive-level failure aborts the drain.
func (p *Processor) Drain(ctx context.Context, invocationID string) (Stats, error) {
	stats := Stats{}

	for round := 0; round < maxReceiveRounds; round++ {
		out, err := p.queue.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(p.queueURL),
			MaxNumberOfMessages:   messagesPerReceive,
			WaitTimeSeconds:       receiveWaitSeconds,
			MessageAttributeNames: []string{InvocationAttribute},
		})
		if err != nil {
			return stats, err
		}
		if len(out.Messages) == 0 {
			break
		}

		for _, msg := range out.Messages {
			attr, ok := msg.MessageAttributes[InvocationAttribute]
			if !ok || attr.StringValue == nil || *attr.StringValue != invocationID {
				// Not ours. Visibility timeout returns it to its owner.
				continue
			}
			stats.Processed++

			if p.handle(ctx, aws.ToString(msg.Body)) {
				stats.Published++
				if _, err := p.queue.DeleteMessage(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      aws.String(p.queueURL),
					ReceiptHandle: msg.ReceiptHandle,
				}); err != nil {
					log.Warn("failed to delete published message",
						logger.String("invocation_id", invocationID),
						logger.Error(err))
				}
			}
		}
	}

	log.Info("notification drain complete",
		logger.String("invocation_id", invocationID),
		logger.Int("processed", stats.Processed),
		logger.Int("published", stats.Published))
	return stats, nil
}

// handle decodes, renders, and publishes one message body. Returns true
// when the message was published and can be deleted.
func (p *Processor) handle(ctx context.Context, body string) bool {
	env, err := Decode(body)
	if err != nil {
		log.Error("skipping undecodable notification", logger.Error(err))
		return false
	}

	rendered, err := Render(env, p.environment)
	if err != nil {
		log.Error("skipping unrenderable notification",
			logger.String("policy", env.PolicyName()),
			logger.Error(err))
		return false
	}

	// SNS caps subjects at 100 characters.
	subject := rendered.Subject
	if runes := []rune(subject); len(runes) > 100 {
		subject = string(runes[:100])
	}
	if _, err := p.topic.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(rendered.Body),
	}); err != nil {
		log.Error("failed to publish notification",
			logger.String("policy", env.PolicyName()),
			logger.Error(err))
		return false
	}

	log.Info("published notification",
		logger.String("policy", env.PolicyName()),
		logger.Int("resources", len(env.Resources)))
	return true
}
