package engine

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go/middleware"

	"github.com/catherinevee/custodianhub/internal/notify"
)

type invocationKey struct{}

// WithInvocationID stores the invocation correlation ID on the context. The
// runtime sets it once at invocation start; the queue client middleware
// reads it on every SendMessage.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationKey{}, id)
}

// InvocationID returns the correlation ID carried by the context, or "".
func InvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationKey{}).(string)
	return id
}

// attachInvocationID stamps the correlation ID onto outbound SendMessage
// calls as a message attribute, so the drain pass can tell this
// invocation's notifications apart from a concurrent invocation's.
var attachInvocationID = middleware.InitializeMiddlewareFunc("AttachInvocationID",
	func(ctx context.Context, in middleware.InitializeInput, next middleware.InitializeHandler) (middleware.InitializeOutput, middleware.Metadata, error) {
		if input, ok := in.Parameters.(*sqs.SendMessageInput); ok {
			if id := InvocationID(ctx); id != "" {
				if input.MessageAttributes == nil {
					input.MessageAttributes = map[string]sqstypes.MessageAttributeValue{}
				}
				input.MessageAttributes[notify.InvocationAttribute] = sqstypes.MessageAttributeValue{
					DataType:    aws.String("String"),
					StringValue: aws.String(id),
				}
			}
		}
		return next.HandleInitialize(ctx, in)
	})

// NewQueueClient builds an SQS client whose SendMessage calls carry the
// context's invocation ID.
func NewQueueClient(cfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		o.APIOptions = append(o.APIOptions, func(stack *middleware.Stack) error {
			return stack.Initialize.Add(attachInvocationID, middleware.Before)
		})
	})
}
