package engine

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/catherinevee/custodianhub/internal/apperrors"
	"github.com/catherinevee/custodianhub/internal/events"
	"github.com/catherinevee/custodianhub/internal/filters"
	"github.com/catherinevee/custodianhub/internal/logger"
	"github.com/catherinevee/custodianhub/internal/notify"
	"github.com/catherinevee/custodianhub/internal/policy"
)

type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type EC2ActionsAPI interface {
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
}

// parseAction normalises an authored action: either a bare string ("stop")
// or a map carrying a type and parameters.
func parseAction(raw interface{}) (string, map[string]interface{}, error) {
	switch v := raw.(type) {
	case string:
		return v, map[string]interface{}{"type": v}, nil
	case map[string]interface{}:
		t, _ := v["type"].(string)
		if t == "" {
			return "", nil, apperrors.New(apperrors.KindPolicyExecution, "action missing type")
		}
		return t, v, nil
	}
	return "", nil, apperrors.Newf(apperrors.KindPolicyExecution, "unrecognised action %v", raw)
}

// runAction dispatches one authored action over the matched descriptors.
func (e *Engine) runAction(ctx context.Context, pol *policy.Policy, info *events.EventInfo, spec map[string]interface{}, actionType string, matched []filters.Resource) error {
	switch actionType {
	case "notify":
		return e.actionNotify(ctx, pol, info, spec, matched)
	case "tag", "mark":
		return e.actionTag(ctx, spec, matched)
	case "stop":
		return e.actionStop(ctx, matched)
	}
	return apperrors.Newf(apperrors.KindPolicyExecution, "unsupported action type %q in policy %s", actionType, pol.Name)
}

// actionNotify writes the notification envelope to the internal queue. The
// drain pass picks it up after all policies have run. The queue client's
// middleware stamps the invocation ID; the action itself only builds and
// sends the envelope.
func (e *Engine) actionNotify(ctx context.Context, pol *policy.Policy, info *events.EventInfo, spec map[string]interface{}, matched []filters.Resource) error {
	resources := make([]map[string]interface{}, len(matched))
	for i, r := range matched {
		resources[i] = r
	}

	env := &notify.Envelope{
		Account:   e.accountName,
		AccountID: e.tenantID,
		Region:    e.region,
		Action:    spec,
		Policy: map[string]interface{}{
			"name":     pol.Name,
			"resource": pol.Resource,
		},
		Event:     info.RawEvent,
		Resources: resources,
	}
	body, err := notify.Encode(env)
	if err != nil {
		return apperrors.Wrap(apperrors.KindPolicyExecution, "failed to encode notification", err)
	}

	if _, err := e.queue.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(e.queueURL),
		MessageBody: aws.String(body),
	}); err != nil {
		return apperrors.Wrap(apperrors.KindPolicyExecution, "failed to queue notification", err)
	}

	log.Info("queued notification",
		logger.String("policy", pol.Name),
		logger.Int("resources", len(matched)))
	return nil
}

// actionTag applies a single tag to the matched instances and volumes.
func (e *Engine) actionTag(ctx context.Context, spec map[string]interface{}, matched []filters.Resource) error {
	key, _ := spec["key"].(string)
	value, _ := spec["value"].(string)
	if key == "" {
		key, _ = spec["tag"].(string)
	}
	if key == "" {
		return apperrors.New(apperrors.KindPolicyExecution, "tag action missing key")
	}

	ids := taggableIDs(matched)
	if len(ids) == 0 {
		return nil
	}
	_, err := e.ec2.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: ids,
		Tags:      []ec2types.Tag{{Key: aws.String(key), Value: aws.String(value)}},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindPolicyExecution, "failed to tag resources", err)
	}
	log.Info("tagged resources", logger.String("key", key), logger.Int("count", len(ids)))
	return nil
}

// actionStop stops the matched instances.
func (e *Engine) actionStop(ctx context.Context, matched []filters.Resource) error {
	ids := instanceIDs(matched)
	if len(ids) == 0 {
		return nil
	}
	_, err := e.ec2.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: ids})
	if err != nil {
		return apperrors.Wrap(apperrors.KindPolicyExecution, "failed to stop instances", err)
	}
	log.Info("stopped instances", logger.Int("count", len(ids)))
	return nil
}

func instanceIDs(matched []filters.Resource) []string {
	var ids []string
	for _, r := range matched {
		if id, ok := r["InstanceId"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// taggableIDs collects the EC2-taggable identifiers a descriptor carries.
func taggableIDs(matched []filters.Resource) []string {
	var ids []string
	for _, r := range matched {
		for _, field := range []string{"InstanceId", "VolumeId", "SnapshotId", "ImageId", "VpcId", "SubnetId", "GroupId"} {
			if id, ok := r[field].(string); ok && id != "" {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}
