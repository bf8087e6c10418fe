package events

import (
	"strings"
	"time"

	"github.com/catherinevee/custodianhub/internal/apperrors"
	"github.com/catherinevee/custodianhub/internal/logger"
)

var log = logger.New("events")

// Classify inspects an EventBridge payload, detects its source, and builds
// the canonical EventInfo. Events missing detail-type, or carrying an empty
// detail for a recognised source, fail with KindMalformedEvent. Unrecognised
// shapes succeed with SourceUnknown and no generic resources.
func Classify(raw map[string]interface{}) (*EventInfo, error) {
	if _, ok := raw["detail-type"]; !ok {
		return nil, apperrors.New(apperrors.KindMalformedEvent, "event missing 'detail-type' field")
	}

	source := detectSource(raw)
	detail := getMap(raw, "detail")

	if source != SourceUnknown && len(detail) == 0 {
		return nil, apperrors.Newf(apperrors.KindMalformedEvent, "event from %s missing 'detail' field", source)
	}

	info := &EventInfo{
		Source:    source,
		RawEvent:  raw,
		Region:    extractRegion(raw, detail),
		EventTime: extractTime(raw, detail),
	}

	switch source {
	case SourceCloudTrail:
		parseCloudTrail(info, raw, detail)
	case SourceGuardDuty:
		parseGuardDuty(info, raw, detail)
	case SourceSecurityHub:
		parseSecurityHub(info, raw, detail)
	case SourceConfig:
		parseConfig(info, raw, detail)
	default:
		info.EventName = getString(raw, "detail-type")
	}

	info.SourceAccountID = extractAccount(raw, detail, info)

	log.Debug("classified event",
		logger.String("source", string(info.Source)),
		logger.String("event_name", info.EventName),
		logger.String("account", info.SourceAccountID),
		logger.Int("arns", len(info.Generic.ARNs)),
		logger.Int("ids", len(info.Generic.IDs)),
		logger.Int("names", len(info.Generic.Names)))

	return info, nil
}

// detectSource applies the discriminators first, then structural hints.
func detectSource(raw map[string]interface{}) Source {
	source := getString(raw, "source")
	detailType := getString(raw, "detail-type")

	switch {
	case detailType == "AWS API Call via CloudTrail":
		return SourceCloudTrail
	case source == "aws.guardduty" || detailType == "GuardDuty Finding":
		return SourceGuardDuty
	case source == "aws.securityhub" || detailType == "Security Hub Findings - Imported":
		return SourceSecurityHub
	case source == "aws.config" || strings.HasPrefix(detailType, "Config"):
		return SourceConfig
	}

	detail := getMap(raw, "detail")
	switch {
	case detail["eventName"] != nil && detail["eventSource"] != nil:
		return SourceCloudTrail
	case detail["type"] != nil && detail["severity"] != nil && detail["resource"] != nil:
		return SourceGuardDuty
	case detail["findings"] != nil:
		return SourceSecurityHub
	case detail["configRuleName"] != nil || detail["resourceType"] != nil:
		return SourceConfig
	}

	return SourceUnknown
}

func parseCloudTrail(info *EventInfo, raw, detail map[string]interface{}) {
	info.EventName = getString(detail, "eventName")
	info.UserIdentity = parseUserIdentity(getMap(detail, "userIdentity"))

	request := getMap(detail, "requestParameters")
	response := getMap(detail, "responseElements")

	extractTypedFields(info, detail, request, response)

	c := newCollector()
	// CloudTrail's own resources block carries authoritative ARNs.
	for _, r := range getSlice(detail, "resources") {
		if m, ok := r.(map[string]interface{}); ok {
			if arn := getString(m, "ARN"); isARN(arn) {
				c.addARN(arn)
			}
		}
	}
	c.walk("requestParameters", request, 0)
	c.walk("responseElements", response, 0)
	info.Generic = c.resources()
}

// extractTypedFields populates the per-service convenience fields from a
// CloudTrail detail block.
func extractTypedFields(info *EventInfo, detail, request, response map[string]interface{}) {
	eventSource := getString(detail, "eventSource")

	switch eventSource {
	case "s3.amazonaws.com":
		info.BucketName = firstString(
			getString(request, "bucketName"),
			getString(request, "bucket"),
			getString(response, "bucketName"),
		)
	case "ec2.amazonaws.com":
		info.InstanceID = firstString(
			instanceFromSet(response),
			getString(request, "instanceId"),
			instanceFromSet(request),
		)
		info.GroupID = firstString(
			getString(request, "groupId"),
			getString(response, "groupId"),
		)
	case "iam.amazonaws.com":
		info.UserName = firstString(
			getString(request, "userName"),
			getString(request, "user"),
		)
	case "elasticloadbalancing.amazonaws.com":
		info.LoadBalancerARN = firstString(
			getString(request, "loadBalancerArn"),
			getString(response, "loadBalancerArn"),
		)
		info.ListenerARN = firstString(
			getString(request, "listenerArn"),
			getString(response, "listenerArn"),
		)
		if info.LoadBalancerARN == "" && info.ListenerARN != "" {
			info.LoadBalancerARN = LoadBalancerARNFromListener(info.ListenerARN)
		}
	}
}

// instanceFromSet digs instancesSet.items[0].instanceId out of a CloudTrail
// request or response block (the RunInstances shape).
func instanceFromSet(m map[string]interface{}) string {
	items := getSlice(getMap(m, "instancesSet"), "items")
	if len(items) == 0 {
		return ""
	}
	if item, ok := items[0].(map[string]interface{}); ok {
		return getString(item, "instanceId")
	}
	return ""
}

// LoadBalancerARNFromListener rebuilds the load balancer ARN embedded in a
// listener ARN:
//
//	arn:p:elasticloadbalancing:r:a:listener/app/<name>/<lb-id>/<listener-id>
//	-> arn:p:elasticloadbalancing:r:a:loadbalancer/app/<name>/<lb-id>
//
// Returns "" when the listener ARN does not have the expected shape.
func LoadBalancerARNFromListener(listenerARN string) string {
	parts := strings.SplitN(listenerARN, ":", 6)
	if len(parts) != 6 || !strings.HasPrefix(parts[5], "listener/") {
		return ""
	}
	segments := strings.Split(parts[5], "/")
	if len(segments) < 4 {
		return ""
	}
	return strings.Join(parts[:5], ":") + ":loadbalancer/" + strings.Join(segments[1:4], "/")
}

func parseGuardDuty(info *EventInfo, raw, detail map[string]interface{}) {
	info.EventName = getString(raw, "detail-type")
	info.FindingType = getString(detail, "type")
	info.FindingID = getString(detail, "id")
	info.Severity = getFloat(detail, "severity")

	c := newCollector()
	resource := getMap(detail, "resource")

	if instance := getMap(resource, "instanceDetails"); len(instance) > 0 {
		if id := getString(instance, "instanceId"); id != "" {
			c.addID(id)
			info.InstanceID = id
		}
	}
	if accessKey := getMap(resource, "accessKeyDetails"); len(accessKey) > 0 {
		if user := getString(accessKey, "userName"); user != "" {
			c.addName(user)
			info.UserName = user
		}
	}
	for _, b := range getSlice(resource, "s3BucketDetails") {
		bucket, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		if name := getString(bucket, "name"); name != "" {
			c.addName(name)
			if info.BucketName == "" {
				info.BucketName = name
			}
		}
		c.addARN(getString(bucket, "arn"))
	}
	if cluster := getMap(resource, "eksClusterDetails"); len(cluster) > 0 {
		c.addName(getString(cluster, "name"))
		c.addARN(getString(cluster, "arn"))
	}

	info.Generic = c.resources()
}

func parseSecurityHub(info *EventInfo, raw, detail map[string]interface{}) {
	info.EventName = getString(raw, "detail-type")

	c := newCollector()
	for _, f := range getSlice(detail, "findings") {
		finding, ok := f.(map[string]interface{})
		if !ok {
			continue
		}
		if info.FindingType == "" {
			if types := getSlice(finding, "Types"); len(types) > 0 {
				info.FindingType, _ = types[0].(string)
			}
		}
		if info.FindingID == "" {
			info.FindingID = getString(finding, "Id")
		}
		for _, r := range getSlice(finding, "Resources") {
			resource, ok := r.(map[string]interface{})
			if !ok {
				continue
			}
			id := getString(resource, "Id")
			switch {
			case id == "":
			case isARN(id):
				c.addARN(id)
			case strings.ContainsAny(id, "/:"):
				c.addID(id)
			default:
				c.addName(id)
			}
		}
	}

	info.Generic = c.resources()
}

func parseConfig(info *EventInfo, raw, detail map[string]interface{}) {
	info.EventName = getString(raw, "detail-type")

	c := newCollector()
	if id := getString(detail, "resourceId"); id != "" {
		if isARN(id) {
			c.addARN(id)
		} else {
			c.addID(id)
		}
	}
	item := getMap(detail, "configurationItem")
	if arn := firstString(getString(item, "ARN"), getString(item, "arn")); arn != "" {
		c.addARN(arn)
	}
	c.addName(getString(item, "resourceName"))

	info.Generic = c.resources()
}

func parseUserIdentity(m map[string]interface{}) UserIdentity {
	return UserIdentity{
		Type:        getString(m, "type"),
		PrincipalID: getString(m, "principalId"),
		ARN:         getString(m, "arn"),
		AccountID:   getString(m, "accountId"),
		UserName:    getString(m, "userName"),
	}
}

// extractAccount resolves the originating account: the top-level field when
// present, then per-source identity hints.
func extractAccount(raw, detail map[string]interface{}, info *EventInfo) string {
	if account := getString(raw, "account"); account != "" {
		return account
	}
	if info.UserIdentity.AccountID != "" {
		return info.UserIdentity.AccountID
	}
	if account := getString(detail, "AwsAccountId"); account != "" {
		return account
	}
	if findings := getSlice(detail, "findings"); len(findings) > 0 {
		if finding, ok := findings[0].(map[string]interface{}); ok {
			if account := getString(finding, "AwsAccountId"); account != "" {
				return account
			}
		}
	}
	return getString(detail, "accountId")
}

func extractRegion(raw, detail map[string]interface{}) string {
	if region := getString(raw, "region"); region != "" {
		return region
	}
	if region := getString(detail, "awsRegion"); region != "" {
		return region
	}
	if region := getString(detail, "Region"); region != "" {
		return region
	}
	return "us-east-1"
}

func extractTime(raw, detail map[string]interface{}) time.Time {
	for _, candidate := range []string{getString(raw, "time"), getString(detail, "eventTime")} {
		if candidate == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, candidate); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Map navigation helpers over decoded JSON.

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	child, _ := m[key].(map[string]interface{})
	return child
}

func getSlice(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return nil
	}
	child, _ := m[key].([]interface{})
	return child
}

func getString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func getFloat(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
