// Package events classifies inbound EventBridge payloads and extracts the
// resources they reference. Four schemas are understood: CloudTrail API
// calls, GuardDuty findings, Security Hub finding batches, and AWS Config
// changes. Anything else classifies as SourceUnknown rather than failing,
// because the resolver may still carry a global mapping for it.
package events

import "time"

// Source identifies the producer of an inbound event.
type Source string

const (
	SourceCloudTrail  Source = "cloudtrail"
	SourceGuardDuty   Source = "guardduty"
	SourceSecurityHub Source = "securityhub"
	SourceConfig      Source = "config"
	SourceUnknown     Source = "unknown"
)

// GenericResources holds the deduplicated resource identifiers extracted
// from an event, classified by shape.
type GenericResources struct {
	ARNs  []string `json:"arns"`
	IDs   []string `json:"ids"`
	Names []string `json:"names"`
}

// Empty reports whether no identifiers were extracted.
func (g GenericResources) Empty() bool {
	return len(g.ARNs) == 0 && len(g.IDs) == 0 && len(g.Names) == 0
}

// UserIdentity carries the subset of a CloudTrail userIdentity block the
// system needs for provenance.
type UserIdentity struct {
	Type        string `json:"type,omitempty"`
	PrincipalID string `json:"principalId,omitempty"`
	ARN         string `json:"arn,omitempty"`
	AccountID   string `json:"accountId,omitempty"`
	UserName    string `json:"userName,omitempty"`
}

// EventInfo is the canonical internal representation of an inbound event.
// RawEvent preserves the original payload verbatim for template rendering
// and must never be mutated after Classify returns.
type EventInfo struct {
	EventName       string
	Source          Source
	EventTime       time.Time
	Region          string
	SourceAccountID string
	UserIdentity    UserIdentity
	RawEvent        map[string]interface{}
	Generic         GenericResources

	// Typed identifiers populated per source. Empty when not applicable.
	BucketName      string
	InstanceID      string
	GroupID         string
	UserName        string
	ListenerARN     string
	LoadBalancerARN string

	// Finding metadata for GuardDuty / Security Hub events.
	FindingType string
	FindingID   string
	Severity    float64
}

// Principal returns the best available name for the identity behind the
// event: userName, then the final segment of the identity ARN, then the
// session part of an assumed-role principalId.
func (e *EventInfo) Principal() string {
	if e.UserIdentity.UserName != "" {
		return e.UserIdentity.UserName
	}
	if e.UserIdentity.ARN != "" {
		return lastSegment(e.UserIdentity.ARN, '/')
	}
	if e.UserIdentity.PrincipalID != "" {
		return lastSegment(e.UserIdentity.PrincipalID, ':')
	}
	return ""
}

func lastSegment(s string, sep byte) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == sep {
			return s[i+1:]
		}
	}
	return s
}
