package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/custodianhub/internal/apperrors"
)

func TestClassifyMissingDetailType(t *testing.T) {
	_, err := Classify(map[string]interface{}{"source": "aws.ec2"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindMalformedEvent, apperrors.KindOf(err))
}

func TestClassifyRecognisedSourceEmptyDetail(t *testing.T) {
	_, err := Classify(map[string]interface{}{
		"detail-type": "AWS API Call via CloudTrail",
		"source":      "aws.ec2",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindMalformedEvent, apperrors.KindOf(err))
}

func TestClassifyUnknownSource(t *testing.T) {
	info, err := Classify(map[string]interface{}{
		"detail-type": "Scheduled Event",
		"source":      "aws.events",
		"account":     "111111111111",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceUnknown, info.Source)
	assert.Equal(t, "Scheduled Event", info.EventName)
	assert.True(t, info.Generic.Empty())
}

func TestClassifyRunInstances(t *testing.T) {
	info, err := Classify(map[string]interface{}{
		"detail-type": "AWS API Call via CloudTrail",
		"source":      "aws.ec2",
		"account":     "111111111111",
		"region":      "us-west-2",
		"time":        "2026-08-20T10:00:00Z",
		"detail": map[string]interface{}{
			"eventName":   "RunInstances",
			"eventSource": "ec2.amazonaws.com",
			"awsRegion":   "us-west-2",
			"userIdentity": map[string]interface{}{
				"type":      "IAMUser",
				"userName":  "alice",
				"accountId": "111111111111",
				"arn":       "arn:aws:iam::111111111111:user/alice",
			},
			"responseElements": map[string]interface{}{
				"instancesSet": map[string]interface{}{
					"items": []interface{}{
						map[string]interface{}{
							"instanceId": "i-0123456789abcdef0",
							"imageId":    "ami-12345678",
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, SourceCloudTrail, info.Source)
	assert.Equal(t, "RunInstances", info.EventName)
	assert.Equal(t, "111111111111", info.SourceAccountID)
	assert.Equal(t, "us-west-2", info.Region)
	assert.Equal(t, "i-0123456789abcdef0", info.InstanceID)
	assert.Equal(t, "alice", info.Principal())
	assert.Contains(t, info.Generic.IDs, "i-0123456789abcdef0")
	assert.Contains(t, info.Generic.IDs, "ami-12345678")
}

func TestClassifyS3CreateBucket(t *testing.T) {
	info, err := Classify(map[string]interface{}{
		"detail-type": "AWS API Call via CloudTrail",
		"account":     "222222222222",
		"detail": map[string]interface{}{
			"eventName":   "CreateBucket",
			"eventSource": "s3.amazonaws.com",
			"requestParameters": map[string]interface{}{
				"bucketName": "audit-logs",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "audit-logs", info.BucketName)
	assert.Contains(t, info.Generic.Names, "audit-logs")
}

func TestClassifyListenerReconstruction(t *testing.T) {
	info, err := Classify(map[string]interface{}{
		"detail-type": "AWS API Call via CloudTrail",
		"account":     "111111111111",
		"detail": map[string]interface{}{
			"eventName":   "ModifyListener",
			"eventSource": "elasticloadbalancing.amazonaws.com",
			"requestParameters": map[string]interface{}{
				"listenerArn": "arn:aws:elasticloadbalancing:us-east-1:111:listener/app/web/abcd/1234",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:elasticloadbalancing:us-east-1:111:listener/app/web/abcd/1234", info.ListenerARN)
	assert.Equal(t, "arn:aws:elasticloadbalancing:us-east-1:111:loadbalancer/app/web/abcd", info.LoadBalancerARN)
}

func TestLoadBalancerARNFromListener(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"app listener",
			"arn:aws:elasticloadbalancing:us-east-1:111:listener/app/web/abcd/1234",
			"arn:aws:elasticloadbalancing:us-east-1:111:loadbalancer/app/web/abcd",
		},
		{
			"network listener",
			"arn:aws:elasticloadbalancing:us-east-1:111:listener/net/edge/ef01/5678",
			"arn:aws:elasticloadbalancing:us-east-1:111:loadbalancer/net/edge/ef01",
		},
		{"not a listener", "arn:aws:elasticloadbalancing:us-east-1:111:loadbalancer/app/web/abcd", ""},
		{"too few segments", "arn:aws:elasticloadbalancing:us-east-1:111:listener/app", ""},
		{"garbage", "not-an-arn", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LoadBalancerARNFromListener(tt.in))
		})
	}
}

func TestClassifyGuardDutyFinding(t *testing.T) {
	info, err := Classify(map[string]interface{}{
		"detail-type": "GuardDuty Finding",
		"source":      "aws.guardduty",
		"account":     "222222222222",
		"detail": map[string]interface{}{
			"type":     "CryptoCurrency:EC2/BitcoinTool.B!DNS",
			"severity": float64(8),
			"id":       "finding-1",
			"resource": map[string]interface{}{
				"instanceDetails": map[string]interface{}{
					"instanceId": "i-9",
				},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, SourceGuardDuty, info.Source)
	assert.Equal(t, "CryptoCurrency:EC2/BitcoinTool.B!DNS", info.FindingType)
	assert.Equal(t, float64(8), info.Severity)
	assert.Equal(t, "i-9", info.InstanceID)
	assert.Equal(t, []string{"i-9"}, info.Generic.IDs)
}

func TestClassifySecurityHubFindingsBatch(t *testing.T) {
	info, err := Classify(map[string]interface{}{
		"detail-type": "Security Hub Findings - Imported",
		"source":      "aws.securityhub",
		"detail": map[string]interface{}{
			"findings": []interface{}{
				map[string]interface{}{
					"Id":           "finding-a",
					"AwsAccountId": "333333333333",
					"Types":        []interface{}{"Software and Configuration Checks"},
					"Resources": []interface{}{
						map[string]interface{}{"Id": "arn:aws:s3:::exposed-bucket", "Type": "AwsS3Bucket"},
					},
				},
				map[string]interface{}{
					"Id": "finding-b",
					"Resources": []interface{}{
						map[string]interface{}{"Id": "i-0abc/extra", "Type": "AwsEc2Instance"},
					},
				},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, SourceSecurityHub, info.Source)
	assert.Equal(t, "333333333333", info.SourceAccountID)
	assert.Equal(t, []string{"arn:aws:s3:::exposed-bucket"}, info.Generic.ARNs)
	assert.Equal(t, []string{"i-0abc/extra"}, info.Generic.IDs)
	assert.Equal(t, "finding-a", info.FindingID)
}

func TestClassifyConfigChange(t *testing.T) {
	info, err := Classify(map[string]interface{}{
		"detail-type": "Config Configuration Item Change",
		"source":      "aws.config",
		"account":     "444444444444",
		"detail": map[string]interface{}{
			"resourceType": "AWS::EC2::SecurityGroup",
			"resourceId":   "sg-0abc",
			"configurationItem": map[string]interface{}{
				"ARN":          "arn:aws:ec2:us-east-1:444444444444:security-group/sg-0abc",
				"resourceName": "web-sg",
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, SourceConfig, info.Source)
	assert.Equal(t, []string{"sg-0abc"}, info.Generic.IDs)
	assert.Equal(t, []string{"arn:aws:ec2:us-east-1:444444444444:security-group/sg-0abc"}, info.Generic.ARNs)
	assert.Equal(t, []string{"web-sg"}, info.Generic.Names)
}

func TestPrincipalPreferenceOrder(t *testing.T) {
	tests := []struct {
		name     string
		identity UserIdentity
		want     string
	}{
		{"user name wins", UserIdentity{UserName: "alice", ARN: "arn:aws:iam::1:user/bob"}, "alice"},
		{"arn segment", UserIdentity{ARN: "arn:aws:iam::1:user/bob"}, "bob"},
		{"assumed role session", UserIdentity{PrincipalID: "AROAEXAMPLE:deploy-session"}, "deploy-session"},
		{"nothing known", UserIdentity{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := &EventInfo{UserIdentity: tt.identity}
			assert.Equal(t, tt.want, info.Principal())
		})
	}
}
