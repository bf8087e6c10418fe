package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/custodianhub/internal/events"
)

func cacheCreateEvent(elems map[string]interface{}) *events.EventInfo {
	return &events.EventInfo{
		EventName: "CreateCacheCluster",
		RawEvent: map[string]interface{}{
			"detail": map[string]interface{}{
				"responseElements": elems,
			},
		},
	}
}

func TestSynthesizeCacheCluster(t *testing.T) {
	info := cacheCreateEvent(map[string]interface{}{
		"cacheClusterId":     "redis-prod",
		"engine":             "redis",
		"engineVersion":      "7.0.7",
		"cacheNodeType":      "cache.t3.micro",
		"cacheClusterStatus": "creating",
		"numCacheNodes":      float64(1),
		"aRN":                "arn:aws:elasticache:us-east-1:111111111111:cluster:redis-prod",
	})

	r := synthesizeCacheCluster(info)

	require.NotNil(t, r)
	assert.Equal(t, "redis-prod", r["CacheClusterId"])
	assert.Equal(t, "redis", r["Engine"])
	assert.Equal(t, "arn:aws:elasticache:us-east-1:111111111111:cluster:redis-prod", r["ARN"])
	assert.Equal(t, false, r["AtRestEncryptionEnabled"])
	assert.Equal(t, false, r["TransitEncryptionEnabled"])
}

func TestSynthesizeCacheClusterEncryptionFlagsPreserved(t *testing.T) {
	info := cacheCreateEvent(map[string]interface{}{
		"cacheClusterId":           "redis-prod",
		"engine":                   "redis",
		"atRestEncryptionEnabled":  true,
		"transitEncryptionEnabled": true,
	})

	r := synthesizeCacheCluster(info)

	require.NotNil(t, r)
	assert.Equal(t, true, r["AtRestEncryptionEnabled"])
	assert.Equal(t, true, r["TransitEncryptionEnabled"])
}

func TestSynthesizeReplicationGroupFallsBackToGroupID(t *testing.T) {
	info := cacheCreateEvent(map[string]interface{}{
		"replicationGroupId": "redis-rg",
		"engine":             "redis",
	})
	info.EventName = "CreateReplicationGroup"

	r := synthesizeCacheCluster(info)

	require.NotNil(t, r)
	assert.Equal(t, "redis-rg", r["CacheClusterId"])
}

func TestSynthesizeCacheClusterWrongEvent(t *testing.T) {
	info := cacheCreateEvent(map[string]interface{}{"cacheClusterId": "x"})
	info.EventName = "DeleteCacheCluster"

	assert.Nil(t, synthesizeCacheCluster(info))
}

func TestSynthesizeDistribution(t *testing.T) {
	info := &events.EventInfo{
		EventName: "CreateDistribution",
		RawEvent: map[string]interface{}{
			"detail": map[string]interface{}{
				"responseElements": map[string]interface{}{
					"distribution": map[string]interface{}{
						"id":     "E2ABCDEF",
						"aRN":    "arn:aws:cloudfront::111111111111:distribution/E2ABCDEF",
						"status": "InProgress",
						"distributionConfig": map[string]interface{}{
							"enabled": true,
							"origins": map[string]interface{}{
								"items": []interface{}{
									map[string]interface{}{"domainName": "bucket.s3.amazonaws.com"},
								},
							},
						},
					},
				},
			},
		},
	}

	r := synthesizeDistribution(info)

	require.NotNil(t, r)
	assert.Equal(t, "E2ABCDEF", r["Id"])
	assert.Equal(t, "arn:aws:cloudfront::111111111111:distribution/E2ABCDEF", r["ARN"])

	cfg, ok := r["DistributionConfig"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, cfg["Enabled"])

	origins, ok := cfg["Origins"].(map[string]interface{})
	require.True(t, ok)
	items, ok := origins["Items"].([]interface{})
	require.True(t, ok)
	first, ok := items[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "bucket.s3.amazonaws.com", first["DomainName"])
}

func TestSynthesizeDistributionNoResponseElements(t *testing.T) {
	info := &events.EventInfo{
		EventName: "CreateDistribution",
		RawEvent:  map[string]interface{}{"detail": map[string]interface{}{}},
	}
	assert.Nil(t, synthesizeDistribution(info))
}

func TestCanonicalType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"aws.elasticache-cluster", "aws.elasticache"},
		{"aws.cache-cluster", "aws.elasticache"},
		{"aws.cloudfront", "aws.distribution"},
		{"aws.cloudfront-distribution", "aws.distribution"},
		{"aws.secrets-manager", "aws.secretsmanager"},
		{"aws.ec2", "aws.ec2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canonicalType(tt.in), tt.in)
	}
}
