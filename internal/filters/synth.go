package filters

import (
	"unicode"

	"github.com/catherinevee/custodianhub/internal/events"
)

// Synthesis builds a descriptor directly from a create event's response
// elements when the resource is too new to describe reliably. ElastiCache
// clusters sit in "creating" for minutes; CloudFront propagation lags the
// CreateDistribution response.

// responseElements returns detail.responseElements from the raw event,
// or nil when absent.
func responseElements(info *events.EventInfo) map[string]interface{} {
	detail, ok := info.RawEvent["detail"].(map[string]interface{})
	if !ok {
		return nil
	}
	elems, ok := detail["responseElements"].(map[string]interface{})
	if !ok {
		return nil
	}
	return elems
}

// synthesizeCacheCluster builds an ElastiCache descriptor from the response
// elements of CreateCacheCluster and CreateReplicationGroup events.
func synthesizeCacheCluster(info *events.EventInfo) Resource {
	if info.EventName != "CreateCacheCluster" && info.EventName != "CreateReplicationGroup" {
		return nil
	}
	elems := responseElements(info)
	if elems == nil {
		return nil
	}

	r := Resource{}
	copyField := func(dst, src string) {
		if v, ok := elems[src]; ok && v != nil {
			r[dst] = v
		}
	}
	copyField("CacheClusterId", "cacheClusterId")
	copyField("Engine", "engine")
	copyField("EngineVersion", "engineVersion")
	copyField("CacheNodeType", "cacheNodeType")
	copyField("CacheClusterStatus", "cacheClusterStatus")
	copyField("NumCacheNodes", "numCacheNodes")
	copyField("ReplicationGroupId", "replicationGroupId")
	copyField("ARN", "aRN")
	copyField("CacheSubnetGroupName", "cacheSubnetGroupName")
	copyField("AutoMinorVersionUpgrade", "autoMinorVersionUpgrade")
	copyField("SnapshotRetentionLimit", "snapshotRetentionLimit")

	// Encryption flags default to false so boolean value filters always
	// have something to match against.
	if v, ok := elems["atRestEncryptionEnabled"]; ok && v != nil {
		r["AtRestEncryptionEnabled"] = v
	} else {
		r["AtRestEncryptionEnabled"] = false
	}
	if v, ok := elems["transitEncryptionEnabled"]; ok && v != nil {
		r["TransitEncryptionEnabled"] = v
	} else {
		r["TransitEncryptionEnabled"] = false
	}

	// A replication group create reports its ID where the cluster ID would
	// otherwise be.
	if _, ok := r["CacheClusterId"]; !ok {
		if v, ok := r["ReplicationGroupId"]; ok {
			r["CacheClusterId"] = v
		}
	}
	if len(r) <= 2 {
		return nil
	}
	return r
}

// synthesizeDistribution builds a CloudFront descriptor from the distribution
// object embedded in CreateDistribution and UpdateDistribution responses. The
// response is camelCased CloudTrail JSON; the transform restores the SDK's
// PascalCase shape so policy filters address the same field names either way.
func synthesizeDistribution(info *events.EventInfo) Resource {
	if info.EventName != "CreateDistribution" && info.EventName != "UpdateDistribution" {
		return nil
	}
	elems := responseElements(info)
	if elems == nil {
		return nil
	}
	dist, ok := elems["distribution"].(map[string]interface{})
	if !ok {
		return nil
	}
	transformed, ok := camelToPascal(dist).(map[string]interface{})
	if !ok {
		return nil
	}
	return Resource(transformed)
}

// camelToPascal recursively uppercases the first letter of every map key.
// Acronym-leading keys in CloudTrail responses use a lowered first rune only
// (aRN, eTag), so the single-rune transform restores them exactly.
func camelToPascal(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[pascalKey(k)] = camelToPascal(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = camelToPascal(child)
		}
		return out
	default:
		return v
	}
}

func pascalKey(k string) string {
	if k == "" {
		return k
	}
	runes := []rune(k)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
