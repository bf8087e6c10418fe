package events

import (
	"regexp"
	"strings"
)

// maxWalkDepth bounds the recursive payload scan so adversarial or deeply
// nested request parameters cannot blow the stack.
const maxWalkDepth = 10

var (
	idKeyPattern = regexp.MustCompile(`(?i)^(id|identifier|resourceid|instanceid|volumeid|snapshotid|imageid|groupid|vpcid|subnetid|clusterid|dbinstanceidentifier|filesystemid|streamname|topicarn|queueurl|functionname)$`)

	nameKeyPattern = regexp.MustCompile(`(?i)^(name|bucketname|username|rolename|policyname|tablename|clustername|loadbalancername)$`)
)

// collector accumulates identifiers during extraction and deduplicates them
// while preserving first-seen order.
type collector struct {
	arns  []string
	ids   []string
	names []string
	seen  map[string]struct{}
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{})}
}

func (c *collector) addARN(v string) {
	if v == "" {
		return
	}
	if _, ok := c.seen["a:"+v]; ok {
		return
	}
	c.seen["a:"+v] = struct{}{}
	c.arns = append(c.arns, v)
}

func (c *collector) addID(v string) {
	if v == "" {
		return
	}
	if _, ok := c.seen["i:"+v]; ok {
		return
	}
	c.seen["i:"+v] = struct{}{}
	c.ids = append(c.ids, v)
}

func (c *collector) addName(v string) {
	if v == "" {
		return
	}
	if _, ok := c.seen["n:"+v]; ok {
		return
	}
	c.seen["n:"+v] = struct{}{}
	c.names = append(c.names, v)
}

func (c *collector) resources() GenericResources {
	return GenericResources{ARNs: c.arns, IDs: c.ids, Names: c.names}
}

// walk scans a decoded JSON value, classifying string leaves by the key that
// led to them and by value shape. Array elements inherit the enclosing key.
func (c *collector) walk(key string, value interface{}, depth int) {
	if depth > maxWalkDepth {
		return
	}
	switch v := value.(type) {
	case map[string]interface{}:
		for k, child := range v {
			c.walk(k, child, depth+1)
		}
	case []interface{}:
		for _, child := range v {
			c.walk(key, child, depth+1)
		}
	case string:
		c.classify(key, v)
	}
}

func (c *collector) classify(key, value string) {
	if value == "" {
		return
	}
	switch {
	case isARN(value) || strings.Contains(strings.ToLower(key), "arn"):
		// Keys naming an ARN sometimes hold a bare resource name; only
		// accept values that actually look like ARNs.
		if isARN(value) {
			c.addARN(value)
		}
	case idKeyPattern.MatchString(key):
		c.addID(value)
	case nameKeyPattern.MatchString(key):
		c.addName(value)
	}
}

// isARN reports whether a string value has ARN shape (arn:<partition>:...).
func isARN(v string) bool {
	return strings.HasPrefix(v, "arn:")
}
