package notify

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/catherinevee/custodianhub/internal/apperrors"
)

// Rendering splits by part. Subjects are plain strings with {{ key }}
// placeholders substituted literally, because queue producers write them
// with spacing a strict template parser would reject. Bodies are real
// templates over the full context, so they can reach into the raw event
// (for example .event.detail with nested lookups). Fields the event does
// not carry render as the "<no value>" literal instead of failing.

// Rendered is the drain loop's output for one envelope.
type Rendered struct {
	Subject string
	Body    string
}

// renderContext builds the template context shared by subject and body.
func renderContext(env *Envelope, environment string) map[string]interface{} {
	return map[string]interface{}{
		"account":     env.Account,
		"account_id":  env.AccountID,
		"region":      env.Region,
		"policy":      env.Policy,
		"policy_name": env.PolicyName(),
		"environment": environment,
		"event":       templateEvent(env.Event),
	}
}

// templateEvent returns the envelope's event with detail.findings guaranteed
// to be a non-empty list. Bodies commonly index the first finding; without
// the stub, indexing an absent list fails the whole render instead of
// degrading field by field to the missing-value literal.
func templateEvent(raw map[string]interface{}) map[string]interface{} {
	detail, _ := raw["detail"].(map[string]interface{})
	if findings, ok := detail["findings"].([]interface{}); ok && len(findings) > 0 {
		return raw
	}

	event := make(map[string]interface{}, len(raw)+1)
	for k, v := range raw {
		event[k] = v
	}
	stubbed := make(map[string]interface{}, len(detail)+1)
	for k, v := range detail {
		stubbed[k] = v
	}
	stubbed["findings"] = []interface{}{map[string]interface{}{}}
	event["detail"] = stubbed
	return event
}

// Render produces the subject and body for one envelope. The body source is
// the action's violation_desc; an empty source falls back to a summary line
// so the published message is never blank.
func Render(env *Envelope, environment string) (*Rendered, error) {
	ctx := renderContext(env, environment)

	subject := substitute(env.actionString("subject"), ctx)
	if subject == "" {
		subject = fmt.Sprintf("Policy alert: %s (%d resources in %s)",
			env.PolicyName(), len(env.Resources), env.AccountID)
	}

	source := env.actionString("violation_desc")
	if source == "" {
		return &Rendered{Subject: subject, Body: summaryBody(env, environment)}, nil
	}

	tmpl, err := template.New("body").Option("missingkey=default").Parse(source)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotificationRender,
			fmt.Sprintf("failed to parse body template for policy %s", env.PolicyName()), err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotificationRender,
			fmt.Sprintf("failed to render body template for policy %s", env.PolicyName()), err)
	}
	return &Rendered{Subject: subject, Body: buf.String()}, nil
}

// substitute replaces {{ key }} placeholders with scalar context values.
// Unknown placeholders are left in place.
func substitute(s string, ctx map[string]interface{}) string {
	if s == "" {
		return ""
	}
	for key, value := range ctx {
		switch value.(type) {
		case string, int, int64, float64, bool:
			placeholder := "{{ " + key + " }}"
			s = strings.ReplaceAll(s, placeholder, fmt.Sprintf("%v", value))
			s = strings.ReplaceAll(s, "{{"+key+"}}", fmt.Sprintf("%v", value))
		}
	}
	return s
}

// summaryBody renders a plain-text digest when the policy carries no
// template of its own.
func summaryBody(env *Envelope, environment string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Policy alert: %s\n\n", env.PolicyName())
	fmt.Fprintf(&b, "Account: %s (%s)\n", env.Account, env.AccountID)
	fmt.Fprintf(&b, "Region: %s\n", env.Region)
	fmt.Fprintf(&b, "Environment: %s\n", environment)
	fmt.Fprintf(&b, "Resources affected: %d\n", len(env.Resources))

	for i, r := range env.Resources {
		if i == 10 {
			fmt.Fprintf(&b, "... and %d more resources\n", len(env.Resources)-10)
			break
		}
		fmt.Fprintf(&b, "  - %s\n", resourceIdentifier(r))
	}
	return b.String()
}

// resourceIdentifier extracts the most meaningful identifier a descriptor
// carries, checking the common identity fields in preference order.
func resourceIdentifier(r map[string]interface{}) string {
	for _, field := range []string{"InstanceId", "LoadBalancerArn", "Name", "BucketName", "ImageId", "CacheClusterId", "FunctionName", "DBInstanceIdentifier", "ARN", "Arn", "Id"} {
		if v, ok := r[field].(string); ok && v != "" {
			return v
		}
	}
	// Stable output for descriptors with none of the known fields.
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		return fmt.Sprintf("%s=%v", keys[0], r[keys[0]])
	}
	return "unknown"
}
