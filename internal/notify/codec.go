// Package notify owns the wire format of policy notifications: the
// compressed envelope policy notify-actions write to the internal queue,
// the template rendering applied on drain, and the drain loop itself.
package notify

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/catherinevee/custodianhub/internal/apperrors"
)

// InvocationAttribute is the queue message attribute correlating a message
// with the invocation that produced it.
const InvocationAttribute = "InvocationId"

// Envelope is the notification payload exchanged over the internal queue.
// Action and Policy stay loosely typed: authored policies attach arbitrary
// keys and the renderer only addresses a known subset.
type Envelope struct {
	Account   string                   `json:"account"`
	AccountID string                   `json:"account_id"`
	Region    string                   `json:"region"`
	Action    map[string]interface{}   `json:"action"`
	Policy    map[string]interface{}   `json:"policy"`
	Event     map[string]interface{}   `json:"event,omitempty"`
	Resources []map[string]interface{} `json:"resources"`
}

// PolicyName returns the envelope's policy name, or a placeholder when the
// producer omitted it.
func (e *Envelope) PolicyName() string {
	if name, ok := e.Policy["name"].(string); ok && name != "" {
		return name
	}
	return "unknown-policy"
}

func (e *Envelope) actionString(key string) string {
	if v, ok := e.Action[key].(string); ok {
		return v
	}
	return ""
}

// Encode serialises the envelope as base64(zlib(JSON)), the format queue
// consumers expect.
func Encode(env *Envelope) (string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", fmt.Errorf("failed to compress envelope: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to compress envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode. A body that is not valid base64, zlib, or JSON
// reports a rendering-class error so the drain loop can skip the message.
func Decode(body string) (*Envelope, error) {
	compressed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotificationRender, "message body is not base64", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotificationRender, "message body is not zlib compressed", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotificationRender, "failed to decompress message body", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotificationRender, "message body is not a notification envelope", err)
	}
	return &env, nil
}
