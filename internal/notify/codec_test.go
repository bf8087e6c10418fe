package notify

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/custodianhub/internal/apperrors"
)

func sampleEnvelope() *Envelope {
	return &Envelope{
		Account:   "prod-payments",
		AccountID: "222222222222",
		Region:    "us-east-1",
		Action: map[string]interface{}{
			"type":           "notify",
			"subject":        "Policy alert - {{ account }}",
			"violation_desc": "Instance launched in {{.region}}",
		},
		Policy: map[string]interface{}{
			"name":     "ec2-require-tags",
			"resource": "aws.ec2",
		},
		Resources: []map[string]interface{}{
			{"InstanceId": "i-0abc"},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encoded, err := Encode(sampleEnvelope())
	require.NoError(t, err)

	env, err := Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, "prod-payments", env.Account)
	assert.Equal(t, "222222222222", env.AccountID)
	assert.Equal(t, "ec2-require-tags", env.PolicyName())
	require.Len(t, env.Resources, 1)
	assert.Equal(t, "i-0abc", env.Resources[0]["InstanceId"])
}

func TestDecodeRejectsBadBase64(t *testing.T) {
	_, err := Decode("not*base64")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotificationRender, apperrors.KindOf(err))
}

func TestDecodeRejectsUncompressedPayload(t *testing.T) {
	_, err := Decode(base64.StdEncoding.EncodeToString([]byte(`{"account":"x"}`)))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotificationRender, apperrors.KindOf(err))
}

func TestDecodeRejectsNonJSON(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Decode(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotificationRender, apperrors.KindOf(err))
}

func TestPolicyNameFallback(t *testing.T) {
	env := &Envelope{Policy: map[string]interface{}{}}
	assert.Equal(t, "unknown-policy", env.PolicyName())
}
