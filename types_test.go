package voicepool_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/voicepool"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", voicepool.MaskSecret(""))
	assert.Equal(t, "****", voicepool.MaskSecret("short"))
	assert.Equal(t, "sk_abcde...wxyz", voicepool.MaskSecret("sk_abcdefghijklmnopqrstuvwxyz"))
}

func TestCredential_Available(t *testing.T) {
	assert.Equal(t, int64(0), voicepool.Credential{RemainingQuota: -20}.Available())
	assert.Equal(t, int64(20), voicepool.Credential{RemainingQuota: 20}.Available())

	c := voicepool.Credential{RemainingQuota: 100, Active: true}
	assert.True(t, c.Usable(100))
	assert.False(t, c.Usable(101))
	c.Active = false
	assert.False(t, c.Usable(1))
}

func TestCredential_SecretNeverLeaks(t *testing.T) {
	c := voicepool.Credential{ID: "1", Label: "main", Secret: "sk_supersecretvalue_1234"}

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "supersecret")

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("test", "credential", c)
	assert.NotContains(t, buf.String(), "supersecret")
	assert.Contains(t, buf.String(), "sk_super...1234")
}

func TestCountChars(t *testing.T) {
	assert.Equal(t, int64(5), voicepool.CountChars("hällo"))
	assert.Equal(t, int64(0), voicepool.CountChars(""))
}
