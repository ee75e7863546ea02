package secret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_RoundTrip(t *testing.T) {
	box, err := NewBoxHex(strings.Repeat("ab", 32))
	require.NoError(t, err)

	sealed, err := box.Seal("sk_live_1234567890")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sk_live")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk_live_1234567890", opened)
}

func TestBox_NonceDiffers(t *testing.T) {
	box, err := NewBox(make([]byte, 32))
	require.NoError(t, err)

	a, err := box.Seal("same")
	require.NoError(t, err)
	b, err := box.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBox_Plaintext(t *testing.T) {
	box, err := NewBoxHex("")
	require.NoError(t, err)

	sealed, err := box.Seal("visible")
	require.NoError(t, err)
	assert.Equal(t, "visible", sealed)
}

func TestBox_WrongKey(t *testing.T) {
	a, _ := NewBox(make([]byte, 32))
	key := make([]byte, 32)
	key[0] = 1
	b, _ := NewBox(key)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.Error(t, err)
}

func TestNewBox_BadKeyLength(t *testing.T) {
	_, err := NewBox([]byte("short"))
	assert.Error(t, err)
	_, err = NewBoxHex("zz")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("k1"), Fingerprint("k1"))
	assert.NotEqual(t, Fingerprint("k1"), Fingerprint("k2"))
	assert.Len(t, Fingerprint("k1"), 64)
}
