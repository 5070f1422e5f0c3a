package headers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/10allday-services/autopush-endpoint/internal/headers"
)

func TestParseCryptoKey(t *testing.T) {
	t.Run("semicolon delimited pairs", func(t *testing.T) {
		parsed := headers.ParseCryptoKey("keyid=p256dh;dh=deadbeef")
		require.NotNil(t, parsed)

		dh, ok := parsed.Get("dh")
		require.True(t, ok)
		assert.Equal(t, "deadbeef", dh)

		keyid, ok := parsed.Get("keyid")
		require.True(t, ok)
		assert.Equal(t, "p256dh", keyid)
	})

	t.Run("comma delimited pairs", func(t *testing.T) {
		parsed := headers.ParseCryptoKey("salt=abc, rs=4096")
		require.NotNil(t, parsed)

		salt, ok := parsed.Get("salt")
		require.True(t, ok)
		assert.Equal(t, "abc", salt)
	})

	t.Run("value keeps its base64 padding", func(t *testing.T) {
		parsed := headers.ParseCryptoKey("dh=dGVzdA==")
		require.NotNil(t, parsed)

		dh, ok := parsed.Get("dh")
		require.True(t, ok)
		assert.Equal(t, "dGVzdA==", dh)
	})

	t.Run("missing key is distinct from missing header", func(t *testing.T) {
		parsed := headers.ParseCryptoKey("keyid=abc")
		require.NotNil(t, parsed)

		_, ok := parsed.Get("dh")
		assert.False(t, ok)
	})

	t.Run("bare token is malformed", func(t *testing.T) {
		assert.Nil(t, headers.ParseCryptoKey("justatoken"))
	})

	t.Run("first pair wins on duplicates", func(t *testing.T) {
		parsed := headers.ParseCryptoKey("dh=first;dh=second")
		require.NotNil(t, parsed)

		dh, ok := parsed.Get("dh")
		require.True(t, ok)
		assert.Equal(t, "first", dh)
	})
}
