package oauthstate_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
	"github.com/jrsteele09/go-identity-bridge/oauthstate"
	"github.com/jrsteele09/go-identity-bridge/sessions"
)

func testAddress() sessions.Address {
	return sessions.Address{
		ChannelID:      "msteams",
		ServiceURL:     "https://smba.trafficmanager.net/emea/",
		ConversationID: "a:1xyz",
		UserID:         "29:user",
		UserObjectID:   "6b1f0c1e-oid",
		BotID:          "28:bot",
	}
}

func TestJSONCodec(t *testing.T) {
	codec := oauthstate.NewJSONCodec()

	t.Run("round trip", func(t *testing.T) {
		state, nonce, err := codec.Encode(testAddress(), "linkedIn")
		require.NoError(t, err)
		require.NotEmpty(t, nonce)

		decoded, err := codec.Decode(state)
		require.NoError(t, err)
		require.Equal(t, testAddress(), decoded.Address)
		require.Equal(t, "linkedIn", decoded.Provider)
		require.Equal(t, nonce, decoded.Nonce)
	})

	t.Run("wire format", func(t *testing.T) {
		state, nonce, err := codec.Encode(testAddress(), "google")
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal([]byte(state), &raw))
		require.Equal(t, "google", raw["provider"])
		require.Equal(t, nonce, raw["nonce"])
		addr, ok := raw["address"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "msteams", addr["channelId"])
	})

	t.Run("nonces differ per encode", func(t *testing.T) {
		_, n1, err := codec.Encode(testAddress(), "google")
		require.NoError(t, err)
		_, n2, err := codec.Encode(testAddress(), "google")
		require.NoError(t, err)
		require.NotEqual(t, n1, n2)
		require.Len(t, n1, 43)
	})

	t.Run("encode rejects bad input", func(t *testing.T) {
		_, _, err := codec.Encode(sessions.Address{}, "google")
		require.Error(t, err)
		_, _, err = codec.Encode(testAddress(), "")
		require.Error(t, err)
	})

	malformed := map[string]string{
		"empty":            "",
		"not json":         "not-json",
		"array":            `[1,2,3]`,
		"missing provider": `{"address":{"channelId":"msteams","userId":"u"},"nonce":"n"}`,
		"missing nonce":    `{"address":{"channelId":"msteams","userId":"u"},"provider":"google"}`,
		"missing user":     `{"address":{"channelId":"msteams"},"provider":"google","nonce":"n"}`,
		"trailing data":    `{"address":{"channelId":"msteams","userId":"u"},"provider":"google","nonce":"n"} {}`,
	}
	for name, state := range malformed {
		t.Run("malformed "+name, func(t *testing.T) {
			_, err := codec.Decode(state)
			require.ErrorIs(t, err, apperrors.ErrMalformedState)
		})
	}
}

func TestSignedCodec(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	oauthstate.NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { oauthstate.NowTimeFunc = time.Now })

	codec, err := oauthstate.NewSignedCodec("top-secret", 15*time.Minute)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		state, nonce, err := codec.Encode(testAddress(), "azureADv1")
		require.NoError(t, err)

		decoded, err := codec.Decode(state)
		require.NoError(t, err)
		require.Equal(t, testAddress(), decoded.Address)
		require.Equal(t, "azureADv1", decoded.Provider)
		require.Equal(t, nonce, decoded.Nonce)
	})

	t.Run("plain json is rejected", func(t *testing.T) {
		state, _, err := oauthstate.NewJSONCodec().Encode(testAddress(), "google")
		require.NoError(t, err)
		_, err = codec.Decode(state)
		require.ErrorIs(t, err, apperrors.ErrMalformedState)
	})

	t.Run("tampered signature", func(t *testing.T) {
		state, _, err := codec.Encode(testAddress(), "google")
		require.NoError(t, err)
		parts := strings.Split(state, ".")
		require.Len(t, parts, 3)
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		_, err = codec.Decode(parts[0] + "." + parts[1] + "." + string(sig))
		require.ErrorIs(t, err, apperrors.ErrMalformedState)
	})

	t.Run("different secret", func(t *testing.T) {
		other, err := oauthstate.NewSignedCodec("another-secret", 15*time.Minute)
		require.NoError(t, err)
		state, _, err := other.Encode(testAddress(), "google")
		require.NoError(t, err)
		_, err = codec.Decode(state)
		require.ErrorIs(t, err, apperrors.ErrMalformedState)
	})

	t.Run("expired", func(t *testing.T) {
		state, _, err := codec.Encode(testAddress(), "google")
		require.NoError(t, err)

		oauthstate.NowTimeFunc = func() time.Time { return now.Add(time.Hour) }
		defer func() { oauthstate.NowTimeFunc = func() time.Time { return now } }()

		_, err = codec.Decode(state)
		require.ErrorIs(t, err, apperrors.ErrMalformedState)
	})

	t.Run("unsigned token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"iss":   "identity-bridge",
			"addr":  testAddress(),
			"prv":   "google",
			"nonce": "n",
		})
		state, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = codec.Decode(state)
		require.ErrorIs(t, err, apperrors.ErrMalformedState)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := oauthstate.NewSignedCodec("", time.Minute)
		require.Error(t, err)
	})
}
