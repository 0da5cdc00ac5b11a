package seal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	require := require.New(t)
	secret, err := GenerateSecret()
	require.NoError(err)

	msg := []byte("101|true|2026-01-01T00:00:00Z")
	sig := secret.Sign(msg)
	require.True(secret.Verify(msg, sig))
	require.False(secret.Verify([]byte("tampered"), sig))
}

func TestDeriveSecretIsDeterministic(t *testing.T) {
	require := require.New(t)
	a, err := DeriveSecret([]byte("passphrase"), []byte("salt"))
	require.NoError(err)
	b, err := DeriveSecret([]byte("passphrase"), []byte("salt"))
	require.NoError(err)

	msg := []byte("same input")
	require.Equal(a.Sign(msg), b.Sign(msg))
}

func TestVerifyAcceptanceRoundTrip(t *testing.T) {
	require := require.New(t)
	priv, pub, err := NewBuyerKey()
	require.NoError(err)

	sig, err := SignAcceptance(priv, "contenthash123")
	require.NoError(err)
	require.True(pub.VerifyAcceptance("contenthash123", sig))
	require.False(pub.VerifyAcceptance("differenthash", sig))
}

func TestVerifyAcceptanceRejectsNilKey(t *testing.T) {
	require := require.New(t)
	var k *BuyerKey
	require.False(k.VerifyAcceptance("hash", []byte{1, 2, 3}))
}
