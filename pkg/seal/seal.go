// Package seal provides the cryptographic primitives the Decision Ledger and
// the buyer-acceptance signature invariant (403) depend on: an HMAC-SHA256
// signer over a process secret derived via HKDF, and ECDSA signature
// verification over an invoice content hash.
package seal

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrBadSignature is returned when an HMAC or ECDSA signature fails to verify.
	ErrBadSignature = errors.New("seal: signature verification failed")
)

// Secret is a process-wide signing key, derived once at startup and never
// logged or persisted in the clear.
type Secret struct {
	key []byte
}

// DeriveSecret derives a 32-byte signing key from an operator-supplied
// passphrase using HKDF-SHA256, the way a raw passphrase should never be
// used directly as an HMAC key.
func DeriveSecret(passphrase, salt []byte) (*Secret, error) {
	h := hkdf.New(sha256.New, passphrase, salt, []byte("itn-decision-ledger-v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}
	return &Secret{key: key}, nil
}

// GenerateSecret derives a secret from fresh random key material, for tests
// and single-node bootstraps that have no operator passphrase configured.
func GenerateSecret() (*Secret, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	return DeriveSecret(raw, nil)
}

// Sign computes HMAC-SHA256(key, message) and returns it hex-encoded.
func (s *Secret) Sign(message []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the HMAC and compares it in constant time against sig.
func (s *Secret) Verify(message []byte, sig string) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(message)
	got := mac.Sum(nil)
	return hmac.Equal(got, want)
}

// BuyerKey wraps a buyer's ECDSA public key for invariant 403 — verifying
// that an acceptance carries a signature over the invoice content hash.
type BuyerKey struct {
	Pub *ecdsa.PublicKey
}

// VerifyAcceptance checks sig (r||s, fixed-width big-endian) against the
// SHA-256 digest of invoiceHash.
func (k *BuyerKey) VerifyAcceptance(invoiceHash string, sig []byte) bool {
	if k == nil || k.Pub == nil {
		return false
	}
	digest := sha256.Sum256([]byte(invoiceHash))
	size := (k.Pub.Curve.Params().BitSize + 7) / 8
	if len(sig) != 2*size {
		return false
	}
	r := new(big.Int).SetBytes(sig[:size])
	s := new(big.Int).SetBytes(sig[size:])
	return ecdsa.Verify(k.Pub, digest[:], r, s)
}

// NewBuyerKey generates a fresh ECDSA keypair on P-256, used by tests and by
// in-memory buyer registries to simulate a verifiable acceptance signature.
func NewBuyerKey() (*ecdsa.PrivateKey, *BuyerKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return priv, &BuyerKey{Pub: &priv.PublicKey}, nil
}

// SignAcceptance produces the fixed-width r||s signature VerifyAcceptance expects.
func SignAcceptance(priv *ecdsa.PrivateKey, invoiceHash string) ([]byte, error) {
	digest := sha256.Sum256([]byte(invoiceHash))
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, err
	}
	size := (priv.Curve.Params().BitSize + 7) / 8
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])
	return out, nil
}
