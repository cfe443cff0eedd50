package crypto

import (
	"bytes"
	"testing"

	"github.com/cinder-labs/cinder/crypto/hash"
)

func TestKeyGeneration(t *testing.T) {
	privKey, err := NewPrivateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	if privKey == nil {
		t.Fatalf("NewPrivateKey returned nil")
	}
	if privKey.Address().IsNull() {
		t.Fatalf("generated key derives the null address")
	}
}

func TestSignAndRecover(t *testing.T) {
	privKey, err := NewPrivateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	digest := hash.NewHash([]byte("authorize 100 base units"))

	sig, err := privKey.Sign(digest)
	if err != nil {
		t.Fatalf("Failed to sign digest: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Fatalf("signature length = %d, want %d", len(sig), SignatureSize)
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("recovery byte = %d, want 27 or 28", sig[64])
	}

	recovered, err := NewRecoverer().Recover(digest, sig)
	if err != nil {
		t.Fatalf("Failed to recover signer: %v", err)
	}
	if !recovered.Compare(privKey.Address()) {
		t.Errorf("recovered %s, want %s", recovered, privKey.Address())
	}
}

func TestRecoverAcceptsBothRecoveryIDForms(t *testing.T) {
	privKey, err := NewPrivateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	digest := hash.NewHash([]byte("recovery id forms"))
	sig, err := privKey.Sign(digest)
	if err != nil {
		t.Fatalf("Failed to sign digest: %v", err)
	}

	raw := make([]byte, len(sig))
	copy(raw, sig)
	raw[64] -= 27

	for _, s := range [][]byte{sig, raw} {
		recovered, err := NewRecoverer().Recover(digest, s)
		if err != nil {
			t.Fatalf("Recover failed for v=%d: %v", s[64], err)
		}
		if !recovered.Compare(privKey.Address()) {
			t.Errorf("recovered %s, want %s", recovered, privKey.Address())
		}
	}
}

func TestRecoverRejectsMalformedSignature(t *testing.T) {
	digest := hash.NewHash([]byte("malformed"))
	r := NewRecoverer()

	if _, err := r.Recover(digest, nil); err == nil {
		t.Errorf("expected error for nil signature")
	}
	if _, err := r.Recover(digest, make([]byte, 64)); err == nil {
		t.Errorf("expected error for truncated signature")
	}
	bad := make([]byte, SignatureSize)
	bad[64] = 9
	if _, err := r.Recover(digest, bad); err == nil {
		t.Errorf("expected error for invalid recovery id")
	}
}

func TestRecoverDifferentDigestDifferentSigner(t *testing.T) {
	privKey, err := NewPrivateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	digest := hash.NewHash([]byte("original"))
	sig, err := privKey.Sign(digest)
	if err != nil {
		t.Fatalf("Failed to sign digest: %v", err)
	}

	other := hash.NewHash([]byte("tampered"))
	recovered, err := NewRecoverer().Recover(other, sig)
	if err == nil && recovered.Compare(privKey.Address()) {
		t.Errorf("tampered digest recovered the original signer")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	privKey, err := NewPrivateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	data, err := privKey.Marshal()
	if err != nil {
		t.Fatalf("Failed to marshal key: %v", err)
	}

	loaded := &privateKey{}
	if err := loaded.Unmarshal(data); err != nil {
		t.Fatalf("Failed to unmarshal key: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), privKey.Bytes()) {
		t.Errorf("key bytes changed across marshal round trip")
	}
	if !loaded.Address().Compare(privKey.Address()) {
		t.Errorf("address changed across marshal round trip")
	}
}

func TestCachingRecoverer(t *testing.T) {
	privKey, err := NewPrivateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	digest := hash.NewHash([]byte("cached"))
	sig, err := privKey.Sign(digest)
	if err != nil {
		t.Fatalf("Failed to sign digest: %v", err)
	}

	caching, err := NewCachingRecoverer(NewRecoverer(), 16)
	if err != nil {
		t.Fatalf("Failed to build caching recoverer: %v", err)
	}
	for i := 0; i < 3; i++ {
		recovered, err := caching.Recover(digest, sig)
		if err != nil {
			t.Fatalf("Recover %d failed: %v", i, err)
		}
		if !recovered.Compare(privKey.Address()) {
			t.Errorf("recovered %s, want %s", recovered, privKey.Address())
		}
	}
	if _, err := caching.Recover(digest, make([]byte, 3)); err == nil {
		t.Errorf("expected error for malformed signature")
	}
}
