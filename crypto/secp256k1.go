package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"

	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/crypto/hash"
)

type privateKey struct {
	privKey *ecdsa.PrivateKey
}

func NewPrivateKey() (Signer, error) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %v", err)
	}
	return &privateKey{privKey: key}, nil
}

// NewPrivateKeyFromHex loads a signer from a 32-byte hex-encoded scalar.
func NewPrivateKeyFromHex(hexkey string) (Signer, error) {
	key, err := gethcrypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}
	return &privateKey{privKey: key}, nil
}

func NewPrivateKeyFromBytes(data []byte) (Signer, error) {
	key, err := gethcrypto.ToECDSA(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}
	return &privateKey{privKey: key}, nil
}

func (p *privateKey) Bytes() []byte {
	return gethcrypto.FromECDSA(p.privKey)
}

func (p *privateKey) String() string {
	return hex.EncodeToString(p.Bytes())
}

// Sign produces a 65-byte [R || S || V] signature over the digest, with
// V in wire form (27/28).
func (p *privateKey) Sign(digest hash.Hash) ([]byte, error) {
	sig, err := gethcrypto.Sign(digest.Bytes(), p.privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %v", err)
	}
	sig[64] += 27
	return sig, nil
}

func (p *privateKey) Address() address.Address {
	return address.FromPublicKey(&p.privKey.PublicKey)
}

func (p *privateKey) Marshal() ([]byte, error) {
	return cbor.Marshal(p.Bytes())
}

func (p *privateKey) Unmarshal(data []byte) error {
	var d []byte
	if err := cbor.Unmarshal(data, &d); err != nil {
		return err
	}
	key, err := gethcrypto.ToECDSA(d)
	if err != nil {
		return err
	}
	p.privKey = key
	return nil
}

func (p *privateKey) Equal(other Signer) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(p.Bytes(), other.Bytes())
}

type recoverer struct{}

// NewRecoverer returns the secp256k1 public-key recoverer.
func NewRecoverer() Recoverer {
	return recoverer{}
}

func (recoverer) Recover(digest hash.Hash, sig []byte) (address.Address, error) {
	if len(sig) != SignatureSize {
		return address.Address{}, fmt.Errorf("signature should be %d bytes, but it is %v bytes", SignatureSize, len(sig))
	}
	normalized := make([]byte, SignatureSize)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return address.Address{}, fmt.Errorf("invalid recovery id %d", sig[64])
	}
	pub, err := gethcrypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return address.Address{}, fmt.Errorf("failed to recover public key: %v", err)
	}
	return address.FromPublicKey(pub), nil
}
