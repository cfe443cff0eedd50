package crypto

import (
	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/crypto/hash"
)

// SignatureSize is the length of a recoverable signature: 32-byte R,
// 32-byte S, one recovery byte V. V is accepted as 0/1 or 27/28.
const SignatureSize = 65

type Signer interface {
	Bytes() []byte
	String() string
	Sign(digest hash.Hash) ([]byte, error)
	Address() address.Address
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
	Equal(other Signer) bool
}

// Recoverer resolves the signing account from a digest and a recoverable
// signature. Implementations must return an error, never a guess, for
// anything malformed.
type Recoverer interface {
	Recover(digest hash.Hash, sig []byte) (address.Address, error)
}
