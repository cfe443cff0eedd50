package address

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/cinder-labs/cinder/crypto/hash"
)

// Size is the byte length of an account identifier: the low 20 bytes of
// the Keccak-256 hash of the holder's public key.
const Size = 20

type Address [Size]byte

// FromPublicKey derives the account identifier from a secp256k1 public key.
func FromPublicKey(pub *ecdsa.PublicKey) Address {
	return Address(gethcrypto.PubkeyToAddress(*pub))
}

// Null returns the zero address. It owns no balance and can never be a
// transfer party; mint and burn records use it as their counterparty.
func Null() Address {
	return Address{}
}

func (a Address) IsNull() bool {
	return a == Address{}
}

// Validate reports whether s parses as a 20-byte hex address.
func Validate(s string) bool {
	_, err := FromString(s)
	return err == nil
}

// FromString parses a 0x-prefixed hex address. Letter case is ignored.
func FromString(s string) (Address, error) {
	stripped := strings.TrimPrefix(s, "0x")
	data, err := hex.DecodeString(stripped)
	if err != nil {
		return Address{}, fmt.Errorf("failed to decode address '%s': %v", s, err)
	}
	return FromBytes(data)
}

func FromBytes(data []byte) (Address, error) {
	if len(data) != Size {
		return Address{}, fmt.Errorf("address should be %d bytes, but it is %v bytes", Size, len(data))
	}
	var a Address
	copy(a[:], data)
	return a, nil
}

func (a Address) Bytes() []byte {
	return a[:]
}

// String renders the address as 0x-prefixed hex with the mixed-case
// checksum: a hex letter is uppercased when the matching nibble of
// keccak256(lowercase hex form) is 8 or above.
func (a Address) String() string {
	unchecksummed := hex.EncodeToString(a[:])
	h := hash.NewHash([]byte(unchecksummed))

	result := []byte(unchecksummed)
	for i, c := range result {
		if c < '0' || c > '9' {
			nibble := h[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				result[i] = c - 32
			}
		}
	}
	return "0x" + string(result)
}

// Word returns the address left-padded to a 32-byte big-endian word.
func (a Address) Word() []byte {
	word := make([]byte, 32)
	copy(word[12:], a[:])
	return word
}

// MarshalText renders the checksummed hex form, so JSON and text
// encodings carry addresses as strings rather than byte arrays.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Address) Marshal() ([]byte, error) {
	return cbor.Marshal(a[:])
}

func (a *Address) Unmarshal(data []byte) error {
	var slice []byte
	if err := cbor.Unmarshal(data, &slice); err != nil {
		return err
	}
	if len(slice) != Size {
		return fmt.Errorf("unmarshaled data has incorrect length: expected %d, got %d", Size, len(slice))
	}
	copy(a[:], slice)
	return nil
}

func (a Address) Compare(other Address) bool {
	return bytes.Equal(a[:], other[:])
}
