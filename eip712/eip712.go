// Package eip712 builds the domain-separated structured digests that
// off-ledger signers commit to. The encoding follows the v4 typed-data
// scheme: keccak256(0x19 || 0x01 || domainSeparator || structHash), all
// dynamic fields hashed, all words 32 bytes big-endian.
package eip712

import (
	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/crypto/hash"
)

var (
	domainTypeHash = hash.NewHash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	permitTypeHash = hash.NewHash([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
)

// DomainSeparator binds signatures to one deployed ledger: same name,
// version, chain and ledger address, same separator.
func DomainSeparator(name, version string, chainID uint64, verifying address.Address) hash.Hash {
	return hash.NewHash(
		domainTypeHash.Bytes(),
		hash.NewHash([]byte(name)).Bytes(),
		hash.NewHash([]byte(version)).Bytes(),
		word(uint256.NewInt(chainID)),
		verifying.Word(),
	)
}

// PermitDigest is the digest an owner signs to authorize spender for
// value, valid through deadline, consuming the given nonce.
func PermitDigest(domain hash.Hash, owner, spender address.Address, value *uint256.Int, nonce uint64, deadline uint64) hash.Hash {
	structHash := hash.NewHash(
		permitTypeHash.Bytes(),
		owner.Word(),
		spender.Word(),
		word(value),
		word(uint256.NewInt(nonce)),
		word(uint256.NewInt(deadline)),
	)
	return hash.NewHash([]byte{0x19, 0x01}, domain.Bytes(), structHash.Bytes())
}

func word(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}
