package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/eip712"
)

// Permit installs an allowance from a signed off-ledger authorization
// instead of a call by the owner. The signature must cover this exact
// ledger (domain), owner, spender, value, the owner's next nonce and the
// deadline. Each authorization is usable once: the nonce advances with
// the commit, and only with the commit.
func (t *Token) Permit(owner, spender address.Address, value *uint256.Int, deadline uint64, sig []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now := uint64(t.now().Unix()); now > deadline {
		return fmt.Errorf("%w: deadline %d passed at %d", ErrExpired, deadline, now)
	}
	if owner.IsNull() {
		return fmt.Errorf("%w: null owner", ErrInvalidAddress)
	}

	v := cloneAmount(value)
	tx := beginTxn(t.st)
	nonce := tx.nonce(owner)

	digest := eip712.PermitDigest(t.domain, owner, spender, v, nonce, deadline)
	signer, err := t.recover.Recover(digest, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !signer.Compare(owner) {
		return fmt.Errorf("%w: signed by %s, not %s", ErrInvalidSignature, signer, owner)
	}

	tx.setNonce(owner, nonce+1)
	if err := approve(tx, owner, spender, v); err != nil {
		return err
	}
	t.finish(tx)
	return nil
}
