package crypto

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/crypto/hash"
)

// CachingRecoverer memoizes successful recoveries. Recovery is the most
// expensive step of permit processing and the same (digest, signature)
// pair is often submitted more than once.
type CachingRecoverer struct {
	inner Recoverer
	cache *lru.Cache[string, address.Address]
	mutex sync.Mutex
}

func NewCachingRecoverer(inner Recoverer, size int) (*CachingRecoverer, error) {
	c, err := lru.New[string, address.Address](size)
	if err != nil {
		return nil, err
	}
	return &CachingRecoverer{inner: inner, cache: c}, nil
}

func (r *CachingRecoverer) Recover(digest hash.Hash, sig []byte) (address.Address, error) {
	key := string(digest.Bytes()) + string(sig)

	r.mutex.Lock()
	cached, ok := r.cache.Get(key)
	r.mutex.Unlock()
	if ok {
		return cached, nil
	}

	recovered, err := r.inner.Recover(digest, sig)
	if err != nil {
		return address.Address{}, err
	}

	r.mutex.Lock()
	r.cache.Add(key, recovered)
	r.mutex.Unlock()
	return recovered, nil
}
