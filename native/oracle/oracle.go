package oracle

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"arthchain/core/types"
)

var (
	// ErrNoPrice indicates the feed has never been seeded.
	ErrNoPrice = errors.New("oracle: no price available")
	// ErrStalePrice indicates the latest observation fell outside the
	// configured freshness window.
	ErrStalePrice = errors.New("oracle: price observation too old")
	// ErrNotOwner guards the feed's admin surface.
	ErrNotOwner = errors.New("Ownable: caller is not the owner")
)

// Oracle resolves the 1e18-scaled price of cash relative to the peg unit. The
// TWAP computation itself happens upstream; consumers treat the feed as a
// correctly-functioning collaborator.
type Oracle interface {
	GetPrice() (*big.Int, error)
}

// SimpleOracle is an owner-fed reference oracle with an optional freshness
// window. It backs tests and single-operator deployments where the TWAP
// pipeline posts observations over RPC. Observations arrive on the RPC
// goroutine while the keeper reads concurrently, so access is mutex-guarded.
type SimpleOracle struct {
	mu         sync.RWMutex
	owner      types.Address
	price      *big.Int
	observedAt int64
	maxAge     time.Duration
	nowFn      func() int64
}

// NewSimpleOracle constructs a feed administered by owner. A zero maxAge
// disables staleness checks.
func NewSimpleOracle(owner types.Address, maxAge time.Duration) *SimpleOracle {
	return &SimpleOracle{
		owner:  owner,
		maxAge: maxAge,
		nowFn:  func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (o *SimpleOracle) SetNowFunc(now func() int64) {
	if now == nil {
		o.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	o.nowFn = now
}

// SetPrice records a new observation. Owner only.
func (o *SimpleOracle) SetPrice(caller types.Address, price *big.Int) error {
	if caller != o.owner {
		return ErrNotOwner
	}
	if price == nil || price.Sign() <= 0 {
		return errors.New("oracle: price must be positive")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = new(big.Int).Set(price)
	o.observedAt = o.nowFn()
	return nil
}

// GetPrice returns the latest observation, enforcing the freshness window.
func (o *SimpleOracle) GetPrice() (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.price == nil {
		return nil, ErrNoPrice
	}
	if o.maxAge > 0 {
		age := o.nowFn() - o.observedAt
		if age > int64(o.maxAge/time.Second) {
			return nil, ErrStalePrice
		}
	}
	return new(big.Int).Set(o.price), nil
}
