package boardroom

import (
	"errors"
	"math/big"

	"arthchain/core/types"
)

// PrecisionExp is the fixed-point exponent shared by reward-per-share math.
const PrecisionExp = 18

// Precision returns the 1e18 fixed-point scale as a fresh big.Int.
func Precision() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(PrecisionExp), nil)
}

var (
	// ErrNotOperator preserves the historical revert reason for reward allocation.
	ErrNotOperator = errors.New("operator: caller is not the operator")
	// ErrNotOwner preserves the historical revert reason for admin calls.
	ErrNotOwner = errors.New("Ownable: caller is not the owner")
	// ErrZeroStake rejects zero-amount stake deposits.
	ErrZeroStake = errors.New("Boardroom: Cannot stake 0")
	// ErrZeroBond rejects zero-amount bond deposits.
	ErrZeroBond = errors.New("Boardroom: Cannot bond 0")
	// ErrZeroUnbond rejects zero-amount unbond requests.
	ErrZeroUnbond = errors.New("Boardroom: Cannot unbond 0")
	// ErrZeroAllocation rejects zero-amount reward allocations.
	ErrZeroAllocation = errors.New("Boardroom: Cannot allocate 0")
	// ErrDirectorNotFound signals the account has no live position.
	ErrDirectorNotFound = errors.New("Boardroom: director does not exist")
	// ErrUnbondExceedsBalance bounds unbond requests by the staked amount.
	ErrUnbondExceedsBalance = errors.New("Boardroom: withdraw request greater than staked amount")
	// ErrNoUnbondRequest requires an unbond before a withdrawal.
	ErrNoUnbondRequest = errors.New("Boardroom: no unbond request placed")
	// ErrStillLocked enforces the unbond cooldown.
	ErrStillLocked = errors.New("Boardroom: still in unbonding period")
	// ErrDepositsDisabled is returned when the circuit breaker is on.
	ErrDepositsDisabled = errors.New("Boardroom: deposits are disabled")
)

// State is the subset of ledger functionality the boardroom engines need.
type State interface {
	GetAccount(addr types.Address) (*types.Account, error)
	PutAccount(addr types.Address, account *types.Account) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	AppendEvent(evt *types.Event)
}

// Snapshot records the cumulative reward-per-share ledger after one
// allocation. RewardPerShare carries 1e18 fixed-point precision.
type Snapshot struct {
	Time           uint64
	RewardReceived *big.Int
	RewardPerShare *big.Int
}

func (s *Snapshot) normalize() *Snapshot {
	if s.RewardReceived == nil {
		s.RewardReceived = big.NewInt(0)
	}
	if s.RewardPerShare == nil {
		s.RewardPerShare = big.NewInt(0)
	}
	return s
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
