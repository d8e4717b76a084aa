// Package vault implements the custody and lock/unlock layer decoupled from
// reward accounting. The vault holds the staked token and reports balance
// changes to up to two boardrooms, so one locked balance can earn rewards in
// two distinct reward currencies.
package vault

import (
	"errors"
	"math/big"
	"time"

	"arthchain/core/events"
	"arthchain/core/types"
	"arthchain/native/boardroom"
	"arthchain/native/token"
)

// State is the ledger surface the vault engine operates on. It matches the
// boardroom's so a single transaction flows through the vault and its
// observers.
type State = boardroom.State

var (
	ErrNotOwner             = errors.New("Ownable: caller is not the owner")
	ErrZeroBond             = errors.New("Vault: cannot bond 0")
	ErrZeroUnbond           = errors.New("Vault: cannot unbond 0")
	ErrUnbondExceedsBalance = errors.New("Vault: unbond request greater than bonded amount")
	ErrMemberNotFound       = errors.New("Vault: member does not exist")
	ErrNoUnbondRequest      = errors.New("Vault: no unbond request")
	ErrStillLocked          = errors.New("Vault: still in unbonding period")
	ErrDepositsDisabled     = errors.New("Vault: deposits are disabled")
	ErrBoardroomsSet        = errors.New("Vault: boardrooms already set")
	ErrTooManyBoardrooms    = errors.New("Vault: at most two boardrooms")
)

// BalanceObserver receives balance-change notifications from the vault. Both
// boardroom variants that source balances externally implement it.
type BalanceObserver interface {
	UpdateBalance(st State, who types.Address, balance, totalBonded *big.Int) error
}

type storedMeta struct {
	Owner            types.Address
	TotalBonded      *big.Int
	BoardroomsSet    bool
	DepositsDisabled bool
}

func (m *storedMeta) normalize() *storedMeta {
	if m.TotalBonded == nil {
		m.TotalBonded = big.NewInt(0)
	}
	return m
}

type storedMember struct {
	Exists     bool
	Bonded     *big.Int
	Unbonding  *big.Int
	UnbondedAt uint64
}

func (m *storedMember) normalize() *storedMember {
	if m.Bonded == nil {
		m.Bonded = big.NewInt(0)
	}
	if m.Unbonding == nil {
		m.Unbonding = big.NewInt(0)
	}
	return m
}

// Vault custodies the stake token through a bond, unbond, withdraw lifecycle
// with a timed lock between unbond and withdraw.
type Vault struct {
	name       string
	stakeToken *token.Token
	address    types.Address
	lockPeriod uint64
	observers  []BalanceObserver
	nowFn      func() int64
}

// New constructs a vault. address is the custody account for bonded stake.
func New(name string, stakeToken *token.Token, address types.Address, lockPeriod time.Duration) *Vault {
	return &Vault{
		name:       name,
		stakeToken: stakeToken,
		address:    address,
		lockPeriod: uint64(lockPeriod / time.Second),
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (v *Vault) SetNowFunc(now func() int64) {
	if now == nil {
		v.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	v.nowFn = now
}

// Name returns the vault identifier used in storage keys.
func (v *Vault) Name() string { return v.name }

// Address returns the vault's custody account.
func (v *Vault) Address() types.Address { return v.address }

// Init seeds the vault's owner. First call only.
func (v *Vault) Init(st State, owner types.Address) error {
	_, ok, err := v.meta(st)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return v.putMeta(st, &storedMeta{Owner: owner, TotalBonded: big.NewInt(0)})
}

// SetBoardrooms registers the reward observers notified on balance changes.
// Owner only, at most two, and only once.
func (v *Vault) SetBoardrooms(st State, caller types.Address, rooms ...BalanceObserver) error {
	meta, _, err := v.meta(st)
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrNotOwner
	}
	if meta.BoardroomsSet {
		return ErrBoardroomsSet
	}
	if len(rooms) > 2 {
		return ErrTooManyBoardrooms
	}
	v.observers = rooms
	meta.BoardroomsSet = true
	return v.putMeta(st, meta)
}

// AttachObservers re-binds the in-memory observer list, for process restarts
// after the one-time registration has already been recorded. It does not
// touch the persisted registration guard.
func (v *Vault) AttachObservers(rooms ...BalanceObserver) {
	v.observers = rooms
}

// ToggleDeposits flips the deposit circuit breaker. Owner only.
func (v *Vault) ToggleDeposits(st State, caller types.Address, disabled bool) error {
	meta, _, err := v.meta(st)
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrNotOwner
	}
	meta.DepositsDisabled = disabled
	return v.putMeta(st, meta)
}

// Bond deposits amount of the stake token into the vault and notifies the
// registered boardrooms of the new balance.
func (v *Vault) Bond(st State, caller types.Address, amount *big.Int) error {
	meta, _, err := v.meta(st)
	if err != nil {
		return err
	}
	if meta.DepositsDisabled {
		return ErrDepositsDisabled
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrZeroBond
	}
	member, err := v.member(st, caller)
	if err != nil {
		return err
	}
	if err := v.stakeToken.Transfer(st, caller, v.address, amt); err != nil {
		return err
	}
	member.Exists = true
	member.Bonded = new(big.Int).Add(member.Bonded, amt)
	meta.TotalBonded = new(big.Int).Add(meta.TotalBonded, amt)
	if err := v.putMember(st, caller, member); err != nil {
		return err
	}
	if err := v.putMeta(st, meta); err != nil {
		return err
	}
	if err := v.notify(st, caller, member, meta); err != nil {
		return err
	}
	st.AppendEvent(events.Bonded{Who: caller, Amount: amt}.Event())
	return nil
}

// Unbond starts the unlock timer for amount of bonded stake. The amount
// leaves the reward-earning balance immediately.
func (v *Vault) Unbond(st State, caller types.Address, amount *big.Int) error {
	meta, _, err := v.meta(st)
	if err != nil {
		return err
	}
	member, err := v.member(st, caller)
	if err != nil {
		return err
	}
	if !member.Exists {
		return ErrMemberNotFound
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrZeroUnbond
	}
	if amt.Cmp(member.Bonded) > 0 {
		return ErrUnbondExceedsBalance
	}
	member.Bonded = new(big.Int).Sub(member.Bonded, amt)
	member.Unbonding = new(big.Int).Add(member.Unbonding, amt)
	member.UnbondedAt = v.now()
	meta.TotalBonded = new(big.Int).Sub(meta.TotalBonded, amt)
	if err := v.putMember(st, caller, member); err != nil {
		return err
	}
	if err := v.putMeta(st, meta); err != nil {
		return err
	}
	if err := v.notify(st, caller, member, meta); err != nil {
		return err
	}
	st.AppendEvent(events.Unbonded{Who: caller, Amount: amt}.Event())
	return nil
}

// Withdraw releases the unbonded amount once the lock period has elapsed. A
// full exit clears the member record so a second withdrawal fails.
func (v *Vault) Withdraw(st State, caller types.Address) (*big.Int, error) {
	member, err := v.member(st, caller)
	if err != nil {
		return nil, err
	}
	if !member.Exists {
		return nil, ErrMemberNotFound
	}
	if member.Unbonding.Sign() == 0 {
		return nil, ErrNoUnbondRequest
	}
	if v.now() < member.UnbondedAt+v.lockPeriod {
		return nil, ErrStillLocked
	}
	amount := cloneBigInt(member.Unbonding)
	if err := v.stakeToken.Transfer(st, v.address, caller, amount); err != nil {
		return nil, err
	}
	member.Unbonding = big.NewInt(0)
	member.UnbondedAt = 0
	if member.Bonded.Sign() == 0 {
		member.Exists = false
	}
	if err := v.putMember(st, caller, member); err != nil {
		return nil, err
	}
	st.AppendEvent(events.Withdrawn{Who: caller, Amount: amount}.Event())
	return amount, nil
}

// BalanceOf returns account's total vault balance, unbonding included.
func (v *Vault) BalanceOf(st State, account types.Address) (*big.Int, error) {
	member, err := v.member(st, account)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(member.Bonded, member.Unbonding), nil
}

// BalanceWithoutBonded returns account's reward-earning balance, excluding
// any amount mid-unbond.
func (v *Vault) BalanceWithoutBonded(st State, account types.Address) (*big.Int, error) {
	member, err := v.member(st, account)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(member.Bonded), nil
}

// TotalBonded returns the sum of all reward-earning balances.
func (v *Vault) TotalBonded(st State) (*big.Int, error) {
	meta, _, err := v.meta(st)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(meta.TotalBonded), nil
}

func (v *Vault) notify(st State, who types.Address, member *storedMember, meta *storedMeta) error {
	for _, room := range v.observers {
		if err := room.UpdateBalance(st, who, member.Bonded, meta.TotalBonded); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vault) now() uint64 {
	if now := v.nowFn(); now > 0 {
		return uint64(now)
	}
	return 0
}

func (v *Vault) meta(st State) (*storedMeta, bool, error) {
	meta := new(storedMeta)
	ok, err := st.KVGet(v.metaKey(), meta)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return (&storedMeta{}).normalize(), false, nil
	}
	return meta.normalize(), true, nil
}

func (v *Vault) putMeta(st State, meta *storedMeta) error {
	return st.KVPut(v.metaKey(), meta)
}

func (v *Vault) member(st State, addr types.Address) (*storedMember, error) {
	member := new(storedMember)
	if _, err := st.KVGet(v.memberKey(addr), member); err != nil {
		return nil, err
	}
	return member.normalize(), nil
}

func (v *Vault) putMember(st State, addr types.Address, member *storedMember) error {
	return st.KVPut(v.memberKey(addr), member)
}

func (v *Vault) metaKey() []byte {
	return []byte("vault/" + v.name + "/meta")
}

func (v *Vault) memberKey(addr types.Address) []byte {
	return append([]byte("vault/"+v.name+"/member/"), addr[:]...)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
