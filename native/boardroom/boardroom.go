package boardroom

import (
	"math/big"
	"time"

	"arthchain/core/events"
	"arthchain/core/types"
	"arthchain/native/token"
)

type storedMeta struct {
	Owner            types.Address
	Operator         types.Address
	TotalBonded      *big.Int
	SnapshotCount    uint64
	DepositsDisabled bool
}

func (m *storedMeta) normalize() *storedMeta {
	if m.TotalBonded == nil {
		m.TotalBonded = big.NewInt(0)
	}
	return m
}

type storedDirector struct {
	Exists            bool
	Balance           *big.Int
	RewardEarned      *big.Int
	LastSnapshotIndex uint64
	Unbonding         *big.Int
	UnbondedAt        uint64
	VestSnapshot      uint64
	VestAccrued       *big.Int
	VestPaid          *big.Int
}

func (d *storedDirector) normalize() *storedDirector {
	if d.Balance == nil {
		d.Balance = big.NewInt(0)
	}
	if d.RewardEarned == nil {
		d.RewardEarned = big.NewInt(0)
	}
	if d.Unbonding == nil {
		d.Unbonding = big.NewInt(0)
	}
	if d.VestAccrued == nil {
		d.VestAccrued = big.NewInt(0)
	}
	if d.VestPaid == nil {
		d.VestPaid = big.NewInt(0)
	}
	return d
}

// Boardroom is the custodial reward-accounting engine: it holds the staked
// token itself and distributes allocated rewards across directors proportional
// to their bonded balance at allocation time. A non-zero vesting duration
// turns it into the vested variant, where the latest allocation's reward
// unlocks linearly instead of immediately.
type Boardroom struct {
	name        string
	stakeToken  *token.Token
	rewardToken *token.Token
	address     types.Address
	lockPeriod  uint64
	vestFor     uint64
	nowFn       func() int64
}

// New constructs a custodial boardroom. address is the ledger account holding
// custody of both stake deposits and undistributed rewards. lockPeriod gates
// unbond-to-withdraw; vestFor of zero disables vesting.
func New(name string, stakeToken, rewardToken *token.Token, address types.Address, lockPeriod, vestFor time.Duration) *Boardroom {
	return &Boardroom{
		name:        name,
		stakeToken:  stakeToken,
		rewardToken: rewardToken,
		address:     address,
		lockPeriod:  uint64(lockPeriod / time.Second),
		vestFor:     uint64(vestFor / time.Second),
		nowFn:       func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (b *Boardroom) SetNowFunc(now func() int64) {
	if now == nil {
		b.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	b.nowFn = now
}

// Name returns the boardroom identifier used in storage keys and events.
func (b *Boardroom) Name() string { return b.name }

// Address returns the boardroom's custody account.
func (b *Boardroom) Address() types.Address { return b.address }

// Init seeds the boardroom's governance roles and genesis snapshot. It only
// takes effect on first call.
func (b *Boardroom) Init(st State, owner, operator types.Address) error {
	_, ok, err := b.meta(st)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	meta := &storedMeta{Owner: owner, Operator: operator, TotalBonded: big.NewInt(0), SnapshotCount: 1}
	if err := b.putSnapshot(st, 0, &Snapshot{Time: b.now(), RewardReceived: big.NewInt(0), RewardPerShare: big.NewInt(0)}); err != nil {
		return err
	}
	return b.putMeta(st, meta)
}

// Operator returns the address allowed to allocate rewards.
func (b *Boardroom) Operator(st State) (types.Address, error) {
	meta, _, err := b.meta(st)
	if err != nil {
		return types.Address{}, err
	}
	return meta.Operator, nil
}

// TransferOperator reassigns the operator role. Owner only.
func (b *Boardroom) TransferOperator(st State, caller, next types.Address) error {
	meta, _, err := b.meta(st)
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrNotOwner
	}
	meta.Operator = next
	return b.putMeta(st, meta)
}

// TransferOwnership reassigns the owner role. Owner only.
func (b *Boardroom) TransferOwnership(st State, caller, next types.Address) error {
	meta, _, err := b.meta(st)
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrNotOwner
	}
	meta.Owner = next
	return b.putMeta(st, meta)
}

// ToggleDeposits flips the deposit circuit breaker. Owner only.
func (b *Boardroom) ToggleDeposits(st State, caller types.Address, disabled bool) error {
	meta, _, err := b.meta(st)
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrNotOwner
	}
	meta.DepositsDisabled = disabled
	return b.putMeta(st, meta)
}

// Bond deposits amount of the stake token into the boardroom.
func (b *Boardroom) Bond(st State, caller types.Address, amount *big.Int) error {
	return b.deposit(st, caller, amount, ErrZeroBond, events.Bonded{Who: caller, Amount: cloneBigInt(amount)}.Event())
}

// Stake is the deposit alias used by the share-staking deployments.
func (b *Boardroom) Stake(st State, caller types.Address, amount *big.Int) error {
	return b.deposit(st, caller, amount, ErrZeroStake, events.Staked{Who: caller, Amount: cloneBigInt(amount)}.Event())
}

func (b *Boardroom) deposit(st State, caller types.Address, amount *big.Int, zeroErr error, evt *types.Event) error {
	meta, _, err := b.meta(st)
	if err != nil {
		return err
	}
	if meta.DepositsDisabled {
		return ErrDepositsDisabled
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return zeroErr
	}
	director, err := b.director(st, caller)
	if err != nil {
		return err
	}
	if !director.Exists {
		director.Exists = true
		director.LastSnapshotIndex = meta.SnapshotCount - 1
	} else if err := b.settle(st, meta, director); err != nil {
		return err
	}
	if err := b.stakeToken.Transfer(st, caller, b.address, amt); err != nil {
		return err
	}
	director.Balance = new(big.Int).Add(director.Balance, amt)
	meta.TotalBonded = new(big.Int).Add(meta.TotalBonded, amt)
	if err := b.putDirector(st, caller, director); err != nil {
		return err
	}
	if err := b.putMeta(st, meta); err != nil {
		return err
	}
	st.AppendEvent(evt)
	return nil
}

// Unbond starts the unlock timer for amount of bonded stake. The amount stops
// earning rewards immediately so an in-flight unbond cannot claim against its
// stale balance.
func (b *Boardroom) Unbond(st State, caller types.Address, amount *big.Int) error {
	meta, _, err := b.meta(st)
	if err != nil {
		return err
	}
	director, err := b.director(st, caller)
	if err != nil {
		return err
	}
	if !director.Exists {
		return ErrDirectorNotFound
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrZeroUnbond
	}
	if amt.Cmp(director.Balance) > 0 {
		return ErrUnbondExceedsBalance
	}
	if err := b.settle(st, meta, director); err != nil {
		return err
	}
	director.Balance = new(big.Int).Sub(director.Balance, amt)
	director.Unbonding = new(big.Int).Add(director.Unbonding, amt)
	director.UnbondedAt = b.now()
	meta.TotalBonded = new(big.Int).Sub(meta.TotalBonded, amt)
	if err := b.putDirector(st, caller, director); err != nil {
		return err
	}
	if err := b.putMeta(st, meta); err != nil {
		return err
	}
	st.AppendEvent(events.Unbonded{Who: caller, Amount: amt}.Event())
	return nil
}

// Withdraw releases the unbonded amount once the lock period has elapsed. A
// full exit clears the director's existence flag so a second withdrawal fails.
func (b *Boardroom) Withdraw(st State, caller types.Address) (*big.Int, error) {
	director, err := b.director(st, caller)
	if err != nil {
		return nil, err
	}
	if !director.Exists {
		return nil, ErrDirectorNotFound
	}
	if director.Unbonding.Sign() == 0 {
		return nil, ErrNoUnbondRequest
	}
	if b.now() < director.UnbondedAt+b.lockPeriod {
		return nil, ErrStillLocked
	}
	amount := cloneBigInt(director.Unbonding)
	if err := b.stakeToken.Transfer(st, b.address, caller, amount); err != nil {
		return nil, err
	}
	director.Unbonding = big.NewInt(0)
	director.UnbondedAt = 0
	if director.Balance.Sign() == 0 {
		director.Exists = false
	}
	if err := b.putDirector(st, caller, director); err != nil {
		return nil, err
	}
	st.AppendEvent(events.Withdrawn{Who: caller, Amount: amount}.Event())
	return amount, nil
}

// Exit claims whatever reward has vested and then withdraws the unbonded
// stake, sharing the withdraw lock check.
func (b *Boardroom) Exit(st State, caller types.Address) error {
	if _, err := b.ClaimReward(st, caller); err != nil {
		return err
	}
	_, err := b.Withdraw(st, caller)
	return err
}

// AllocateSeigniorage pulls amount of the reward token from the caller and
// appends a reward snapshot. Operator only. When nothing is bonded the amount
// is retained without increasing reward-per-share; it is not recoverable by
// later stakers.
func (b *Boardroom) AllocateSeigniorage(st State, caller types.Address, amount *big.Int) error {
	meta, _, err := b.meta(st)
	if err != nil {
		return err
	}
	if caller != meta.Operator {
		return ErrNotOperator
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrZeroAllocation
	}
	if err := b.rewardToken.Transfer(st, caller, b.address, amt); err != nil {
		return err
	}
	prev, err := b.snapshot(st, meta.SnapshotCount-1)
	if err != nil {
		return err
	}
	rps := cloneBigInt(prev.RewardPerShare)
	if meta.TotalBonded.Sign() > 0 {
		delta := new(big.Int).Mul(amt, Precision())
		rps.Add(rps, delta.Quo(delta, meta.TotalBonded))
	}
	next := &Snapshot{Time: b.now(), RewardReceived: amt, RewardPerShare: rps}
	if err := b.putSnapshot(st, meta.SnapshotCount, next); err != nil {
		return err
	}
	meta.SnapshotCount++
	if err := b.putMeta(st, meta); err != nil {
		return err
	}
	st.AppendEvent(events.RewardAdded{Who: caller, Amount: amt}.Event())
	return nil
}

// Earned returns the total reward accrued and not yet claimed by account,
// ignoring vesting locks.
func (b *Boardroom) Earned(st State, account types.Address) (*big.Int, error) {
	meta, _, err := b.meta(st)
	if err != nil {
		return nil, err
	}
	director, err := b.director(st, account)
	if err != nil {
		return nil, err
	}
	if !director.Exists {
		return big.NewInt(0), nil
	}
	pending, err := b.pendingSince(st, meta, director, director.LastSnapshotIndex)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(director.RewardEarned, pending), nil
}

// ClaimReward pays out the vested portion of the caller's accrued reward.
// It is a silent no-op when nothing has vested yet.
func (b *Boardroom) ClaimReward(st State, caller types.Address) (*big.Int, error) {
	meta, _, err := b.meta(st)
	if err != nil {
		return nil, err
	}
	director, err := b.director(st, caller)
	if err != nil {
		return nil, err
	}
	if !director.Exists {
		return nil, ErrDirectorNotFound
	}
	if err := b.settle(st, meta, director); err != nil {
		return nil, err
	}
	pay := cloneBigInt(director.RewardEarned)
	var vestedGross *big.Int
	if b.vestFor > 0 && director.VestSnapshot == meta.SnapshotCount-1 && director.VestSnapshot > 0 {
		snap, err := b.snapshot(st, director.VestSnapshot)
		if err != nil {
			return nil, err
		}
		elapsed := uint64(0)
		if now := b.now(); now > snap.Time {
			elapsed = now - snap.Time
		}
		vestedGross = new(big.Int).Mul(director.VestAccrued, new(big.Int).SetUint64(minUint64(elapsed, b.vestFor)))
		vestedGross.Quo(vestedGross, new(big.Int).SetUint64(b.vestFor))
		pay.Sub(pay, director.VestAccrued)
		pay.Add(pay, vestedGross)
	}
	if pay.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	if err := b.rewardToken.Transfer(st, b.address, caller, pay); err != nil {
		return nil, err
	}
	director.RewardEarned = new(big.Int).Sub(director.RewardEarned, pay)
	if vestedGross != nil {
		director.VestPaid = vestedGross
	}
	if err := b.putDirector(st, caller, director); err != nil {
		return nil, err
	}
	st.AppendEvent(events.RewardPaid{Boardroom: b.name, Who: caller, Amount: pay}.Event())
	return pay, nil
}

// BalanceOf returns account's bonded balance, excluding any amount mid-unbond.
func (b *Boardroom) BalanceOf(st State, account types.Address) (*big.Int, error) {
	director, err := b.director(st, account)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(director.Balance), nil
}

// TotalBonded returns the sum of all reward-earning balances.
func (b *Boardroom) TotalBonded(st State) (*big.Int, error) {
	meta, _, err := b.meta(st)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(meta.TotalBonded), nil
}

// settle folds the reward delta since the director's last checkpoint into its
// earned ledger and, when vesting is enabled, opens a fresh vesting window for
// the newest allocation's share.
func (b *Boardroom) settle(st State, meta *storedMeta, director *storedDirector) error {
	latest := meta.SnapshotCount - 1
	if director.LastSnapshotIndex >= latest {
		return nil
	}
	delta, err := b.pendingSince(st, meta, director, director.LastSnapshotIndex)
	if err != nil {
		return err
	}
	director.RewardEarned = new(big.Int).Add(director.RewardEarned, delta)
	if b.vestFor > 0 {
		latestDelta, err := b.pendingSince(st, meta, director, latest-1)
		if err != nil {
			return err
		}
		if latestDelta.Cmp(delta) > 0 {
			latestDelta = delta
		}
		director.VestSnapshot = latest
		director.VestAccrued = latestDelta
		director.VestPaid = big.NewInt(0)
	}
	director.LastSnapshotIndex = latest
	return nil
}

// pendingSince computes balance * (rps[latest] - rps[from]) / precision.
func (b *Boardroom) pendingSince(st State, meta *storedMeta, director *storedDirector, from uint64) (*big.Int, error) {
	latest, err := b.snapshot(st, meta.SnapshotCount-1)
	if err != nil {
		return nil, err
	}
	base, err := b.snapshot(st, from)
	if err != nil {
		return nil, err
	}
	delta := new(big.Int).Sub(latest.RewardPerShare, base.RewardPerShare)
	if delta.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	delta.Mul(delta, director.Balance)
	return delta.Quo(delta, Precision()), nil
}

func (b *Boardroom) now() uint64 {
	if now := b.nowFn(); now > 0 {
		return uint64(now)
	}
	return 0
}

func (b *Boardroom) meta(st State) (*storedMeta, bool, error) {
	meta := new(storedMeta)
	ok, err := st.KVGet(b.metaKey(), meta)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return (&storedMeta{}).normalize(), false, nil
	}
	return meta.normalize(), true, nil
}

func (b *Boardroom) putMeta(st State, meta *storedMeta) error {
	return st.KVPut(b.metaKey(), meta)
}

func (b *Boardroom) director(st State, addr types.Address) (*storedDirector, error) {
	director := new(storedDirector)
	if _, err := st.KVGet(b.directorKey(addr), director); err != nil {
		return nil, err
	}
	return director.normalize(), nil
}

func (b *Boardroom) putDirector(st State, addr types.Address, director *storedDirector) error {
	return st.KVPut(b.directorKey(addr), director)
}

func (b *Boardroom) snapshot(st State, index uint64) (*Snapshot, error) {
	snap := new(Snapshot)
	ok, err := st.KVGet(b.snapshotKey(index), snap)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&Snapshot{}).normalize(), nil
	}
	return snap.normalize(), nil
}

func (b *Boardroom) putSnapshot(st State, index uint64, snap *Snapshot) error {
	return st.KVPut(b.snapshotKey(index), snap)
}

func (b *Boardroom) metaKey() []byte {
	return []byte("boardroom/" + b.name + "/meta")
}

func (b *Boardroom) directorKey(addr types.Address) []byte {
	return append([]byte("boardroom/"+b.name+"/director/"), addr[:]...)
}

func (b *Boardroom) snapshotKey(index uint64) []byte {
	return append([]byte("boardroom/"+b.name+"/snapshot/"), uint64Key(index)...)
}

func uint64Key(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}
