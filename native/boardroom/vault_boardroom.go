package boardroom

import (
	"math/big"
	"time"

	"arthchain/core/events"
	"arthchain/core/types"
	"arthchain/native/token"
)

type balancePoint struct {
	EffectiveEpoch uint64
	Balance        *big.Int
}

type epochSnapshot struct {
	Time        uint64
	Reward      *big.Int
	TotalSupply *big.Int
}

func (s *epochSnapshot) normalize() *epochSnapshot {
	if s.Reward == nil {
		s.Reward = big.NewInt(0)
	}
	if s.TotalSupply == nil {
		s.TotalSupply = big.NewInt(0)
	}
	return s
}

type vaultMeta struct {
	Owner         types.Address
	Operator      types.Address
	CurrentEpoch  uint64
	SupplyHistory []balancePoint
}

type vaultDirector struct {
	Exists            bool
	History           []balancePoint
	LastClaimedEpoch  uint64
	VestEpoch         uint64
	ClaimedFromLatest *big.Int
}

func (d *vaultDirector) normalize() *vaultDirector {
	if d.ClaimedFromLatest == nil {
		d.ClaimedFromLatest = big.NewInt(0)
	}
	return d
}

// VaultBoardroom distributes rewards over balances held in an external vault.
// It never touches the stake token itself; the vault reports every balance
// change through UpdateBalance. Accounting is per epoch, one epoch per reward
// allocation, and a reported balance only becomes reward-effective from the
// epoch after the one it was reported in. A director therefore earns nothing
// from the allocation that closes the epoch they bonded in.
type VaultBoardroom struct {
	name        string
	rewardToken *token.Token
	address     types.Address
	vestFor     uint64
	nowFn       func() int64
}

// NewVault constructs a vault-backed boardroom. address is the custody account
// for undistributed rewards; vestFor of zero disables vesting of the latest
// epoch's reward.
func NewVault(name string, rewardToken *token.Token, address types.Address, vestFor time.Duration) *VaultBoardroom {
	return &VaultBoardroom{
		name:        name,
		rewardToken: rewardToken,
		address:     address,
		vestFor:     uint64(vestFor / time.Second),
		nowFn:       func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (b *VaultBoardroom) SetNowFunc(now func() int64) {
	if now == nil {
		b.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	b.nowFn = now
}

// Name returns the boardroom identifier used in storage keys and events.
func (b *VaultBoardroom) Name() string { return b.name }

// Address returns the boardroom's reward custody account.
func (b *VaultBoardroom) Address() types.Address { return b.address }

// Init seeds governance roles and opens epoch 1. First call only.
func (b *VaultBoardroom) Init(st State, owner, operator types.Address) error {
	_, ok, err := b.meta(st)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return b.putMeta(st, &vaultMeta{Owner: owner, Operator: operator, CurrentEpoch: 1})
}

// Operator returns the address allowed to allocate rewards.
func (b *VaultBoardroom) Operator(st State) (types.Address, error) {
	meta, _, err := b.meta(st)
	if err != nil {
		return types.Address{}, err
	}
	return meta.Operator, nil
}

// TransferOperator reassigns the operator role. Owner only.
func (b *VaultBoardroom) TransferOperator(st State, caller, next types.Address) error {
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
func (b *VaultBoardroom) TransferOwnership(st State, caller, next types.Address) error {
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

// CurrentEpoch returns the epoch the next allocation will close.
func (b *VaultBoardroom) CurrentEpoch(st State) (uint64, error) {
	meta, _, err := b.meta(st)
	if err != nil {
		return 0, err
	}
	return meta.CurrentEpoch, nil
}

// UpdateBalance records who's vault balance and the vault's total bonded
// supply. The new values take effect from the next epoch. Called by the vault
// on every bond, unbond and withdrawal.
func (b *VaultBoardroom) UpdateBalance(st State, who types.Address, balance, totalBonded *big.Int) error {
	meta, _, err := b.meta(st)
	if err != nil {
		return err
	}
	director, err := b.director(st, who)
	if err != nil {
		return err
	}
	if !director.Exists {
		director.Exists = true
		// Closed epochs precede this director; nothing to claim from them.
		if meta.CurrentEpoch > 0 {
			director.LastClaimedEpoch = meta.CurrentEpoch - 1
		}
	}
	effective := meta.CurrentEpoch + 1
	director.History = appendPoint(director.History, effective, balance)
	meta.SupplyHistory = appendPoint(meta.SupplyHistory, effective, totalBonded)
	if err := b.putDirector(st, who, director); err != nil {
		return err
	}
	return b.putMeta(st, meta)
}

// GetBalanceFromLastEpoch returns who's balance as it counted for the most
// recently closed epoch.
func (b *VaultBoardroom) GetBalanceFromLastEpoch(st State, who types.Address) (*big.Int, error) {
	meta, _, err := b.meta(st)
	if err != nil {
		return nil, err
	}
	director, err := b.director(st, who)
	if err != nil {
		return nil, err
	}
	if meta.CurrentEpoch == 0 {
		return big.NewInt(0), nil
	}
	return balanceAt(director.History, meta.CurrentEpoch-1), nil
}

// AllocateSeigniorage pulls amount of the reward token from the caller,
// closes the current epoch with it and opens the next. Operator only. When
// the epoch's effective supply is zero the reward stays in custody.
func (b *VaultBoardroom) AllocateSeigniorage(st State, caller types.Address, amount *big.Int) error {
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
	snap := &epochSnapshot{
		Time:        b.now(),
		Reward:      amt,
		TotalSupply: balanceAt(meta.SupplyHistory, meta.CurrentEpoch),
	}
	if err := b.putSnapshot(st, meta.CurrentEpoch, snap); err != nil {
		return err
	}
	meta.CurrentEpoch++
	if err := b.putMeta(st, meta); err != nil {
		return err
	}
	st.AppendEvent(events.RewardAdded{Who: caller, Amount: amt}.Event())
	return nil
}

// Earned returns the reward accrued and not yet claimed by account across all
// closed epochs, ignoring vesting locks.
func (b *VaultBoardroom) Earned(st State, account types.Address) (*big.Int, error) {
	meta, _, err := b.meta(st)
	if err != nil {
		return nil, err
	}
	director, err := b.director(st, account)
	if err != nil {
		return nil, err
	}
	if !director.Exists || meta.CurrentEpoch == 0 {
		return big.NewInt(0), nil
	}
	latest := meta.CurrentEpoch - 1
	total := big.NewInt(0)
	for e := director.LastClaimedEpoch + 1; e <= latest; e++ {
		reward, err := b.rewardFor(st, director, e)
		if err != nil {
			return nil, err
		}
		total.Add(total, reward)
	}
	if director.VestEpoch > director.LastClaimedEpoch && director.VestEpoch <= latest {
		total.Sub(total, director.ClaimedFromLatest)
	}
	return total, nil
}

// ClaimReward pays out the vested portion of the caller's accrued reward:
// every fully closed-out epoch in full, plus the linearly vested share of the
// latest epoch's reward. A silent no-op when nothing has vested.
func (b *VaultBoardroom) ClaimReward(st State, caller types.Address) (*big.Int, error) {
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
	if meta.CurrentEpoch == 0 {
		return big.NewInt(0), nil
	}
	latest := meta.CurrentEpoch - 1
	if director.LastClaimedEpoch >= latest {
		return big.NewInt(0), nil
	}
	pay := big.NewInt(0)
	for e := director.LastClaimedEpoch + 1; e < latest; e++ {
		reward, err := b.rewardFor(st, director, e)
		if err != nil {
			return nil, err
		}
		pay.Add(pay, reward)
	}
	// A partially vested epoch that has since closed out was already paid in
	// part; the loop above counted it in full.
	if director.VestEpoch > director.LastClaimedEpoch && director.VestEpoch < latest {
		pay.Sub(pay, director.ClaimedFromLatest)
	}
	full, err := b.rewardFor(st, director, latest)
	if err != nil {
		return nil, err
	}
	vested := cloneBigInt(full)
	if b.vestFor > 0 && full.Sign() > 0 {
		snap, err := b.snapshot(st, latest)
		if err != nil {
			return nil, err
		}
		elapsed := uint64(0)
		if now := b.now(); now > snap.Time {
			elapsed = now - snap.Time
		}
		vested.Mul(full, new(big.Int).SetUint64(minUint64(elapsed, b.vestFor)))
		vested.Quo(vested, new(big.Int).SetUint64(b.vestFor))
	}
	already := big.NewInt(0)
	if director.VestEpoch == latest {
		already = director.ClaimedFromLatest
	}
	pay.Add(pay, vested)
	pay.Sub(pay, already)
	if vested.Cmp(full) >= 0 {
		director.LastClaimedEpoch = latest
		director.VestEpoch = 0
		director.ClaimedFromLatest = big.NewInt(0)
	} else {
		director.LastClaimedEpoch = latest - 1
		director.VestEpoch = latest
		director.ClaimedFromLatest = vested
	}
	if pay.Sign() <= 0 {
		if err := b.putDirector(st, caller, director); err != nil {
			return nil, err
		}
		return big.NewInt(0), nil
	}
	if err := b.rewardToken.Transfer(st, b.address, caller, pay); err != nil {
		return nil, err
	}
	if err := b.putDirector(st, caller, director); err != nil {
		return nil, err
	}
	st.AppendEvent(events.RewardPaid{Boardroom: b.name, Who: caller, Amount: pay}.Event())
	return pay, nil
}

// rewardFor returns the director's share of epoch e's reward.
func (b *VaultBoardroom) rewardFor(st State, director *vaultDirector, e uint64) (*big.Int, error) {
	snap, err := b.snapshot(st, e)
	if err != nil {
		return nil, err
	}
	if snap.TotalSupply.Sign() == 0 {
		return big.NewInt(0), nil
	}
	share := new(big.Int).Mul(snap.Reward, balanceAt(director.History, e))
	return share.Quo(share, snap.TotalSupply), nil
}

func (b *VaultBoardroom) now() uint64 {
	if now := b.nowFn(); now > 0 {
		return uint64(now)
	}
	return 0
}

func (b *VaultBoardroom) meta(st State) (*vaultMeta, bool, error) {
	meta := new(vaultMeta)
	ok, err := st.KVGet(b.metaKey(), meta)
	if err != nil {
		return nil, false, err
	}
	return meta, ok, nil
}

func (b *VaultBoardroom) putMeta(st State, meta *vaultMeta) error {
	return st.KVPut(b.metaKey(), meta)
}

func (b *VaultBoardroom) director(st State, addr types.Address) (*vaultDirector, error) {
	director := new(vaultDirector)
	if _, err := st.KVGet(b.directorKey(addr), director); err != nil {
		return nil, err
	}
	return director.normalize(), nil
}

func (b *VaultBoardroom) putDirector(st State, addr types.Address, director *vaultDirector) error {
	return st.KVPut(b.directorKey(addr), director)
}

func (b *VaultBoardroom) snapshot(st State, epoch uint64) (*epochSnapshot, error) {
	snap := new(epochSnapshot)
	if _, err := st.KVGet(b.epochKey(epoch), snap); err != nil {
		return nil, err
	}
	return snap.normalize(), nil
}

func (b *VaultBoardroom) putSnapshot(st State, epoch uint64, snap *epochSnapshot) error {
	return st.KVPut(b.epochKey(epoch), snap)
}

func (b *VaultBoardroom) metaKey() []byte {
	return []byte("vaultboardroom/" + b.name + "/meta")
}

func (b *VaultBoardroom) directorKey(addr types.Address) []byte {
	return append([]byte("vaultboardroom/"+b.name+"/director/"), addr[:]...)
}

func (b *VaultBoardroom) epochKey(epoch uint64) []byte {
	return append([]byte("vaultboardroom/"+b.name+"/epoch/"), uint64Key(epoch)...)
}

// appendPoint records balance as effective from epoch, replacing an existing
// point for the same epoch. History stays sorted by effective epoch.
func appendPoint(history []balancePoint, epoch uint64, balance *big.Int) []balancePoint {
	point := balancePoint{EffectiveEpoch: epoch, Balance: cloneBigInt(balance)}
	if n := len(history); n > 0 && history[n-1].EffectiveEpoch == epoch {
		history[n-1] = point
		return history
	}
	return append(history, point)
}

// balanceAt returns the balance effective at epoch: the newest point whose
// effective epoch does not exceed it.
func balanceAt(history []balancePoint, epoch uint64) *big.Int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].EffectiveEpoch <= epoch {
			return cloneBigInt(history[i].Balance)
		}
	}
	return big.NewInt(0)
}
