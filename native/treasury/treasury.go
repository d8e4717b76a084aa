// Package treasury implements the epoch and seigniorage policy engine: it
// reads the oracle price once per epoch, mints cash above peg and waterfalls
// it across fund, bond reserve and boardrooms, and sells discounted bonds
// below peg against a per-epoch conversion limit.
package treasury

import (
	"fmt"
	"math/big"
	"time"

	"arthchain/core/events"
	"arthchain/core/types"
	"arthchain/native/boardroom"
	"arthchain/native/oracle"
	"arthchain/native/token"
)

// State is the ledger surface the treasury operates on. It matches the
// boardroom's so one atomic transaction spans the whole allocation waterfall.
type State = boardroom.State

// Phase is the treasury lifecycle state machine. It only ever moves forward.
type Phase uint64

const (
	PhaseUninitialized Phase = iota
	PhaseActive
	PhaseMigrated
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseActive:
		return "active"
	case PhaseMigrated:
		return "migrated"
	default:
		return fmt.Sprintf("phase(%d)", uint64(p))
	}
}

// BoardroomSink is the surface the treasury needs from a reward boardroom.
// Both boardroom variants satisfy it.
type BoardroomSink interface {
	Name() string
	Address() types.Address
	Operator(st State) (types.Address, error)
	AllocateSeigniorage(st State, caller types.Address, amount *big.Int) error
}

type storedTreasury struct {
	Phase                     uint64
	Epoch                     uint64
	AccumulatedSeigniorage    *big.Int
	CashToBondConversionLimit *big.Int
	AccumulatedBonds          *big.Int
}

func (s *storedTreasury) normalize() *storedTreasury {
	if s.AccumulatedSeigniorage == nil {
		s.AccumulatedSeigniorage = big.NewInt(0)
	}
	if s.CashToBondConversionLimit == nil {
		s.CashToBondConversionLimit = big.NewInt(0)
	}
	if s.AccumulatedBonds == nil {
		s.AccumulatedBonds = big.NewInt(0)
	}
	return s
}

// Status is a read-only snapshot of the treasury for the RPC surface.
type Status struct {
	Phase                     Phase
	Epoch                     uint64
	NextEpochPoint            uint64
	Reserve                   *big.Int
	CashToBondConversionLimit *big.Int
	AccumulatedBonds          *big.Int
	CirculatingSupply         *big.Int
}

// Treasury is the policy engine. All addresses and parameters are fixed at
// construction; only the lifecycle phase, epoch counter and accounting
// reserves live in ledger state.
type Treasury struct {
	address    types.Address
	owner      types.Address
	cash       *token.Token
	bond       *token.Token
	share      *token.Token
	oracle     oracle.Oracle
	fund       types.Address
	boardrooms []BoardroomSink
	params     Params
	nowFn      func() int64
}

// New constructs a treasury. address is its ledger account, owner the only
// caller allowed to migrate. boardrooms are funded in slice order using the
// rates configured under their names.
func New(address, owner types.Address, cash, bond, share *token.Token, orc oracle.Oracle, fund types.Address, boardrooms []BoardroomSink, params Params) (*Treasury, error) {
	if orc == nil {
		return nil, fmt.Errorf("treasury: oracle must not be nil")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	for _, room := range boardrooms {
		if _, ok := params.BoardroomRates[room.Name()]; !ok {
			return nil, fmt.Errorf("treasury: no allocation rate for boardroom %q", room.Name())
		}
	}
	return &Treasury{
		address:    address,
		owner:      owner,
		cash:       cash,
		bond:       bond,
		share:      share,
		oracle:     orc,
		fund:       fund,
		boardrooms: boardrooms,
		params:     params,
		nowFn:      func() int64 { return time.Now().Unix() },
	}, nil
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (t *Treasury) SetNowFunc(now func() int64) {
	if now == nil {
		t.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	t.nowFn = now
}

// Address returns the treasury's ledger account.
func (t *Treasury) Address() types.Address { return t.address }

// Initialize performs the one-time activation: it verifies the treasury holds
// the operator role on cash, bond and every boardroom, pulls its pre-existing
// cash balance into the bond reserve, and opens the active phase.
func (t *Treasury) Initialize(st State, caller types.Address) error {
	stored, err := t.load(st)
	if err != nil {
		return err
	}
	switch Phase(stored.Phase) {
	case PhaseMigrated:
		return ErrMigrated
	case PhaseActive:
		return ErrInitialized
	}
	if err := t.checkPermissions(st); err != nil {
		return err
	}
	balance, err := t.cash.BalanceOf(st, t.address)
	if err != nil {
		return err
	}
	stored.AccumulatedSeigniorage = balance
	stored.Phase = uint64(PhaseActive)
	if err := t.store(st, stored); err != nil {
		return err
	}
	st.AppendEvent(events.Initialized{Executor: caller, At: t.nowFn()}.Event())
	return nil
}

// Migrate hands every governed balance and role to a successor treasury and
// closes this one permanently. Owner only.
func (t *Treasury) Migrate(st State, caller, newTreasury types.Address) error {
	stored, err := t.load(st)
	if err != nil {
		return err
	}
	if Phase(stored.Phase) == PhaseMigrated {
		return ErrMigrated
	}
	if caller != t.owner {
		return ErrNeedMorePermission
	}
	if err := t.checkPermissions(st); err != nil {
		return err
	}
	for _, tok := range []*token.Token{t.cash, t.bond} {
		if err := t.handOver(st, tok, newTreasury); err != nil {
			return err
		}
	}
	// The share token is not operator-governed by the treasury; only its
	// balance moves.
	if err := t.sweep(st, t.share, newTreasury); err != nil {
		return err
	}
	stored.Phase = uint64(PhaseMigrated)
	stored.AccumulatedSeigniorage = big.NewInt(0)
	if err := t.store(st, stored); err != nil {
		return err
	}
	st.AppendEvent(events.Migration{NewTreasury: newTreasury}.Event())
	return nil
}

// AllocateSeigniorage advances the epoch and runs the policy waterfall for
// it. Permissionless; callable once per epoch boundary crossing.
func (t *Treasury) AllocateSeigniorage(st State, caller types.Address) error {
	stored, err := t.activeState(st)
	if err != nil {
		return err
	}
	now := t.now()
	if now < t.params.StartTime {
		return ErrEpochNotStarted
	}
	if now < t.nextEpochPoint(stored.Epoch) {
		return ErrEpochNotAllowed
	}
	stored.Epoch++
	price, err := t.oracle.GetPrice()
	if err != nil {
		return err
	}
	target := t.params.TargetPrice
	switch price.Cmp(target) {
	case 0:
		return t.store(st, stored)
	case -1:
		return t.contract(st, stored, price)
	default:
		return t.expand(st, stored, price)
	}
}

// contract opens the epoch's bond-purchase window: the conversion limit is
// sized to the de-peg depth and the per-epoch purchase counter resets.
func (t *Treasury) contract(st State, stored *storedTreasury, price *big.Int) error {
	circulating, err := t.circulatingSupply(st)
	if err != nil {
		return err
	}
	limit := new(big.Int).Sub(t.params.TargetPrice, price)
	limit.Mul(limit, circulating)
	limit.Quo(limit, t.params.TargetPrice)
	stored.CashToBondConversionLimit = limit
	stored.AccumulatedBonds = big.NewInt(0)
	return t.store(st, stored)
}

// expand mints seigniorage proportional to the capped premium over peg and
// waterfalls it: fund first, then the bond reserve, then the boardrooms.
// Integer-division remainders stay on the treasury's cash balance.
func (t *Treasury) expand(st State, stored *storedTreasury, price *big.Int) error {
	circulating, err := t.circulatingSupply(st)
	if err != nil {
		return err
	}
	precision := boardroom.Precision()
	pct := new(big.Int).Sub(price, t.params.TargetPrice)
	pct.Mul(pct, precision)
	pct.Quo(pct, t.params.TargetPrice)
	if pct.Cmp(t.params.MaxSupplyIncreasePerEpoch) > 0 {
		pct.Set(t.params.MaxSupplyIncreasePerEpoch)
	}
	seigniorage := new(big.Int).Mul(circulating, pct)
	seigniorage.Quo(seigniorage, precision)
	if seigniorage.Sign() <= 0 {
		return t.store(st, stored)
	}
	if err := t.cash.Mint(st, t.address, t.address, seigniorage); err != nil {
		return err
	}
	st.AppendEvent(events.SeigniorageMinted{Amount: seigniorage}.Event())

	now := t.nowFn()
	remaining := new(big.Int).Set(seigniorage)
	fundReserve := percentage(seigniorage, t.params.FundAllocationRate)
	if fundReserve.Sign() > 0 && t.fund != (types.Address{}) {
		if err := t.cash.Transfer(st, t.address, t.fund, fundReserve); err != nil {
			return err
		}
		remaining.Sub(remaining, fundReserve)
		st.AppendEvent(events.PoolFunded{Pool: t.fund, Timestamp: now, Amount: fundReserve}.Event())
	}

	bondReserve := percentage(remaining, t.params.BondSeigniorageRate)
	outstanding, err := t.bond.TotalSupply(st)
	if err != nil {
		return err
	}
	owed := outstanding.Sub(outstanding, stored.AccumulatedSeigniorage)
	if owed.Sign() < 0 {
		owed.SetInt64(0)
	}
	if bondReserve.Cmp(owed) > 0 {
		bondReserve = owed
	}
	if bondReserve.Sign() > 0 {
		stored.AccumulatedSeigniorage = new(big.Int).Add(stored.AccumulatedSeigniorage, bondReserve)
		remaining.Sub(remaining, bondReserve)
		st.AppendEvent(events.TreasuryFunded{Timestamp: now, Amount: bondReserve}.Event())
	}

	base := new(big.Int).Set(remaining)
	for _, room := range t.boardrooms {
		amount := percentage(base, t.params.BoardroomRates[room.Name()])
		if amount.Sign() <= 0 {
			continue
		}
		if err := room.AllocateSeigniorage(st, t.address, amount); err != nil {
			return err
		}
		st.AppendEvent(events.BoardroomFunded{Boardroom: room.Name(), Timestamp: now, Amount: amount}.Event())
	}
	return t.store(st, stored)
}

// BuyBonds burns cash from the caller and mints bonds at the de-peg discount,
// bounded by the epoch's conversion limit. price is the caller's view of the
// oracle price at submission time.
func (t *Treasury) BuyBonds(st State, caller types.Address, amount, price *big.Int) error {
	stored, err := t.activeState(st)
	if err != nil {
		return err
	}
	if t.now() < t.params.StartTime {
		return ErrEpochNotStarted
	}
	amt := new(big.Int).Set(amount)
	if amt.Sign() <= 0 {
		return ErrZeroBondPurchase
	}
	current, err := t.oracle.GetPrice()
	if err != nil {
		return err
	}
	if price == nil || current.Cmp(price) != 0 {
		return ErrPriceMoved
	}
	if current.Cmp(t.params.TargetPrice) >= 0 || current.Cmp(t.params.BondPurchasePrice) > 0 {
		return ErrPriceNotEligible
	}
	accumulated := new(big.Int).Add(stored.AccumulatedBonds, amt)
	if accumulated.Cmp(stored.CashToBondConversionLimit) > 0 {
		return ErrNoMoreBonds
	}
	bonds := new(big.Int).Mul(amt, t.params.TargetPrice)
	bonds.Quo(bonds, current)
	if err := t.cash.BurnFrom(st, t.address, caller, amt); err != nil {
		return err
	}
	if err := t.bond.Mint(st, t.address, caller, bonds); err != nil {
		return err
	}
	stored.AccumulatedBonds = accumulated
	if err := t.store(st, stored); err != nil {
		return err
	}
	st.AppendEvent(events.BoughtBonds{Who: caller, Amount: amt, Bonds: bonds}.Event())
	return nil
}

// RedeemBonds burns bonds from the caller and pays cash 1:1 out of the
// treasury's reserve, once the price has recovered past the redemption
// ceiling. With feeInShare a stability fee is burned from the caller's share
// balance first.
func (t *Treasury) RedeemBonds(st State, caller types.Address, amount *big.Int, feeInShare bool) error {
	stored, err := t.activeState(st)
	if err != nil {
		return err
	}
	if t.now() < t.params.StartTime {
		return ErrEpochNotStarted
	}
	amt := new(big.Int).Set(amount)
	if amt.Sign() <= 0 {
		return ErrZeroBondRedemption
	}
	price, err := t.oracle.GetPrice()
	if err != nil {
		return err
	}
	if price.Cmp(t.params.BondRedemptionPrice) < 0 {
		return ErrPriceBelowCeiling
	}
	if stored.AccumulatedSeigniorage.Cmp(amt) < 0 {
		return ErrNotEnoughBudget
	}
	fee := big.NewInt(0)
	if feeInShare && t.params.StabilityFeeRate > 0 {
		fee = percentage(amt, t.params.StabilityFeeRate)
		if fee.Sign() > 0 {
			if err := t.share.BurnFrom(st, t.address, caller, fee); err != nil {
				return err
			}
		}
	}
	if err := t.bond.BurnFrom(st, t.address, caller, amt); err != nil {
		return err
	}
	if err := t.cash.Transfer(st, t.address, caller, amt); err != nil {
		return err
	}
	stored.AccumulatedSeigniorage = new(big.Int).Sub(stored.AccumulatedSeigniorage, amt)
	if err := t.store(st, stored); err != nil {
		return err
	}
	st.AppendEvent(events.RedeemedBonds{Who: caller, Amount: amt, FeeInShare: feeInShare, Fee: fee}.Event())
	return nil
}

// Reserve returns the cash set aside for bond redemption.
func (t *Treasury) Reserve(st State) (*big.Int, error) {
	stored, err := t.load(st)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(stored.AccumulatedSeigniorage), nil
}

// Epoch returns the number of completed allocations.
func (t *Treasury) Epoch(st State) (uint64, error) {
	stored, err := t.load(st)
	if err != nil {
		return 0, err
	}
	return stored.Epoch, nil
}

// NextEpochPoint returns the unix second the next allocation unlocks at.
func (t *Treasury) NextEpochPoint(st State) (uint64, error) {
	stored, err := t.load(st)
	if err != nil {
		return 0, err
	}
	return t.nextEpochPoint(stored.Epoch), nil
}

// GetStatus assembles the read-only treasury snapshot.
func (t *Treasury) GetStatus(st State) (*Status, error) {
	stored, err := t.load(st)
	if err != nil {
		return nil, err
	}
	circulating, err := t.circulatingSupply(st)
	if err != nil {
		return nil, err
	}
	return &Status{
		Phase:                     Phase(stored.Phase),
		Epoch:                     stored.Epoch,
		NextEpochPoint:            t.nextEpochPoint(stored.Epoch),
		Reserve:                   new(big.Int).Set(stored.AccumulatedSeigniorage),
		CashToBondConversionLimit: new(big.Int).Set(stored.CashToBondConversionLimit),
		AccumulatedBonds:          new(big.Int).Set(stored.AccumulatedBonds),
		CirculatingSupply:         circulating,
	}, nil
}

// CirculatingSupply returns cash supply excluding the treasury's own balance.
func (t *Treasury) CirculatingSupply(st State) (*big.Int, error) {
	return t.circulatingSupply(st)
}

func (t *Treasury) circulatingSupply(st State) (*big.Int, error) {
	total, err := t.cash.TotalSupply(st)
	if err != nil {
		return nil, err
	}
	held, err := t.cash.BalanceOf(st, t.address)
	if err != nil {
		return nil, err
	}
	circulating := total.Sub(total, held)
	if circulating.Sign() < 0 {
		circulating.SetInt64(0)
	}
	return circulating, nil
}

// checkPermissions verifies the treasury holds the operator role everywhere
// the waterfall needs it.
func (t *Treasury) checkPermissions(st State) error {
	for _, tok := range []*token.Token{t.cash, t.bond} {
		ok, err := tok.IsOperator(st, t.address)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNeedMorePermission
		}
	}
	for _, room := range t.boardrooms {
		operator, err := room.Operator(st)
		if err != nil {
			return err
		}
		if operator != t.address {
			return ErrNeedMorePermission
		}
	}
	return nil
}

// handOver moves the treasury's balance of tok plus its operator and owner
// roles to the successor.
func (t *Treasury) handOver(st State, tok *token.Token, newTreasury types.Address) error {
	if err := t.sweep(st, tok, newTreasury); err != nil {
		return err
	}
	if err := tok.TransferOperator(st, t.address, newTreasury); err != nil {
		return err
	}
	return tok.TransferOwnership(st, t.address, newTreasury)
}

func (t *Treasury) sweep(st State, tok *token.Token, to types.Address) error {
	balance, err := tok.BalanceOf(st, t.address)
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		return nil
	}
	return tok.Transfer(st, t.address, to, balance)
}

// activeState loads the stored record and rejects calls outside the active
// phase.
func (t *Treasury) activeState(st State) (*storedTreasury, error) {
	stored, err := t.load(st)
	if err != nil {
		return nil, err
	}
	switch Phase(stored.Phase) {
	case PhaseMigrated:
		return nil, ErrMigrated
	case PhaseUninitialized:
		return nil, ErrNotInitialized
	}
	return stored, nil
}

func (t *Treasury) nextEpochPoint(epoch uint64) uint64 {
	return t.params.StartTime + epoch*t.params.Period
}

func (t *Treasury) now() uint64 {
	if now := t.nowFn(); now > 0 {
		return uint64(now)
	}
	return 0
}

func (t *Treasury) load(st State) (*storedTreasury, error) {
	stored := new(storedTreasury)
	if _, err := st.KVGet(treasuryKey, stored); err != nil {
		return nil, err
	}
	return stored.normalize(), nil
}

func (t *Treasury) store(st State, stored *storedTreasury) error {
	return st.KVPut(treasuryKey, stored)
}

var treasuryKey = []byte("treasury/state")

// percentage returns amount * rate / 100.
func percentage(amount *big.Int, rate uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(rate))
	return out.Quo(out, big.NewInt(100))
}
