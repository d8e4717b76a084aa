package events

import (
	"math/big"
	"strconv"

	"arthchain/core/types"
)

// Event type identifiers for the treasury policy engine. The names match the
// historical on-chain event signatures so downstream indexers keep working.
const (
	TypeInitialized       = "Initialized"
	TypeMigration         = "Migration"
	TypeSeigniorageMinted = "SeigniorageMinted"
	TypeTreasuryFunded    = "TreasuryFunded"
	TypeBoardroomFunded   = "BoardroomFunded"
	TypePoolFunded        = "PoolFunded"
	TypeBoughtBonds       = "BoughtBonds"
	TypeRedeemedBonds     = "RedeemedBonds"
)

// Initialized is emitted once when the treasury performs its first reserve pull.
type Initialized struct {
	Executor types.Address
	At       int64
}

// EventType satisfies the Event interface.
func (Initialized) EventType() string { return TypeInitialized }

// Event converts the structured payload into a broadcastable event.
func (e Initialized) Event() *types.Event {
	return &types.Event{Type: TypeInitialized, Attributes: map[string]string{
		"executor": formatAddress(e.Executor),
		"at":       strconv.FormatInt(e.At, 10),
	}}
}

// Migration is emitted when the treasury hands its authority to a successor.
type Migration struct {
	NewTreasury types.Address
}

// EventType satisfies the Event interface.
func (Migration) EventType() string { return TypeMigration }

// Event converts the structured payload into a broadcastable event.
func (e Migration) Event() *types.Event {
	return &types.Event{Type: TypeMigration, Attributes: map[string]string{
		"newTreasury": formatAddress(e.NewTreasury),
	}}
}

// SeigniorageMinted captures expansion-phase cash creation.
type SeigniorageMinted struct {
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (SeigniorageMinted) EventType() string { return TypeSeigniorageMinted }

// Event converts the structured payload into a broadcastable event.
func (e SeigniorageMinted) Event() *types.Event {
	return &types.Event{Type: TypeSeigniorageMinted, Attributes: map[string]string{
		"amount": formatAmount(e.Amount),
	}}
}

// TreasuryFunded captures seigniorage retained in the treasury's bond reserve.
type TreasuryFunded struct {
	Timestamp int64
	Amount    *big.Int
}

// EventType satisfies the Event interface.
func (TreasuryFunded) EventType() string { return TypeTreasuryFunded }

// Event converts the structured payload into a broadcastable event.
func (e TreasuryFunded) Event() *types.Event {
	return &types.Event{Type: TypeTreasuryFunded, Attributes: map[string]string{
		"timestamp": strconv.FormatInt(e.Timestamp, 10),
		"amount":    formatAmount(e.Amount),
	}}
}

// BoardroomFunded captures a seigniorage push into a boardroom.
type BoardroomFunded struct {
	Boardroom string
	Timestamp int64
	Amount    *big.Int
}

// EventType satisfies the Event interface.
func (BoardroomFunded) EventType() string { return TypeBoardroomFunded }

// Event converts the structured payload into a broadcastable event.
func (e BoardroomFunded) Event() *types.Event {
	attrs := map[string]string{
		"timestamp": strconv.FormatInt(e.Timestamp, 10),
		"amount":    formatAmount(e.Amount),
	}
	if e.Boardroom != "" {
		attrs["boardroom"] = e.Boardroom
	}
	return &types.Event{Type: TypeBoardroomFunded, Attributes: attrs}
}

// PoolFunded captures a seigniorage transfer to an auxiliary fund.
type PoolFunded struct {
	Pool      types.Address
	Timestamp int64
	Amount    *big.Int
}

// EventType satisfies the Event interface.
func (PoolFunded) EventType() string { return TypePoolFunded }

// Event converts the structured payload into a broadcastable event.
func (e PoolFunded) Event() *types.Event {
	return &types.Event{Type: TypePoolFunded, Attributes: map[string]string{
		"pool":      formatAddress(e.Pool),
		"timestamp": strconv.FormatInt(e.Timestamp, 10),
		"amount":    formatAmount(e.Amount),
	}}
}

// BoughtBonds captures a contraction-phase cash-for-bond conversion.
type BoughtBonds struct {
	Who    types.Address
	Amount *big.Int
	Bonds  *big.Int
}

// EventType satisfies the Event interface.
func (BoughtBonds) EventType() string { return TypeBoughtBonds }

// Event converts the structured payload into a broadcastable event.
func (e BoughtBonds) Event() *types.Event {
	attrs := map[string]string{
		"who":    formatAddress(e.Who),
		"amount": formatAmount(e.Amount),
	}
	if e.Bonds != nil {
		attrs["bonds"] = e.Bonds.String()
	}
	return &types.Event{Type: TypeBoughtBonds, Attributes: attrs}
}

// RedeemedBonds captures a bond redemption paid from the treasury reserve.
type RedeemedBonds struct {
	Who        types.Address
	Amount     *big.Int
	FeeInShare bool
	Fee        *big.Int
}

// EventType satisfies the Event interface.
func (RedeemedBonds) EventType() string { return TypeRedeemedBonds }

// Event converts the structured payload into a broadcastable event.
func (e RedeemedBonds) Event() *types.Event {
	attrs := map[string]string{
		"who":        formatAddress(e.Who),
		"amount":     formatAmount(e.Amount),
		"feeInShare": strconv.FormatBool(e.FeeInShare),
	}
	if e.Fee != nil && e.Fee.Sign() > 0 {
		attrs["fee"] = e.Fee.String()
	}
	return &types.Event{Type: TypeRedeemedBonds, Attributes: attrs}
}
