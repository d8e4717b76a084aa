package events

import (
	"math/big"

	"arthchain/core/types"
)

// Event type identifiers for the staking surfaces (boardrooms and vault).
const (
	TypeBonded      = "Bonded"
	TypeStaked      = "Staked"
	TypeUnbonded    = "Unbonded"
	TypeWithdrawn   = "Withdrawn"
	TypeRewardAdded = "RewardAdded"
	TypeRewardPaid  = "RewardPaid"
)

// Bonded captures a stake deposit into a boardroom or vault.
type Bonded struct {
	Who    types.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (Bonded) EventType() string { return TypeBonded }

// Event converts the structured payload into a broadcastable event.
func (e Bonded) Event() *types.Event {
	return &types.Event{Type: TypeBonded, Attributes: map[string]string{
		"who":    formatAddress(e.Who),
		"amount": formatAmount(e.Amount),
	}}
}

// Staked aliases the deposit event for boardrooms that use staking vocabulary.
type Staked struct {
	Who    types.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Event converts the structured payload into a broadcastable event.
func (e Staked) Event() *types.Event {
	return &types.Event{Type: TypeStaked, Attributes: map[string]string{
		"who":    formatAddress(e.Who),
		"amount": formatAmount(e.Amount),
	}}
}

// Unbonded captures the start of an unlock timer for previously bonded stake.
type Unbonded struct {
	Who    types.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (Unbonded) EventType() string { return TypeUnbonded }

// Event converts the structured payload into a broadcastable event.
func (e Unbonded) Event() *types.Event {
	return &types.Event{Type: TypeUnbonded, Attributes: map[string]string{
		"who":    formatAddress(e.Who),
		"amount": formatAmount(e.Amount),
	}}
}

// Withdrawn captures the release of unlocked stake back to its owner.
type Withdrawn struct {
	Who    types.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (Withdrawn) EventType() string { return TypeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e Withdrawn) Event() *types.Event {
	return &types.Event{Type: TypeWithdrawn, Attributes: map[string]string{
		"who":    formatAddress(e.Who),
		"amount": formatAmount(e.Amount),
	}}
}

// RewardAdded captures a reward allocation pulled into a boardroom.
type RewardAdded struct {
	Who    types.Address
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (RewardAdded) EventType() string { return TypeRewardAdded }

// Event converts the structured payload into a broadcastable event.
func (e RewardAdded) Event() *types.Event {
	return &types.Event{Type: TypeRewardAdded, Attributes: map[string]string{
		"who":    formatAddress(e.Who),
		"amount": formatAmount(e.Amount),
	}}
}

// RewardPaid captures a reward claim paid out to a director.
type RewardPaid struct {
	Boardroom string
	Who       types.Address
	Amount    *big.Int
}

// EventType satisfies the Event interface.
func (RewardPaid) EventType() string { return TypeRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e RewardPaid) Event() *types.Event {
	return &types.Event{Type: TypeRewardPaid, Attributes: map[string]string{
		"boardroom": e.Boardroom,
		"who":       formatAddress(e.Who),
		"amount":    formatAmount(e.Amount),
	}}
}
