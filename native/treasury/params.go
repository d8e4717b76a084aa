package treasury

import (
	"fmt"
	"math/big"
)

// Params are the immutable policy parameters fixed at construction. Prices
// and rate caps are 1e18-scaled; allocation rates are whole percentages.
type Params struct {
	// StartTime is the unix second the first epoch opens at.
	StartTime uint64
	// Period is the epoch length in seconds.
	Period uint64
	// TargetPrice is the peg, normally 1e18.
	TargetPrice *big.Int
	// BondPurchasePrice is the price at or below which bonds may be bought.
	BondPurchasePrice *big.Int
	// BondRedemptionPrice is the price at or above which bonds may be redeemed.
	BondRedemptionPrice *big.Int
	// MaxSupplyIncreasePerEpoch caps the expansion percentage, 1e18-scaled.
	MaxSupplyIncreasePerEpoch *big.Int
	// FundAllocationRate is the percentage of seigniorage sent to the fund.
	FundAllocationRate uint64
	// BondSeigniorageRate is the percentage of post-fund seigniorage retained
	// for bond redemption.
	BondSeigniorageRate uint64
	// StabilityFeeRate is the percentage of a redemption charged in the share
	// token. Zero disables the fee.
	StabilityFeeRate uint64
	// BoardroomRates maps boardroom sink names to their percentage of the
	// post-bond seigniorage remainder.
	BoardroomRates map[string]uint64
}

// Validate checks internal consistency of the parameter set.
func (p Params) Validate() error {
	if p.Period == 0 {
		return fmt.Errorf("treasury: epoch period must be positive")
	}
	if p.TargetPrice == nil || p.TargetPrice.Sign() <= 0 {
		return fmt.Errorf("treasury: target price must be positive")
	}
	if p.BondPurchasePrice == nil || p.BondPurchasePrice.Sign() <= 0 {
		return fmt.Errorf("treasury: bond purchase price must be positive")
	}
	if p.BondRedemptionPrice == nil || p.BondRedemptionPrice.Cmp(p.TargetPrice) < 0 {
		return fmt.Errorf("treasury: bond redemption price must be at least the target price")
	}
	if p.MaxSupplyIncreasePerEpoch == nil || p.MaxSupplyIncreasePerEpoch.Sign() < 0 {
		return fmt.Errorf("treasury: max supply increase must be non-negative")
	}
	if p.FundAllocationRate > 100 || p.BondSeigniorageRate > 100 || p.StabilityFeeRate > 100 {
		return fmt.Errorf("treasury: rates are whole percentages at most 100")
	}
	total := uint64(0)
	for name, rate := range p.BoardroomRates {
		if rate > 100 {
			return fmt.Errorf("treasury: boardroom %q rate exceeds 100", name)
		}
		total += rate
	}
	if total > 100 {
		return fmt.Errorf("treasury: boardroom rates sum to more than 100")
	}
	return nil
}
