package treasury

import "errors"

// Revert reasons preserved verbatim from the historical protocol; callers and
// tests match on these strings.
var (
	ErrMigrated           = errors.New("Treasury: migrated")
	ErrInitialized        = errors.New("Treasury: initialized")
	ErrNotInitialized     = errors.New("Treasury: not initialized")
	ErrNeedMorePermission = errors.New("Treasury: need more permission")
	ErrEpochNotStarted    = errors.New("Epoch: not started yet")
	ErrEpochNotAllowed    = errors.New("Epoch: not allowed")
	ErrPriceMoved         = errors.New("Treasury: cash price moved")
	ErrPriceNotEligible   = errors.New("Treasury: cash price not eligible")
	ErrPriceBelowCeiling  = errors.New("Treasury: cashPrice less than ceiling")
	ErrNoMoreBonds        = errors.New("Treasury: no more bonds")
	ErrNotEnoughBudget    = errors.New("Treasury: treasury has not enough budget")
	ErrZeroBondPurchase   = errors.New("Treasury: cannot purchase bonds with zero amount")
	ErrZeroBondRedemption = errors.New("Treasury: cannot redeem bonds with zero amount")
)
