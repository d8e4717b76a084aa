package events

import (
	"encoding/hex"
	"math/big"

	"arthchain/core/types"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr types.Address) string {
	return "0x" + hex.EncodeToString(addr[:])
}
