package types

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Address identifies an account within the ledger.
type Address [20]byte

// String renders the address as 0x-prefixed hex.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// ParseAddress decodes an optionally 0x-prefixed hex address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("types: invalid address %q: %w", s, err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("types: invalid address length %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// Account holds the fungible balances tracked per address. Every protocol
// token (cash, bond, share) lives on the same record so a transfer touches a
// single storage slot per party.
type Account struct {
	Nonce        uint64   `json:"nonce"`
	BalanceCash  *big.Int `json:"balanceCash"`
	BalanceBond  *big.Int `json:"balanceBond"`
	BalanceShare *big.Int `json:"balanceShare"`
}

// NewAccount returns a zero-balance account with all amounts initialised.
func NewAccount() *Account {
	return &Account{
		BalanceCash:  big.NewInt(0),
		BalanceBond:  big.NewInt(0),
		BalanceShare: big.NewInt(0),
	}
}

// Normalize replaces nil balances with zero so callers can do arithmetic
// without nil checks.
func (a *Account) Normalize() *Account {
	if a == nil {
		return NewAccount()
	}
	if a.BalanceCash == nil {
		a.BalanceCash = big.NewInt(0)
	}
	if a.BalanceBond == nil {
		a.BalanceBond = big.NewInt(0)
	}
	if a.BalanceShare == nil {
		a.BalanceShare = big.NewInt(0)
	}
	return a
}
