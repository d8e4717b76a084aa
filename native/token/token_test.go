package token

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"arthchain/core/state"
	"arthchain/core/types"
	"arthchain/storage"
)

var (
	operator = types.Address{0x0a}
	owner    = types.Address{0x0b}
	alice    = types.Address{0x01}
	bob      = types.Address{0x02}
)

func newTestToken(t *testing.T) (*Token, *state.Manager) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	tok := MustNew(SymbolCash)
	if err := manager.Apply(func(txn *state.Txn) error {
		return tok.InitGovernance(txn, owner, operator)
	}); err != nil {
		t.Fatalf("init governance: %v", err)
	}
	return tok, manager
}

func apply(t *testing.T, manager *state.Manager, fn func(*state.Txn) error) {
	t.Helper()
	if err := manager.Apply(fn); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func balanceOf(t *testing.T, manager *state.Manager, tok *Token, addr types.Address) *big.Int {
	t.Helper()
	var out *big.Int
	if err := manager.View(func(txn *state.Txn) error {
		var err error
		out, err = tok.BalanceOf(txn, addr)
		return err
	}); err != nil {
		t.Fatalf("balance: %v", err)
	}
	return out
}

func TestMintRequiresOperator(t *testing.T) {
	tok, manager := newTestToken(t)
	err := manager.Apply(func(txn *state.Txn) error {
		return tok.Mint(txn, alice, alice, big.NewInt(100))
	})
	if !errors.Is(err, ErrNotOperator) {
		t.Fatalf("mint by non-operator: %v, want %v", err, ErrNotOperator)
	}
	apply(t, manager, func(txn *state.Txn) error {
		return tok.Mint(txn, operator, alice, big.NewInt(100))
	})
	if got := balanceOf(t, manager, tok, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance = %s, want 100", got)
	}
}

func TestTransferAndSupply(t *testing.T) {
	tok, manager := newTestToken(t)
	apply(t, manager, func(txn *state.Txn) error {
		return tok.Mint(txn, operator, alice, big.NewInt(1000))
	})
	apply(t, manager, func(txn *state.Txn) error {
		return tok.Transfer(txn, alice, bob, big.NewInt(400))
	})
	if got := balanceOf(t, manager, tok, alice); got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("alice = %s, want 600", got)
	}
	if got := balanceOf(t, manager, tok, bob); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("bob = %s, want 400", got)
	}

	err := manager.Apply(func(txn *state.Txn) error {
		return tok.Transfer(txn, bob, alice, big.NewInt(401))
	})
	if err == nil || !strings.Contains(err.Error(), "insufficient") {
		t.Fatalf("overdraft error = %v", err)
	}

	if err := manager.View(func(txn *state.Txn) error {
		supply, err := tok.TotalSupply(txn)
		if err != nil {
			return err
		}
		if supply.Cmp(big.NewInt(1000)) != 0 {
			t.Fatalf("supply = %s, want 1000", supply)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestBurnFromSpendsAllowance(t *testing.T) {
	tok, manager := newTestToken(t)
	apply(t, manager, func(txn *state.Txn) error {
		return tok.Mint(txn, operator, alice, big.NewInt(500))
	})

	err := manager.Apply(func(txn *state.Txn) error {
		return tok.BurnFrom(txn, bob, alice, big.NewInt(100))
	})
	if err == nil || !strings.Contains(err.Error(), "allowance") {
		t.Fatalf("burn without allowance: %v", err)
	}

	apply(t, manager, func(txn *state.Txn) error {
		return tok.Approve(txn, alice, bob, big.NewInt(150))
	})
	apply(t, manager, func(txn *state.Txn) error {
		return tok.BurnFrom(txn, bob, alice, big.NewInt(100))
	})
	if got := balanceOf(t, manager, tok, alice); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("alice = %s, want 400", got)
	}
	if err := manager.View(func(txn *state.Txn) error {
		remaining, err := tok.Allowance(txn, alice, bob)
		if err != nil {
			return err
		}
		if remaining.Cmp(big.NewInt(50)) != 0 {
			t.Fatalf("allowance = %s, want 50", remaining)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	// The operator bypasses allowances entirely.
	apply(t, manager, func(txn *state.Txn) error {
		return tok.BurnFrom(txn, operator, alice, big.NewInt(400))
	})
	if got := balanceOf(t, manager, tok, alice); got.Sign() != 0 {
		t.Fatalf("alice = %s, want 0", got)
	}
}

func TestGovernanceTransfers(t *testing.T) {
	tok, manager := newTestToken(t)
	err := manager.Apply(func(txn *state.Txn) error {
		return tok.TransferOperator(txn, alice, alice)
	})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("operator transfer by stranger: %v, want %v", err, ErrNotOwner)
	}
	apply(t, manager, func(txn *state.Txn) error {
		return tok.TransferOperator(txn, owner, bob)
	})
	apply(t, manager, func(txn *state.Txn) error {
		return tok.TransferOwnership(txn, owner, bob)
	})
	if err := manager.View(func(txn *state.Txn) error {
		op, err := tok.Operator(txn)
		if err != nil {
			return err
		}
		if op != bob {
			t.Fatalf("operator = %s, want %s", op, bob)
		}
		ownerNow, err := tok.Owner(txn)
		if err != nil {
			return err
		}
		if ownerNow != bob {
			t.Fatalf("owner = %s, want %s", ownerNow, bob)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestInitGovernanceIsFirstCallOnly(t *testing.T) {
	tok, manager := newTestToken(t)
	apply(t, manager, func(txn *state.Txn) error {
		return tok.InitGovernance(txn, alice, alice)
	})
	if err := manager.View(func(txn *state.Txn) error {
		op, err := tok.Operator(txn)
		if err != nil {
			return err
		}
		if op != operator {
			t.Fatalf("operator clobbered: %s", op)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}
