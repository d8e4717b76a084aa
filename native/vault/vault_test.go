package vault

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"arthchain/core/state"
	"arthchain/core/types"
	"arthchain/native/boardroom"
	"arthchain/native/token"
	"arthchain/storage"
)

var (
	ownerAddr    = types.Address{0xaa}
	operatorAddr = types.Address{0xbb}
	vaultAddr    = types.Address{0xcc}
	arthRoomAddr = types.Address{0xcd}
	mahaRoomAddr = types.Address{0xce}
	alice        = types.Address{0x01}
	bob          = types.Address{0x02}
)

type fixture struct {
	t        *testing.T
	manager  *state.Manager
	share    *token.Token
	cash     *token.Token
	vault    *Vault
	arthRoom *boardroom.VaultBoardroom
	mahaRoom *boardroom.VaultBoardroom
	now      int64
}

func newFixture(t *testing.T, lockPeriod time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		manager: state.NewManager(storage.NewMemDB()),
		share:   token.MustNew(token.SymbolShare),
		cash:    token.MustNew(token.SymbolCash),
		now:     1_000_000,
	}
	f.vault = New("maha", f.share, vaultAddr, lockPeriod)
	f.vault.SetNowFunc(func() int64 { return f.now })
	// Two reward boardrooms fed by one locked balance: cash rewards in one,
	// share rewards in the other.
	f.arthRoom = boardroom.NewVault("arth", f.cash, arthRoomAddr, 0)
	f.mahaRoom = boardroom.NewVault("maha-liquidity", f.share, mahaRoomAddr, 0)
	f.apply(func(txn *state.Txn) error {
		if err := f.share.InitGovernance(txn, ownerAddr, operatorAddr); err != nil {
			return err
		}
		if err := f.cash.InitGovernance(txn, ownerAddr, operatorAddr); err != nil {
			return err
		}
		if err := f.share.Mint(txn, operatorAddr, alice, big.NewInt(10_000)); err != nil {
			return err
		}
		if err := f.share.Mint(txn, operatorAddr, bob, big.NewInt(10_000)); err != nil {
			return err
		}
		if err := f.share.Mint(txn, operatorAddr, operatorAddr, big.NewInt(100_000)); err != nil {
			return err
		}
		if err := f.cash.Mint(txn, operatorAddr, operatorAddr, big.NewInt(100_000)); err != nil {
			return err
		}
		if err := f.arthRoom.Init(txn, ownerAddr, operatorAddr); err != nil {
			return err
		}
		if err := f.mahaRoom.Init(txn, ownerAddr, operatorAddr); err != nil {
			return err
		}
		if err := f.vault.Init(txn, ownerAddr); err != nil {
			return err
		}
		return f.vault.SetBoardrooms(txn, ownerAddr, f.arthRoom, f.mahaRoom)
	})
	return f
}

func (f *fixture) apply(fn func(*state.Txn) error) {
	f.t.Helper()
	if err := f.manager.Apply(fn); err != nil {
		f.t.Fatalf("apply: %v", err)
	}
}

func (f *fixture) bond(who types.Address, amount int64) {
	f.t.Helper()
	f.apply(func(txn *state.Txn) error {
		return f.vault.Bond(txn, who, big.NewInt(amount))
	})
}

func wantInt(t *testing.T, got *big.Int, want int64, what string) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s = %s, want %d", what, got, want)
	}
}

func TestBondCustodyAndBalances(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.bond(alice, 1_000)

	if err := f.manager.View(func(txn *state.Txn) error {
		held, err := f.share.BalanceOf(txn, vaultAddr)
		if err != nil {
			return err
		}
		wantInt(t, held, 1_000, "vault custody")
		balance, err := f.vault.BalanceOf(txn, alice)
		if err != nil {
			return err
		}
		wantInt(t, balance, 1_000, "alice balance")
		earning, err := f.vault.BalanceWithoutBonded(txn, alice)
		if err != nil {
			return err
		}
		wantInt(t, earning, 1_000, "alice earning balance")
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestUnbondExcludesBalanceFromRewards(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.bond(alice, 1_000)
	f.apply(func(txn *state.Txn) error {
		return f.vault.Unbond(txn, alice, big.NewInt(400))
	})
	if err := f.manager.View(func(txn *state.Txn) error {
		balance, err := f.vault.BalanceOf(txn, alice)
		if err != nil {
			return err
		}
		wantInt(t, balance, 1_000, "total balance")
		earning, err := f.vault.BalanceWithoutBonded(txn, alice)
		if err != nil {
			return err
		}
		wantInt(t, earning, 600, "earning balance")
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestWithdrawLockLifecycle(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.bond(alice, 1_000)

	if err := f.manager.Apply(func(txn *state.Txn) error {
		_, err := f.vault.Withdraw(txn, alice)
		return err
	}); !errors.Is(err, ErrNoUnbondRequest) {
		t.Fatalf("withdraw without unbond: %v, want %v", err, ErrNoUnbondRequest)
	}

	f.apply(func(txn *state.Txn) error {
		return f.vault.Unbond(txn, alice, big.NewInt(1_000))
	})
	if err := f.manager.Apply(func(txn *state.Txn) error {
		_, err := f.vault.Withdraw(txn, alice)
		return err
	}); !errors.Is(err, ErrStillLocked) {
		t.Fatalf("withdraw inside lock: %v, want %v", err, ErrStillLocked)
	}

	f.now += 3600
	f.apply(func(txn *state.Txn) error {
		released, err := f.vault.Withdraw(txn, alice)
		if err != nil {
			return err
		}
		wantInt(t, released, 1_000, "released")
		return nil
	})

	// A second withdrawal without a fresh unbond must fail.
	if err := f.manager.Apply(func(txn *state.Txn) error {
		_, err := f.vault.Withdraw(txn, alice)
		return err
	}); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("second withdraw: %v, want %v", err, ErrMemberNotFound)
	}
}

func TestOneBalanceFeedsTwoBoardrooms(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.bond(alice, 100)
	f.bond(bob, 300)

	// Close the bonding epoch, then a paying epoch, in both reward
	// currencies.
	for i := 0; i < 2; i++ {
		f.apply(func(txn *state.Txn) error {
			if err := f.arthRoom.AllocateSeigniorage(txn, operatorAddr, big.NewInt(4_000)); err != nil {
				return err
			}
			return f.mahaRoom.AllocateSeigniorage(txn, operatorAddr, big.NewInt(8_000))
		})
	}

	if err := f.manager.View(func(txn *state.Txn) error {
		arthEarned, err := f.arthRoom.Earned(txn, alice)
		if err != nil {
			return err
		}
		wantInt(t, arthEarned, 1_000, "alice cash reward")
		mahaEarned, err := f.mahaRoom.Earned(txn, alice)
		if err != nil {
			return err
		}
		wantInt(t, mahaEarned, 2_000, "alice share reward")
		bobArth, err := f.arthRoom.Earned(txn, bob)
		if err != nil {
			return err
		}
		wantInt(t, bobArth, 3_000, "bob cash reward")
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSetBoardroomsGuards(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.manager.Apply(func(txn *state.Txn) error {
		return f.vault.SetBoardrooms(txn, ownerAddr, f.arthRoom)
	}); !errors.Is(err, ErrBoardroomsSet) {
		t.Fatalf("second set: %v, want %v", err, ErrBoardroomsSet)
	}

	fresh := New("other", f.share, types.Address{0xdd}, time.Hour)
	f.apply(func(txn *state.Txn) error {
		return fresh.Init(txn, ownerAddr)
	})
	if err := f.manager.Apply(func(txn *state.Txn) error {
		return fresh.SetBoardrooms(txn, alice, f.arthRoom)
	}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("set by stranger: %v, want %v", err, ErrNotOwner)
	}
	if err := f.manager.Apply(func(txn *state.Txn) error {
		return fresh.SetBoardrooms(txn, ownerAddr, f.arthRoom, f.mahaRoom, f.arthRoom)
	}); !errors.Is(err, ErrTooManyBoardrooms) {
		t.Fatalf("three boardrooms: %v, want %v", err, ErrTooManyBoardrooms)
	}
}

func TestDepositGuards(t *testing.T) {
	f := newFixture(t, time.Hour)
	if err := f.manager.Apply(func(txn *state.Txn) error {
		return f.vault.Bond(txn, alice, big.NewInt(0))
	}); !errors.Is(err, ErrZeroBond) {
		t.Fatalf("bond 0: %v, want %v", err, ErrZeroBond)
	}
	f.apply(func(txn *state.Txn) error {
		return f.vault.ToggleDeposits(txn, ownerAddr, true)
	})
	if err := f.manager.Apply(func(txn *state.Txn) error {
		return f.vault.Bond(txn, alice, big.NewInt(10))
	}); !errors.Is(err, ErrDepositsDisabled) {
		t.Fatalf("bond while disabled: %v, want %v", err, ErrDepositsDisabled)
	}
	f.apply(func(txn *state.Txn) error {
		return f.vault.ToggleDeposits(txn, ownerAddr, false)
	})
	f.bond(alice, 10)
}

func TestUnbondGuards(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.bond(alice, 100)
	if err := f.manager.Apply(func(txn *state.Txn) error {
		return f.vault.Unbond(txn, alice, big.NewInt(101))
	}); !errors.Is(err, ErrUnbondExceedsBalance) {
		t.Fatalf("oversized unbond: %v, want %v", err, ErrUnbondExceedsBalance)
	}
	if err := f.manager.Apply(func(txn *state.Txn) error {
		return f.vault.Unbond(txn, bob, big.NewInt(1))
	}); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("unbond by stranger: %v, want %v", err, ErrMemberNotFound)
	}
}
