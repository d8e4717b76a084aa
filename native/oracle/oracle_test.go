package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"arthchain/core/types"
)

func TestGetPriceBeforeSeed(t *testing.T) {
	feed := NewSimpleOracle(types.Address{0x01}, 0)
	if _, err := feed.GetPrice(); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("err = %v, want %v", err, ErrNoPrice)
	}
}

func TestSetPriceOwnerOnly(t *testing.T) {
	owner := types.Address{0x01}
	feed := NewSimpleOracle(owner, 0)
	if err := feed.SetPrice(types.Address{0x02}, big.NewInt(1)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want %v", err, ErrNotOwner)
	}
	if err := feed.SetPrice(owner, big.NewInt(0)); err == nil {
		t.Fatal("zero price accepted")
	}
	if err := feed.SetPrice(owner, big.NewInt(95)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	price, err := feed.GetPrice()
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Cmp(big.NewInt(95)) != 0 {
		t.Fatalf("price = %s, want 95", price)
	}
}

func TestStaleness(t *testing.T) {
	owner := types.Address{0x01}
	feed := NewSimpleOracle(owner, time.Hour)
	now := int64(1_000_000)
	feed.SetNowFunc(func() int64 { return now })
	if err := feed.SetPrice(owner, big.NewInt(100)); err != nil {
		t.Fatalf("set price: %v", err)
	}

	now += 3600
	if _, err := feed.GetPrice(); err != nil {
		t.Fatalf("price at window edge: %v", err)
	}
	now++
	if _, err := feed.GetPrice(); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("err = %v, want %v", err, ErrStalePrice)
	}
}
