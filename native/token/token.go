package token

import (
	"errors"
	"fmt"
	"math/big"

	"arthchain/core/types"
)

// Token symbols governed by the protocol. Cash is the pegged token, bond the
// contraction instrument, share the value-capture token.
const (
	SymbolCash  = "ARTH"
	SymbolBond  = "ARTHB"
	SymbolShare = "MAHA"
)

var (
	// ErrNotOperator preserves the historical revert reason for privileged calls.
	ErrNotOperator = errors.New("operator: caller is not the operator")
	// ErrNotOwner preserves the historical revert reason for admin calls.
	ErrNotOwner = errors.New("Ownable: caller is not the owner")

	errUnknownSymbol = errors.New("token: unknown symbol")
)

// State is the subset of ledger functionality the token engine needs.
type State interface {
	GetAccount(addr types.Address) (*types.Account, error)
	PutAccount(addr types.Address, account *types.Account) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type storedMeta struct {
	TotalSupply *big.Int
	Operator    types.Address
	Owner       types.Address
}

// Token is a governed fungible token. Balances live on the shared account
// records; supply and role metadata live in the token's own KV space.
type Token struct {
	symbol string
}

// New returns the engine for one of the protocol token symbols.
func New(symbol string) (*Token, error) {
	switch symbol {
	case SymbolCash, SymbolBond, SymbolShare:
		return &Token{symbol: symbol}, nil
	}
	return nil, fmt.Errorf("%w: %s", errUnknownSymbol, symbol)
}

// MustNew is a convenience for wiring code with compile-time symbols.
func MustNew(symbol string) *Token {
	t, err := New(symbol)
	if err != nil {
		panic(err)
	}
	return t
}

// Symbol returns the token's symbol.
func (t *Token) Symbol() string { return t.symbol }

// InitGovernance records the owner and operator for the token. It only takes
// effect on first call so genesis wiring cannot clobber a live deployment.
func (t *Token) InitGovernance(st State, owner, operator types.Address) error {
	meta, ok, err := t.meta(st)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	meta = &storedMeta{TotalSupply: big.NewInt(0), Owner: owner, Operator: operator}
	return t.putMeta(st, meta)
}

// Operator returns the current runtime-privileged address.
func (t *Token) Operator(st State) (types.Address, error) {
	meta, _, err := t.meta(st)
	if err != nil {
		return types.Address{}, err
	}
	return meta.Operator, nil
}

// Owner returns the current governance address.
func (t *Token) Owner(st State) (types.Address, error) {
	meta, _, err := t.meta(st)
	if err != nil {
		return types.Address{}, err
	}
	return meta.Owner, nil
}

// IsOperator reports whether addr holds the operator role.
func (t *Token) IsOperator(st State, addr types.Address) (bool, error) {
	operator, err := t.Operator(st)
	if err != nil {
		return false, err
	}
	return operator == addr, nil
}

// TransferOperator reassigns the operator role. Owner only.
func (t *Token) TransferOperator(st State, caller, next types.Address) error {
	meta, _, err := t.meta(st)
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrNotOwner
	}
	meta.Operator = next
	return t.putMeta(st, meta)
}

// TransferOwnership reassigns the owner role. Owner only.
func (t *Token) TransferOwnership(st State, caller, next types.Address) error {
	meta, _, err := t.meta(st)
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrNotOwner
	}
	meta.Owner = next
	return t.putMeta(st, meta)
}

// TotalSupply returns the token's total supply.
func (t *Token) TotalSupply(st State) (*big.Int, error) {
	meta, _, err := t.meta(st)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(meta.TotalSupply), nil
}

// BalanceOf returns addr's balance.
func (t *Token) BalanceOf(st State, addr types.Address) (*big.Int, error) {
	account, err := st.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(t.balance(account)), nil
}

// Mint creates amount new tokens for to. Operator only.
func (t *Token) Mint(st State, caller, to types.Address, amount *big.Int) error {
	meta, _, err := t.meta(st)
	if err != nil {
		return err
	}
	if caller != meta.Operator {
		return ErrNotOperator
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative mint amount")
	}
	account, err := st.GetAccount(to)
	if err != nil {
		return err
	}
	t.setBalance(account, new(big.Int).Add(t.balance(account), amt))
	if err := st.PutAccount(to, account); err != nil {
		return err
	}
	meta.TotalSupply = new(big.Int).Add(meta.TotalSupply, amt)
	return t.putMeta(st, meta)
}

// Burn destroys amount tokens held by the caller.
func (t *Token) Burn(st State, caller types.Address, amount *big.Int) error {
	return t.burn(st, caller, amount)
}

// BurnFrom destroys amount tokens held by from. The operator may burn without
// an allowance; everyone else spends their approval first.
func (t *Token) BurnFrom(st State, caller, from types.Address, amount *big.Int) error {
	meta, _, err := t.meta(st)
	if err != nil {
		return err
	}
	if caller != meta.Operator {
		if err := t.spendAllowance(st, from, caller, amount); err != nil {
			return err
		}
	}
	return t.burn(st, from, amount)
}

// Transfer moves amount from the caller to to.
func (t *Token) Transfer(st State, caller, to types.Address, amount *big.Int) error {
	return t.move(st, caller, to, amount)
}

// TransferFrom moves amount from from to to, spending caller's allowance.
func (t *Token) TransferFrom(st State, caller, from, to types.Address, amount *big.Int) error {
	if caller != from {
		if err := t.spendAllowance(st, from, caller, amount); err != nil {
			return err
		}
	}
	return t.move(st, from, to, amount)
}

// Approve sets spender's allowance over the caller's balance.
func (t *Token) Approve(st State, caller, spender types.Address, amount *big.Int) error {
	return st.KVPut(t.allowanceKey(caller, spender), cloneBigInt(amount))
}

// Allowance returns the remaining approval from owner to spender.
func (t *Token) Allowance(st State, owner, spender types.Address) (*big.Int, error) {
	allowance := new(big.Int)
	ok, err := st.KVGet(t.allowanceKey(owner, spender), allowance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return allowance, nil
}

func (t *Token) spendAllowance(st State, owner, spender types.Address, amount *big.Int) error {
	allowance, err := t.Allowance(st, owner, spender)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if allowance.Cmp(amt) < 0 {
		return fmt.Errorf("token: %s allowance exceeded", t.symbol)
	}
	return st.KVPut(t.allowanceKey(owner, spender), new(big.Int).Sub(allowance, amt))
}

func (t *Token) burn(st State, from types.Address, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative burn amount")
	}
	account, err := st.GetAccount(from)
	if err != nil {
		return err
	}
	balance := t.balance(account)
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("token: insufficient %s balance", t.symbol)
	}
	t.setBalance(account, new(big.Int).Sub(balance, amt))
	if err := st.PutAccount(from, account); err != nil {
		return err
	}
	meta, _, err := t.meta(st)
	if err != nil {
		return err
	}
	meta.TotalSupply = new(big.Int).Sub(meta.TotalSupply, amt)
	return t.putMeta(st, meta)
}

func (t *Token) move(st State, from, to types.Address, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative transfer amount")
	}
	if amt.Sign() == 0 || from == to {
		return nil
	}
	fromAcc, err := st.GetAccount(from)
	if err != nil {
		return err
	}
	balance := t.balance(fromAcc)
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("token: insufficient %s balance", t.symbol)
	}
	toAcc, err := st.GetAccount(to)
	if err != nil {
		return err
	}
	t.setBalance(fromAcc, new(big.Int).Sub(balance, amt))
	t.setBalance(toAcc, new(big.Int).Add(t.balance(toAcc), amt))
	if err := st.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return st.PutAccount(to, toAcc)
}

func (t *Token) balance(account *types.Account) *big.Int {
	account = account.Normalize()
	switch t.symbol {
	case SymbolCash:
		return account.BalanceCash
	case SymbolBond:
		return account.BalanceBond
	default:
		return account.BalanceShare
	}
}

func (t *Token) setBalance(account *types.Account, balance *big.Int) {
	switch t.symbol {
	case SymbolCash:
		account.BalanceCash = balance
	case SymbolBond:
		account.BalanceBond = balance
	default:
		account.BalanceShare = balance
	}
}

func (t *Token) meta(st State) (*storedMeta, bool, error) {
	meta := new(storedMeta)
	ok, err := st.KVGet(t.metaKey(), meta)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &storedMeta{TotalSupply: big.NewInt(0)}, false, nil
	}
	if meta.TotalSupply == nil {
		meta.TotalSupply = big.NewInt(0)
	}
	return meta, true, nil
}

func (t *Token) putMeta(st State, meta *storedMeta) error {
	return st.KVPut(t.metaKey(), meta)
}

func (t *Token) metaKey() []byte {
	return []byte("token/" + t.symbol)
}

func (t *Token) allowanceKey(owner, spender types.Address) []byte {
	key := make([]byte, 0, len("token//allowance/")+len(t.symbol)+2*len(owner))
	key = append(key, []byte("token/"+t.symbol+"/allowance/")...)
	key = append(key, owner[:]...)
	key = append(key, spender[:]...)
	return key
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
