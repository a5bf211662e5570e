// Package token implements an in-process fungible ledger with a fixed
// maximum supply, role-gated minting, and approve/transfer-from semantics.
// It backs both the sale token and the stable payment asset.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"curvesale/core/types"
)

var (
	errInvalidAmount         = errors.New("token ledger: amount must be positive")
	errMaxSupplyExceeded     = errors.New("token ledger: max supply exceeded")
	errNotMinter             = errors.New("token ledger: caller lacks minter role")
	errInsufficientBalance   = errors.New("token ledger: insufficient balance")
	errInsufficientAllowance = errors.New("token ledger: insufficient allowance")
	errZeroAddress           = errors.New("token ledger: zero address")
)

// Ledger is a thread-safe balance book for a single fungible asset.
type Ledger struct {
	mu sync.RWMutex

	name        string
	symbol      string
	decimals    uint8
	maxSupply   *big.Int
	totalSupply *big.Int

	balances   map[types.Address]*big.Int
	allowances map[types.Address]map[types.Address]*big.Int
	minters    map[types.Address]struct{}
}

// NewLedger constructs an empty ledger. maxSupply of nil or zero means the
// supply is unbounded.
func NewLedger(name, symbol string, decimals uint8, maxSupply *big.Int) *Ledger {
	l := &Ledger{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: big.NewInt(0),
		balances:    make(map[types.Address]*big.Int),
		allowances:  make(map[types.Address]map[types.Address]*big.Int),
		minters:     make(map[types.Address]struct{}),
	}
	if maxSupply != nil && maxSupply.Sign() > 0 {
		l.maxSupply = new(big.Int).Set(maxSupply)
	}
	return l
}

// Name returns the asset name.
func (l *Ledger) Name() string { return l.name }

// Symbol returns the asset ticker symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Decimals returns the fixed-point precision of the asset.
func (l *Ledger) Decimals() uint8 { return l.decimals }

// GrantMinter authorizes addr to mint against this ledger.
func (l *Ledger) GrantMinter(addr types.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minters[addr] = struct{}{}
}

// RevokeMinter removes addr from the minter set.
func (l *Ledger) RevokeMinter(addr types.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.minters, addr)
}

// Mint credits amount to the recipient. The minter must hold the minter role
// and the resulting supply must not exceed the cap.
func (l *Ledger) Mint(minter types.Address, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if to.IsZero() {
		return errZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.minters[minter]; !ok {
		return fmt.Errorf("%w: %s", errNotMinter, minter.Hex())
	}
	next := new(big.Int).Add(l.totalSupply, amount)
	if l.maxSupply != nil && next.Cmp(l.maxSupply) > 0 {
		return errMaxSupplyExceeded
	}
	l.totalSupply = next
	l.credit(to, amount)
	return nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from types.Address, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if to.IsZero() {
		return errZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// Approve sets the spender's allowance over the owner's balance.
func (l *Ledger) Approve(owner types.Address, spender types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	if spender.IsZero() {
		return errZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	inner, ok := l.allowances[owner]
	if !ok {
		inner = make(map[types.Address]*big.Int)
		l.allowances[owner] = inner
	}
	inner[spender] = new(big.Int).Set(amount)
	return nil
}

// TransferFrom moves amount from the owner to the recipient, consuming the
// spender's allowance.
func (l *Ledger) TransferFrom(spender types.Address, from types.Address, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if to.IsZero() {
		return errZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowance := l.allowanceLocked(from, spender)
	if allowance.Cmp(amount) < 0 {
		return errInsufficientAllowance
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.allowances[from][spender] = new(big.Int).Sub(allowance, amount)
	return nil
}

// BalanceOf returns a copy of the account balance.
func (l *Ledger) BalanceOf(addr types.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Allowance returns a copy of the spender's allowance over the owner.
func (l *Ledger) Allowance(owner types.Address, spender types.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.allowanceLocked(owner, spender))
}

// TotalSupply returns a copy of the circulating supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalSupply)
}

// MaxSupply returns a copy of the supply cap, or nil when unbounded.
func (l *Ledger) MaxSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.maxSupply == nil {
		return nil
	}
	return new(big.Int).Set(l.maxSupply)
}

func (l *Ledger) allowanceLocked(owner types.Address, spender types.Address) *big.Int {
	if inner, ok := l.allowances[owner]; ok {
		if amt, ok := inner[spender]; ok {
			return amt
		}
	}
	return big.NewInt(0)
}

func (l *Ledger) move(from types.Address, to types.Address, amount *big.Int) error {
	bal, ok := l.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	l.balances[from] = new(big.Int).Sub(bal, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(to types.Address, amount *big.Int) {
	if bal, ok := l.balances[to]; ok {
		l.balances[to] = new(big.Int).Add(bal, amount)
		return
	}
	l.balances[to] = new(big.Int).Set(amount)
}
