// Package amm implements a minimal constant-product liquidity venue with
// deterministic pair addresses. It honors the uncertain-return add-liquidity
// contract: when a pool already holds reserves, the amounts actually used
// follow the reserve ratio and may be less than the amounts offered.
package amm

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"curvesale/core/types"
)

var (
	errExpired         = errors.New("amm: deadline expired")
	errUnknownToken    = errors.New("amm: token not registered")
	errIdenticalPair   = errors.New("amm: identical token addresses")
	errBelowMinimum    = errors.New("amm: used amount below minimum")
	errZeroLiquidity   = errors.New("amm: zero liquidity minted")
	errInvalidAmounts  = errors.New("amm: desired amounts must be positive")
	errZeroRecipient   = errors.New("amm: zero recipient")
	errUnregisteredAmm = errors.New("amm: venue address not set")
)

// TransferLedger is the slice of ledger behavior the venue needs to custody
// pool reserves.
type TransferLedger interface {
	TransferFrom(spender types.Address, from types.Address, to types.Address, amount *big.Int) error
	Transfer(from types.Address, to types.Address, amount *big.Int) error
	BalanceOf(addr types.Address) *big.Int
}

// Pool holds the reserves and share book for one token pair. Token0/Token1
// are stored in canonical (sorted) order.
type Pool struct {
	Pair        types.Address
	Token0      types.Address
	Token1      types.Address
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalShares *big.Int
	shares      map[types.Address]*big.Int
}

// Venue is an in-process AMM factory plus router.
type Venue struct {
	mu      sync.Mutex
	addr    types.Address
	ledgers map[types.Address]TransferLedger
	pools   map[types.Address]*Pool
	nowFn   func() int64
}

// NewVenue constructs a venue that custodies reserves under addr.
func NewVenue(addr types.Address) (*Venue, error) {
	if addr.IsZero() {
		return nil, errUnregisteredAmm
	}
	return &Venue{
		addr:    addr,
		ledgers: make(map[types.Address]TransferLedger),
		pools:   make(map[types.Address]*Pool),
		nowFn:   func() int64 { return time.Now().Unix() },
	}, nil
}

// RegisterToken binds a token address to the ledger that moves it.
func (v *Venue) RegisterToken(tokenAddr types.Address, ledger TransferLedger) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ledgers[tokenAddr] = ledger
}

// SetNowFunc overrides the time source used for deterministic testing.
func (v *Venue) SetNowFunc(now func() int64) {
	if now == nil {
		v.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	v.nowFn = now
}

// Address returns the venue's custody address, used by callers for approvals.
func (v *Venue) Address() types.Address { return v.addr }

// PairFor derives the deterministic pair address for two tokens. The
// derivation hashes the sorted pair, so argument order does not matter.
func (v *Venue) PairFor(tokenA, tokenB types.Address) (types.Address, error) {
	if tokenA == tokenB {
		return types.Address{}, errIdenticalPair
	}
	t0, t1 := sortPair(tokenA, tokenB)
	digest := ethcrypto.Keccak256(t0.Bytes(), t1.Bytes())
	var pair types.Address
	copy(pair[:], digest[12:])
	return pair, nil
}

// AddLiquidity pulls funds from the caller and credits pool shares to the
// recipient. On a fresh pool both desired amounts are used in full; against
// existing reserves the smaller ratio-matching amounts are used instead, and
// the unused remainder stays with the caller.
func (v *Venue) AddLiquidity(caller types.Address, tokenA, tokenB types.Address,
	amountADesired, amountBDesired, amountAMin, amountBMin *big.Int,
	to types.Address, deadline int64) (*big.Int, *big.Int, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.nowFn() > deadline {
		return nil, nil, nil, errExpired
	}
	if to.IsZero() {
		return nil, nil, nil, errZeroRecipient
	}
	if amountADesired == nil || amountADesired.Sign() <= 0 ||
		amountBDesired == nil || amountBDesired.Sign() <= 0 {
		return nil, nil, nil, errInvalidAmounts
	}
	ledgerA, ok := v.ledgers[tokenA]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", errUnknownToken, tokenA.Hex())
	}
	ledgerB, ok := v.ledgers[tokenB]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", errUnknownToken, tokenB.Hex())
	}

	pool, err := v.poolLocked(tokenA, tokenB)
	if err != nil {
		return nil, nil, nil, err
	}

	reserveA, reserveB := pool.reservesFor(tokenA)
	usedA := new(big.Int).Set(amountADesired)
	usedB := new(big.Int).Set(amountBDesired)
	if reserveA.Sign() > 0 && reserveB.Sign() > 0 {
		optimalB := new(big.Int).Mul(amountADesired, reserveB)
		optimalB.Quo(optimalB, reserveA)
		if optimalB.Cmp(amountBDesired) <= 0 {
			usedB = optimalB
		} else {
			optimalA := new(big.Int).Mul(amountBDesired, reserveA)
			optimalA.Quo(optimalA, reserveB)
			usedA = optimalA
		}
	}
	if amountAMin != nil && usedA.Cmp(amountAMin) < 0 {
		return nil, nil, nil, errBelowMinimum
	}
	if amountBMin != nil && usedB.Cmp(amountBMin) < 0 {
		return nil, nil, nil, errBelowMinimum
	}

	liquidity := mintedShares(usedA, usedB, reserveA, reserveB, pool.TotalShares)
	if liquidity.Sign() == 0 {
		return nil, nil, nil, errZeroLiquidity
	}

	if err := ledgerA.TransferFrom(v.addr, caller, pool.Pair, usedA); err != nil {
		return nil, nil, nil, err
	}
	if err := ledgerB.TransferFrom(v.addr, caller, pool.Pair, usedB); err != nil {
		return nil, nil, nil, err
	}

	pool.addReserves(tokenA, usedA, usedB)
	pool.TotalShares.Add(pool.TotalShares, liquidity)
	if prev, ok := pool.shares[to]; ok {
		pool.shares[to] = new(big.Int).Add(prev, liquidity)
	} else {
		pool.shares[to] = new(big.Int).Set(liquidity)
	}

	return usedA, usedB, liquidity, nil
}

// SharesOf returns the pool-ownership balance the holder has in the pair.
func (v *Venue) SharesOf(tokenA, tokenB types.Address, holder types.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	pair, err := v.PairFor(tokenA, tokenB)
	if err != nil {
		return big.NewInt(0)
	}
	pool, ok := v.pools[pair]
	if !ok {
		return big.NewInt(0)
	}
	if bal, ok := pool.shares[holder]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Reserves returns copies of the pool reserves in (tokenA, tokenB) order.
func (v *Venue) Reserves(tokenA, tokenB types.Address) (*big.Int, *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pair, err := v.PairFor(tokenA, tokenB)
	if err != nil {
		return big.NewInt(0), big.NewInt(0)
	}
	pool, ok := v.pools[pair]
	if !ok {
		return big.NewInt(0), big.NewInt(0)
	}
	ra, rb := pool.reservesFor(tokenA)
	return new(big.Int).Set(ra), new(big.Int).Set(rb)
}

func (v *Venue) poolLocked(tokenA, tokenB types.Address) (*Pool, error) {
	pair, err := v.PairFor(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	if pool, ok := v.pools[pair]; ok {
		return pool, nil
	}
	t0, t1 := sortPair(tokenA, tokenB)
	pool := &Pool{
		Pair:        pair,
		Token0:      t0,
		Token1:      t1,
		Reserve0:    big.NewInt(0),
		Reserve1:    big.NewInt(0),
		TotalShares: big.NewInt(0),
		shares:      make(map[types.Address]*big.Int),
	}
	v.pools[pair] = pool
	return pool, nil
}

func (p *Pool) reservesFor(tokenA types.Address) (*big.Int, *big.Int) {
	if tokenA == p.Token0 {
		return p.Reserve0, p.Reserve1
	}
	return p.Reserve1, p.Reserve0
}

func (p *Pool) addReserves(tokenA types.Address, usedA, usedB *big.Int) {
	if tokenA == p.Token0 {
		p.Reserve0.Add(p.Reserve0, usedA)
		p.Reserve1.Add(p.Reserve1, usedB)
		return
	}
	p.Reserve0.Add(p.Reserve0, usedB)
	p.Reserve1.Add(p.Reserve1, usedA)
}

func sortPair(a, b types.Address) (types.Address, types.Address) {
	if bytes.Compare(a[:], b[:]) < 0 {
		return a, b
	}
	return b, a
}

// mintedShares follows the constant-product convention: geometric mean for
// the first provision, proportional share of reserves afterwards.
func mintedShares(usedA, usedB, reserveA, reserveB, totalShares *big.Int) *big.Int {
	if totalShares.Sign() == 0 {
		product := new(big.Int).Mul(usedA, usedB)
		return product.Sqrt(product)
	}
	byA := new(big.Int).Mul(usedA, totalShares)
	byA.Quo(byA, reserveA)
	byB := new(big.Int).Mul(usedB, totalShares)
	byB.Quo(byB, reserveB)
	if byA.Cmp(byB) < 0 {
		return byA
	}
	return byB
}
