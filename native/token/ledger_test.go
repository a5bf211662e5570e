package token

import (
	"errors"
	"math/big"
	"testing"

	"curvesale/core/types"
)

func addr(last byte) types.Address {
	var out types.Address
	out[19] = last
	return out
}

func TestMintRequiresRoleAndRespectsCap(t *testing.T) {
	minter := addr(0x01)
	outsider := addr(0x02)
	holder := addr(0x03)

	ledger := NewLedger("Test", "TST", 18, big.NewInt(1_000))
	ledger.GrantMinter(minter)

	if err := ledger.Mint(outsider, holder, big.NewInt(10)); !errors.Is(err, errNotMinter) {
		t.Fatalf("expected errNotMinter, got %v", err)
	}
	if err := ledger.Mint(minter, holder, big.NewInt(600)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := ledger.Mint(minter, holder, big.NewInt(500)); !errors.Is(err, errMaxSupplyExceeded) {
		t.Fatalf("expected errMaxSupplyExceeded, got %v", err)
	}
	if err := ledger.Mint(minter, holder, big.NewInt(400)); err != nil {
		t.Fatalf("mint up to cap failed: %v", err)
	}
	if supply := ledger.TotalSupply(); supply.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("supply mismatch: got %s", supply)
	}

	ledger.RevokeMinter(minter)
	if err := ledger.Mint(minter, holder, big.NewInt(1)); !errors.Is(err, errNotMinter) {
		t.Fatalf("expected errNotMinter after revoke, got %v", err)
	}
}

func TestTransferMovesBalances(t *testing.T) {
	minter := addr(0x01)
	alice := addr(0x0A)
	bob := addr(0x0B)

	ledger := NewLedger("Test", "TST", 6, nil)
	ledger.GrantMinter(minter)
	if err := ledger.Mint(minter, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	if err := ledger.Transfer(alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if bal := ledger.BalanceOf(alice); bal.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("sender balance mismatch: %s", bal)
	}
	if bal := ledger.BalanceOf(bob); bal.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("recipient balance mismatch: %s", bal)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(61)); !errors.Is(err, errInsufficientBalance) {
		t.Fatalf("expected errInsufficientBalance, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(0)); !errors.Is(err, errInvalidAmount) {
		t.Fatalf("expected errInvalidAmount, got %v", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	minter := addr(0x01)
	owner := addr(0x0A)
	spender := addr(0x0B)
	sink := addr(0x0C)

	ledger := NewLedger("Test", "TST", 6, nil)
	ledger.GrantMinter(minter)
	if err := ledger.Mint(minter, owner, big.NewInt(100)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	if err := ledger.TransferFrom(spender, owner, sink, big.NewInt(10)); !errors.Is(err, errInsufficientAllowance) {
		t.Fatalf("expected errInsufficientAllowance, got %v", err)
	}
	if err := ledger.Approve(owner, spender, big.NewInt(50)); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if err := ledger.TransferFrom(spender, owner, sink, big.NewInt(30)); err != nil {
		t.Fatalf("transfer-from failed: %v", err)
	}
	if remaining := ledger.Allowance(owner, spender); remaining.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("allowance not consumed: %s", remaining)
	}
	if err := ledger.TransferFrom(spender, owner, sink, big.NewInt(21)); !errors.Is(err, errInsufficientAllowance) {
		t.Fatalf("expected errInsufficientAllowance on overdraw, got %v", err)
	}
	if bal := ledger.BalanceOf(sink); bal.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("sink balance mismatch: %s", bal)
	}
}

func TestSupplyConservation(t *testing.T) {
	minter := addr(0x01)
	accounts := []types.Address{addr(0x0A), addr(0x0B), addr(0x0C)}

	ledger := NewLedger("Test", "TST", 6, nil)
	ledger.GrantMinter(minter)
	for _, acct := range accounts {
		if err := ledger.Mint(minter, acct, big.NewInt(1_000)); err != nil {
			t.Fatalf("mint failed: %v", err)
		}
	}
	if err := ledger.Transfer(accounts[0], accounts[1], big.NewInt(333)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if err := ledger.Transfer(accounts[1], accounts[2], big.NewInt(777)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	total := big.NewInt(0)
	for _, acct := range accounts {
		total.Add(total, ledger.BalanceOf(acct))
	}
	if total.Cmp(ledger.TotalSupply()) != 0 {
		t.Fatalf("balances %s do not sum to supply %s", total, ledger.TotalSupply())
	}
}
