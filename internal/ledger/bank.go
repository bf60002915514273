/*

This file contains the bank: per-denom balances and total supply.

*/

package ledger

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
)

// Bank tracks balances and supply of every denom on the ledger.
type Bank struct {
	balances map[string]map[types.Address]sdkmath.Int
	supply   map[string]sdkmath.Int
}

// NewBank returns an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[string]map[types.Address]sdkmath.Int),
		supply:   make(map[string]sdkmath.Int),
	}
}

// BalanceOf returns the balance of addr in denom (zero when unknown).
func (b *Bank) BalanceOf(denom string, addr types.Address) sdkmath.Int {
	if accounts, ok := b.balances[denom]; ok {
		if bal, ok := accounts[addr]; ok {
			return bal
		}
	}
	return sdkmath.ZeroInt()
}

// TotalSupply returns the circulating supply of denom.
func (b *Bank) TotalSupply(denom string) sdkmath.Int {
	if s, ok := b.supply[denom]; ok {
		return s
	}
	return sdkmath.ZeroInt()
}

// Mint creates amount of denom in addr.
func (b *Bank) Mint(denom string, to types.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	b.set(denom, to, b.BalanceOf(denom, to).Add(amount))
	b.supply[denom] = b.TotalSupply(denom).Add(amount)
	return nil
}

// Burn destroys amount of denom held by from.
func (b *Bank) Burn(denom string, from types.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	bal := b.BalanceOf(denom, from)
	if bal.LT(amount) {
		return fmt.Errorf("%w: %s has %s%s, burning %s", ErrInsufficientBalance, from, bal, denom, amount)
	}
	b.set(denom, from, bal.Sub(amount))
	b.supply[denom] = b.TotalSupply(denom).Sub(amount)
	return nil
}

// Transfer moves amount of denom from one account to another.
func (b *Bank) Transfer(denom string, from, to types.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() || from == to {
		return nil
	}
	bal := b.BalanceOf(denom, from)
	if bal.LT(amount) {
		return fmt.Errorf("%w: %s has %s%s, sending %s", ErrInsufficientBalance, from, bal, denom, amount)
	}
	b.set(denom, from, bal.Sub(amount))
	b.set(denom, to, b.BalanceOf(denom, to).Add(amount))
	return nil
}

// Denoms returns every denom with a recorded supply, sorted.
func (b *Bank) Denoms() []string {
	denoms := make([]string, 0, len(b.supply))
	for d := range b.supply {
		denoms = append(denoms, d)
	}
	sort.Strings(denoms)
	return denoms
}

func (b *Bank) set(denom string, addr types.Address, amount sdkmath.Int) {
	accounts, ok := b.balances[denom]
	if !ok {
		accounts = make(map[types.Address]sdkmath.Int)
		b.balances[denom] = accounts
	}
	if amount.IsZero() {
		delete(accounts, addr)
		return
	}
	accounts[addr] = amount
}

func (b *Bank) clone() *Bank {
	c := NewBank()
	for denom, accounts := range b.balances {
		copied := make(map[types.Address]sdkmath.Int, len(accounts))
		for addr, bal := range accounts {
			copied[addr] = bal
		}
		c.balances[denom] = copied
	}
	for denom, s := range b.supply {
		c.supply[denom] = s
	}
	return c
}

func checkAmount(amount sdkmath.Int) error {
	if amount.IsNil() {
		return ErrNilAmount
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}
	return nil
}
