/*

This file contains the Chain, which serializes every access to the live State.
Atomic runs a transaction against a scratch copy and commits it only when the
transaction returns nil, so a failed call leaves no trace.

*/

package ledger

import (
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
)

// Minter is the collaborator authorized to create the managed token.
type Minter interface {
	Mint(st *State, to types.Address, amount sdkmath.Int) error
}

// BankMinter mints Denom directly through the bank.
type BankMinter struct {
	Denom string
}

// Mint implements Minter.
func (m BankMinter) Mint(st *State, to types.Address, amount sdkmath.Int) error {
	return st.Bank.Mint(m.Denom, to, amount)
}

// Chain owns the live State.
type Chain struct {
	mu    sync.Mutex
	state *State
	clock func() time.Time
}

// NewChain takes ownership of genesis. A nil clock means time.Now.
func NewChain(genesis *State, clock func() time.Time) *Chain {
	if clock == nil {
		clock = time.Now
	}
	return &Chain{state: genesis, clock: clock}
}

// Atomic runs fn against a copy of the live state stamped with the current time,
// and makes the copy live only if fn returns nil.
func (c *Chain) Atomic(fn func(st *State) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	scratch := c.state.Clone()
	c.stamp(scratch)
	if err := fn(scratch); err != nil {
		return err
	}
	c.state = scratch
	return nil
}

// View runs fn against the live state. fn must not mutate it.
func (c *Chain) View(fn func(st *State) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.state)
}

// Snapshot returns an independent copy of the live state stamped with the current time.
func (c *Chain) Snapshot() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.state.Clone()
	c.stamp(snap)
	return snap
}

// Now returns the chain clock reading.
func (c *Chain) Now() time.Time {
	return c.clock()
}

func (c *Chain) stamp(st *State) {
	if now := c.clock(); now.After(st.Now) {
		st.Now = now
	}
}
