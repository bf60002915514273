/*

This file contains the owner-only configuration setters. Each one rejects a
no-op update with ErrValueUnchanged and emits an event on success.

Oracles are compared by identity through reflect, so a non-comparable oracle is
always treated as a new value.

*/

package controller

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/oracle"
	"github.com/elys-network/pegguard/internal/types"
)

func (c *Controller) requireOwner(caller types.Address) error {
	if caller != c.owner {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller)
	}
	return nil
}

// SetSpotOracle replaces the spot price source.
func (c *Controller) SetSpotOracle(caller types.Address, spot oracle.SpotOracle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if isNilOracle(spot) {
		return ErrInvalidOracle
	}
	if sameOracle(spot, c.spotOracle) {
		return fmt.Errorf("%w: spot oracle", ErrValueUnchanged)
	}
	c.spotOracle = spot
	c.emit(types.EventSpotOracleUpdated, c.chain.Now(), map[string]string{"oracle": fmt.Sprintf("%T", spot)})
	return nil
}

// SetTwapOracle replaces the TWAP source.
func (c *Controller) SetTwapOracle(caller types.Address, twap oracle.TwapOracle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if isNilOracle(twap) {
		return ErrInvalidOracle
	}
	if sameOracle(twap, c.twapOracle) {
		return fmt.Errorf("%w: twap oracle", ErrValueUnchanged)
	}
	c.twapOracle = twap
	c.emit(types.EventTwapOracleUpdated, c.chain.Now(), map[string]string{"oracle": fmt.Sprintf("%T", twap)})
	return nil
}

// isNilOracle also reports typed nil pointers wrapped in the interface.
func isNilOracle(o any) bool {
	if o == nil {
		return true
	}
	v := reflect.ValueOf(o)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func sameOracle(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() || va.Type() != vb.Type() {
		return false
	}
	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}

func (c *Controller) saveBand(band types.Band) error {
	if c.bands == nil {
		return nil
	}
	if err := c.bands.SaveBand(band); err != nil {
		return fmt.Errorf("%w: %w", ErrBandNotSaved, err)
	}
	return nil
}

// SetFloorPrice moves the lower edge of the band.
func (c *Controller) SetFloorPrice(caller types.Address, price sdkmath.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if price.IsNil() {
		return fmt.Errorf("%w: floor price is nil", ErrInvalidBand)
	}
	if price.Equal(c.floorPrice) {
		return fmt.Errorf("%w: floor price %s", ErrValueUnchanged, price)
	}
	band := types.Band{Floor: price, Cap: c.capPrice}
	if err := band.Validate(); err != nil {
		return errors.Join(ErrInvalidBand, err)
	}
	if err := c.saveBand(band); err != nil {
		return err
	}
	old := c.floorPrice
	c.floorPrice = price
	c.emit(types.EventFloorPriceUpdated, c.chain.Now(), map[string]string{"old": old.String(), "new": price.String()})
	return nil
}

// SetCapPrice moves the upper edge of the band.
func (c *Controller) SetCapPrice(caller types.Address, price sdkmath.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if price.IsNil() {
		return fmt.Errorf("%w: cap price is nil", ErrInvalidBand)
	}
	if price.Equal(c.capPrice) {
		return fmt.Errorf("%w: cap price %s", ErrValueUnchanged, price)
	}
	band := types.Band{Floor: c.floorPrice, Cap: price}
	if err := band.Validate(); err != nil {
		return errors.Join(ErrInvalidBand, err)
	}
	if err := c.saveBand(band); err != nil {
		return err
	}
	old := c.capPrice
	c.capPrice = price
	c.emit(types.EventCapPriceUpdated, c.chain.Now(), map[string]string{"old": old.String(), "new": price.String()})
	return nil
}

// SetStabilityModule changes who may request tokens.
func (c *Controller) SetStabilityModule(caller, module types.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if module == "" {
		return fmt.Errorf("%w: stability module", ErrInvalidAddress)
	}
	if module == c.stabilityModule {
		return fmt.Errorf("%w: stability module %s", ErrValueUnchanged, module)
	}
	old := c.stabilityModule
	c.stabilityModule = module
	c.emit(types.EventStabilityModuleUpdated, c.chain.Now(), map[string]string{"old": string(old), "new": string(module)})
	return nil
}

// SetPaused stops or resumes rebalancing. Harvesting and provisioning continue while paused.
func (c *Controller) SetPaused(caller types.Address, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if paused == c.paused {
		return fmt.Errorf("%w: paused=%t", ErrValueUnchanged, paused)
	}
	c.paused = paused
	c.emit(types.EventPausedUpdated, c.chain.Now(), map[string]string{"paused": strconv.FormatBool(paused)})
	return nil
}

// SetHarvester grants or revokes the right to harvest rewards.
func (c *Controller) SetHarvester(caller, harvester types.Address, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if harvester == "" {
		return fmt.Errorf("%w: harvester", ErrInvalidAddress)
	}
	if c.harvesters[harvester] == enabled {
		return fmt.Errorf("%w: harvester %s enabled=%t", ErrValueUnchanged, harvester, enabled)
	}
	if enabled {
		c.harvesters[harvester] = true
	} else {
		delete(c.harvesters, harvester)
	}
	c.emit(types.EventHarvesterUpdated, c.chain.Now(), map[string]string{
		"harvester": string(harvester),
		"enabled":   strconv.FormatBool(enabled),
	})
	return nil
}

// SetRewardRecipient changes where harvested rewards go.
func (c *Controller) SetRewardRecipient(caller, recipient types.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if recipient == "" {
		return fmt.Errorf("%w: reward recipient", ErrInvalidAddress)
	}
	if recipient == c.rewardRecipient {
		return fmt.Errorf("%w: reward recipient %s", ErrValueUnchanged, recipient)
	}
	old := c.rewardRecipient
	c.rewardRecipient = recipient
	c.emit(types.EventRewardRecipientUpdated, c.chain.Now(), map[string]string{"old": string(old), "new": string(recipient)})
	return nil
}
