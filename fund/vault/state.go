// Copyright 2025 The alphamind Authors
// This file is part of the alphamind library.
//
// The alphamind library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The alphamind library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the alphamind library. If not, see <http://www.gnu.org/licenses/>.

package vault

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/fatih/set.v0"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/params"
)

// Accounting failures returned to callers; no partial effect ever remains.
var (
	ErrPaused                  = errors.New("constituent paused")
	ErrCompositionOutOfTolerance = errors.New("basket composition out of tolerance")
	ErrInsufficientSupply      = errors.New("redeem amount exceeds total supply")
	ErrPriceStale              = errors.New("required price too old")
	ErrQuorumMissing           = errors.New("required price has no consensus")
	ErrNoWeightSet             = errors.New("no current weight set")
	ErrOverloaded              = errors.New("vault mailbox deadline exceeded")
	ErrClosed                  = errors.New("vault stopped")
	ErrBadBasket               = errors.New("basket amounts must be positive")
)

// State is the vault's full accounting position. It is owned by the actor
// goroutine; everyone else sees copies.
type State struct {
	TotalSupply     float64                    `json:"total_supply"`
	Holdings        map[common.NetUID]float64  `json:"holdings"`
	AccruedTxFees   float64                    `json:"accrued_tx_fees"`
	AccruedMgmtFees float64                    `json:"accrued_mgmt_fees"`
	LastMgmtAccrual time.Time                  `json:"last_mgmt_accrual_ts"`
	PausedList      []common.NetUID            `json:"paused,omitempty"`
	PausedAll       bool                       `json:"paused_all,omitempty"`

	paused *set.Set
}

func newState(now time.Time) *State {
	return &State{
		Holdings:        make(map[common.NetUID]float64),
		LastMgmtAccrual: now,
		paused:          set.New(),
	}
}

// MarshalState checkpoints the state, flattening the paused set.
func (s *State) MarshalState() ([]byte, error) {
	s.PausedList = s.PausedList[:0]
	s.paused.Each(func(item interface{}) bool {
		s.PausedList = append(s.PausedList, item.(common.NetUID))
		return true
	})
	return json.Marshal(s)
}

// UnmarshalState restores a checkpoint.
func UnmarshalState(blob []byte) (*State, error) {
	s := newState(time.Time{})
	if err := json.Unmarshal(blob, s); err != nil {
		return nil, err
	}
	if s.Holdings == nil {
		s.Holdings = make(map[common.NetUID]float64)
	}
	s.paused = set.New()
	for _, uid := range s.PausedList {
		s.paused.Add(uid)
	}
	return s, nil
}

func (s *State) isPaused(uid common.NetUID) bool {
	if s.PausedAll {
		return true
	}
	return s.paused != nil && s.paused.Has(uid)
}

// NAV is the net asset value per token. An empty vault reads as the 1.0
// sentinel by definition.
func (s *State) NAV(prices map[common.NetUID]float64) float64 {
	if s.TotalSupply == 0 {
		return 1.0
	}
	var value float64
	for uid, amount := range s.Holdings {
		value += amount * prices[uid]
	}
	return value / s.TotalSupply
}

// accrueMgmtFee mints the pro-rata management fee to the fee sink. dt comes
// from the monotonic clock and clamps at zero so wall-clock jumps can never
// burn supply. Idempotent for equal timestamps.
func (s *State) accrueMgmtFee(now time.Time, aprBps uint64) float64 {
	dt := now.Sub(s.LastMgmtAccrual).Seconds()
	if dt <= 0 {
		return 0
	}
	s.LastMgmtAccrual = now
	minted := s.TotalSupply * float64(aprBps) * dt / (float64(params.BpsTotal) * 365 * 86400)
	if minted <= 0 {
		return 0
	}
	s.TotalSupply += minted
	s.AccruedMgmtFees += minted
	return minted
}

// priceFor resolves one constituent's price, distinguishing missing
// consensus from staleness.
func priceFor(uid common.NetUID, prices map[common.NetUID]float64, priceTs time.Time, now time.Time, maxAge time.Duration) (float64, error) {
	p, ok := prices[uid]
	if !ok {
		return 0, errors.Wrapf(ErrQuorumMissing, "netuid %d", uid)
	}
	if now.Sub(priceTs) > maxAge {
		return 0, errors.Wrapf(ErrPriceStale, "netuid %d", uid)
	}
	return p, nil
}

// applyMintInKind deposits a basket and mints against the pre-mint NAV. The
// transaction fee slice of the basket is converted to TAO at the deposit
// prices and accrues to the fee accumulator; holdings only ever receive the
// net amounts, which keeps NAV x supply equal to holdings value.
func (s *State) applyMintInKind(basket map[common.NetUID]float64, weights map[common.NetUID]uint64, prices map[common.NetUID]float64, priceTs, now time.Time, cfg *params.FundConfig) (float64, error) {
	if len(basket) == 0 {
		return 0, ErrBadBasket
	}
	for uid, amount := range basket {
		if !(amount > 0) || math.IsNaN(amount) || math.IsInf(amount, 0) {
			return 0, errors.Wrapf(ErrBadBasket, "netuid %d", uid)
		}
		if s.isPaused(uid) {
			return 0, errors.Wrapf(ErrPaused, "netuid %d", uid)
		}
	}

	// Value the basket at current consensus prices.
	var value float64
	basketValue := make(map[common.NetUID]float64, len(basket))
	for uid, amount := range basket {
		p, err := priceFor(uid, prices, priceTs, now, params.PricesMaxAge)
		if err != nil {
			return 0, err
		}
		basketValue[uid] = amount * p
		value += amount * p
	}

	// Per-constituent deviation from the target weight, in bps.
	for uid, targetBps := range weights {
		shareBps := float64(params.BpsTotal) * basketValue[uid] / value
		if math.Abs(shareBps-float64(targetBps)) > float64(cfg.CompositionToleranceBps) {
			return 0, errors.Wrapf(ErrCompositionOutOfTolerance, "netuid %d share %.1f bps target %d bps", uid, shareBps, targetBps)
		}
	}
	for uid := range basket {
		if _, inIndex := weights[uid]; !inIndex {
			shareBps := float64(params.BpsTotal) * basketValue[uid] / value
			if shareBps > float64(cfg.CompositionToleranceBps) {
				return 0, errors.Wrapf(ErrCompositionOutOfTolerance, "netuid %d not in index", uid)
			}
		}
	}

	feeFrac := float64(cfg.TxFeeBps) / float64(params.BpsTotal)
	netValue := value * (1 - feeFrac)
	nav := s.NAV(prices)
	minted := netValue / nav

	for uid, amount := range basket {
		s.Holdings[uid] += amount * (1 - feeFrac)
	}
	s.AccruedTxFees += value * feeFrac
	s.TotalSupply += minted
	return minted, nil
}

// applyMintViaTAO buys the basket virtually at current weights.
func (s *State) applyMintViaTAO(amountTao float64, weights map[common.NetUID]uint64, prices map[common.NetUID]float64, priceTs, now time.Time, cfg *params.FundConfig) (float64, error) {
	if !(amountTao > 0) || math.IsNaN(amountTao) || math.IsInf(amountTao, 0) {
		return 0, ErrBadBasket
	}
	if len(weights) == 0 {
		return 0, ErrNoWeightSet
	}
	perUID := make(map[common.NetUID]float64, len(weights))
	for uid := range weights {
		if s.isPaused(uid) {
			return 0, errors.Wrapf(ErrPaused, "netuid %d", uid)
		}
		p, err := priceFor(uid, prices, priceTs, now, params.PricesMaxAge)
		if err != nil {
			return 0, err
		}
		perUID[uid] = p
	}

	feeFrac := float64(cfg.TxFeeBps) / float64(params.BpsTotal)
	netValue := amountTao * (1 - feeFrac)
	nav := s.NAV(prices)
	minted := netValue / nav

	for uid, bps := range weights {
		slice := netValue * float64(bps) / float64(params.BpsTotal)
		s.Holdings[uid] += slice / perUID[uid]
	}
	s.AccruedTxFees += amountTao * feeFrac
	s.TotalSupply += minted
	return minted, nil
}

// applyRedeemInKind burns tokens and returns the proportional basket net of
// the redeem fee. The in-kind fee slice converts to TAO at current prices
// and accrues, so a fully redeemed vault ends with zero holdings.
func (s *State) applyRedeemInKind(amountTokens float64, prices map[common.NetUID]float64, priceTs, now time.Time, cfg *params.FundConfig) (map[common.NetUID]float64, error) {
	if !(amountTokens > 0) || math.IsNaN(amountTokens) || math.IsInf(amountTokens, 0) {
		return nil, ErrBadBasket
	}
	if amountTokens > s.TotalSupply {
		return nil, ErrInsufficientSupply
	}
	for uid, amount := range s.Holdings {
		if amount > 0 && s.isPaused(uid) {
			return nil, errors.Wrapf(ErrPaused, "netuid %d", uid)
		}
	}

	feeFrac := float64(cfg.RedeemFeeBps) / float64(params.BpsTotal)
	share := amountTokens / s.TotalSupply

	// Value the fee slice first; a stale price aborts before any mutation.
	var feeValue float64
	returned := make(map[common.NetUID]float64)
	for uid, amount := range s.Holdings {
		if amount <= 0 {
			continue
		}
		p, err := priceFor(uid, prices, priceTs, now, params.PricesMaxAge)
		if err != nil {
			return nil, err
		}
		gross := amount * share
		feeValue += gross * feeFrac * p
		returned[uid] = gross * (1 - feeFrac)
	}

	for uid := range returned {
		gross := s.Holdings[uid] * share
		s.Holdings[uid] -= gross
		if s.Holdings[uid] < 1e-12 {
			s.Holdings[uid] = 0
		}
	}
	s.AccruedTxFees += feeValue
	s.TotalSupply -= amountTokens
	if s.TotalSupply < 1e-12 {
		s.TotalSupply = 0
	}
	return returned, nil
}

// CheckInvariants validates the accounting identities, used by tests and on
// restore.
func (s *State) CheckInvariants(prices map[common.NetUID]float64) error {
	for uid, amount := range s.Holdings {
		if amount < 0 {
			return errors.Errorf("negative holdings for netuid %d", uid)
		}
	}
	if s.TotalSupply < 0 {
		return errors.New("negative total supply")
	}
	if s.TotalSupply == 0 {
		for uid, amount := range s.Holdings {
			if amount != 0 {
				return errors.Errorf("zero supply with non-zero holdings for netuid %d", uid)
			}
		}
	}
	return nil
}
