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

// Package vault simulates an in-kind creation/redemption index fund. One
// actor goroutine owns the only mutable State; every mint, redeem, fee
// accrual and pause request travels through its bounded mailbox and is
// strictly serialized.
package vault

import (
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/log"
	"github.com/alexlange1/alphamind/params"
)

var logger = log.NewModuleLogger(log.FundVault)

var (
	mintCounter       = metrics.NewRegisteredCounter("vault/mint", nil)
	redeemCounter     = metrics.NewRegisteredCounter("vault/redeem", nil)
	overloadedCounter = metrics.NewRegisteredCounter("vault/overloaded", nil)
	supplyGauge       = metrics.NewRegisteredGaugeFloat64("vault/supply", nil)
)

// PriceSource hands the actor the newest price consensus.
type PriceSource interface {
	LatestPrices() (prices map[common.NetUID]float64, asOf time.Time, ok bool)
}

// WeightSource hands the actor the current epoch's weights.
type WeightSource interface {
	CurrentWeights() (map[common.NetUID]uint64, bool)
}

// Store is the slice of the database the actor checkpoints into.
type Store interface {
	WriteVaultState(blob []byte) error
	ReadVaultState() ([]byte, error)
}

type opKind int

const (
	opMintInKind opKind = iota
	opMintViaTAO
	opRedeem
	opAccrue
	opPause
	opResume
	opPauseAll
	opResumeAll
	opNAV
	opSnapshot
)

type request struct {
	op     opKind
	basket map[common.NetUID]float64
	amount float64
	uid    common.NetUID
	now    time.Time
	reply  chan response
}

type response struct {
	minted   float64
	basket   map[common.NetUID]float64
	nav      float64
	snapshot State
	err      error
}

// Vault is the actor handle. All exported methods are safe for concurrent
// use; they only ever talk to the loop through the mailbox.
type Vault struct {
	cfg     *params.FundConfig
	prices  PriceSource
	weights WeightSource
	store   Store

	mailbox chan *request
	quit    chan struct{}
	done    chan struct{}
}

// New builds the vault handle without starting the actor; call Start before
// use. Start restores the last checkpoint (or starts empty).
func New(cfg *params.FundConfig, prices PriceSource, weights WeightSource, store Store) (*Vault, error) {
	v := &Vault{
		cfg:     cfg,
		prices:  prices,
		weights: weights,
		store:   store,
		mailbox: make(chan *request, cfg.VaultMailboxSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	return v, nil
}

func (v *Vault) Start() error {
	state := newState(time.Now())
	if blob, err := v.store.ReadVaultState(); err == nil {
		restored, rerr := UnmarshalState(blob)
		if rerr != nil {
			logger.Crit("Corrupt vault checkpoint", "err", rerr)
		}
		state = restored
		logger.Info("Restored vault state", "supply", state.TotalSupply, "holdings", len(state.Holdings))
	}
	go v.loop(state)
	return nil
}

func (v *Vault) Stop() {
	close(v.quit)
	<-v.done
}

// send delivers one request, honoring the caller deadline. A full mailbox
// past the deadline surfaces as ErrOverloaded without touching state.
func (v *Vault) send(req *request, deadline time.Time) response {
	req.reply = make(chan response, 1)
	wait := time.Until(deadline)
	if wait <= 0 {
		overloadedCounter.Inc(1)
		return response{err: ErrOverloaded}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case v.mailbox <- req:
	case <-timer.C:
		overloadedCounter.Inc(1)
		return response{err: ErrOverloaded}
	case <-v.quit:
		return response{err: ErrClosed}
	}
	select {
	case resp := <-req.reply:
		return resp
	case <-v.done:
		return response{err: ErrClosed}
	}
}

// MintInKind deposits a basket matching the current weights and mints at
// the pre-mint NAV.
func (v *Vault) MintInKind(basket map[common.NetUID]float64, deadline time.Time) (float64, error) {
	resp := v.send(&request{op: opMintInKind, basket: basket, now: time.Now()}, deadline)
	return resp.minted, resp.err
}

// MintViaTAO virtually buys the basket at current weights for amountTao.
func (v *Vault) MintViaTAO(amountTao float64, deadline time.Time) (float64, error) {
	resp := v.send(&request{op: opMintViaTAO, amount: amountTao, now: time.Now()}, deadline)
	return resp.minted, resp.err
}

// RedeemInKind burns tokens and returns the proportional basket.
func (v *Vault) RedeemInKind(amountTokens float64, deadline time.Time) (map[common.NetUID]float64, error) {
	resp := v.send(&request{op: opRedeem, amount: amountTokens, now: time.Now()}, deadline)
	return resp.basket, resp.err
}

// AccrueMgmtFee accrues the management fee up to now. A no-op when no time
// has passed.
func (v *Vault) AccrueMgmtFee(now time.Time) error {
	resp := v.send(&request{op: opAccrue, now: now}, time.Now().Add(5*time.Second))
	return resp.err
}

func (v *Vault) PauseConstituent(uid common.NetUID) error {
	resp := v.send(&request{op: opPause, uid: uid}, time.Now().Add(5*time.Second))
	return resp.err
}

func (v *Vault) ResumeConstituent(uid common.NetUID) error {
	resp := v.send(&request{op: opResume, uid: uid}, time.Now().Add(5*time.Second))
	return resp.err
}

func (v *Vault) PauseAll() error {
	resp := v.send(&request{op: opPauseAll}, time.Now().Add(5*time.Second))
	return resp.err
}

func (v *Vault) ResumeAll() error {
	resp := v.send(&request{op: opResumeAll}, time.Now().Add(5*time.Second))
	return resp.err
}

// NAV reads the current net asset value at the latest prices.
func (v *Vault) NAV() (float64, error) {
	resp := v.send(&request{op: opNAV, now: time.Now()}, time.Now().Add(5*time.Second))
	return resp.nav, resp.err
}

// StateSnapshot returns a copy of the accounting position.
func (v *Vault) StateSnapshot() (State, error) {
	resp := v.send(&request{op: opSnapshot}, time.Now().Add(5*time.Second))
	return resp.snapshot, resp.err
}

func (v *Vault) loop(state *State) {
	defer close(v.done)
	for {
		select {
		case <-v.quit:
			v.checkpoint(state)
			logger.Info("Vault actor stopped", "supply", state.TotalSupply)
			return
		case req := <-v.mailbox:
			req.reply <- v.handle(state, req)
		}
	}
}

func (v *Vault) handle(state *State, req *request) response {
	switch req.op {
	case opMintInKind, opMintViaTAO, opRedeem:
		return v.handleTrade(state, req)
	case opAccrue:
		state.accrueMgmtFee(req.now, v.cfg.MgmtAprBps)
		v.checkpoint(state)
		return response{}
	case opPause:
		state.paused.Add(req.uid)
		v.checkpoint(state)
		return response{}
	case opResume:
		state.paused.Remove(req.uid)
		v.checkpoint(state)
		return response{}
	case opPauseAll:
		state.PausedAll = true
		v.checkpoint(state)
		return response{}
	case opResumeAll:
		state.PausedAll = false
		v.checkpoint(state)
		return response{}
	case opNAV:
		prices, _, _ := v.prices.LatestPrices()
		return response{nav: state.NAV(prices)}
	case opSnapshot:
		cp := *state
		cp.Holdings = make(map[common.NetUID]float64, len(state.Holdings))
		for uid, amount := range state.Holdings {
			cp.Holdings[uid] = amount
		}
		cp.PausedList = nil
		cp.paused = nil
		state.paused.Each(func(item interface{}) bool {
			cp.PausedList = append(cp.PausedList, item.(common.NetUID))
			return true
		})
		return response{snapshot: cp}
	}
	return response{err: ErrClosed}
}

func (v *Vault) handleTrade(state *State, req *request) response {
	// Accrue first so the trade cannot dilute earlier holders.
	state.accrueMgmtFee(req.now, v.cfg.MgmtAprBps)

	prices, priceTs, ok := v.prices.LatestPrices()
	if !ok {
		return response{err: ErrQuorumMissing}
	}

	var resp response
	switch req.op {
	case opMintInKind:
		weights, wok := v.weights.CurrentWeights()
		if !wok {
			return response{err: ErrNoWeightSet}
		}
		minted, err := state.applyMintInKind(req.basket, weights, prices, priceTs, req.now, v.cfg)
		if err != nil {
			return response{err: err}
		}
		mintCounter.Inc(1)
		resp = response{minted: minted}
	case opMintViaTAO:
		weights, wok := v.weights.CurrentWeights()
		if !wok {
			return response{err: ErrNoWeightSet}
		}
		minted, err := state.applyMintViaTAO(req.amount, weights, prices, priceTs, req.now, v.cfg)
		if err != nil {
			return response{err: err}
		}
		mintCounter.Inc(1)
		resp = response{minted: minted}
	case opRedeem:
		basket, err := state.applyRedeemInKind(req.amount, prices, priceTs, req.now, v.cfg)
		if err != nil {
			return response{err: err}
		}
		redeemCounter.Inc(1)
		resp = response{basket: basket}
	}
	supplyGauge.Update(state.TotalSupply)
	v.checkpoint(state)
	return resp
}

func (v *Vault) checkpoint(state *State) {
	blob, err := state.MarshalState()
	if err != nil {
		logger.Error("Cannot marshal vault state", "err", err)
		return
	}
	if err := v.store.WriteVaultState(blob); err != nil {
		logger.Error("Cannot checkpoint vault state", "err", err)
	}
}
