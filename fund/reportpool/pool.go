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

// Package reportpool is the validator's inbound gate: a bounded fan-in
// queue, the full report check sequence (schema, freshness, signer policy,
// signature, stake, sanity band), duplicate suppression, and a journal that
// lets a restart inside a consensus window lose nothing.
package reportpool

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/log"
	"github.com/alexlange1/alphamind/params"
	"github.com/alexlange1/alphamind/storage/database"
)

var logger = log.NewModuleLogger(log.FundReportPool)

var (
	ErrStaleReport       = errors.New("report outside freshness window")
	ErrFutureReport      = errors.New("report timestamp beyond clock skew")
	ErrUnknownSigner     = errors.New("signer has no registered stake")
	ErrOutOfSanityBand   = errors.New("price outside sanity band")
	ErrQueueFull         = errors.New("ingest queue full")
	ErrHMACNotAccepted   = errors.New("hotkey signature required")
	ErrStakeSnapshotOld  = errors.New("stake snapshot older than one epoch")
)

var (
	acceptedCounter  = metrics.NewRegisteredCounter("reportpool/accepted", nil)
	rejectedCounter  = metrics.NewRegisteredCounter("reportpool/rejected", nil)
	duplicateCounter = metrics.NewRegisteredCounter("reportpool/duplicate", nil)
	queueGauge       = metrics.NewRegisteredGauge("reportpool/queue", nil)
)

// StakeSource answers stake lookups against the freshest external-chain
// snapshot the node holds.
type StakeSource interface {
	StakeOf(hotkey common.Hotkey) float64
	SnapshotAge() time.Duration
}

// ConsensusView supplies the current consensus price for the sanity band.
type ConsensusView interface {
	LatestPrice(uid common.NetUID) (float64, bool)
}

// Store is the slice of the database the pool writes through.
type Store interface {
	WriteReport(r types.Report) error
}

// PoolConfig are the configuration parameters of the report pool.
type PoolConfig struct {
	QueueSize   int
	NumHandlers int
	Journal     string        // journal of accepted reports to survive restarts
	Rejournal   time.Duration // interval to regenerate the journal

	// RequireHotkeySig rejects reports carrying only the legacy HMAC scheme.
	RequireHotkeySig bool
	HMACSecret       []byte
}

// DefaultPoolConfig contains the default configurations for the report pool.
var DefaultPoolConfig = PoolConfig{
	QueueSize:        10000,
	NumHandlers:      4,
	Journal:          "reports.journal",
	Rejournal:        time.Hour,
	RequireHotkeySig: true,
}

// sanitize checks the provided user configurations and changes anything
// unworkable.
func (config *PoolConfig) sanitize() PoolConfig {
	conf := *config
	if conf.QueueSize < 1 {
		logger.Error("Sanitizing invalid reportpool queue size", "provided", conf.QueueSize, "updated", DefaultPoolConfig.QueueSize)
		conf.QueueSize = DefaultPoolConfig.QueueSize
	}
	if conf.NumHandlers < 1 {
		conf.NumHandlers = DefaultPoolConfig.NumHandlers
	}
	if conf.Rejournal < time.Second {
		logger.Error("Sanitizing invalid reportpool journal time", "provided", conf.Rejournal, "updated", time.Second)
		conf.Rejournal = time.Second
	}
	return conf
}

type queued struct {
	kind    types.ReportKind
	payload []byte
}

// Pool validates and persists inbound reports.
type Pool struct {
	config PoolConfig
	cfg    *params.FundConfig

	store  Store
	stakes StakeSource
	cview  ConsensusView

	// onAccept runs for every accepted report on a handler goroutine.
	onAccept func(types.Report)

	journal *reportJournal

	queue  chan queued
	quit   chan struct{}
	wg     sync.WaitGroup

	mu       sync.RWMutex
	accepted map[types.ReportKind][]types.Report
}

// NewPool wires the check pipeline. cview and onAccept may be nil.
func NewPool(config PoolConfig, cfg *params.FundConfig, store Store, stakes StakeSource, cview ConsensusView, onAccept func(types.Report)) *Pool {
	config = (&config).sanitize()
	p := &Pool{
		config:   config,
		cfg:      cfg,
		store:    store,
		stakes:   stakes,
		cview:    cview,
		onAccept: onAccept,
		queue:    make(chan queued, config.QueueSize),
		quit:     make(chan struct{}),
		accepted: make(map[types.ReportKind][]types.Report),
	}
	if config.Journal != "" {
		p.journal = newReportJournal(config.Journal)
		if err := p.journal.load(func(kind types.ReportKind, payload []byte) error {
			_, err := p.process(queued{kind: kind, payload: payload})
			return err
		}); err != nil {
			logger.Error("Failed to load report journal", "err", err)
		}
	}
	return p
}

// Start launches the handler goroutines and the journal rotation loop.
func (p *Pool) Start() {
	for i := 0; i < p.config.NumHandlers; i++ {
		p.wg.Add(1)
		go p.handleLoop()
	}
	if p.journal != nil {
		p.wg.Add(1)
		go p.journalLoop()
	}
	logger.Info("Report pool started", "numHandlers", p.config.NumHandlers, "queueSize", p.config.QueueSize)
}

// Stop halts the handlers without draining the queue. Items still queued
// are dropped; they are not journaled, since only accepted reports reach
// the journal.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
	if p.journal != nil {
		p.journal.close()
	}
	logger.Info("Report pool stopped")
}

// Enqueue hands one raw wire payload to the pool. Reports submitted in
// order by one signer are processed in order for a single handler; callers
// needing strict per-signer ordering run with NumHandlers = 1.
func (p *Pool) Enqueue(kind types.ReportKind, payload []byte) error {
	select {
	case p.queue <- queued{kind: kind, payload: append([]byte(nil), payload...)}:
		queueGauge.Update(int64(len(p.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) handleLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case item := <-p.queue:
			queueGauge.Update(int64(len(p.queue)))
			if r, err := p.process(item); err != nil {
				rejectedCounter.Inc(1)
				logger.Debug("Report rejected", "kind", item.kind, "err", err)
			} else {
				acceptedCounter.Inc(1)
				if p.journal != nil {
					if err := p.journal.insert(item.kind, item.payload); err != nil {
						logger.Error("Failed to journal report", "err", err)
					}
				}
				if p.onAccept != nil {
					p.onAccept(r)
				}
			}
		}
	}
}

func (p *Pool) journalLoop() {
	defer p.wg.Done()
	rotate := time.NewTicker(p.config.Rejournal)
	defer rotate.Stop()
	for {
		select {
		case <-p.quit:
			return
		case <-rotate.C:
			if err := p.journal.rotate(p.Recent(types.PricesKind, params.PricesMaxAge), p.Recent(types.EmissionsKind, params.EmissionsMaxAge), p.Recent(types.NavKind, params.NavMaxAge)); err != nil {
				logger.Error("Failed to rotate report journal", "err", err)
			}
		}
	}
}

func maxAgeOf(kind types.ReportKind) time.Duration {
	switch kind {
	case types.EmissionsKind:
		return params.EmissionsMaxAge
	case types.NavKind:
		return params.NavMaxAge
	default:
		return params.PricesMaxAge
	}
}

// process runs the full check sequence and persists the report. The checks
// short-circuit in the documented order.
func (p *Pool) process(item queued) (types.Report, error) {
	now := time.Now().UTC()

	// Schema, value domains and signer presence.
	r, err := types.ParseReport(item.kind, item.payload)
	if err != nil {
		return nil, err
	}

	// Freshness.
	age := now.Sub(r.Timestamp())
	if age > maxAgeOf(item.kind) {
		return nil, errors.Wrapf(ErrStaleReport, "age %s", age)
	}
	if age < -params.MaxClockSkew {
		return nil, errors.Wrapf(ErrFutureReport, "skew %s", -age)
	}

	// Signer identity policy.
	if p.config.RequireHotkeySig {
		switch v := r.(type) {
		case *types.EmissionsReport:
			if v.Scheme == "HMAC" {
				return nil, ErrHMACNotAccepted
			}
		case *types.PriceReport:
			if v.Scheme == "HMAC" {
				return nil, ErrHMACNotAccepted
			}
		case *types.NavReport:
			if v.Scheme == "HMAC" {
				return nil, ErrHMACNotAccepted
			}
		}
	}

	// Signature over the canonical form.
	if err := r.VerifySignature(p.config.HMACSecret); err != nil {
		return nil, err
	}

	// Stake lookup against a sufficiently fresh chain snapshot.
	if p.stakes.SnapshotAge() > time.Duration(p.cfg.EpochPeriodDays)*24*time.Hour {
		return nil, ErrStakeSnapshotOld
	}
	if p.stakes.StakeOf(r.Signer()) <= 0 {
		return nil, ErrUnknownSigner
	}

	// Sanity band against the current consensus price.
	if pr, ok := r.(*types.PriceReport); ok && p.cview != nil {
		band := p.cfg.SanityBand
		for uid, price := range pr.Prices {
			ref, ok := p.cview.LatestPrice(uid)
			if !ok || ref <= 0 {
				continue
			}
			if price > ref*band || price < ref/band {
				return nil, errors.Wrapf(ErrOutOfSanityBand, "netuid %d price %g ref %g", uid, price, ref)
			}
		}
	}

	// Persist; duplicates are a counted no-op.
	if err := p.store.WriteReport(r); err != nil {
		if errors.Cause(err) == database.ErrDuplicateReport {
			duplicateCounter.Inc(1)
			return nil, err
		}
		return nil, err
	}

	p.mu.Lock()
	p.accepted[item.kind] = append(p.accepted[item.kind], r)
	p.mu.Unlock()
	return r, nil
}

// Recent returns the accepted reports of a kind still inside the window,
// pruning older ones as a side effect. The consensus collector drains its
// samples from here.
func (p *Pool) Recent(kind types.ReportKind, window time.Duration) []types.Report {
	cutoff := time.Now().UTC().Add(-window)
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.accepted[kind][:0]
	for _, r := range p.accepted[kind] {
		if r.Timestamp().After(cutoff) {
			kept = append(kept, r)
		}
	}
	p.accepted[kind] = kept
	out := make([]types.Report, len(kept))
	copy(out, kept)
	return out
}
