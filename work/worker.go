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

// Package work runs the miner: observe the external chain on the two
// schedules, sign canonical report bytes through the agent, and submit.
package work

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/alexlange1/alphamind/crypto"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/log"
	"github.com/alexlange1/alphamind/params"
)

var logger = log.NewModuleLogger(log.Work)

const (
	// submitRetries bounds the per-cycle submission attempts.
	submitRetries = 3
)

var (
	emissionsSentCounter = metrics.NewRegisteredCounter("work/emissions/sent", nil)
	pricesSentCounter    = metrics.NewRegisteredCounter("work/prices/sent", nil)
	fetchFailCounter     = metrics.NewRegisteredCounter("work/fetch/failures", nil)
	submitFailCounter    = metrics.NewRegisteredCounter("work/submit/failures", nil)
)

// WorkerConfig are the configuration parameters of the miner worker.
type WorkerConfig struct {
	MinerID string

	// EmissionsSnapshotOffset is the offset into the UTC day of the daily
	// emissions observation.
	EmissionsSnapshotOffset time.Duration
	PriceInterval           time.Duration

	// SubmitTimeout bounds each submission attempt; ShutdownGrace bounds
	// the in-flight submission on shutdown.
	SubmitTimeout time.Duration
	ShutdownGrace time.Duration
}

// DefaultWorkerConfig contains the default configurations for the worker.
var DefaultWorkerConfig = WorkerConfig{
	EmissionsSnapshotOffset: 5 * time.Minute,
	PriceInterval:           60 * time.Second,
	SubmitTimeout:           30 * time.Second,
	ShutdownGrace:           30 * time.Second,
}

// Worker is the miner main object: it drives the observation schedules and
// owns the agent and submitter.
type Worker struct {
	config   WorkerConfig
	observer ChainObserver
	agent    SignAgent
	sub      Submitter

	quit chan struct{}
	wg   sync.WaitGroup

	// fatalCh surfaces the signer-misconfigured condition to the daemon,
	// which exits with a distinct code.
	fatalCh chan error
}

func NewWorker(config WorkerConfig, observer ChainObserver, agent SignAgent, sub Submitter) *Worker {
	if config.PriceInterval <= 0 {
		config.PriceInterval = DefaultWorkerConfig.PriceInterval
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = DefaultWorkerConfig.SubmitTimeout
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultWorkerConfig.ShutdownGrace
	}
	return &Worker{
		config:   config,
		observer: observer,
		agent:    agent,
		sub:      sub,
		quit:     make(chan struct{}),
		fatalCh:  make(chan error, 1),
	}
}

// Fatal delivers the worker's fatal error, if any.
func (w *Worker) Fatal() <-chan error { return w.fatalCh }

func (w *Worker) Start() {
	w.wg.Add(2)
	go w.priceLoop()
	go w.emissionsLoop()
	logger.Info("Miner worker started", "miner", w.config.MinerID, "hotkey", crypto.Fingerprint(w.agent.Hotkey()))
}

// Stop lets the in-flight submission finish inside the grace deadline, then
// returns.
func (w *Worker) Stop() {
	close(w.quit)
	w.wg.Wait()
	logger.Info("Miner worker stopped", "miner", w.config.MinerID)
}

func (w *Worker) priceLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.config.PriceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.quit:
			return
		case <-ticker.C:
			if err := w.priceCycle(); err != nil {
				if errors.Cause(err) == ErrSignerMisconfigured {
					w.reportFatal(err)
					return
				}
				logger.Error("Price cycle failed", "err", err)
			}
		}
	}
}

func (w *Worker) emissionsLoop() {
	defer w.wg.Done()
	for {
		wait := time.Until(nextDailyTick(time.Now().UTC(), w.config.EmissionsSnapshotOffset))
		timer := time.NewTimer(wait)
		select {
		case <-w.quit:
			timer.Stop()
			return
		case <-timer.C:
			if err := w.emissionsCycle(); err != nil {
				if errors.Cause(err) == ErrSignerMisconfigured {
					w.reportFatal(err)
					return
				}
				logger.Error("Emissions cycle failed", "err", err)
			}
		}
	}
}

func (w *Worker) reportFatal(err error) {
	select {
	case w.fatalCh <- err:
	default:
	}
}

// priceCycle is one cooperative unit: fetch, sign, submit. A fetch failure
// skips the cycle; the next tick retries.
func (w *Worker) priceCycle() error {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.PriceInterval)
	defer cancel()

	prices, err := w.observer.Prices(ctx)
	if err != nil {
		fetchFailCounter.Inc(1)
		return errors.Wrap(err, "price fetch")
	}
	stake, err := w.observer.Stake(ctx)
	if err != nil {
		fetchFailCounter.Inc(1)
		return errors.Wrap(err, "stake fetch")
	}

	r := &types.PriceReport{
		SchemaVersion: params.ReportSchemaVersion,
		Ts:            time.Now().UTC().Truncate(time.Second),
		Prices:        prices,
		MinerID:       w.config.MinerID,
		Hotkey:        w.agent.Hotkey(),
		StakeTao:      stake,
		Scheme:        w.agent.Scheme(),
	}
	payload, err := w.signReport(r, func(sig []byte) { r.Signature = sig })
	if err != nil {
		return err
	}
	if err := w.submitWithRetry(ctx, types.PricesKind, payload); err != nil {
		return err
	}
	pricesSentCounter.Inc(1)
	return nil
}

func (w *Worker) emissionsCycle() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	emissions, day, err := w.observer.Emissions(ctx)
	if err != nil {
		fetchFailCounter.Inc(1)
		return errors.Wrap(err, "emissions fetch")
	}
	stake, err := w.observer.Stake(ctx)
	if err != nil {
		fetchFailCounter.Inc(1)
		return errors.Wrap(err, "stake fetch")
	}

	r := &types.EmissionsReport{
		SchemaVersion: params.ReportSchemaVersion,
		SnapshotTs:    time.Now().UTC().Truncate(time.Second),
		EpochDay:      day,
		Emissions:     emissions,
		MinerID:       w.config.MinerID,
		Hotkey:        w.agent.Hotkey(),
		StakeTao:      stake,
		Scheme:        w.agent.Scheme(),
	}
	payload, err := w.signReport(r, func(sig []byte) { r.Signature = sig })
	if err != nil {
		return err
	}
	if err := w.submitWithRetry(ctx, types.EmissionsKind, payload); err != nil {
		return err
	}
	emissionsSentCounter.Inc(1)
	logger.Info("Emissions report submitted", "epochDay", day, "constituents", len(emissions))
	return nil
}

// signReport signs the canonical bytes and renders the wire payload. A
// signing failure is fatal by contract.
func (w *Worker) signReport(r types.Report, attach func([]byte)) ([]byte, error) {
	canonical, err := r.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	sig, err := w.agent.Sign(canonical)
	if err != nil {
		return nil, errors.Wrap(ErrSignerMisconfigured, err.Error())
	}
	attach(sig)
	return types.MarshalWire(r)
}

// submitWithRetry backs off exponentially inside the cycle budget and
// drops the report after the attempt budget.
func (w *Worker) submitWithRetry(ctx context.Context, kind types.ReportKind, payload []byte) error {
	var lastErr error
	for attempt := 0; attempt < submitRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			case <-w.quit:
				// Shutdown: one last in-flight attempt under the grace
				// deadline, then give up.
				graceCtx, cancel := context.WithTimeout(context.Background(), w.config.ShutdownGrace)
				err := w.sub.Submit(graceCtx, kind, payload)
				cancel()
				return err
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, w.config.SubmitTimeout)
		err := w.sub.Submit(attemptCtx, kind, payload)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		submitFailCounter.Inc(1)
		logger.Warn("Submission attempt failed", "kind", kind, "attempt", attempt+1, "err", err)
	}
	return errors.Wrapf(lastErr, "dropping %s report after %d attempts", kind, submitRetries)
}

// ObserveOnce is the manual trigger behind the admin force-snapshot path:
// one immediate emissions cycle outside the schedule.
func (w *Worker) ObserveOnce() error {
	return w.emissionsCycle()
}
