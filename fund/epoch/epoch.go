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

// Package epoch drives the publication lifecycle: boundary detection on the
// biweekly schedule, canonical artifact construction and hashing, and the
// anchor call with its retry budget. No epoch is ever skipped; a failed
// anchor leaves a locally authoritative artifact behind.
package epoch

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/log"
	"github.com/alexlange1/alphamind/params"
)

var logger = log.NewModuleLogger(log.FundEpoch)

var (
	ErrAnchorFailed    = errors.New("anchor publishing exhausted its attempts")
	ErrUnknownEpoch    = errors.New("epoch has no finalized artifact")
	ErrAlreadyAnchored = errors.New("epoch already anchored")
)

var (
	publishAttemptCounter = metrics.NewRegisteredCounter("epoch/publish/attempts", nil)
	publishFailCounter    = metrics.NewRegisteredCounter("epoch/publish/failures", nil)
	anchoredGauge         = metrics.NewRegisteredGauge("epoch/anchored", nil)
)

// PublishReceipt is what the external anchor contract returns.
type PublishReceipt struct {
	TxHash  string
	ChainID string
	Status  string
}

// Publisher is the on-chain anchor driver the core consumes; its
// implementation lives outside this repository.
type Publisher interface {
	Publish(ctx context.Context, epochID common.EpochID, digestHex string, signerID string) (PublishReceipt, error)
	Verify(ctx context.Context, epochID common.EpochID) (digestHex string, status string, err error)
}

// IndexOf returns the epoch counter for a moment on the biweekly schedule
// anchored at the genesis Sunday.
func IndexOf(t time.Time, periodDays int) common.EpochID {
	day := int64(common.DayOfTime(t)) - params.EpochGenesisUnixDay
	if day < 0 {
		return 0
	}
	return common.EpochID(day / int64(periodDays))
}

// BoundaryOf returns the UTC start of the given epoch.
func BoundaryOf(id common.EpochID, periodDays int) time.Time {
	day := params.EpochGenesisUnixDay + int64(id)*int64(periodDays)
	return common.EpochDay(day).Time()
}

// NextBoundaryAfter returns the first epoch boundary strictly after t.
func NextBoundaryAfter(t time.Time, periodDays int) time.Time {
	return BoundaryOf(IndexOf(t, periodDays)+1, periodDays)
}

// Store is the slice of the database the machine persists through.
type Store interface {
	WriteEpochArtifact(epoch common.EpochID, artifact []byte, digestHex string) error
	ReadEpochArtifact(epoch common.EpochID) ([]byte, string, error)
	WritePublicationRecord(rec *types.PublicationRecord) error
	ReadPublicationRecord(epoch common.EpochID) (*types.PublicationRecord, error)
	WriteEpochScores(epoch common.EpochID, scores map[string]float64) error
	WriteAnchoredEpoch(epoch common.EpochID) error
}

// Machine finalizes one epoch at a time. It is driven by the validator's
// epoch timer task; methods are not safe for concurrent use by design (the
// single timer task is the only caller).
type Machine struct {
	cfg       *params.FundConfig
	store     Store
	publisher Publisher
	signerID  string

	// sleep is swapped by tests to keep the backoff virtual.
	sleep func(time.Duration)
}

func NewMachine(cfg *params.FundConfig, store Store, publisher Publisher, signerID string) *Machine {
	return &Machine{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		signerID:  signerID,
		sleep:     time.Sleep,
	}
}

// SetSignerID swaps the identity used for future anchor calls, the admin
// rotate-signer path.
func (m *Machine) SetSignerID(signerID string) {
	m.signerID = signerID
}

// Finalize freezes the weight set into the canonical artifact, persists it
// with its digest and score map, then runs the anchor attempts. The
// returned record reflects the terminal publication state; an anchor
// failure is returned as ErrAnchorFailed but the artifact stays canonical.
func (m *Machine) Finalize(ctx context.Context, w *types.WeightSet, scores map[string]float64) (*types.PublicationRecord, error) {
	if err := w.CheckInvariants(); err != nil {
		return nil, err
	}
	artifact, err := w.MarshalArtifact()
	if err != nil {
		return nil, err
	}
	digest, err := w.Digest()
	if err != nil {
		return nil, err
	}

	if err := m.store.WriteEpochArtifact(w.EpochID, artifact, digest); err != nil {
		return nil, err
	}
	if err := m.store.WriteEpochScores(w.EpochID, scores); err != nil {
		return nil, err
	}
	logger.Info("Epoch artifact finalized", "epoch", w.EpochID, "digest", digest, "constituents", len(w.Constituents))

	rec := &types.PublicationRecord{
		EpochID:   w.EpochID,
		State:     types.PubFinalizing,
		DigestHex: digest,
	}
	if err := m.store.WritePublicationRecord(rec); err != nil {
		return nil, err
	}
	return m.anchor(ctx, rec)
}

// anchor runs the attempt/backoff budget for a finalized artifact.
func (m *Machine) anchor(ctx context.Context, rec *types.PublicationRecord) (*types.PublicationRecord, error) {
	var lastErr error
	for attempt := 0; attempt < m.cfg.PublishMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if backoff > m.cfg.PublishBackoffCap {
				backoff = m.cfg.PublishBackoffCap
			}
			m.sleep(backoff)
		}
		rec.AttemptCount++
		rec.LastAttempt = time.Now().UTC()
		publishAttemptCounter.Inc(1)

		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.PublishAttemptWait)
		receipt, err := m.publisher.Publish(attemptCtx, rec.EpochID, rec.DigestHex, m.signerID)
		cancel()
		if err == nil {
			rec.State = types.PubPublished
			rec.AnchorOK = true
			rec.TxHash = receipt.TxHash
			rec.ChainID = receipt.ChainID
			if serr := m.store.WritePublicationRecord(rec); serr != nil {
				return rec, serr
			}
			if serr := m.store.WriteAnchoredEpoch(rec.EpochID); serr != nil {
				return rec, serr
			}
			anchoredGauge.Update(int64(rec.EpochID))
			logger.Info("Epoch anchored", "epoch", rec.EpochID, "txHash", receipt.TxHash, "attempts", rec.AttemptCount)
			return rec, nil
		}
		lastErr = err
		publishFailCounter.Inc(1)
		logger.Warn("Anchor attempt failed", "epoch", rec.EpochID, "attempt", rec.AttemptCount, "err", err)

		select {
		case <-ctx.Done():
			attempt = m.cfg.PublishMaxAttempts
		default:
		}
	}

	// Terminal publish failure: the artifact is still canonical and the
	// record stays retriable through the admin surface.
	rec.State = types.PubAnchorFailed
	rec.AnchorOK = false
	if serr := m.store.WritePublicationRecord(rec); serr != nil {
		return rec, serr
	}
	return rec, errors.Wrapf(ErrAnchorFailed, "%d attempts, last: %v", rec.AttemptCount, lastErr)
}

// RetryAnchor re-arms the anchor budget for an epoch whose publish
// previously failed, the admin force-publish path.
func (m *Machine) RetryAnchor(ctx context.Context, epoch common.EpochID) (*types.PublicationRecord, error) {
	rec, err := m.store.ReadPublicationRecord(epoch)
	if err != nil {
		return nil, ErrUnknownEpoch
	}
	if rec.AnchorOK {
		return rec, ErrAlreadyAnchored
	}
	return m.anchor(ctx, rec)
}

// Archive moves a published epoch's record to the archived state once its
// successor publishes.
func (m *Machine) Archive(epoch common.EpochID) error {
	rec, err := m.store.ReadPublicationRecord(epoch)
	if err != nil {
		return ErrUnknownEpoch
	}
	if rec.State != types.PubPublished && rec.State != types.PubAnchorFailed {
		return nil
	}
	rec.State = types.PubArchived
	return m.store.WritePublicationRecord(rec)
}
