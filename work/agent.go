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

package work

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ed25519"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/crypto"
	"github.com/alexlange1/alphamind/fund/types"
)

var (
	// ErrSignerMisconfigured is fatal: the worker exits with a distinct
	// code instead of producing unverifiable reports.
	ErrSignerMisconfigured = errors.New("signer configuration broken")
)

// ChainObserver abstracts the external-chain reads the miner needs. The
// production implementation (an RPC client against the external network)
// lives outside this repository.
type ChainObserver interface {
	// Emissions returns the per-constituent emissions figure for the
	// current epoch day.
	Emissions(ctx context.Context) (map[common.NetUID]float64, common.EpochDay, error)
	// Prices returns the per-constituent price snapshot in TAO terms.
	Prices(ctx context.Context) (map[common.NetUID]float64, error)
	// Stake returns the miner's registered stake.
	Stake(ctx context.Context) (float64, error)
}

// Submitter ships signed wire payloads to the validator network.
type Submitter interface {
	Submit(ctx context.Context, kind types.ReportKind, payload []byte) error
}

// SignAgent signs canonical report bytes on behalf of the miner identity.
// Agents register with the worker the way mining agents register with a
// block worker.
type SignAgent interface {
	Hotkey() common.Hotkey
	Scheme() crypto.SigScheme
	Sign(canonical []byte) ([]byte, error)
}

// hotkeyAgent is the production agent: an in-process ed25519 key.
type hotkeyAgent struct {
	hotkey common.Hotkey
	priv   ed25519.PrivateKey
}

// NewHotkeyAgent validates the key pair once up front; a mismatched pair is
// a fatal misconfiguration, not a per-report error.
func NewHotkeyAgent(priv ed25519.PrivateKey) (SignAgent, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.Wrap(ErrSignerMisconfigured, "bad private key size")
	}
	hotkey := crypto.HotkeyOf(priv)
	probe := []byte("alphamind-agent-probe")
	if !crypto.VerifyHotkey(hotkey, probe, ed25519.Sign(priv, probe)) {
		return nil, errors.Wrap(ErrSignerMisconfigured, "self-check failed")
	}
	return &hotkeyAgent{hotkey: hotkey, priv: priv}, nil
}

func (a *hotkeyAgent) Hotkey() common.Hotkey     { return a.hotkey }
func (a *hotkeyAgent) Scheme() crypto.SigScheme  { return crypto.SchemeHotkey }

func (a *hotkeyAgent) Sign(canonical []byte) ([]byte, error) {
	return ed25519.Sign(a.priv, canonical), nil
}

// hmacAgent is the legacy shared-secret agent, kept for networks that have
// not finished the hotkey migration.
type hmacAgent struct {
	hotkey common.Hotkey
	secret []byte
}

func NewHMACAgent(hotkey common.Hotkey, secret []byte) (SignAgent, error) {
	if len(secret) == 0 {
		return nil, errors.Wrap(ErrSignerMisconfigured, "empty hmac secret")
	}
	return &hmacAgent{hotkey: hotkey, secret: secret}, nil
}

func (a *hmacAgent) Hotkey() common.Hotkey    { return a.hotkey }
func (a *hmacAgent) Scheme() crypto.SigScheme { return crypto.SchemeHMAC }

func (a *hmacAgent) Sign(canonical []byte) ([]byte, error) {
	return crypto.SignHMAC(a.secret, canonical), nil
}

// nextDailyTick returns the next occurrence of the daily snapshot offset
// (e.g. 00:05 UTC) strictly after now.
func nextDailyTick(now time.Time, offset time.Duration) time.Time {
	day := common.DayOfTime(now).Time().Add(offset)
	if day.After(now) {
		return day
	}
	return day.Add(24 * time.Hour)
}
