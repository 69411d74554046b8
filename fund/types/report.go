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

package types

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/crypto"
	"github.com/alexlange1/alphamind/params"
)

// ReportKind discriminates the report variants on the wire and in storage.
type ReportKind string

const (
	EmissionsKind ReportKind = "emissions"
	PricesKind    ReportKind = "prices"
	NavKind       ReportKind = "nav"
)

// Input rejection errors. These surface to submitters unchanged.
var (
	ErrBadSchema     = errors.New("unsupported report schema")
	ErrBadValue      = errors.New("report value out of domain")
	ErrBadSignature  = errors.New("report signature does not verify")
	ErrMissingSigner = errors.New("report signer identity missing")
	ErrFutureBlock   = errors.New("enriched price entry dated in the future")
)

// tsFormat is the on-wire timestamp form: ISO-8601 UTC with a Z suffix and
// second precision. Canonical bytes depend on it being fixed.
const tsFormat = "2006-01-02T15:04:05Z"

// Report is the interface shared by the three report variants.
type Report interface {
	Kind() ReportKind
	Timestamp() time.Time
	Signer() common.Hotkey
	// CanonicalBytes is the deterministic serialization with the signature
	// stripped; it is the byte string that was signed and the byte string
	// that gets digested.
	CanonicalBytes() ([]byte, error)
	// Validate runs the stateless schema and value-domain checks.
	Validate() error
	// VerifySignature checks the attached signature over CanonicalBytes.
	// The secret is only consulted for the legacy HMAC scheme.
	VerifySignature(secret []byte) error
}

// PoolDetail carries the optional enrichment of a price entry.
type PoolDetail struct {
	Token            string  `json:"token,omitempty"`
	PoolReserveToken float64 `json:"pool_reserve_token"`
	PoolReserveTao   float64 `json:"pool_reserve_tao"`
	Block            uint64  `json:"block,omitempty"`
	BlockTime        string  `json:"block_time,omitempty"`
	PinSource        string  `json:"pin_source,omitempty"`
}

// EmissionsReport is a miner's daily per-constituent emissions observation.
type EmissionsReport struct {
	SchemaVersion string
	SnapshotTs    time.Time
	EpochDay      common.EpochDay
	Emissions     map[common.NetUID]float64
	MinerID       string
	Hotkey        common.Hotkey
	StakeTao      float64
	Signature     []byte
	Scheme        crypto.SigScheme
}

// PriceReport is a miner's per-constituent price observation in TAO terms.
type PriceReport struct {
	SchemaVersion string
	Ts            time.Time
	Prices        map[common.NetUID]float64
	Pools         map[common.NetUID]PoolDetail
	MinerID       string
	Hotkey        common.Hotkey
	StakeTao      float64
	Signature     []byte
	Scheme        crypto.SigScheme
}

// NavReport is an advisory cross-check of the vault's own NAV derivation.
type NavReport struct {
	SchemaVersion  string
	Ts             time.Time
	NavPerTokenTao float64
	TotalSupply    float64
	MinerID        string
	Hotkey         common.Hotkey
	Signature      []byte
	Scheme         crypto.SigScheme
}

func (r *EmissionsReport) Kind() ReportKind      { return EmissionsKind }
func (r *EmissionsReport) Timestamp() time.Time  { return r.SnapshotTs }
func (r *EmissionsReport) Signer() common.Hotkey { return r.Hotkey }

func (r *PriceReport) Kind() ReportKind      { return PricesKind }
func (r *PriceReport) Timestamp() time.Time  { return r.Ts }
func (r *PriceReport) Signer() common.Hotkey { return r.Hotkey }

func (r *NavReport) Kind() ReportKind      { return NavKind }
func (r *NavReport) Timestamp() time.Time  { return r.Ts }
func (r *NavReport) Signer() common.Hotkey { return r.Hotkey }

// uidMap renders a constituent map with stringified integer keys, the shape
// the wire format uses. json.Marshal sorts the keys, which together with the
// compact output makes the rendering canonical.
func uidMap(m map[common.NetUID]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for uid, v := range m {
		out[uid.String()] = v
	}
	return out
}

func (r *EmissionsReport) canonicalObject() map[string]interface{} {
	return map[string]interface{}{
		"schema_version":      r.SchemaVersion,
		"snapshot_ts":         r.SnapshotTs.UTC().Format(tsFormat),
		"epoch_day":           int64(r.EpochDay),
		"emissions_by_netuid": uidMap(r.Emissions),
		"miner_id":            r.MinerID,
		"stake_tao":           r.StakeTao,
		"signer_ss58":         r.Hotkey.Hex(),
		"sig_scheme":          string(r.Scheme),
	}
}

func (r *EmissionsReport) CanonicalBytes() ([]byte, error) {
	return json.Marshal(r.canonicalObject())
}

func (r *PriceReport) canonicalObject() map[string]interface{} {
	obj := map[string]interface{}{
		"schema_version":   r.SchemaVersion,
		"ts":               r.Ts.UTC().Format(tsFormat),
		"prices_by_netuid": uidMap(r.Prices),
		"miner_id":         r.MinerID,
		"stake_tao":        r.StakeTao,
		"signer_ss58":      r.Hotkey.Hex(),
		"sig_scheme":       string(r.Scheme),
	}
	if len(r.Pools) > 0 {
		pools := make(map[string]PoolDetail, len(r.Pools))
		for uid, p := range r.Pools {
			pools[uid.String()] = p
		}
		obj["pools"] = pools
	}
	return obj
}

func (r *PriceReport) CanonicalBytes() ([]byte, error) {
	return json.Marshal(r.canonicalObject())
}

func (r *NavReport) canonicalObject() map[string]interface{} {
	return map[string]interface{}{
		"schema_version":    r.SchemaVersion,
		"ts":                r.Ts.UTC().Format(tsFormat),
		"nav_per_token_tao": r.NavPerTokenTao,
		"total_supply":      r.TotalSupply,
		"miner_id":          r.MinerID,
		"signer_ss58":       r.Hotkey.Hex(),
		"sig_scheme":        string(r.Scheme),
	}
}

func (r *NavReport) CanonicalBytes() ([]byte, error) {
	return json.Marshal(r.canonicalObject())
}

func validScheme(s crypto.SigScheme) bool {
	return s == "" || s == crypto.SchemeHotkey || s == crypto.SchemeHMAC
}

func (r *EmissionsReport) Validate() error {
	if r.SchemaVersion != params.ReportSchemaVersion {
		return errors.Wrapf(ErrBadSchema, "version %q", r.SchemaVersion)
	}
	if common.EmptyHotkey(r.Hotkey) {
		return ErrMissingSigner
	}
	if !validScheme(r.Scheme) {
		return errors.Wrapf(ErrBadSchema, "scheme %q", r.Scheme)
	}
	if r.StakeTao < 0 || math.IsNaN(r.StakeTao) || math.IsInf(r.StakeTao, 0) {
		return errors.Wrap(ErrBadValue, "stake")
	}
	if len(r.Emissions) == 0 {
		return errors.Wrap(ErrBadValue, "empty emissions map")
	}
	for uid, v := range r.Emissions {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrBadValue, "emissions for netuid %d", uid)
		}
	}
	return nil
}

func (r *PriceReport) Validate() error {
	if r.SchemaVersion != params.ReportSchemaVersion {
		return errors.Wrapf(ErrBadSchema, "version %q", r.SchemaVersion)
	}
	if common.EmptyHotkey(r.Hotkey) {
		return ErrMissingSigner
	}
	if !validScheme(r.Scheme) {
		return errors.Wrapf(ErrBadSchema, "scheme %q", r.Scheme)
	}
	if len(r.Prices) == 0 {
		return errors.Wrap(ErrBadValue, "empty price map")
	}
	for uid, v := range r.Prices {
		if !(v > 0) || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrBadValue, "price for netuid %d", uid)
		}
	}
	now := time.Now().UTC()
	for uid, p := range r.Pools {
		if p.PoolReserveToken < 0 || p.PoolReserveTao < 0 {
			return errors.Wrapf(ErrBadValue, "pool reserves for netuid %d", uid)
		}
		if p.BlockTime != "" {
			bt, err := time.Parse(tsFormat, p.BlockTime)
			if err != nil {
				return errors.Wrapf(ErrBadValue, "block_time for netuid %d", uid)
			}
			if bt.After(now.Add(params.MaxClockSkew)) {
				return errors.Wrapf(ErrFutureBlock, "netuid %d", uid)
			}
		}
	}
	return nil
}

func (r *NavReport) Validate() error {
	if r.SchemaVersion != params.ReportSchemaVersion {
		return errors.Wrapf(ErrBadSchema, "version %q", r.SchemaVersion)
	}
	if common.EmptyHotkey(r.Hotkey) {
		return ErrMissingSigner
	}
	if !validScheme(r.Scheme) {
		return errors.Wrapf(ErrBadSchema, "scheme %q", r.Scheme)
	}
	if r.NavPerTokenTao < 0 || r.TotalSupply < 0 {
		return errors.Wrap(ErrBadValue, "negative nav or supply")
	}
	return nil
}

func verifyReport(r Report, scheme crypto.SigScheme, sig, secret []byte) error {
	canonical, err := r.CanonicalBytes()
	if err != nil {
		return err
	}
	ok, err := crypto.Verify(scheme, r.Signer(), secret, canonical, sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBadSignature
	}
	return nil
}

func (r *EmissionsReport) VerifySignature(secret []byte) error {
	return verifyReport(r, r.Scheme, r.Signature, secret)
}

func (r *PriceReport) VerifySignature(secret []byte) error {
	return verifyReport(r, r.Scheme, r.Signature, secret)
}

func (r *NavReport) VerifySignature(secret []byte) error {
	return verifyReport(r, r.Scheme, r.Signature, secret)
}

// SignWith signs the canonical form and attaches the signature.
func SignWith(r Report, sign func(canonical []byte) ([]byte, error)) ([]byte, error) {
	canonical, err := r.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	return sign(canonical)
}

// SignatureHex renders a signature for the wire.
func SignatureHex(sig []byte) string { return hex.EncodeToString(sig) }
