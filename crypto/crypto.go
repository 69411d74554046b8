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

package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/sha3"

	"github.com/alexlange1/alphamind/common"
)

// SigScheme names the signature scheme attached to a report.
type SigScheme string

const (
	SchemeHotkey SigScheme = "HOTKEY"
	SchemeHMAC   SigScheme = "HMAC"
)

var (
	ErrUnknownScheme = errors.New("unknown signature scheme")
	ErrShortKey      = errors.New("signing key shorter than required")
)

// GenerateHotkey creates a fresh ed25519 identity. The public key is the
// hotkey; the private key stays with the signer.
func GenerateHotkey() (common.Hotkey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return common.Hotkey{}, nil, err
	}
	return common.BytesToHotkey(pub), priv, nil
}

// HotkeyOf extracts the hotkey for an ed25519 private key.
func HotkeyOf(priv ed25519.PrivateKey) common.Hotkey {
	return common.BytesToHotkey(priv.Public().(ed25519.PublicKey))
}

// Sign signs the canonical byte form of a report.
func Sign(priv ed25519.PrivateKey, canonical []byte) []byte {
	return ed25519.Sign(priv, canonical)
}

// VerifyHotkey checks sig against the canonical bytes under the hotkey's
// ed25519 public key.
func VerifyHotkey(hotkey common.Hotkey, canonical, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(hotkey.Bytes()), canonical, sig)
}

// SignHMAC produces the HMAC-SHA256 tag used by the legacy shared-secret
// scheme.
func SignHMAC(secret, canonical []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonical)
	return mac.Sum(nil)
}

// VerifyHMAC checks a legacy shared-secret tag in constant time.
func VerifyHMAC(secret, canonical, sig []byte) bool {
	return hmac.Equal(sig, SignHMAC(secret, canonical))
}

// Verify dispatches on the scheme tag.
func Verify(scheme SigScheme, hotkey common.Hotkey, secret, canonical, sig []byte) (bool, error) {
	switch scheme {
	case SchemeHotkey, "":
		return VerifyHotkey(hotkey, canonical, sig), nil
	case SchemeHMAC:
		return VerifyHMAC(secret, canonical, sig), nil
	default:
		return false, ErrUnknownScheme
	}
}

// Sha256Hex returns the lowercase hex SHA-256 digest of b. Canonical epoch
// artifacts persist this next to the artifact itself.
func Sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short keccak-based tag of a hotkey for log lines,
// where full 64-char identities drown the output.
func Fingerprint(h common.Hotkey) string {
	d := sha3.NewLegacyKeccak256()
	d.Write(h.Bytes())
	return hex.EncodeToString(d.Sum(nil)[:4])
}
