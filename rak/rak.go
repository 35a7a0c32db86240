// Package rak implements the runtime attestation key: the enclave's
// per-instance signing identity, bound into a remote attestation so a
// verifier can check a session's peer without a round trip to the
// attestation service for every request.
//
// This is a direct port of the reference runtime's RAK handling: same
// context string, same report-data construction, same binding check. The
// attestation-report verifier itself stays an external collaborator (the
// Verifier interface below); this package only owns the key and the binding
// math.
package rak

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// HashContext is prepended to the RAK public key before hashing to produce
// report data, carried over verbatim from the reference implementation so
// that report data computed by this package and by a runtime written in a
// different language agree byte-for-byte.
var HashContext = [8]byte{'E', 'k', 'N', 'o', 'd', 'R', 'e', 'g'}

// Sentinel errors for RAK operations.
var (
	ErrNotConfigured       = errors.New("rak: not configured")
	ErrBindingMismatch     = errors.New("rak: binding mismatch")
	ErrMalformedReportData = errors.New("rak: malformed report data")
)

// Report is the attestation report produced by Init, to be forwarded to an
// attestation service for independent verification. TargetInfo and Data are
// opaque to this package beyond the construction of Data itself.
type Report struct {
	TargetInfo []byte
	Data       [64]byte
}

// AVR is an attestation verification report: a signed statement by an
// external attestation service that a given enclave identity produced a
// given report.
type AVR struct {
	Body      []byte
	Signature []byte
}

// AuthenticatedAVR is an AVR whose signature has already been checked by a
// Verifier, exposing the report data it attested to.
type AuthenticatedAVR struct {
	ReportData []byte
}

// Verifier independently verifies an AVR's signature against the
// attestation service's key material. It is an external collaborator --
// this package never inspects AVR.Signature itself.
type Verifier interface {
	Verify(avr AVR) (AuthenticatedAVR, error)
}

// RAK is the runtime attestation key: the enclave's per-instance signing
// identity, initialized once and optionally bound to an AVR.
type RAK struct {
	mu         sync.RWMutex
	privateKey ed25519.PrivateKey
	avr        *AuthenticatedAVR
}

// New returns an uninitialized RAK.
func New() *RAK {
	return &RAK{}
}

// reportDataForRAK computes H(HashContext || pub), the binding hash used
// both by Init (to fill Report.Data) and by VerifyBinding.
func reportDataForRAK(pub ed25519.PublicKey) [32]byte {
	message := make([]byte, 0, len(HashContext)+len(pub))
	message = append(message, HashContext[:]...)
	message = append(message, pub...)
	return sha3.Sum256(message)
}

// Init generates a fresh signing key and a report binding it to targetInfo,
// whose report-data field is H(HashContext || pub) zero-padded to 64 bytes.
// Any previously set AVR is discarded, since it attested to the old key.
func (r *RAK) Init(targetInfo []byte) (ed25519.PublicKey, Report, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, Report{}, errors.Wrap(err, "rak: generate key")
	}

	digest := reportDataForRAK(pub)
	var report Report
	report.TargetInfo = targetInfo
	copy(report.Data[:32], digest[:])

	r.mu.Lock()
	r.privateKey = priv
	r.avr = nil
	r.mu.Unlock()

	return pub, report, nil
}

// SetAVR attaches an attestation verification report after independent
// verification by verifier, and additionally checks that the AVR's report
// data actually binds to this RAK's public key -- the reference
// implementation left this as a TODO; this package performs the check
// rather than carrying the gap forward.
func (r *RAK) SetAVR(avr AVR, verifier Verifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.privateKey == nil {
		return ErrNotConfigured
	}

	authenticated, err := verifier.Verify(avr)
	if err != nil {
		return errors.Wrap(err, "rak: verify avr")
	}

	pub := r.privateKey.Public().(ed25519.PublicKey)
	if err := verifyBinding(authenticated, pub); err != nil {
		return err
	}

	r.avr = &authenticated
	return nil
}

// PublicKey returns the public part of RAK, or nil if not yet initialized.
func (r *RAK) PublicKey() ed25519.PublicKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.privateKey == nil {
		return nil
	}
	return r.privateKey.Public().(ed25519.PublicKey)
}

// AVR returns the attestation verification report for RAK, or nil if not
// yet set.
func (r *RAK) AVR() *AuthenticatedAVR {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.avr
}

// Sign produces a RAK signature over message under the given 8-byte domain
// separation context.
func (r *RAK) Sign(context [8]byte, message []byte) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.privateKey == nil {
		return nil, ErrNotConfigured
	}

	signed := make([]byte, 0, len(context)+len(message))
	signed = append(signed, context[:]...)
	signed = append(signed, message...)
	return ed25519.Sign(r.privateKey, signed), nil
}

// VerifyBinding checks that avr's report data binds to pub: it must be at
// least 32 bytes and its first 32 bytes must equal H(HashContext || pub).
func VerifyBinding(avr AuthenticatedAVR, pub ed25519.PublicKey) error {
	return verifyBinding(avr, pub)
}

func verifyBinding(avr AuthenticatedAVR, pub ed25519.PublicKey) error {
	if len(avr.ReportData) < 32 {
		return ErrMalformedReportData
	}

	expected := reportDataForRAK(pub)
	if !constantTimeEqual(expected[:], avr.ReportData[:32]) {
		return ErrBindingMismatch
	}
	return nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
