// Package attestation wraps remote-attestation self-reporting for the five
// core services. Spec §1 scopes attestation and mutually-attested TLS out of
// the core as "a boundary/transport concern"; this package implements only
// the properties the core assumes: a Measurement identifying the running
// image, and a Verifier that checks a peer's measurement against a
// configured allow-list before the core trusts data coming from it.
//
// Grounded on the teacher's infrastructure/marble.Marble, which falls back
// to a nil report ("simulation mode") whenever it isn't running inside an
// SGX enclave - the same fallback this package performs via
// github.com/edgelesssys/ego.
package attestation

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/edgelesssys/ego/enclave"
)

// Measurement identifies the code and signer of a trusted execution
// environment image (spec GLOSSARY).
type Measurement struct {
	// Hex-encoded UniqueID (MRENCLAVE-equivalent) when running under SGX, or
	// a locally generated simulation identity otherwise.
	UniqueID  string
	SignerID  string
	Simulated bool
}

// Self reports this process's own measurement, computed once and cached.
type Self struct {
	mu          sync.RWMutex
	measurement Measurement
}

// NewSelf computes (or simulates) this process's attestation measurement.
func NewSelf() *Self {
	s := &Self{}
	report, err := enclave.GetSelfReport()
	if err != nil {
		// Not running inside an SGX enclave: simulation mode, matching
		// production-simulation environments where IAS_SPID/IAS_KEY are
		// absent (spec §6.4).
		id := make([]byte, 32)
		_, _ = rand.Read(id)
		s.measurement = Measurement{
			UniqueID:  hex.EncodeToString(id),
			Simulated: true,
		}
		return s
	}
	s.measurement = Measurement{
		UniqueID: hex.EncodeToString(report.UniqueID),
		SignerID: hex.EncodeToString(report.SignerID),
	}
	return s
}

// Measurement returns this process's attestation measurement.
func (s *Self) Measurement() Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.measurement
}

// Config is the §6.3 `attestation` configuration section plus the trust root
// of §6.3's `audit` section (enclave_info, auditor_signatures) needed to
// validate a peer's measurement.
type Config struct {
	Algorithm string   `yaml:"algorithm"`
	URL       string   `yaml:"url"`
	Key       string   `yaml:"key"`
	SPID      string   `yaml:"spid"`
	Accepted  []string `yaml:"accepted_measurements"`
}

// ResolveCredentials fills Key/SPID from the IAS_KEY/IAS_SPID environment
// variables (spec §6.4) when the config document leaves them blank, which is
// the normal simulation-mode posture.
func (c *Config) ResolveCredentials() {
	if c.Key == "" {
		c.Key = os.Getenv("IAS_KEY")
	}
	if c.SPID == "" {
		c.SPID = os.Getenv("IAS_SPID")
	}
}

// Verifier checks a peer's measurement against the configured allow-list.
type Verifier struct {
	accepted map[string]struct{}
}

// NewVerifier builds a Verifier from a Config's accepted-measurement list.
func NewVerifier(cfg Config) *Verifier {
	accepted := make(map[string]struct{}, len(cfg.Accepted))
	for _, m := range cfg.Accepted {
		accepted[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &Verifier{accepted: accepted}
}

// Verify reports whether m's UniqueID is in the configured allow-list. An
// empty allow-list accepts everything, the simulation-mode default.
func (v *Verifier) Verify(m Measurement) error {
	if len(v.accepted) == 0 {
		return nil
	}
	if _, ok := v.accepted[strings.ToLower(m.UniqueID)]; !ok {
		return fmt.Errorf("measurement %s is not in the accepted set", m.UniqueID)
	}
	return nil
}

// FingerprintReport hashes a measurement into a stable, loggable identifier
// without exposing the raw enclave identity bytes.
func FingerprintReport(m Measurement) string {
	sum := sha256.Sum256([]byte(m.UniqueID + m.SignerID))
	return hex.EncodeToString(sum[:8])
}
