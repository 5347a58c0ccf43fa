// Package config loads the single top-level configuration document of spec
// §6.3, grounded on the teacher's infrastructure/config YAML loader.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teaclave-go/platform/internal/attestation"
)

// Endpoint is a listen/advertise address pair, used for both the externally
// reachable api_endpoints and the service-mesh internal_endpoints.
type Endpoint struct {
	ListenAddress     string `yaml:"listen_address"`
	AdvertisedAddress string `yaml:"advertised_address,omitempty"`
}

// APIEndpoints is the §6.3 api_endpoints section.
type APIEndpoints struct {
	Frontend       Endpoint `yaml:"frontend"`
	Authentication Endpoint `yaml:"authentication"`
}

// InternalEndpoints is the §6.3 internal_endpoints section: one entry per
// core service.
type InternalEndpoints struct {
	Storage       Endpoint `yaml:"storage"`
	Management    Endpoint `yaml:"management"`
	Scheduler     Endpoint `yaml:"scheduler"`
	Execution     Endpoint `yaml:"execution"`
	AccessControl Endpoint `yaml:"access_control"`
}

// Mount is the §6.3 mount section.
type Mount struct {
	FusionBaseDir string `yaml:"fusion_base_dir"`
}

// Storage is the persistence backend selection for the storage service.
// Not named explicitly in the wire protocol, but required to stand the
// process up: "memory" for development/testing, "bolt" for a durable
// single-node deployment.
type Storage struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"`
}

// Audit is the §6.3 audit section: the trust root for attestation
// verification.
type Audit struct {
	EnclaveInfo       string   `yaml:"enclave_info"`
	AuditorSignatures []string `yaml:"auditor_signatures"`
}

// Limits is the §6.3 limits section.
type Limits struct {
	RPCMaxMessageSize       int `yaml:"rpc_max_message_size"`
	AttestationValiditySecs int `yaml:"attestation_validity_secs"`
}

// Document is the full top-level configuration document.
type Document struct {
	APIEndpoints      APIEndpoints       `yaml:"api_endpoints"`
	InternalEndpoints InternalEndpoints  `yaml:"internal_endpoints"`
	Mount             Mount              `yaml:"mount"`
	Storage           Storage            `yaml:"storage"`
	Audit             Audit              `yaml:"audit"`
	Attestation       attestation.Config `yaml:"attestation"`
	Limits            Limits             `yaml:"limits"`
}

const (
	defaultRPCMaxMessageSize       = 128 << 20 // 128 MiB, spec §6.1
	defaultAttestationValiditySecs = 3600
)

// Load reads and parses a configuration document from path, applying
// defaults for unset limits and resolving attestation credentials from the
// environment (spec §6.4) when the document leaves them blank.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	doc.applyDefaults()
	return &doc, nil
}

func (d *Document) applyDefaults() {
	if d.Limits.RPCMaxMessageSize <= 0 {
		d.Limits.RPCMaxMessageSize = defaultRPCMaxMessageSize
	}
	if d.Limits.AttestationValiditySecs <= 0 {
		d.Limits.AttestationValiditySecs = defaultAttestationValiditySecs
	}
	if d.Storage.Backend == "" {
		d.Storage.Backend = "bolt"
	}
	if d.Storage.DataDir == "" {
		d.Storage.DataDir = "./data"
	}
	d.Attestation.ResolveCredentials()
}

// EnvOrSecret retrieves a configuration override from the environment,
// preferring a service-mesh secret file (when simulated attestation mounts
// one) over the OS environment over the supplied default. This mirrors the
// teacher's config.EnvOrSecret precedence, minus the Marble-specific secret
// store which is out of scope for the core.
func EnvOrSecret(secretDir, envKey, defaultValue string) string {
	if secretDir != "" {
		if data, err := os.ReadFile(secretDir + "/" + envKey); err == nil {
			if v := strings.TrimSpace(string(data)); v != "" {
				return v
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	return defaultValue
}
