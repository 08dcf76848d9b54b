package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"netonboard/internal/domain"
)

// YAMLCodec handles the native batch format:
//
//	defaults:
//	  site: HQ
//	  credentials_ref: core
//	devices:
//	  - address: 192.0.2.10
//	  - address: sw2.example.net
//	    platform: arista_eos
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

type yamlBatch struct {
	Defaults domain.OnboardingRequest   `yaml:"defaults"`
	Devices  []domain.OnboardingRequest `yaml:"devices"`
}

// Parse reads a batch, filling unset fields of each device from defaults
func (c *YAMLCodec) Parse(r io.Reader) ([]domain.OnboardingRequest, error) {
	var batch yamlBatch
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	reqs := make([]domain.OnboardingRequest, 0, len(batch.Devices))
	for _, d := range batch.Devices {
		reqs = append(reqs, withDefaults(d, batch.Defaults))
	}

	return validate(reqs)
}

func withDefaults(r, def domain.OnboardingRequest) domain.OnboardingRequest {
	if r.Port == 0 {
		r.Port = def.Port
	}
	if r.Protocol == "" {
		r.Protocol = def.Protocol
	}
	if r.Site == "" {
		r.Site = def.Site
	}
	if r.Role == "" {
		r.Role = def.Role
	}
	if r.Platform == "" {
		r.Platform = def.Platform
	}
	if r.CredentialsRef == "" {
		r.CredentialsRef = def.CredentialsRef
	}
	if r.Timeout == 0 {
		r.Timeout = def.Timeout
	}
	return r
}

// Export writes results as a YAML sequence
func (c *YAMLCodec) Export(results []*domain.OnboardingResult, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if results == nil {
		results = []*domain.OnboardingResult{}
	}
	if err := encoder.Encode(results); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
