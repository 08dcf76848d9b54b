package domain

import (
	"net"
	"strings"
	"time"
)

// Protocol selects the management transport used to reach a device.
type Protocol string

const (
	ProtocolSSH  Protocol = "ssh"
	ProtocolSNMP Protocol = "snmp"
)

// OnboardingRequest asks for one device to be onboarded. Only Address is
// required; the remaining fields are hints.
type OnboardingRequest struct {
	ID             string        `json:"id,omitempty" yaml:"id,omitempty"`
	Address        string        `json:"address" yaml:"address"`
	Port           int           `json:"port,omitempty" yaml:"port,omitempty"`
	Protocol       Protocol      `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Site           string        `json:"site,omitempty" yaml:"site,omitempty"`
	Role           string        `json:"role,omitempty" yaml:"role,omitempty"`
	Platform       string        `json:"platform,omitempty" yaml:"platform,omitempty"`
	CredentialsRef string        `json:"credentials_ref,omitempty" yaml:"credentials_ref,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Validate checks the request shape. It does not resolve the address.
func (r *OnboardingRequest) Validate() error {
	if strings.TrimSpace(r.Address) == "" {
		return Errorf(KindConfig, "address is required")
	}
	if strings.ContainsAny(r.Address, " /") {
		return Errorf(KindConfig, "invalid address %q", r.Address)
	}
	if r.Port < 0 || r.Port > 65535 {
		return Errorf(KindConfig, "invalid port %d", r.Port)
	}
	switch r.Protocol {
	case "", ProtocolSSH, ProtocolSNMP:
	default:
		return Errorf(KindConfig, "unsupported protocol %q", r.Protocol)
	}
	if r.Timeout < 0 {
		return Errorf(KindConfig, "timeout must not be negative")
	}
	return nil
}

// IsIP reports whether Address is a literal IP.
func (r *OnboardingRequest) IsIP() bool {
	return net.ParseIP(r.Address) != nil
}
