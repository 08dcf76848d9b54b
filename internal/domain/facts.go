package domain

import (
	"net/netip"
	"time"
)

// RawInterface is an interface as the device reported it.
type RawInterface struct {
	Name       string   `json:"name"`
	MACAddress string   `json:"mac_address,omitempty"`
	Enabled    bool     `json:"enabled"`
	Up         bool     `json:"up"`
	Addresses  []string `json:"addresses,omitempty"`
}

// RawDeviceFacts is the driver-specific fact set of one attempt.
type RawDeviceFacts struct {
	Driver       string            `json:"driver"`
	Hostname     string            `json:"hostname"`
	Vendor       string            `json:"vendor,omitempty"`
	Model        string            `json:"model,omitempty"`
	SerialNumber string            `json:"serial_number,omitempty"`
	OSVersion    string            `json:"os_version,omitempty"`
	Uptime       time.Duration     `json:"uptime,omitempty"`
	Interfaces   []RawInterface    `json:"interfaces,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// CanonicalInterface is a normalized interface.
type CanonicalInterface struct {
	Name       string   `json:"name"`
	MACAddress string   `json:"mac_address,omitempty"`
	Enabled    bool     `json:"enabled"`
	Addresses  []string `json:"addresses,omitempty"`
}

// CanonicalDeviceDescriptor is the vendor-neutral description of a device
// handed to the reconciler.
type CanonicalDeviceDescriptor struct {
	Hostname     string               `json:"hostname"`
	Manufacturer string               `json:"manufacturer"`
	Model        string               `json:"model"`
	Platform     string               `json:"platform"`
	Driver       string               `json:"driver"`
	SerialNumber string               `json:"serial_number"`
	OSVersion    string               `json:"os_version,omitempty"`
	Interfaces   []CanonicalInterface `json:"interfaces,omitempty"`
}

// InterfaceFor returns the interface carrying addr (an IP without prefix).
// Addresses are compared in parsed form, so any textual IPv6 spelling matches.
func (d *CanonicalDeviceDescriptor) InterfaceFor(addr string) (CanonicalInterface, string, bool) {
	want, err := netip.ParseAddr(addr)
	if err != nil {
		return CanonicalInterface{}, "", false
	}
	want = want.Unmap()

	for _, iface := range d.Interfaces {
		for _, cidr := range iface.Addresses {
			p, err := netip.ParsePrefix(cidr)
			if err != nil {
				continue
			}
			if p.Addr().Unmap() == want {
				return iface, cidr, true
			}
		}
	}
	return CanonicalInterface{}, "", false
}
