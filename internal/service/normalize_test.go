package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netonboard/internal/domain"
)

func iosFacts() domain.RawDeviceFacts {
	return domain.RawDeviceFacts{
		Driver:       "cisco_ios",
		Hostname:     " sw1 ",
		Vendor:       "Cisco",
		Model:        "ISR4451-X/K9",
		SerialNumber: "foc12345678",
		OSVersion:    "16.9.3",
		Interfaces: []domain.RawInterface{
			{Name: "GigabitEthernet0/0/0", MACAddress: "0011.2233.4455", Enabled: true, Addresses: []string{"10.0.0.1/24"}},
			{Name: "GigabitEthernet0/0/0", MACAddress: "aa:aa:aa:aa:aa:aa"},
			{Name: "unknown"},
			{Name: "Loopback0", Addresses: []string{"192.0.2.1"}},
		},
	}
}

func TestNormalizeIOS(t *testing.T) {
	d, err := Normalize(iosFacts(), "cisco_ios")
	require.NoError(t, err)

	assert.Equal(t, "sw1", d.Hostname)
	assert.Equal(t, "Cisco", d.Manufacturer)
	assert.Equal(t, "ISR4451-X", d.Model)
	assert.Equal(t, "cisco_ios", d.Platform)
	assert.Equal(t, "ios", d.Driver)
	assert.Equal(t, "FOC12345678", d.SerialNumber)

	require.Len(t, d.Interfaces, 2)
	assert.Equal(t, "GigabitEthernet0/0/0", d.Interfaces[0].Name)
	assert.Equal(t, "00:11:22:33:44:55", d.Interfaces[0].MACAddress, "first duplicate wins")
	assert.Equal(t, []string{"10.0.0.1/24"}, d.Interfaces[0].Addresses)
	assert.Equal(t, []string{"192.0.2.1/32"}, d.Interfaces[1].Addresses)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	first, err := Normalize(iosFacts(), "cisco_ios")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Normalize(iosFacts(), "cisco_ios")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNormalizeModelRules(t *testing.T) {
	tests := []struct {
		driver string
		vendor string
		model  string
		want   string
	}{
		{"cisco_ios", "Cisco", "cisco C9300-48P", "C9300-48P"},
		{"cisco_ios", "Cisco", "ws-c2960x-48fps-l", "WS-C2960X-48FPS-L"},
		{"cisco_xr", "Cisco", "ASR 9000 Series", "ASR-9000"},
		{"cisco_nxos", "Cisco", "Nexus9000 C93180YC-EX", "Nexus9000-C93180YC-EX"},
		{"arista_eos", "Arista", "DCS-7050SX3-48YC8-F", "DCS-7050SX3-48YC8"},
		{"juniper_junos", "Juniper", "mx204", "MX204"},
	}

	for _, tt := range tests {
		t.Run(tt.driver+"/"+tt.model, func(t *testing.T) {
			raw := domain.RawDeviceFacts{Hostname: "h", SerialNumber: "s", Vendor: tt.vendor, Model: tt.model}
			d, err := Normalize(raw, tt.driver)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Model)
		})
	}
}

func TestNormalizeSNMPUsesReportedPlatform(t *testing.T) {
	raw := domain.RawDeviceFacts{
		Hostname:     "edge1",
		Vendor:       "Juniper",
		Model:        "mx204",
		SerialNumber: "abc",
		Extra:        map[string]string{"platform": "juniper_junos"},
	}

	d, err := Normalize(raw, "snmp")
	require.NoError(t, err)
	assert.Equal(t, "juniper_junos", d.Platform)
	assert.Equal(t, "junos", d.Driver)
	assert.Equal(t, "Juniper", d.Manufacturer)
}

func TestNormalizeUnknownDriver(t *testing.T) {
	raw := domain.RawDeviceFacts{Hostname: "x", Vendor: "acme networks", Model: "Box 1", SerialNumber: "1"}

	d, err := Normalize(raw, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Networks", d.Manufacturer)
	assert.Equal(t, "Box-1", d.Model)
	assert.Empty(t, d.Platform)
}

func TestNormalizeIncompleteFacts(t *testing.T) {
	raw := iosFacts()
	raw.SerialNumber = "  "
	raw.Hostname = ""

	_, err := Normalize(raw, "cisco_ios")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIncompleteFacts)
	assert.Contains(t, err.Error(), "hostname")
	assert.Contains(t, err.Error(), "serial_number")
}

func TestNormalizeMAC(t *testing.T) {
	tests := map[string]string{
		"0011.2233.4455":    "00:11:22:33:44:55",
		"00-11-22-33-44-55": "00:11:22:33:44:55",
		"00:11:22:AA:BB:CC": "00:11:22:aa:bb:cc",
		"001122aabbcc":      "00:11:22:aa:bb:cc",
		"":                  "",
		"zz:11:22:33:44:55": "",
		"00:11:22":          "",
	}

	for in, want := range tests {
		assert.Equal(t, want, NormalizeMAC(in), in)
	}
}

func TestGuessRole(t *testing.T) {
	assert.Equal(t, "router", GuessRole("core-rtr-01"))
	assert.Equal(t, "switch", GuessRole("SW1"))
	assert.Equal(t, "firewall", GuessRole("fw.branch"))
	assert.Equal(t, "", GuessRole("edge7"))
}
