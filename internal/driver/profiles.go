package driver

import (
	"strings"

	"netonboard/internal/domain"
)

// FactCommand defines a command to run over SSH for fact gathering
type FactCommand struct {
	Name     string                                              // e.g., "version"
	Command  string                                              // e.g., "show version"
	Parser   func(output string, f *domain.RawDeviceFacts) error // Parse command output into facts
	Optional bool                                                // parse failure is not fatal
}

// Profile describes how one platform is identified and interrogated.
type Profile struct {
	Name     string
	Vendor   string
	Matches  func(firstOutput string) bool
	Commands []FactCommand
}

// Driver names shipped with the engine.
const (
	DriverCiscoIOS     = "cisco_ios"
	DriverCiscoNXOS    = "cisco_nxos"
	DriverCiscoXR      = "cisco_xr"
	DriverAristaEOS    = "arista_eos"
	DriverJuniperJunos = "juniper_junos"
	DriverSNMP         = "snmp"
)

// DefaultProbeOrder is the autodetection order when no platform hint is given.
var DefaultProbeOrder = []string{
	DriverCiscoIOS,
	DriverCiscoNXOS,
	DriverCiscoXR,
	DriverAristaEOS,
	DriverJuniperJunos,
	DriverSNMP,
}

// Profiles returns the built-in SSH platform profiles.
func Profiles() []Profile {
	return []Profile{
		{
			Name:   DriverCiscoIOS,
			Vendor: "Cisco",
			Matches: func(out string) bool {
				return (strings.Contains(out, "Cisco IOS Software") || strings.Contains(out, "Cisco Internetwork Operating System") ||
					strings.Contains(out, "Cisco IOS XE Software")) && !strings.Contains(out, "IOS XR") && !strings.Contains(out, "NX-OS")
			},
			Commands: []FactCommand{
				{Name: "version", Command: "show version", Parser: parseIOSVersion},
				{Name: "inventory", Command: "show inventory", Parser: parseCiscoInventory, Optional: true},
				{Name: "interfaces", Command: "show interfaces", Parser: parseCiscoInterfaces},
			},
		},
		{
			Name:    DriverCiscoNXOS,
			Vendor:  "Cisco",
			Matches: isNXOSVersionJSON,
			Commands: []FactCommand{
				{Name: "version", Command: "show version | json", Parser: parseNXOSVersion},
				{Name: "inventory", Command: "show inventory | json", Parser: parseNXOSInventory, Optional: true},
				{Name: "interfaces", Command: "show interface | json", Parser: parseNXOSInterfaces},
			},
		},
		{
			Name:   DriverCiscoXR,
			Vendor: "Cisco",
			Matches: func(out string) bool {
				return strings.Contains(out, "IOS XR Software")
			},
			Commands: []FactCommand{
				{Name: "version", Command: "show version", Parser: parseXRVersion},
				{Name: "hostname", Command: "show running-config hostname", Parser: parseRunningHostname, Optional: true},
				{Name: "inventory", Command: "show inventory", Parser: parseCiscoInventory},
				{Name: "interfaces", Command: "show interfaces", Parser: parseCiscoInterfaces},
			},
		},
		{
			Name:    DriverAristaEOS,
			Vendor:  "Arista",
			Matches: isEOSVersionJSON,
			Commands: []FactCommand{
				{Name: "version", Command: "show version | json", Parser: parseEOSVersion},
				{Name: "hostname", Command: "show hostname | json", Parser: parseEOSHostname},
				{Name: "interfaces", Command: "show interfaces | json", Parser: parseEOSInterfaces},
			},
		},
		{
			Name:   DriverJuniperJunos,
			Vendor: "Juniper",
			Matches: func(out string) bool {
				return strings.Contains(out, "JUNOS") || strings.Contains(out, "Junos:")
			},
			Commands: []FactCommand{
				{Name: "version", Command: "show version", Parser: parseJunosVersion},
				{Name: "chassis", Command: "show chassis hardware", Parser: parseJunosChassis},
				{Name: "interfaces", Command: "show interfaces terse", Parser: parseJunosInterfaces},
			},
		},
	}
}

// ProfileByName looks up a built-in profile.
func ProfileByName(name string) (Profile, bool) {
	for _, p := range Profiles() {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}
