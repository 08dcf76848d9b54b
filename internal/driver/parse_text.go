package driver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"netonboard/internal/domain"
)

var (
	reIOSVersion    = regexp.MustCompile(`(?m)^Cisco IOS.*?Version ([^\s,]+)`)
	reUptime        = regexp.MustCompile(`(?m)^(\S+) uptime is (.+)$`)
	reCiscoModel    = regexp.MustCompile(`(?mi)^cisco (\S+) .*processor`)
	reModelNumber   = regexp.MustCompile(`(?m)^Model [Nn]umber\s*:\s*(\S+)`)
	reBoardID       = regexp.MustCompile(`Processor board ID (\S+)`)
	reSystemSerial  = regexp.MustCompile(`(?m)^System [Ss]erial [Nn]umber\s*:\s*(\S+)`)
	reInventoryItem = regexp.MustCompile(`PID:\s*([^,\s]*)\s*,\s*VID:\s*[^,]*,\s*SN:\s*(\S*)`)
	reXRVersion     = regexp.MustCompile(`IOS XR Software.*?Version ([^\s,\[]+)`)
	reRunHostname   = regexp.MustCompile(`(?m)^hostname (\S+)`)

	reIfHeader  = regexp.MustCompile(`^(\S+) is (administratively down|up|down|deleted)[^,]*, line protocol is (\S+)`)
	reIfMAC     = regexp.MustCompile(`Hardware is .*?address is ([0-9A-Fa-f.:-]+)`)
	reIfAddress = regexp.MustCompile(`Internet address is (\S+)`)

	reJunosHost    = regexp.MustCompile(`(?m)^Hostname:\s*(\S+)`)
	reJunosModel   = regexp.MustCompile(`(?m)^Model:\s*(\S+)`)
	reJunosVersion = regexp.MustCompile(`(?m)^Junos:\s*(\S+)`)
	reJunosLegacy  = regexp.MustCompile(`JUNOS .*?\[([^\]]+)\]`)
	reJunosChassis = regexp.MustCompile(`(?m)^Chassis\s+(\S+)\s+(.*?)\s*$`)

	reUptimePart = regexp.MustCompile(`(\d+)\s+(year|week|day|hour|minute|second)s?`)
)

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// parseUptime reads "1 week, 2 days, 3 hours, 4 minutes".
func parseUptime(s string) time.Duration {
	units := map[string]time.Duration{
		"year":   365 * 24 * time.Hour,
		"week":   7 * 24 * time.Hour,
		"day":    24 * time.Hour,
		"hour":   time.Hour,
		"minute": time.Minute,
		"second": time.Second,
	}

	var total time.Duration
	for _, m := range reUptimePart.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		total += time.Duration(n) * units[m[2]]
	}
	return total
}

// setUptimeHost fills hostname and uptime from "<host> uptime is ...".
func setUptimeHost(output string, f *domain.RawDeviceFacts) {
	m := reUptime.FindStringSubmatch(output)
	if len(m) < 3 {
		return
	}
	if m[1] != "System" && f.Hostname == "" {
		f.Hostname = m[1]
	}
	f.Uptime = parseUptime(m[2])
}

// parseIOSVersion parses IOS / IOS-XE "show version"
func parseIOSVersion(output string, f *domain.RawDeviceFacts) error {
	f.Vendor = "Cisco"
	f.OSVersion = firstMatch(reIOSVersion, output)
	setUptimeHost(output, f)

	if model := firstMatch(reModelNumber, output); model != "" {
		f.Model = model
	} else {
		f.Model = firstMatch(reCiscoModel, output)
	}

	if serial := firstMatch(reSystemSerial, output); serial != "" {
		f.SerialNumber = serial
	} else {
		f.SerialNumber = firstMatch(reBoardID, output)
	}

	if f.OSVersion == "" {
		return fmt.Errorf("no version in output")
	}
	return nil
}

// parseXRVersion parses IOS-XR "show version"
func parseXRVersion(output string, f *domain.RawDeviceFacts) error {
	f.Vendor = "Cisco"
	f.OSVersion = firstMatch(reXRVersion, output)
	setUptimeHost(output, f)
	f.Model = firstMatch(reCiscoModel, output)

	if f.OSVersion == "" {
		return fmt.Errorf("no version in output")
	}
	return nil
}

// parseRunningHostname parses "show running-config hostname"
func parseRunningHostname(output string, f *domain.RawDeviceFacts) error {
	host := firstMatch(reRunHostname, output)
	if host == "" {
		return fmt.Errorf("no hostname line")
	}
	f.Hostname = host
	return nil
}

// parseCiscoInventory takes PID/SN of the first inventory item (the chassis).
// Values already found in "show version" are kept, except for an empty model.
func parseCiscoInventory(output string, f *domain.RawDeviceFacts) error {
	m := reInventoryItem.FindStringSubmatch(output)
	if len(m) < 3 {
		return fmt.Errorf("no inventory items")
	}

	pid, sn := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	if pid != "" {
		f.Extra["chassis_pid"] = pid
		if f.Model == "" || f.Driver == DriverCiscoXR {
			f.Model = pid
		}
	}
	if sn != "" && f.SerialNumber == "" {
		f.SerialNumber = sn
	}
	return nil
}

// parseCiscoInterfaces parses IOS and IOS-XR "show interfaces"
func parseCiscoInterfaces(output string, f *domain.RawDeviceFacts) error {
	current := -1

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")

		if m := reIfHeader.FindStringSubmatch(line); m != nil {
			f.Interfaces = append(f.Interfaces, domain.RawInterface{
				Name:    m[1],
				Enabled: m[2] != "administratively down",
				Up:      strings.HasPrefix(m[3], "up"),
			})
			current = len(f.Interfaces) - 1
			continue
		}

		if current < 0 {
			continue
		}

		iface := &f.Interfaces[current]
		if iface.MACAddress == "" {
			if mac := firstMatch(reIfMAC, line); mac != "" {
				iface.MACAddress = mac
			}
		}
		if addr := firstMatch(reIfAddress, line); addr != "" && addr != "Unknown" {
			iface.Addresses = append(iface.Addresses, addr)
		}
	}

	return nil
}

// parseJunosVersion parses Junos "show version"
func parseJunosVersion(output string, f *domain.RawDeviceFacts) error {
	f.Vendor = "Juniper"
	f.Hostname = firstMatch(reJunosHost, output)
	f.Model = firstMatch(reJunosModel, output)

	f.OSVersion = firstMatch(reJunosVersion, output)
	if f.OSVersion == "" {
		f.OSVersion = firstMatch(reJunosLegacy, output)
	}

	if f.OSVersion == "" {
		return fmt.Errorf("no version in output")
	}
	return nil
}

// parseJunosChassis parses "show chassis hardware"
func parseJunosChassis(output string, f *domain.RawDeviceFacts) error {
	m := reJunosChassis.FindStringSubmatch(output)
	if len(m) < 3 {
		return fmt.Errorf("no chassis line")
	}
	f.SerialNumber = m[1]
	if f.Model == "" {
		f.Model = m[2]
	}
	return nil
}

// parseJunosInterfaces parses "show interfaces terse". Continuation lines
// (extra address families) belong to the preceding interface.
func parseJunosInterfaces(output string, f *domain.RawDeviceFacts) error {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] == "Interface" {
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if len(f.Interfaces) > 0 && len(fields) >= 2 && fields[0] == "inet" {
				last := &f.Interfaces[len(f.Interfaces)-1]
				last.Addresses = append(last.Addresses, fields[1])
			}
			continue
		}

		if len(fields) < 3 {
			continue
		}

		iface := domain.RawInterface{
			Name:    fields[0],
			Enabled: fields[1] == "up",
			Up:      fields[2] == "up",
		}
		if len(fields) >= 5 && fields[3] == "inet" {
			iface.Addresses = append(iface.Addresses, fields[4])
		}
		f.Interfaces = append(f.Interfaces, iface)
	}

	return nil
}
