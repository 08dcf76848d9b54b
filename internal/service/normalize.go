package service

import (
	"encoding/hex"
	"net/netip"
	"regexp"
	"strings"

	"netonboard/internal/domain"
)

// NormalizationRule is the per-driver canonicalization entry.
type NormalizationRule struct {
	// Manufacturer is the canonical manufacturer name.
	Manufacturer string
	// Platform is the inventory platform name.
	Platform string
	// Driver is the automation driver bound to the platform.
	Driver string
	// ModelSuffixes are stripped from the model, in order.
	ModelSuffixes []*regexp.Regexp
	// UpperModel upper-cases the model.
	UpperModel bool
}

var normalizationRules = map[string]NormalizationRule{
	"cisco_ios": {
		Manufacturer:  "Cisco",
		Platform:      "cisco_ios",
		Driver:        "ios",
		ModelSuffixes: []*regexp.Regexp{regexp.MustCompile(`(?i)[/-]K9$`)},
		UpperModel:    true,
	},
	"cisco_nxos": {
		Manufacturer: "Cisco",
		Platform:     "cisco_nxos",
		Driver:       "nxos_ssh",
	},
	"cisco_xr": {
		Manufacturer:  "Cisco",
		Platform:      "cisco_xr",
		Driver:        "iosxr",
		ModelSuffixes: []*regexp.Regexp{regexp.MustCompile(`(?i)\s+Series$`)},
		UpperModel:    true,
	},
	"arista_eos": {
		Manufacturer: "Arista",
		Platform:     "arista_eos",
		Driver:       "eos",
		// airflow direction is not tracked by device type
		ModelSuffixes: []*regexp.Regexp{regexp.MustCompile(`-[FR]$`)},
		UpperModel:    true,
	},
	"juniper_junos": {
		Manufacturer: "Juniper",
		Platform:     "juniper_junos",
		Driver:       "junos",
		UpperModel:   true,
	},
}

// RuleFor returns the rule for a driver name.
func RuleFor(driverName string) (NormalizationRule, bool) {
	r, ok := normalizationRules[driverName]
	return r, ok
}

var placeholderNames = map[string]bool{
	"": true, "-": true, "n/a": true, "na": true, "none": true, "null": true, "unknown": true,
}

var whitespace = regexp.MustCompile(`\s+`)

// Normalize converts driver facts into a canonical descriptor. It is pure:
// the same input always yields the same output.
func Normalize(raw domain.RawDeviceFacts, driverName string) (domain.CanonicalDeviceDescriptor, error) {
	ruleKey := driverName
	// SNMP identifies the platform from sysDescr
	if p := raw.Extra["platform"]; p != "" {
		if _, ok := normalizationRules[ruleKey]; !ok {
			ruleKey = p
		}
	}

	rule, known := normalizationRules[ruleKey]
	if !known {
		rule = NormalizationRule{Manufacturer: titleCase(strings.TrimSpace(raw.Vendor))}
	}

	d := domain.CanonicalDeviceDescriptor{
		Hostname:     strings.TrimSpace(raw.Hostname),
		Manufacturer: rule.Manufacturer,
		Model:        normalizeModel(raw.Model, rule),
		Platform:     rule.Platform,
		Driver:       rule.Driver,
		SerialNumber: strings.ToUpper(strings.TrimSpace(raw.SerialNumber)),
		OSVersion:    strings.TrimSpace(raw.OSVersion),
		Interfaces:   normalizeInterfaces(raw.Interfaces),
	}

	var missing []string
	if d.Hostname == "" {
		missing = append(missing, "hostname")
	}
	if d.SerialNumber == "" {
		missing = append(missing, "serial_number")
	}
	if d.Model == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return d, domain.Errorf(domain.KindIncompleteFacts, "missing %s", strings.Join(missing, ", "))
	}

	return d, nil
}

func normalizeModel(model string, rule NormalizationRule) string {
	m := strings.TrimSpace(model)

	if rule.Manufacturer != "" {
		prefix := rule.Manufacturer + " "
		if len(m) > len(prefix) && strings.EqualFold(m[:len(prefix)], prefix) {
			m = m[len(prefix):]
		}
	}

	for _, re := range rule.ModelSuffixes {
		m = re.ReplaceAllString(m, "")
	}

	m = whitespace.ReplaceAllString(strings.TrimSpace(m), "-")

	if rule.UpperModel {
		m = strings.ToUpper(m)
	}
	return m
}

// normalizeInterfaces drops placeholder names and keeps the first of any
// duplicate names, preserving device order.
func normalizeInterfaces(raw []domain.RawInterface) []domain.CanonicalInterface {
	seen := make(map[string]bool, len(raw))
	out := make([]domain.CanonicalInterface, 0, len(raw))

	for _, r := range raw {
		name := strings.TrimSpace(r.Name)
		if placeholderNames[strings.ToLower(name)] || seen[name] {
			continue
		}
		seen[name] = true

		iface := domain.CanonicalInterface{
			Name:       name,
			MACAddress: NormalizeMAC(r.MACAddress),
			Enabled:    r.Enabled,
		}
		for _, a := range r.Addresses {
			if p, ok := normalizePrefix(a); ok {
				iface.Addresses = append(iface.Addresses, p)
			}
		}
		out = append(out, iface)
	}

	return out
}

// NormalizeMAC returns a lower-case colon-delimited MAC, or "" when s is
// not a 48-bit address in any common notation.
func NormalizeMAC(s string) string {
	stripped := strings.NewReplacer(".", "", ":", "", "-", "", " ", "").Replace(strings.TrimSpace(s))
	if len(stripped) != 12 {
		return ""
	}

	b, err := hex.DecodeString(stripped)
	if err != nil {
		return ""
	}

	parts := make([]string, len(b))
	for i, octet := range b {
		parts[i] = hex.EncodeToString([]byte{octet})
	}
	return strings.Join(parts, ":")
}

// normalizePrefix returns addr in CIDR form; bare addresses become host routes.
func normalizePrefix(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return "", false
		}
		return p.String(), true
	}

	a, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return netip.PrefixFrom(a, a.BitLen()).String(), true
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
