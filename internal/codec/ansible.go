package codec

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"netonboard/internal/domain"
)

// AnsibleCodec reads Ansible YAML inventories as onboarding batches and
// writes onboarded devices back out as one.
type AnsibleCodec struct{}

// NewAnsibleCodec creates a new Ansible codec
func NewAnsibleCodec() *AnsibleCodec {
	return &AnsibleCodec{}
}

// Format returns the codec format identifier
func (c *AnsibleCodec) Format() string {
	return "ansible-inventory"
}

// ansibleInventory represents the Ansible inventory structure
type ansibleInventory struct {
	All ansibleGroup `yaml:"all"`
}

type ansibleGroup struct {
	Children map[string]ansibleGroupDef `yaml:"children,omitempty"`
	Hosts    map[string]ansibleHost     `yaml:"hosts,omitempty"`
	Vars     map[string]interface{}     `yaml:"vars,omitempty"`
}

type ansibleGroupDef struct {
	Hosts map[string]ansibleHost `yaml:"hosts,omitempty"`
	Vars  map[string]interface{} `yaml:"vars,omitempty"`
}

type ansibleHost struct {
	AnsibleHost string                 `yaml:"ansible_host,omitempty"`
	Vars        map[string]interface{} `yaml:",inline"`
}

// networkOS maps ansible_network_os values, short and collection-qualified,
// to driver names.
var networkOS = map[string]string{
	"ios":                         "cisco_ios",
	"cisco.ios.ios":               "cisco_ios",
	"nxos":                        "cisco_nxos",
	"cisco.nxos.nxos":             "cisco_nxos",
	"iosxr":                       "cisco_xr",
	"cisco.iosxr.iosxr":           "cisco_xr",
	"eos":                         "arista_eos",
	"arista.eos.eos":              "arista_eos",
	"junos":                       "juniper_junos",
	"junipernetworks.junos.junos": "juniper_junos",
}

// collectionFor is the reverse of networkOS, preferring qualified names.
var collectionFor = map[string]string{
	"cisco_ios":     "cisco.ios.ios",
	"cisco_nxos":    "cisco.nxos.nxos",
	"cisco_xr":      "cisco.iosxr.iosxr",
	"arista_eos":    "arista.eos.eos",
	"juniper_junos": "junipernetworks.junos.junos",
}

// Parse reads hosts from all.hosts and every child group. Host vars win over
// group vars, which win over all.vars. A host listed in several groups is
// onboarded once.
func (c *AnsibleCodec) Parse(r io.Reader) ([]domain.OnboardingRequest, error) {
	var inv ansibleInventory
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&inv); err != nil {
		return nil, fmt.Errorf("failed to parse Ansible inventory: %w", err)
	}

	seen := make(map[string]bool)
	var reqs []domain.OnboardingRequest

	add := func(hosts map[string]ansibleHost, groupVars map[string]interface{}) error {
		for _, name := range sortedKeys(hosts) {
			if seen[name] {
				continue
			}
			seen[name] = true

			req, err := c.hostToRequest(name, hosts[name], inv.All.Vars, groupVars)
			if err != nil {
				return err
			}
			reqs = append(reqs, req)
		}
		return nil
	}

	if err := add(inv.All.Hosts, nil); err != nil {
		return nil, err
	}
	for _, group := range sortedKeys(inv.All.Children) {
		def := inv.All.Children[group]
		if err := add(def.Hosts, def.Vars); err != nil {
			return nil, err
		}
	}

	return validate(reqs)
}

// hostToRequest converts an Ansible host to an onboarding request
func (c *AnsibleCodec) hostToRequest(name string, host ansibleHost, allVars, groupVars map[string]interface{}) (domain.OnboardingRequest, error) {
	lookup := func(keys ...string) string {
		for _, vars := range []map[string]interface{}{host.Vars, groupVars, allVars} {
			for _, k := range keys {
				if v, ok := vars[k]; ok && v != nil {
					return strings.TrimSpace(fmt.Sprint(v))
				}
			}
		}
		return ""
	}

	req := domain.OnboardingRequest{
		Address:        host.AnsibleHost,
		Site:           lookup("netonboard_site", "site"),
		Role:           lookup("netonboard_role", "device_role", "role"),
		CredentialsRef: lookup("netonboard_credentials"),
	}
	if req.Address == "" {
		req.Address = name
	}

	if port := lookup("ansible_port"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return req, fmt.Errorf("host %s: invalid ansible_port %q", name, port)
		}
		req.Port = p
	}

	if os := lookup("ansible_network_os"); os != "" {
		platform, ok := networkOS[strings.ToLower(os)]
		if !ok {
			return req, fmt.Errorf("host %s: unsupported ansible_network_os %q", name, os)
		}
		req.Platform = platform
	}

	return req, nil
}

// Export writes successfully onboarded devices grouped by driver
func (c *AnsibleCodec) Export(results []*domain.OnboardingResult, w io.Writer) error {
	inv := ansibleInventory{
		All: ansibleGroup{
			Children: make(map[string]ansibleGroupDef),
		},
	}

	for _, res := range results {
		if !res.Succeeded() || res.Hostname == "" {
			continue
		}

		group := res.Driver
		if group == "" {
			group = "ungrouped"
		}

		def, ok := inv.All.Children[group]
		if !ok {
			def = ansibleGroupDef{Hosts: make(map[string]ansibleHost)}
			if os, ok := collectionFor[res.Driver]; ok {
				def.Vars = map[string]interface{}{"ansible_network_os": os}
			}
		}

		def.Hosts[res.Hostname] = ansibleHost{
			AnsibleHost: res.Address,
			Vars:        map[string]interface{}{"netonboard_device_id": res.DeviceID},
		}
		inv.All.Children[group] = def
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&inv); err != nil {
		return fmt.Errorf("failed to encode Ansible inventory: %w", err)
	}

	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
