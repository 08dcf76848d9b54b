package codec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"netonboard/internal/domain"
)

func sampleResults() []*domain.OnboardingResult {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []*domain.OnboardingResult{
		{
			RequestID: "r1",
			Address:   "192.0.2.10",
			Status:    domain.StateSucceeded,
			DeviceID:  "dev-1",
			Hostname:  "sw1",
			Driver:    "cisco_ios",
			Attempts:  1,
			Changes: []domain.EntityChange{
				{Kind: domain.KindDevice, ID: "dev-1", Name: "sw1", Action: domain.ActionCreated},
				{Kind: domain.KindInterface, ID: "if-1", Name: "Gi0/0", Action: domain.ActionUpdated, Changed: []string{"enabled"}},
			},
			StartedAt:  start,
			FinishedAt: start.Add(2 * time.Second),
		},
		{
			RequestID:  "r2",
			Address:    "192.0.2.11",
			Status:     domain.StateFailed,
			ErrorKind:  domain.KindUnreachable,
			Error:      "unreachable: dial tcp 192.0.2.11:22: i/o timeout",
			Attempts:   3,
			Changes:    []domain.EntityChange{},
			StartedAt:  start,
			FinishedAt: start.Add(time.Second),
		},
	}
}

func TestJSONParse(t *testing.T) {
	c := NewJSONCodec()

	reqs, err := c.Parse(strings.NewReader(`[{"address":"192.0.2.10","site":"HQ"},{"address":"sw2","platform":"arista_eos"}]`))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "HQ", reqs[0].Site)
	assert.Equal(t, "arista_eos", reqs[1].Platform)

	wrapped, err := c.Parse(strings.NewReader(`{"devices":[{"address":"192.0.2.10"}]}`))
	require.NoError(t, err)
	assert.Len(t, wrapped, 1)

	_, err = c.Parse(strings.NewReader(`[{"address":"192.0.2.10","bogus":1}]`))
	assert.Error(t, err)

	_, err = c.Parse(strings.NewReader(`[{"site":"HQ"}]`))
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = c.Parse(strings.NewReader(`{"devices":`))
	assert.Error(t, err)
}

func TestJSONExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONCodec().Export(sampleResults(), &buf))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "succeeded", out[0]["status"])
	assert.Equal(t, "unreachable", out[1]["error_kind"])

	buf.Reset()
	require.NoError(t, NewJSONCodec().Export(nil, &buf))
	assert.Equal(t, "[]\n", buf.String())
}

func TestYAMLParseAppliesDefaults(t *testing.T) {
	in := `
defaults:
  site: HQ
  credentials_ref: core
  timeout: 45s
devices:
  - address: 192.0.2.10
  - address: sw2.example.net
    site: Branch
    platform: arista_eos
`
	reqs, err := NewYAMLCodec().Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, "HQ", reqs[0].Site)
	assert.Equal(t, "core", reqs[0].CredentialsRef)
	assert.Equal(t, 45*time.Second, reqs[0].Timeout)
	assert.Equal(t, "Branch", reqs[1].Site)
	assert.Equal(t, "core", reqs[1].CredentialsRef)
}

func TestYAMLParseRejectsUnknownFields(t *testing.T) {
	_, err := NewYAMLCodec().Parse(strings.NewReader("devices:\n  - adress: 192.0.2.1\n"))
	assert.Error(t, err)
}

func TestYAMLExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewYAMLCodec().Export(sampleResults(), &buf))

	var out []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "sw1", out[0]["hostname"])
}

func TestAnsibleParse(t *testing.T) {
	in := `
all:
  vars:
    site: HQ
  hosts:
    edge1:
      ansible_host: 192.0.2.1
      ansible_network_os: junos
  children:
    core:
      vars:
        ansible_network_os: cisco.nxos.nxos
        netonboard_credentials: core
      hosts:
        core1:
          ansible_host: 192.0.2.2
          ansible_port: 2222
        edge1: {}
    access:
      hosts:
        acc1.example.net:
          site: Branch
`
	reqs, err := NewAnsibleCodec().Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, reqs, 3, "edge1 is onboarded once")

	byAddr := map[string]domain.OnboardingRequest{}
	for _, r := range reqs {
		byAddr[r.Address] = r
	}

	edge := byAddr["192.0.2.1"]
	assert.Equal(t, "juniper_junos", edge.Platform)
	assert.Equal(t, "HQ", edge.Site)

	core := byAddr["192.0.2.2"]
	assert.Equal(t, "cisco_nxos", core.Platform)
	assert.Equal(t, 2222, core.Port)
	assert.Equal(t, "core", core.CredentialsRef)

	acc := byAddr["acc1.example.net"]
	assert.Equal(t, "Branch", acc.Site)
	assert.Empty(t, acc.Platform)
}

func TestAnsibleParseUnsupportedOS(t *testing.T) {
	in := "all:\n  hosts:\n    fw1:\n      ansible_network_os: fortios\n"
	_, err := NewAnsibleCodec().Parse(strings.NewReader(in))
	assert.ErrorContains(t, err, "fortios")
}

func TestAnsibleExportRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewAnsibleCodec().Export(sampleResults(), &buf))

	reqs, err := NewAnsibleCodec().Parse(&buf)
	require.NoError(t, err)
	require.Len(t, reqs, 1, "failed devices are not exported")
	assert.Equal(t, "192.0.2.10", reqs[0].Address)
	assert.Equal(t, "cisco_ios", reqs[0].Platform)
}

func TestTextExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextCodec(false).Export(sampleResults(), &buf))

	out := buf.String()
	assert.Contains(t, out, "OK 192.0.2.10 (sw1, cisco_ios)")
	assert.Contains(t, out, "+ device sw1")
	assert.Contains(t, out, "~ interface Gi0/0 [enabled]")
	assert.Contains(t, out, "FAILED 192.0.2.11: unreachable")
	assert.Contains(t, out, "1/2 devices onboarded")
	assert.NotContains(t, out, "\x1b[")
}

func TestLookupFormats(t *testing.T) {
	_, err := ImporterFor("ansible-inventory")
	assert.NoError(t, err)
	_, err = ExporterFor("text", false)
	assert.NoError(t, err)
	_, err = ExporterFor("csv", false)
	assert.ErrorContains(t, err, "csv")
}
