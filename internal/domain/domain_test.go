package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"direct", Errorf(KindAuthFailed, "bad password"), KindAuthFailed},
		{"wrapped fmt", fmt.Errorf("attempt 2: %w", NewError(KindUnreachable, "dial", nil)), KindUnreachable},
		{"wrapped pkg/errors", errors.Wrap(Errorf(KindStoreUnavailable, "locked"), "create"), KindStoreUnavailable},
		{"context deadline", context.DeadlineExceeded, KindUnreachable},
		{"context canceled", fmt.Errorf("x: %w", context.Canceled), KindCancelled},
		{"unclassified", errors.New("boom"), KindProtocolError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, KindUnreachable.Retryable())
	assert.True(t, KindStoreUnavailable.Retryable())
	for _, k := range []ErrorKind{KindAuthFailed, KindUnsupportedPlatform, KindProtocolError, KindIncompleteFacts, KindConflictingEntity, KindConfig, KindInternal} {
		assert.False(t, k.Retryable(), k)
	}
}

func TestOnboardErrorIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewError(KindConflictingEntity, "sw1 at B", nil))
	assert.ErrorIs(t, err, ErrConflictingEntity)
	assert.NotErrorIs(t, err, ErrUnreachable)
}

func TestIdentityKey(t *testing.T) {
	key, err := IdentityKey(KindDeviceType, Fields{"manufacturer_id": "m1", "model": "ISR4451"})
	require.NoError(t, err)
	assert.Equal(t, "m1\x1fISR4451", key)

	_, err = IdentityKey(KindDevice, Fields{"name": "sw1"})
	assert.Equal(t, KindConfig, KindOf(err))

	_, err = IdentityKey(EntityKind("rack"), Fields{"name": "r1"})
	assert.Error(t, err)
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, (&OnboardingRequest{Address: "10.0.0.5"}).Validate())
	assert.NoError(t, (&OnboardingRequest{Address: "sw1.example.net", Protocol: ProtocolSNMP}).Validate())

	for _, req := range []OnboardingRequest{
		{},
		{Address: "10.0.0.0/24"},
		{Address: "10.0.0.5", Port: 70000},
		{Address: "10.0.0.5", Protocol: "telnet"},
	} {
		assert.Equal(t, KindConfig, KindOf(req.Validate()), req)
	}
}

func TestCredentialsRedacted(t *testing.T) {
	c := Credentials{Username: "admin", Password: "hunter2", Community: "public"}

	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hunter2")
	assert.NotContains(t, string(b), "public")
	assert.NotContains(t, c.String(), "hunter2")
	assert.True(t, c.HasSSH())
	assert.True(t, c.HasSNMP())
}

func TestInterfaceFor(t *testing.T) {
	d := CanonicalDeviceDescriptor{Interfaces: []CanonicalInterface{
		{Name: "Gi0/0", Addresses: []string{"10.0.0.5/24"}},
		{Name: "Gi0/1", Addresses: []string{"192.0.2.1/30"}},
	}}

	iface, cidr, ok := d.InterfaceFor("192.0.2.1")
	require.True(t, ok)
	assert.Equal(t, "Gi0/1", iface.Name)
	assert.Equal(t, "192.0.2.1/30", cidr)

	_, _, ok = d.InterfaceFor("10.9.9.9")
	assert.False(t, ok)

	_, _, ok = d.InterfaceFor("not-an-ip")
	assert.False(t, ok)
}

func TestInterfaceForIPv6Spelling(t *testing.T) {
	d := CanonicalDeviceDescriptor{Interfaces: []CanonicalInterface{
		{Name: "mgmt0", Addresses: []string{"2001:db8::1/64"}},
	}}

	for _, addr := range []string{"2001:DB8::1", "2001:0db8:0000::0001", "2001:db8::1"} {
		iface, cidr, ok := d.InterfaceFor(addr)
		require.True(t, ok, addr)
		assert.Equal(t, "mgmt0", iface.Name)
		assert.Equal(t, "2001:db8::1/64", cidr)
	}
}
