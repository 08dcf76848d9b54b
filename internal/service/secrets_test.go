package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netonboard/internal/domain"
)

func writeSecret(t *testing.T, dir, ref, name, value string) {
	t.Helper()
	path := filepath.Join(dir, ref)
	require.NoError(t, os.MkdirAll(path, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(path, name), []byte(value), 0o600))
}

func TestSecretsServiceMountedDirs(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "core", "username", "admin\n")
	writeSecret(t, dir, "core", "password", "s3cret\n")
	writeSecret(t, dir, "snmp-ro", "community", "public")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o700))

	svc := NewSecretsService("", nil)
	svc.SetMountedPaths([]string{dir, filepath.Join(dir, "does-not-exist")})
	require.NoError(t, svc.LoadMountedSecrets())

	creds, err := svc.Lookup(context.Background(), "core")
	require.NoError(t, err)
	assert.Equal(t, "admin", creds.Username)
	assert.Equal(t, "s3cret", creds.Password)
	assert.True(t, creds.HasSSH())

	snmp, err := svc.Lookup(context.Background(), "snmp-ro")
	require.NoError(t, err)
	assert.True(t, snmp.HasSNMP())

	_, err = svc.Lookup(context.Background(), "empty")
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
	assert.ElementsMatch(t, []string{"core", "snmp-ro"}, svc.Refs())
}

func TestSecretsServicePrivateKeyPath(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyFile, []byte("-----BEGIN KEY-----\n"), 0o600))

	writeSecret(t, dir, "keyed", "username", "netops")
	writeSecret(t, dir, "keyed", "private_key_path", keyFile+"\n")

	svc := NewSecretsService("", nil)
	svc.SetMountedPaths([]string{dir})
	require.NoError(t, svc.LoadMountedSecrets())

	creds, err := svc.Lookup(context.Background(), "keyed")
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN KEY-----\n", creds.PrivateKey)
}

func TestSecretsServiceEnvironment(t *testing.T) {
	t.Setenv("NETONBOARD_USERNAME", "envuser")
	t.Setenv("NETONBOARD_PASSWORD", "envpass")

	svc := NewSecretsService("netonboard", nil)
	svc.SetMountedPaths(nil)
	require.NoError(t, svc.LoadMountedSecrets())

	creds, err := svc.Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "envuser", creds.Username)
	assert.Equal(t, "envpass", creds.Password)
}

func TestSecretsServiceSet(t *testing.T) {
	svc := NewSecretsService("", nil)
	_, err := svc.Lookup(context.Background(), "lab")
	assert.ErrorIs(t, err, domain.ErrAuthFailed)

	svc.Set("lab", domain.Credentials{Username: "u", Password: "p"})
	creds, err := svc.Lookup(context.Background(), "lab")
	require.NoError(t, err)
	assert.Equal(t, "u", creds.Username)
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	fast := make(chan Event, 4)
	slow := make(chan Event)
	bus.Subscribe(fast)
	bus.Subscribe(slow)

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Type: EventJobSubmitted, JobID: "1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, fast, 1)

	bus.Unsubscribe(fast)
	bus.Publish(Event{Type: EventJobFinished})
	assert.Len(t, fast, 1)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("a")
	acquired := make(chan struct{})
	go func() {
		unlock := km.Lock("a")
		close(acquired)
		unlock()
	}()

	// a different key is independent
	unlockB := km.Lock("b")
	unlockB()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	<-acquired

	assert.Eventually(t, func() bool {
		km.mu.Lock()
		defer km.mu.Unlock()
		return len(km.locks) == 0
	}, time.Second, time.Millisecond)
}
