package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"netonboard/internal/domain"
)

// DefaultCredentialsRef is used when a request names no credentials.
const DefaultCredentialsRef = "default"

// CredentialSource resolves a credentials reference for one request.
type CredentialSource interface {
	Lookup(ctx context.Context, ref string) (domain.Credentials, error)
}

// credentialFiles maps a file name inside a secret directory to its field.
var credentialFiles = map[string]func(*domain.Credentials, string){
	"username":    func(c *domain.Credentials, v string) { c.Username = v },
	"password":    func(c *domain.Credentials, v string) { c.Password = v },
	"private_key": func(c *domain.Credentials, v string) { c.PrivateKey = v },
	"passphrase":  func(c *domain.Credentials, v string) { c.Passphrase = v },
	"community":   func(c *domain.Credentials, v string) { c.Community = v },
}

// SecretsService serves credentials from mounted secret directories and the
// environment. Each directory under a mounted path is one reference:
//
//	/run/secrets/core-switches/username
//	/run/secrets/core-switches/password
//
// Environment variables <PREFIX>_USERNAME, _PASSWORD, _PRIVATE_KEY,
// _PRIVATE_KEY_PATH, _PASSPHRASE and _COMMUNITY fill the default reference.
type SecretsService struct {
	mountedPaths []string
	envPrefix    string
	secrets      map[string]domain.Credentials
	mu           sync.RWMutex
	logger       *logrus.Entry
}

// NewSecretsService creates a new secrets service
func NewSecretsService(envPrefix string, logger *logrus.Entry) *SecretsService {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SecretsService{
		mountedPaths: []string{"/secrets", "/run/secrets"},
		envPrefix:    strings.ToUpper(envPrefix),
		secrets:      make(map[string]domain.Credentials),
		logger:       logger,
	}
}

// SetMountedPaths configures the paths to scan for mounted secrets
func (s *SecretsService) SetMountedPaths(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mountedPaths = paths
}

// LoadMountedSecrets scans configured paths and the environment.
// Called at startup and can be called to refresh.
func (s *SecretsService) LoadMountedSecrets() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secrets = make(map[string]domain.Credentials)

	for _, basePath := range s.mountedPaths {
		entries, err := os.ReadDir(basePath)
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.WithError(err).WithField("path", basePath).Warn("failed to read secrets path")
			}
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			ref := entry.Name()
			creds := s.readSecretDir(filepath.Join(basePath, ref))
			if creds.IsZero() {
				continue
			}
			s.secrets[ref] = creds
			s.logger.WithField("ref", ref).Debug("loaded mounted credentials")
		}
	}

	s.loadEnvSecrets()

	s.logger.WithField("count", len(s.secrets)).Info("credentials loaded")
	return nil
}

func (s *SecretsService) readSecretDir(dir string) domain.Credentials {
	var creds domain.Credentials

	for name, set := range credentialFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		value := string(data)
		if name != "private_key" {
			value = strings.TrimSpace(value)
		}
		set(&creds, value)
	}

	if creds.PrivateKey == "" {
		if path, err := os.ReadFile(filepath.Join(dir, "private_key_path")); err == nil {
			s.readKeyFile(&creds, strings.TrimSpace(string(path)))
		}
	}

	return creds
}

// loadEnvSecrets merges environment variables into the default reference
func (s *SecretsService) loadEnvSecrets() {
	if s.envPrefix == "" {
		return
	}

	creds := s.secrets[DefaultCredentialsRef]
	for name, set := range credentialFiles {
		if value := os.Getenv(s.envPrefix + "_" + strings.ToUpper(name)); value != "" {
			set(&creds, value)
		}
	}
	if creds.PrivateKey == "" {
		if path := os.Getenv(s.envPrefix + "_PRIVATE_KEY_PATH"); path != "" {
			s.readKeyFile(&creds, path)
		}
	}

	if !creds.IsZero() {
		s.secrets[DefaultCredentialsRef] = creds
	}
}

func (s *SecretsService) readKeyFile(creds *domain.Credentials, path string) {
	key, err := os.ReadFile(path)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Warn("failed to read private key")
		return
	}
	creds.PrivateKey = string(key)
}

// Set registers credentials under ref, replacing any loaded ones.
func (s *SecretsService) Set(ref string, creds domain.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = creds
}

// Lookup returns the credentials for ref (default when empty).
func (s *SecretsService) Lookup(_ context.Context, ref string) (domain.Credentials, error) {
	if ref == "" {
		ref = DefaultCredentialsRef
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	creds, ok := s.secrets[ref]
	if !ok {
		return domain.Credentials{}, domain.Errorf(domain.KindAuthFailed, "credentials %q not found", ref)
	}
	return creds, nil
}

// Refs lists the known references.
func (s *SecretsService) Refs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]string, 0, len(s.secrets))
	for ref := range s.secrets {
		refs = append(refs, ref)
	}
	return refs
}
