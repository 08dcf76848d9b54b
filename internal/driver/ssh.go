package driver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"netonboard/internal/domain"
)

const (
	defaultSSHPort        = 22
	defaultCommandTimeout = 30 * time.Second
)

// SSHOption configures SSH drivers.
type SSHOption func(*SSHDriver)

// WithCommandTimeout bounds each remote command.
func WithCommandTimeout(d time.Duration) SSHOption {
	return func(s *SSHDriver) { s.commandTimeout = d }
}

// WithHostKeyCallback overrides host key verification (default: accept any).
func WithHostKeyCallback(cb ssh.HostKeyCallback) SSHOption {
	return func(s *SSHDriver) { s.hostKeyCallback = cb }
}

// SSHDriver collects facts by running CLI commands over SSH. Which commands
// run and how their output is parsed comes from the platform Profile.
type SSHDriver struct {
	profile         Profile
	commandTimeout  time.Duration
	hostKeyCallback ssh.HostKeyCallback

	client *ssh.Client
	target Target
}

// NewSSHDriver creates a driver for profile
func NewSSHDriver(profile Profile, opts ...SSHOption) *SSHDriver {
	s := &SSHDriver{
		profile:         profile,
		commandTimeout:  defaultCommandTimeout,
		hostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SSHDriver) Name() string              { return s.profile.Name }
func (s *SSHDriver) Protocol() domain.Protocol { return domain.ProtocolSSH }

// Authenticate dials the device and completes the SSH handshake.
func (s *SSHDriver) Authenticate(ctx context.Context, target Target, creds domain.Credentials) error {
	config, err := s.buildSSHConfig(creds)
	if err != nil {
		return err
	}

	port := target.Port
	if port == 0 {
		port = defaultSSHPort
	}
	addr := net.JoinHostPort(target.Address, strconv.Itoa(port))

	if deadline, ok := ctx.Deadline(); ok {
		config.Timeout = time.Until(deadline)
	}

	dialer := &net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return domain.NewError(domain.KindUnreachable, "failed to dial "+addr, err)
	}

	// The handshake itself is not context aware; bound it with the deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return classifyHandshake(addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	s.client = ssh.NewClient(sshConn, chans, reqs)
	s.target = target
	return nil
}

// classifyHandshake separates credential rejection from transport failures.
func classifyHandshake(addr string, err error) error {
	msg := err.Error()
	var netErr net.Error
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "no supported methods remain"):
		return domain.NewError(domain.KindAuthFailed, "authentication rejected by "+addr, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.NewError(domain.KindUnreachable, "handshake timed out with "+addr, err)
	default:
		return domain.NewError(domain.KindProtocolError, "failed to establish SSH connection to "+addr, err)
	}
}

// buildSSHConfig picks key or password auth. Both are offered when present.
func (s *SSHDriver) buildSSHConfig(creds domain.Credentials) (*ssh.ClientConfig, error) {
	if creds.Username == "" {
		return nil, domain.Errorf(domain.KindAuthFailed, "username not found in credentials")
	}

	var methods []ssh.AuthMethod

	if creds.PrivateKey != "" {
		var (
			signer ssh.Signer
			err    error
		)
		if creds.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(creds.PrivateKey), []byte(creds.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(creds.PrivateKey))
		}
		if err != nil {
			return nil, domain.NewError(domain.KindAuthFailed, "failed to parse private key", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if creds.Password != "" {
		password := creds.Password
		methods = append(methods,
			ssh.Password(password),
			// many network OSes only offer keyboard-interactive
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, domain.Errorf(domain.KindAuthFailed, "no password or private key in credentials")
	}

	return &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            methods,
		HostKeyCallback: s.hostKeyCallback,
		Timeout:         defaultCommandTimeout,
	}, nil
}

// GetFacts runs the profile's commands. The first command doubles as the
// platform check: output the profile does not recognize yields ErrNotMatched.
func (s *SSHDriver) GetFacts(ctx context.Context) (*domain.RawDeviceFacts, error) {
	if s.client == nil {
		return nil, domain.Errorf(domain.KindProtocolError, "%s: session not authenticated", s.Name())
	}

	facts := &domain.RawDeviceFacts{Driver: s.Name(), Extra: map[string]string{}}

	for i, fc := range s.profile.Commands {
		output, err := s.runCommand(ctx, fc.Command)
		if err != nil {
			return nil, err
		}

		if i == 0 && !s.profile.Matches(output) {
			return nil, ErrNotMatched
		}

		if err := fc.Parser(output, facts); err != nil {
			if fc.Optional {
				continue
			}
			return nil, domain.NewError(domain.KindProtocolError, fmt.Sprintf("%s: failed to parse %q", s.Name(), fc.Command), err)
		}
	}

	if facts.Vendor == "" {
		facts.Vendor = s.profile.Vendor
	}

	return facts, nil
}

// runCommand executes a command over SSH and returns the output
func (s *SSHDriver) runCommand(ctx context.Context, cmd string) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", domain.NewError(domain.KindProtocolError, "failed to create session", err)
	}
	defer session.Close()

	type reply struct {
		out []byte
		err error
	}
	done := make(chan reply, 1)

	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- reply{out, err}
	}()

	timer := time.NewTimer(s.commandTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			// Non-zero exit still carries CLI output (e.g. "% Invalid input").
			var exitErr *ssh.ExitError
			if errors.As(r.err, &exitErr) {
				return string(r.out), nil
			}
			return "", domain.NewError(domain.KindProtocolError, fmt.Sprintf("command %q failed", cmd), r.err)
		}
		return string(r.out), nil
	case <-timer.C:
		_ = session.Signal(ssh.SIGKILL)
		return "", domain.Errorf(domain.KindUnreachable, "command %q timed out", cmd)
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", domain.NewError(domain.KindUnreachable, fmt.Sprintf("command %q interrupted", cmd), ctx.Err())
	}
}

// Close ends the SSH session.
func (s *SSHDriver) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
