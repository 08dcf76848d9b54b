package driver

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"netonboard/internal/domain"
	"netonboard/internal/metrics"
)

const pkgName = "netonboard/internal/driver"

// ConnectorConfig tunes the Connector.
type ConnectorConfig struct {
	// Timeout bounds one Connect call, probing included.
	Timeout time.Duration

	// ProbeOrder is the driver autodetection order.
	ProbeOrder []string

	// Reachability selects the pre-login port check: tcp, nmap or none.
	Reachability string

	SSHPort  int
	SNMPPort int
}

// Connector opens a session to a device with a suitable driver and returns
// its raw facts.
type Connector struct {
	registry *Registry
	prober   Prober
	resolver *net.Resolver
	cfg      ConnectorConfig
	logger   *logrus.Entry
}

// NewConnector builds a connector over registry.
func NewConnector(registry *Registry, cfg ConnectorConfig, logger *logrus.Entry) *Connector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.ProbeOrder) == 0 {
		cfg.ProbeOrder = DefaultProbeOrder
	}
	if cfg.SSHPort == 0 {
		cfg.SSHPort = defaultSSHPort
	}
	if cfg.SNMPPort == 0 {
		cfg.SNMPPort = defaultSNMPPort
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Connector{
		registry: registry,
		prober:   NewProber(cfg.Reachability, logger),
		resolver: net.DefaultResolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetProber replaces the reachability prober.
func (c *Connector) SetProber(p Prober) {
	c.prober = p
}

// Connect resolves the target, picks a driver (hinted or autodetected), and
// returns the facts from the first driver that recognizes the device.
func (c *Connector) Connect(ctx context.Context, target Target, creds domain.Credentials) (*domain.RawDeviceFacts, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Connector.Connect")
	defer span.End()
	span.SetAttributes(attribute.String("address", target.Address), attribute.String("platform", target.Platform))

	timeout := c.cfg.Timeout
	if target.Timeout > 0 {
		timeout = target.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	facts, err := c.connect(ctx, target, creds)
	if err != nil {
		err = c.contextError(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
		return nil, err
	}

	span.SetAttributes(attribute.String("driver", facts.Driver))
	return facts, nil
}

func (c *Connector) connect(ctx context.Context, target Target, creds domain.Credentials) (*domain.RawDeviceFacts, error) {
	addr, err := c.resolve(ctx, target.Address)
	if err != nil {
		return nil, err
	}
	target.Address = addr

	candidates, err := c.candidates(target)
	if err != nil {
		return nil, err
	}

	protocol, _ := c.registry.protocolOf(candidates[0])
	if target.Port == 0 {
		target.Port = c.cfg.SSHPort
		if protocol == domain.ProtocolSNMP {
			target.Port = c.cfg.SNMPPort
		}
	}

	if protocol == domain.ProtocolSSH {
		if !creds.HasSSH() {
			return nil, domain.Errorf(domain.KindAuthFailed, "credentials lack username and password or key")
		}
		if err := c.prober.Probe(ctx, target.Address, target.Port); err != nil {
			return nil, err
		}
	}

	logger := c.logger.WithField("address", target.Address)
	var tried []string

	for _, name := range candidates {
		facts, err := c.try(ctx, name, target, creds)
		if err == nil {
			metrics.ConnectAttempt(name, "matched")
			if facts.Extra == nil {
				facts.Extra = map[string]string{}
			}
			facts.Extra["management_address"] = target.Address
			logger.WithField("driver", name).Debug("driver matched device")
			return facts, nil
		}

		tried = append(tried, name)

		switch {
		case errors.Is(err, ErrNotMatched):
			metrics.ConnectAttempt(name, "not_matched")
			if target.Platform != "" {
				return nil, domain.Errorf(domain.KindUnsupportedPlatform, "device did not identify as %s", name)
			}
			logger.WithField("driver", name).Debug("driver did not match, trying next")
			continue
		case domain.KindOf(err) == domain.KindProtocolError && target.Platform == "" && ctx.Err() == nil:
			metrics.ConnectAttempt(name, "protocol_error")
			logger.WithField("driver", name).WithError(err).Debug("driver failed, trying next")
			continue
		default:
			metrics.ConnectAttempt(name, string(domain.KindOf(err)))
			return nil, err
		}
	}

	return nil, domain.Errorf(domain.KindUnsupportedPlatform, "no driver recognized %s (tried %s)", target.Address, strings.Join(tried, ", "))
}

// try runs one driver through a full session.
func (c *Connector) try(ctx context.Context, name string, target Target, creds domain.Credentials) (*domain.RawDeviceFacts, error) {
	d, ok := c.registry.New(name)
	if !ok {
		return nil, domain.Errorf(domain.KindUnsupportedPlatform, "no driver registered for %q", name)
	}
	defer d.Close()

	if err := d.Authenticate(ctx, target, creds); err != nil {
		return nil, err
	}

	facts, err := d.GetFacts(ctx)
	if err != nil {
		return nil, err
	}
	facts.Driver = name
	return facts, nil
}

// candidates lists the drivers to try in order.
func (c *Connector) candidates(target Target) ([]string, error) {
	if target.Platform != "" {
		if _, ok := c.registry.protocolOf(target.Platform); !ok {
			return nil, domain.Errorf(domain.KindUnsupportedPlatform, "unknown platform %q", target.Platform)
		}
		return []string{target.Platform}, nil
	}

	protocol := target.Protocol
	if protocol == "" {
		protocol = domain.ProtocolSSH
	}

	names := c.registry.ForProtocol(c.cfg.ProbeOrder, protocol)
	if len(names) == 0 {
		return nil, domain.Errorf(domain.KindUnsupportedPlatform, "no %s drivers in probe order", protocol)
	}
	return names, nil
}

func (c *Connector) resolve(ctx context.Context, address string) (string, error) {
	if net.ParseIP(address) != nil {
		return address, nil
	}

	addrs, err := c.resolver.LookupHost(ctx, address)
	if err != nil || len(addrs) == 0 {
		return "", domain.NewError(domain.KindUnreachable, "cannot resolve "+address, err)
	}
	return addrs[0], nil
}

// contextError reports timeouts as unreachable and cancellation as cancelled,
// whatever the driver wrapped them in.
func (c *Connector) contextError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && domain.KindOf(err) != domain.KindAuthFailed:
		return domain.NewError(domain.KindUnreachable, "connect timed out", err)
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.NewError(domain.KindCancelled, "connect cancelled", err)
	default:
		return err
	}
}
