package driver

import (
	"context"
	"net"
	"strconv"

	"github.com/Ullaakut/nmap/v3"
	"github.com/sirupsen/logrus"

	"netonboard/internal/domain"
)

// Reachability modes.
const (
	ReachabilityTCP  = "tcp"
	ReachabilityNmap = "nmap"
	ReachabilityNone = "none"
)

// Prober checks that a management port answers before login is attempted.
type Prober interface {
	Probe(ctx context.Context, address string, port int) error
}

// NewProber returns the prober for mode; unknown modes fall back to TCP.
func NewProber(mode string, logger *logrus.Entry) Prober {
	switch mode {
	case ReachabilityNone:
		return noopProber{}
	case ReachabilityNmap:
		return &NmapProber{logger: logger}
	default:
		return TCPProber{}
	}
}

type noopProber struct{}

func (noopProber) Probe(context.Context, string, int) error { return nil }

// TCPProber opens and closes a TCP connection.
type TCPProber struct{}

// Probe dials address:port within ctx.
func (TCPProber) Probe(ctx context.Context, address string, port int) error {
	addr := net.JoinHostPort(address, strconv.Itoa(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return domain.NewError(domain.KindUnreachable, "cannot connect to "+addr, err)
	}
	return conn.Close()
}

// NmapProber asks nmap whether the port is open. Filtered and closed both
// count as unreachable.
type NmapProber struct {
	logger *logrus.Entry
}

// Probe runs a single-host, single-port nmap scan.
func (n *NmapProber) Probe(ctx context.Context, address string, port int) error {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(address),
		nmap.WithPorts(strconv.Itoa(port)),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return domain.NewError(domain.KindConfig, "failed to create scanner", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return domain.NewError(domain.KindUnreachable, "scan failed", err)
	}

	if warnings != nil && len(*warnings) > 0 && n.logger != nil {
		n.logger.WithField("warnings", *warnings).Debug("nmap warnings")
	}

	for _, host := range result.Hosts {
		for _, p := range host.Ports {
			if int(p.ID) == port && p.State.State == "open" {
				return nil
			}
		}
	}

	return domain.Errorf(domain.KindUnreachable, "port %d not open on %s", port, address)
}
