package driver

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"netonboard/internal/domain"
)

const (
	oidSysDescr    = ".1.3.6.1.2.1.1.1.0"
	oidSysObjectID = ".1.3.6.1.2.1.1.2.0"
	oidSysUpTime   = ".1.3.6.1.2.1.1.3.0"
	oidSysName     = ".1.3.6.1.2.1.1.5.0"

	oidEntPhysicalClass  = ".1.3.6.1.2.1.47.1.1.1.1.5"
	oidEntPhysicalSerial = ".1.3.6.1.2.1.47.1.1.1.1.11"
	oidEntPhysicalModel  = ".1.3.6.1.2.1.47.1.1.1.1.13"

	oidIfDescr       = ".1.3.6.1.2.1.2.2.1.2"
	oidIfPhysAddress = ".1.3.6.1.2.1.2.2.1.6"
	oidIfAdminStatus = ".1.3.6.1.2.1.2.2.1.7"
	oidIfOperStatus  = ".1.3.6.1.2.1.2.2.1.8"
	oidIfName        = ".1.3.6.1.2.1.31.1.1.1.1"

	oidIPAdEntIfIndex = ".1.3.6.1.2.1.4.20.1.2"
	oidIPAdEntNetMask = ".1.3.6.1.2.1.4.20.1.3"

	entClassChassis = 3
	defaultSNMPPort = 161
)

// enterpriseVendors maps the private enterprise number in sysObjectID to a vendor.
var enterpriseVendors = map[string]string{
	"9":     "Cisco",
	"2636":  "Juniper",
	"30065": "Arista",
	"11":    "HP",
	"2011":  "Huawei",
	"6027":  "Dell",
	"674":   "Dell",
	"14988": "MikroTik",
	"12356": "Fortinet",
	"25461": "Palo Alto Networks",
}

var reSNMPVersion = regexp.MustCompile(`(?i)(?:Version|EOS version|JUNOS)\s+([0-9][^\s,]*)`)

// SNMPDriver collects facts over SNMP v2c using the system, ENTITY, IF and IP MIBs.
type SNMPDriver struct {
	client *gosnmp.GoSNMP
}

// NewSNMPDriver creates an SNMP driver
func NewSNMPDriver() *SNMPDriver {
	return &SNMPDriver{}
}

func (s *SNMPDriver) Name() string              { return DriverSNMP }
func (s *SNMPDriver) Protocol() domain.Protocol { return domain.ProtocolSNMP }

// Authenticate opens the UDP socket and verifies the community with a
// sysObjectID read.
func (s *SNMPDriver) Authenticate(ctx context.Context, target Target, creds domain.Credentials) error {
	if creds.Community == "" {
		return domain.Errorf(domain.KindAuthFailed, "no SNMP community in credentials")
	}

	port := target.Port
	if port == 0 {
		port = defaultSNMPPort
	}

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline) / 2
	}

	s.client = &gosnmp.GoSNMP{
		Target:    target.Address,
		Port:      uint16(port),
		Community: creds.Community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   1,
		Context:   ctx,
		MaxOids:   gosnmp.MaxOids,
	}

	if err := s.client.Connect(); err != nil {
		s.client = nil
		return domain.NewError(domain.KindUnreachable, "failed to open SNMP socket", err)
	}

	pkt, err := s.client.Get([]string{oidSysObjectID})
	if err != nil {
		s.Close()
		// v2c gives no distinct answer to a bad community: the agent stays silent
		return domain.NewError(domain.KindUnreachable, "no SNMP response from "+target.Address, err)
	}
	if pkt.Error == gosnmp.AuthorizationError || pkt.Error == gosnmp.NoAccess {
		s.Close()
		return domain.Errorf(domain.KindAuthFailed, "SNMP access denied by %s", target.Address)
	}

	return nil
}

// GetFacts reads system identity, chassis and interfaces.
func (s *SNMPDriver) GetFacts(ctx context.Context) (*domain.RawDeviceFacts, error) {
	if s.client == nil {
		return nil, domain.Errorf(domain.KindProtocolError, "snmp: session not authenticated")
	}
	s.client.Context = ctx

	pkt, err := s.client.Get([]string{oidSysDescr, oidSysObjectID, oidSysUpTime, oidSysName})
	if err != nil {
		return nil, domain.NewError(domain.KindUnreachable, "snmp system group", err)
	}

	facts := &domain.RawDeviceFacts{Driver: DriverSNMP, Extra: map[string]string{}}

	for _, v := range pkt.Variables {
		switch v.Name {
		case oidSysDescr:
			descr := pduString(v)
			facts.Extra["sys_descr"] = descr
			facts.OSVersion = firstMatch(reSNMPVersion, descr)
			if p := platformFromDescr(descr); p != "" {
				facts.Extra["platform"] = p
			}
		case oidSysObjectID:
			oid := pduString(v)
			facts.Extra["sys_object_id"] = oid
			facts.Vendor = vendorFromObjectID(oid)
		case oidSysUpTime:
			facts.Uptime = time.Duration(gosnmp.ToBigInt(v.Value).Int64()) * 10 * time.Millisecond
		case oidSysName:
			facts.Hostname = pduString(v)
		}
	}

	if err := s.chassis(facts); err != nil {
		return nil, err
	}
	if err := s.interfaces(facts); err != nil {
		return nil, err
	}

	return facts, nil
}

// chassis takes model and serial from the first chassis-class entity.
func (s *SNMPDriver) chassis(f *domain.RawDeviceFacts) error {
	classes, err := s.client.BulkWalkAll(oidEntPhysicalClass)
	if err != nil {
		return domain.NewError(domain.KindProtocolError, "snmp entPhysicalClass walk", err)
	}

	for _, c := range classes {
		if gosnmp.ToBigInt(c.Value).Int64() != entClassChassis {
			continue
		}
		idx := strings.TrimPrefix(c.Name, oidEntPhysicalClass+".")

		pkt, err := s.client.Get([]string{oidEntPhysicalModel + "." + idx, oidEntPhysicalSerial + "." + idx})
		if err != nil {
			return domain.NewError(domain.KindProtocolError, "snmp chassis entity", err)
		}
		for _, v := range pkt.Variables {
			switch {
			case strings.HasPrefix(v.Name, oidEntPhysicalModel):
				f.Model = strings.TrimSpace(pduString(v))
			case strings.HasPrefix(v.Name, oidEntPhysicalSerial):
				f.SerialNumber = strings.TrimSpace(pduString(v))
			}
		}
		return nil
	}

	return nil
}

// interfaces joins the IF-MIB tables and IPv4 address table by ifIndex.
func (s *SNMPDriver) interfaces(f *domain.RawDeviceFacts) error {
	byIndex := map[int]*domain.RawInterface{}
	get := func(idx int) *domain.RawInterface {
		if iface, ok := byIndex[idx]; ok {
			return iface
		}
		iface := &domain.RawInterface{}
		byIndex[idx] = iface
		return iface
	}

	columns := []struct {
		oid   string
		apply func(*domain.RawInterface, gosnmp.SnmpPDU)
	}{
		{oidIfDescr, func(i *domain.RawInterface, v gosnmp.SnmpPDU) {
			if i.Name == "" {
				i.Name = pduString(v)
			}
		}},
		{oidIfName, func(i *domain.RawInterface, v gosnmp.SnmpPDU) {
			if n := pduString(v); n != "" {
				i.Name = n
			}
		}},
		{oidIfPhysAddress, func(i *domain.RawInterface, v gosnmp.SnmpPDU) {
			if b, ok := v.Value.([]byte); ok && len(b) == 6 {
				i.MACAddress = net.HardwareAddr(b).String()
			}
		}},
		{oidIfAdminStatus, func(i *domain.RawInterface, v gosnmp.SnmpPDU) {
			i.Enabled = gosnmp.ToBigInt(v.Value).Int64() == 1
		}},
		{oidIfOperStatus, func(i *domain.RawInterface, v gosnmp.SnmpPDU) {
			i.Up = gosnmp.ToBigInt(v.Value).Int64() == 1
		}},
	}

	for _, col := range columns {
		pdus, err := s.client.BulkWalkAll(col.oid)
		if err != nil {
			return domain.NewError(domain.KindProtocolError, "snmp walk "+col.oid, err)
		}
		for _, v := range pdus {
			idx, err := strconv.Atoi(strings.TrimPrefix(v.Name, col.oid+"."))
			if err != nil {
				continue
			}
			col.apply(get(idx), v)
		}
	}

	masks := map[string]string{}
	maskPDUs, err := s.client.BulkWalkAll(oidIPAdEntNetMask)
	if err != nil {
		return domain.NewError(domain.KindProtocolError, "snmp walk ipAdEntNetMask", err)
	}
	for _, v := range maskPDUs {
		masks[strings.TrimPrefix(v.Name, oidIPAdEntNetMask+".")] = pduString(v)
	}

	addrPDUs, err := s.client.BulkWalkAll(oidIPAdEntIfIndex)
	if err != nil {
		return domain.NewError(domain.KindProtocolError, "snmp walk ipAdEntIfIndex", err)
	}
	for _, v := range addrPDUs {
		ip := strings.TrimPrefix(v.Name, oidIPAdEntIfIndex+".")
		idx := int(gosnmp.ToBigInt(v.Value).Int64())
		iface, ok := byIndex[idx]
		if !ok {
			continue
		}
		iface.Addresses = append(iface.Addresses, ip+"/"+strconv.Itoa(maskLen(masks[ip])))
	}

	indexes := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		f.Interfaces = append(f.Interfaces, *byIndex[idx])
	}
	return nil
}

// Close releases the UDP socket.
func (s *SNMPDriver) Close() error {
	if s.client == nil || s.client.Conn == nil {
		s.client = nil
		return nil
	}
	err := s.client.Conn.Close()
	s.client = nil
	return err
}

func pduString(v gosnmp.SnmpPDU) string {
	switch val := v.Value.(type) {
	case []byte:
		return string(val)
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

func vendorFromObjectID(oid string) string {
	rest, ok := strings.CutPrefix(strings.TrimPrefix(oid, "."), "1.3.6.1.4.1.")
	if !ok {
		return ""
	}
	enterprise, _, _ := strings.Cut(rest, ".")
	return enterpriseVendors[enterprise]
}

// platformFromDescr maps sysDescr to the SSH driver name of the same platform.
func platformFromDescr(descr string) string {
	switch {
	case strings.Contains(descr, "NX-OS"):
		return DriverCiscoNXOS
	case strings.Contains(descr, "IOS XR"):
		return DriverCiscoXR
	case strings.Contains(descr, "Cisco IOS"):
		return DriverCiscoIOS
	case strings.Contains(descr, "Arista"):
		return DriverAristaEOS
	case strings.Contains(descr, "Juniper") || strings.Contains(descr, "JUNOS"):
		return DriverJuniperJunos
	default:
		return ""
	}
}

// maskLen converts a dotted netmask to a prefix length; unknown masks are /32.
func maskLen(mask string) int {
	ip := net.ParseIP(mask).To4()
	if ip == nil {
		return 32
	}
	ones, bits := net.IPMask(ip).Size()
	if bits == 0 {
		return 32
	}
	return ones
}
