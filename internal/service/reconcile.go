package service

import (
	"context"
	"fmt"
	"net/netip"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"netonboard/internal/domain"
	"netonboard/internal/metrics"
	"netonboard/internal/repository"
)

// ReconcilePolicy controls which missing inventory records may be created.
type ReconcilePolicy struct {
	DefaultSite string
	DefaultRole string

	CreateSiteIfMissing         bool
	CreateManufacturerIfMissing bool
	CreateDeviceTypeIfMissing   bool
	CreatePlatformIfMissing     bool
	CreateDeviceRoleIfMissing   bool

	// GuessRoleFromHostname derives the role from hostname tokens when the
	// request carries no role.
	GuessRoleFromHostname bool
}

// DefaultReconcilePolicy creates everything but sites.
func DefaultReconcilePolicy() ReconcilePolicy {
	return ReconcilePolicy{
		DefaultRole:                 "network",
		CreateManufacturerIfMissing: true,
		CreateDeviceTypeIfMissing:   true,
		CreatePlatformIfMissing:     true,
		CreateDeviceRoleIfMissing:   true,
	}
}

// ReconcileOptions carries the request hints that affect reconciliation.
type ReconcileOptions struct {
	Site              string
	Role              string
	ManagementAddress string
}

// Reconciliation is the outcome of one reconcile.
type Reconciliation struct {
	DeviceID string
	Changes  []domain.EntityChange
}

// Reconciler writes a canonical descriptor into the inventory store.
type Reconciler struct {
	store    repository.Store
	policy   ReconcilePolicy
	locks    *keyedMutex
	eventBus *EventBus
	logger   *logrus.Entry
}

// NewReconciler creates a reconciler over store.
func NewReconciler(store repository.Store, policy ReconcilePolicy, eventBus *EventBus, logger *logrus.Entry) *Reconciler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reconciler{
		store:    store,
		policy:   policy,
		locks:    newKeyedMutex(),
		eventBus: eventBus,
		logger:   logger,
	}
}

// Reconcile runs the create-or-update cascade for d in one atomic unit.
// Reconciles of the same hostname are serialized.
func (r *Reconciler) Reconcile(ctx context.Context, d domain.CanonicalDeviceDescriptor, opts ReconcileOptions) (*Reconciliation, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Reconciler.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("hostname", d.Hostname))

	unlock := r.locks.Lock(d.Hostname)
	defer unlock()

	var result *Reconciliation
	err := r.store.RunAtomic(ctx, func(tx repository.Store) error {
		c := &cascade{tx: tx, policy: r.policy, created: map[string]bool{}, logger: r.logger}
		deviceID, err := c.run(ctx, d, opts)
		if err != nil {
			return err
		}
		result = &Reconciliation{DeviceID: deviceID, Changes: c.changes}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, ch := range result.Changes {
		metrics.EntityChanged(string(ch.Kind), string(ch.Action))
		if r.eventBus != nil {
			r.eventBus.Publish(Event{Type: EventEntityChanged, Payload: ch})
		}
	}

	r.logger.WithFields(logrus.Fields{
		"hostname":  d.Hostname,
		"device_id": result.DeviceID,
		"changes":   len(result.Changes),
	}).Info("device reconciled")

	return result, nil
}

// cascade holds the state of one reconcile transaction.
type cascade struct {
	tx      repository.Store
	policy  ReconcilePolicy
	changes []domain.EntityChange
	// created records IDs created in this run; later updates to them fold
	// into the creation.
	created map[string]bool
	logger  *logrus.Entry
}

func (c *cascade) run(ctx context.Context, d domain.CanonicalDeviceDescriptor, opts ReconcileOptions) (string, error) {
	if d.Manufacturer == "" {
		return "", domain.Errorf(domain.KindIncompleteFacts, "manufacturer unknown for %s", d.Hostname)
	}

	siteName := opts.Site
	if siteName == "" {
		siteName = c.policy.DefaultSite
	}
	if siteName == "" {
		return "", domain.Errorf(domain.KindConfig, "no site given and no default site configured")
	}

	site, err := c.ensure(ctx, domain.KindSite, domain.Filter{"name": siteName},
		domain.Fields{"slug": slugify(siteName), "status": "active"}, c.policy.CreateSiteIfMissing)
	if err != nil {
		return "", err
	}

	manufacturer, err := c.ensure(ctx, domain.KindManufacturer, domain.Filter{"name": d.Manufacturer},
		domain.Fields{"slug": slugify(d.Manufacturer)}, c.policy.CreateManufacturerIfMissing)
	if err != nil {
		return "", err
	}

	typeSlug := slugify(d.Model)
	other, err := c.tx.FindOne(ctx, domain.KindDeviceType, domain.Filter{"slug": typeSlug})
	if err != nil {
		return "", err
	}
	if other != nil && other.Fields.String("manufacturer_id") != manufacturer.ID {
		return "", domain.Errorf(domain.KindConfig, "device type %q already exists under another manufacturer", typeSlug)
	}

	deviceType, err := c.ensure(ctx, domain.KindDeviceType,
		domain.Filter{"manufacturer_id": manufacturer.ID, "model": d.Model},
		domain.Fields{"slug": typeSlug}, c.policy.CreateDeviceTypeIfMissing)
	if err != nil {
		return "", err
	}

	var platformID string
	if d.Platform != "" {
		platform, err := c.ensure(ctx, domain.KindPlatform, domain.Filter{"name": d.Platform},
			domain.Fields{"slug": slugify(d.Platform), "manufacturer_id": manufacturer.ID, "driver": d.Driver},
			c.policy.CreatePlatformIfMissing)
		if err != nil {
			return "", err
		}
		// an operator-bound driver is never replaced
		if platform.Fields.String("driver") == "" && d.Driver != "" {
			if err := c.update(ctx, platform, domain.Fields{"driver": d.Driver}); err != nil {
				return "", err
			}
		}
		platformID = platform.ID
	}

	device, err := c.device(ctx, d, opts, site, deviceType.ID, platformID)
	if err != nil {
		return "", err
	}

	ifaceIDs, err := c.interfaces(ctx, device.ID, d.Interfaces)
	if err != nil {
		return "", err
	}

	if err := c.managementIP(ctx, d, opts.ManagementAddress, device, ifaceIDs); err != nil {
		return "", err
	}

	return device.ID, nil
}

// device finds the device by name across all sites. A device of the same name
// at another site is a conflict, never silently moved.
func (c *cascade) device(ctx context.Context, d domain.CanonicalDeviceDescriptor, opts ReconcileOptions, site *domain.Entity, deviceTypeID, platformID string) (*domain.Entity, error) {
	existing, err := c.tx.FindAll(ctx, domain.KindDevice, domain.Filter{"name": d.Hostname})
	if err != nil {
		return nil, err
	}

	for _, e := range existing {
		if e.Fields.String("site_id") != site.ID {
			return nil, domain.Errorf(domain.KindConflictingEntity,
				"device %q already exists at another site (site_id %s)", d.Hostname, e.Fields.String("site_id"))
		}
	}

	if len(existing) > 0 {
		device := existing[0]
		want := domain.Fields{"serial": d.SerialNumber, "device_type_id": deviceTypeID}
		if platformID != "" {
			want["platform_id"] = platformID
		}
		if err := c.update(ctx, device, want); err != nil {
			return nil, err
		}
		return device, nil
	}

	role, err := c.role(ctx, d.Hostname, opts.Role)
	if err != nil {
		return nil, err
	}

	fields := domain.Fields{
		"name":           d.Hostname,
		"site_id":        site.ID,
		"device_type_id": deviceTypeID,
		"device_role_id": role.ID,
		"serial":         d.SerialNumber,
		"status":         "active",
	}
	if platformID != "" {
		fields["platform_id"] = platformID
	}

	return c.create(ctx, domain.KindDevice, fields)
}

// role resolves the device role: request hint, hostname guess, then default.
func (c *cascade) role(ctx context.Context, hostname, hint string) (*domain.Entity, error) {
	name := hint
	if name == "" && c.policy.GuessRoleFromHostname {
		name = GuessRole(hostname)
	}
	if name == "" {
		name = c.policy.DefaultRole
	}
	if name == "" {
		return nil, domain.Errorf(domain.KindConfig, "no device role given and no default role configured")
	}

	return c.ensure(ctx, domain.KindDeviceRole, domain.Filter{"name": name},
		domain.Fields{"slug": slugify(name)}, c.policy.CreateDeviceRoleIfMissing)
}

func (c *cascade) interfaces(ctx context.Context, deviceID string, ifaces []domain.CanonicalInterface) (map[string]*domain.Entity, error) {
	ids := make(map[string]*domain.Entity, len(ifaces))

	for _, iface := range ifaces {
		want := domain.Fields{"mac_address": iface.MACAddress, "enabled": iface.Enabled}

		e, err := c.tx.FindOne(ctx, domain.KindInterface, domain.Filter{"device_id": deviceID, "name": iface.Name})
		if err != nil {
			return nil, err
		}

		if e == nil {
			fields := domain.Fields{"device_id": deviceID, "name": iface.Name}
			for k, v := range want {
				fields[k] = v
			}
			if e, err = c.create(ctx, domain.KindInterface, fields); err != nil {
				return nil, err
			}
		} else if err := c.update(ctx, e, want); err != nil {
			return nil, err
		}

		ids[iface.Name] = e
	}

	return ids, nil
}

// managementIP records the management address and makes it the device's
// primary address. The address keeps the prefix of the interface carrying
// it; otherwise it becomes a host prefix on the first interface, or stays
// unassigned when the device reported no interfaces.
func (c *cascade) managementIP(ctx context.Context, d domain.CanonicalDeviceDescriptor, mgmt string, device *domain.Entity, ifaces map[string]*domain.Entity) error {
	if mgmt == "" {
		return nil
	}

	var ifEntity *domain.Entity
	iface, cidr, ok := d.InterfaceFor(mgmt)
	if ok {
		ifEntity = ifaces[iface.Name]
	} else {
		addr, err := netip.ParseAddr(mgmt)
		if err != nil {
			return domain.Errorf(domain.KindConfig, "management address %q is not an IP address", mgmt)
		}
		addr = addr.Unmap()
		cidr = netip.PrefixFrom(addr, addr.BitLen()).String()
		if len(d.Interfaces) > 0 {
			ifEntity = ifaces[d.Interfaces[0].Name]
		}
		c.logger.WithFields(logrus.Fields{"address": cidr, "interface": ifaceName(ifEntity)}).
			Debug("management address not reported on any interface")
	}

	ip, err := c.tx.FindOne(ctx, domain.KindIPAddress, domain.Filter{"address": cidr})
	if err != nil {
		return err
	}

	if ip == nil {
		fields := domain.Fields{"address": cidr, "status": "active"}
		if ifEntity != nil {
			fields["assigned_interface_id"] = ifEntity.ID
		}
		if ip, err = c.create(ctx, domain.KindIPAddress, fields); err != nil {
			return err
		}
	} else if ifEntity != nil && ip.Fields.String("assigned_interface_id") == "" {
		if err := c.update(ctx, ip, domain.Fields{"assigned_interface_id": ifEntity.ID}); err != nil {
			return err
		}
	}

	field := "primary_ip4_id"
	if p, err := netip.ParsePrefix(cidr); err == nil && p.Addr().Is6() {
		field = "primary_ip6_id"
	}
	return c.update(ctx, device, domain.Fields{field: ip.ID})
}

func ifaceName(e *domain.Entity) string {
	if e == nil {
		return ""
	}
	return e.Fields.String("name")
}

// ensure returns the record matching filter, creating it (filter + extra
// fields) when allowed.
func (c *cascade) ensure(ctx context.Context, kind domain.EntityKind, filter domain.Filter, extra domain.Fields, allowCreate bool) (*domain.Entity, error) {
	e, err := c.tx.FindOne(ctx, kind, filter)
	if err != nil {
		return nil, err
	}
	if e != nil {
		return e, nil
	}

	if !allowCreate {
		return nil, domain.Errorf(domain.KindConfig, "%s %s does not exist and creation is disabled", kind, describe(filter))
	}

	fields := domain.Fields{}
	for k, v := range filter {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}

	e, err = c.create(ctx, kind, fields)
	if domain.KindOf(err) == domain.KindConflictingEntity {
		// another writer created it between our lookup and insert
		if found, ferr := c.tx.FindOne(ctx, kind, filter); ferr == nil && found != nil {
			return found, nil
		}
	}
	return e, err
}

func (c *cascade) create(ctx context.Context, kind domain.EntityKind, fields domain.Fields) (*domain.Entity, error) {
	e, err := c.tx.Create(ctx, kind, fields)
	if err != nil {
		return nil, err
	}

	c.created[e.ID] = true
	c.changes = append(c.changes, domain.EntityChange{
		Kind:   kind,
		ID:     e.ID,
		Name:   e.Name(),
		Action: domain.ActionCreated,
	})
	return e, nil
}

// update writes only the fields that differ and records the change.
func (c *cascade) update(ctx context.Context, e *domain.Entity, want domain.Fields) error {
	diff := domain.Fields{}
	for k, v := range want {
		if !reflect.DeepEqual(e.Fields[k], v) {
			diff[k] = v
		}
	}
	if len(diff) == 0 {
		return nil
	}

	updated, err := c.tx.Update(ctx, e.Kind, e.ID, diff)
	if err != nil {
		return err
	}
	e.Fields = updated.Fields

	if c.created[e.ID] {
		return nil
	}

	changed := make([]string, 0, len(diff))
	for k := range diff {
		changed = append(changed, k)
	}
	sort.Strings(changed)

	c.changes = append(c.changes, domain.EntityChange{
		Kind:    e.Kind,
		ID:      e.ID,
		Name:    e.Name(),
		Action:  domain.ActionUpdated,
		Changed: changed,
	})
	return nil
}

func describe(filter domain.Filter) string {
	parts := make([]string, 0, len(filter))
	for _, k := range filter.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, filter[k]))
	}
	return strings.Join(parts, ",")
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

var roleTokens = []struct {
	tokens []string
	role   string
}{
	{[]string{"rtr", "router"}, "router"},
	{[]string{"sw", "switch"}, "switch"},
	{[]string{"fw", "firewall"}, "firewall"},
	{[]string{"dc"}, "datacenter"},
}

var hostnameSeparators = regexp.MustCompile(`[^a-z]+`)

// GuessRole maps hostname tokens to a role name, or "" when nothing matches.
func GuessRole(hostname string) string {
	tokens := map[string]bool{}
	for _, t := range hostnameSeparators.Split(strings.ToLower(hostname), -1) {
		if t != "" {
			tokens[t] = true
		}
	}

	for _, rt := range roleTokens {
		for _, t := range rt.tokens {
			if tokens[t] {
				return rt.role
			}
		}
	}
	return ""
}
