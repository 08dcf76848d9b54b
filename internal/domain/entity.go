package domain

import (
	"fmt"
	"sort"
	"strings"
)

// EntityKind names an inventory record type.
type EntityKind string

const (
	KindSite         EntityKind = "site"
	KindManufacturer EntityKind = "manufacturer"
	KindDeviceType   EntityKind = "device_type"
	KindPlatform     EntityKind = "platform"
	KindDeviceRole   EntityKind = "device_role"
	KindDevice       EntityKind = "device"
	KindInterface    EntityKind = "interface"
	KindIPAddress    EntityKind = "ip_address"
)

// EntityKinds lists every kind in cascade order.
var EntityKinds = []EntityKind{
	KindSite, KindManufacturer, KindDeviceType, KindPlatform,
	KindDeviceRole, KindDevice, KindInterface, KindIPAddress,
}

// identityFields holds the fields that together identify a record of a kind.
var identityFields = map[EntityKind][]string{
	KindSite:         {"name"},
	KindManufacturer: {"name"},
	KindDeviceType:   {"manufacturer_id", "model"},
	KindPlatform:     {"name"},
	KindDeviceRole:   {"name"},
	KindDevice:       {"site_id", "name"},
	KindInterface:    {"device_id", "name"},
	KindIPAddress:    {"address"},
}

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool {
	_, ok := identityFields[k]
	return ok
}

// IdentityFields returns the uniqueness tuple of a kind.
func (k EntityKind) IdentityFields() []string {
	return identityFields[k]
}

// Fields is the attribute set of an inventory record.
type Fields map[string]any

// String returns a field as a string, or "" when absent.
func (f Fields) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns a boolean field, false when absent.
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Filter selects records by exact field equality.
type Filter map[string]any

// Keys returns the filter keys in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entity is one stored inventory record.
type Entity struct {
	Kind   EntityKind `json:"kind"`
	ID     string     `json:"id"`
	Fields Fields     `json:"fields"`
}

// Name returns the record's name field.
func (e *Entity) Name() string {
	if e == nil {
		return ""
	}
	if n := e.Fields.String("name"); n != "" {
		return n
	}
	return e.Fields.String("address")
}

// IdentityKey derives the unique key of a record of kind k from its fields.
func IdentityKey(k EntityKind, f Fields) (string, error) {
	names, ok := identityFields[k]
	if !ok {
		return "", Errorf(KindConfig, "unknown entity kind %q", k)
	}

	parts := make([]string, 0, len(names))
	for _, n := range names {
		v := f.String(n)
		if v == "" {
			return "", Errorf(KindConfig, "%s requires field %q", k, n)
		}
		parts = append(parts, v)
	}

	return strings.Join(parts, "\x1f"), nil
}
