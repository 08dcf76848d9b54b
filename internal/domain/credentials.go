package domain

import "encoding/json"

const redacted = "********"

// Credentials authenticate a session against a device. They are resolved per
// request and never persisted.
type Credentials struct {
	Username   string
	Password   string
	PrivateKey string
	Passphrase string
	Community  string
}

// HasSSH reports whether the credentials can open an SSH session.
func (c Credentials) HasSSH() bool {
	return c.Username != "" && (c.Password != "" || c.PrivateKey != "")
}

// HasSNMP reports whether an SNMP community is present.
func (c Credentials) HasSNMP() bool {
	return c.Community != ""
}

// IsZero reports whether no field is set.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

func (c Credentials) String() string {
	return "Credentials{username=" + c.Username + ", secret=" + mask(c.Password+c.PrivateKey+c.Community) + "}"
}

// MarshalJSON never emits secret material.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"username":    c.Username,
		"password":    mask(c.Password),
		"private_key": mask(c.PrivateKey),
		"community":   mask(c.Community),
	})
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}
