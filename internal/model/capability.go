package model

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Capability is the privilege level the ledger assigns to an account.
// Exactly one capability applies to an account at any time.
type Capability uint8

const (
	CapabilityNone Capability = iota
	CapabilitySubmitter
	CapabilityOfficer
	CapabilityAdmin
)

func (c Capability) String() string {
	switch c {
	case CapabilitySubmitter:
		return "submitter"
	case CapabilityOfficer:
		return "officer"
	case CapabilityAdmin:
		return "admin"
	default:
		return "none"
	}
}

func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Capability) UnmarshalText(b []byte) error {
	v, ok := ParseCapability(string(b))
	if !ok {
		return &ValidationError{Field: "capability", Reason: fmt.Sprintf("unknown capability %q", b)}
	}
	*c = v
	return nil
}

// Label is the human-readable role name shown to users.
func (c Capability) Label() string {
	switch c {
	case CapabilitySubmitter:
		return "Submitter"
	case CapabilityOfficer:
		return "Officer"
	case CapabilityAdmin:
		return "Admin"
	default:
		return "No Role"
	}
}

// ParseCapability is the inverse of Capability.String. Unknown names map to
// CapabilityNone and ok=false.
func ParseCapability(s string) (c Capability, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return CapabilityNone, true
	case "submitter":
		return CapabilitySubmitter, true
	case "officer":
		return CapabilityOfficer, true
	case "admin":
		return CapabilityAdmin, true
	}
	return CapabilityNone, false
}

// NormalizeAccount checks that an account identity is usable and returns its
// canonical form. Hex addresses ("0x" + 40 hex digits) are lower-cased so the
// same account always compares equal; any other opaque identity is kept as-is.
func NormalizeAccount(account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", &ValidationError{Field: "account", Reason: "must not be empty"}
	}
	for _, r := range account {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", &ValidationError{Field: "account", Reason: "must not contain whitespace"}
		}
	}
	if len(account) == 42 && (strings.HasPrefix(account, "0x") || strings.HasPrefix(account, "0X")) {
		if _, err := hex.DecodeString(account[2:]); err == nil {
			return "0x" + strings.ToLower(account[2:]), nil
		}
	}
	return account, nil
}
