package core

import (
	"fmt"
	"strings"
)

// Role is the forwarding behaviour of a routing unit, derived from its outputs.
type Role int

const (
	RoleUninitialized Role = iota
	RoleAggregator
	RoleDisgregator
)

func (r Role) String() string {
	switch r {
	case RoleUninitialized:
		return "uninitialized"
	case RoleAggregator:
		return "aggregator"
	case RoleDisgregator:
		return "disgregator"
	default:
		return "unknown"
	}
}

// ParseRole parses "aggregator" or "disgregator".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aggregator":
		return RoleAggregator, nil
	case "disgregator":
		return RoleDisgregator, nil
	default:
		return RoleUninitialized, fmt.Errorf("unknown role %q", s)
	}
}

func roleOf(outputCount int) Role {
	switch {
	case outputCount == 0:
		return RoleUninitialized
	case outputCount == 1:
		return RoleAggregator
	default:
		return RoleDisgregator
	}
}

// MarshalText renders the role name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText for initialized roles.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
