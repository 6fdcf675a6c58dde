package protocol

import (
	"errors"
	"fmt"
)

// Permission is an operation class an ACL scope may grant.
type Permission int32

const (
	PermissionInvalid  Permission = -1
	PermissionRead     Permission = 0
	PermissionWrite    Permission = 1
	PermissionDelete   Permission = 2
	PermissionRange    Permission = 3
	PermissionSetup    Permission = 4
	PermissionP2POp    Permission = 5
	PermissionGetLog   Permission = 7
	PermissionSecurity Permission = 8
)

var permissionNames = map[Permission]string{
	PermissionRead:     "READ",
	PermissionWrite:    "WRITE",
	PermissionDelete:   "DELETE",
	PermissionRange:    "RANGE",
	PermissionSetup:    "SETUP",
	PermissionP2POp:    "P2POP",
	PermissionGetLog:   "GETLOG",
	PermissionSecurity: "SECURITY",
}

func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return "INVALID_PERMISSION"
}

// ParsePermission maps a permission name (as printed by String) back to its value.
func ParsePermission(name string) (Permission, error) {
	for p, n := range permissionNames {
		if n == name {
			return p, nil
		}
	}
	return PermissionInvalid, fmt.Errorf("unknown permission %q", name)
}

// HMACAlgorithm names the digest an identity signs with.
type HMACAlgorithm int32

const (
	HMACAlgorithmInvalid HMACAlgorithm = -1
	HMACAlgorithmSHA1    HMACAlgorithm = 1
)

// Scope restricts a set of permissions to keys matching Value at Offset.
type Scope struct {
	Offset      int64        `json:"offset,omitempty"`
	Value       []byte       `json:"value,omitempty"`
	Permissions []Permission `json:"permission"`
	TLSRequired bool         `json:"tlsRequired,omitempty"`
}

// ACL grants an identity, keyed by its HMAC secret, a list of scopes.
type ACL struct {
	Identity      int64         `json:"identity"`
	Key           []byte        `json:"key"`
	HMACAlgorithm HMACAlgorithm `json:"hmacAlgorithm"`
	Scopes        []Scope       `json:"scope"`
	MaxPriority   int32         `json:"maxPriority,omitempty"`
}

// ErrInvalidACL is returned by ValidateACLs for malformed entries.
var ErrInvalidACL = errors.New("invalid ACL")

// ValidateACLs checks that an ACL table can be sent to a device.
func ValidateACLs(acls []ACL) error {
	if len(acls) == 0 {
		return fmt.Errorf("%w: at least one entry is required", ErrInvalidACL)
	}
	seen := make(map[int64]bool, len(acls))
	for i, acl := range acls {
		if len(acl.Key) == 0 {
			return fmt.Errorf("%w: entry %d (identity %d) has no key", ErrInvalidACL, i, acl.Identity)
		}
		if seen[acl.Identity] {
			return fmt.Errorf("%w: identity %d listed twice", ErrInvalidACL, acl.Identity)
		}
		seen[acl.Identity] = true
		if acl.HMACAlgorithm != HMACAlgorithmSHA1 {
			return fmt.Errorf("%w: identity %d uses unsupported HMAC algorithm %d", ErrInvalidACL, acl.Identity, acl.HMACAlgorithm)
		}
		if len(acl.Scopes) == 0 {
			return fmt.Errorf("%w: identity %d has no scope", ErrInvalidACL, acl.Identity)
		}
		for _, scope := range acl.Scopes {
			if scope.Offset < 0 {
				return fmt.Errorf("%w: identity %d has negative scope offset", ErrInvalidACL, acl.Identity)
			}
			for _, p := range scope.Permissions {
				if _, ok := permissionNames[p]; !ok {
					return fmt.Errorf("%w: identity %d has unknown permission %d", ErrInvalidACL, acl.Identity, p)
				}
			}
		}
	}
	return nil
}
