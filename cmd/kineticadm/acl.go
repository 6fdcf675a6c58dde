package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/chenchongli/kinetic-go/internal/protocol"
)

// aclFile is the YAML layout accepted by set-acl:
//
//	acls:
//	  - identity: 1
//	    key: asdfasdf
//	    scopes:
//	      - permissions: [READ, GETLOG]
//	        tlsRequired: true
type aclFile struct {
	ACLs []aclSpec `yaml:"acls"`
}

type aclSpec struct {
	Identity    int64       `yaml:"identity"`
	Key         string      `yaml:"key"`
	Algorithm   string      `yaml:"algorithm"`
	MaxPriority int32       `yaml:"maxPriority"`
	Scopes      []scopeSpec `yaml:"scopes"`
}

type scopeSpec struct {
	Offset      int64    `yaml:"offset"`
	Value       string   `yaml:"value"`
	Permissions []string `yaml:"permissions"`
	TLSRequired bool     `yaml:"tlsRequired"`
}

func loadACLs(path string) ([]protocol.ACL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file aclFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	acls := make([]protocol.ACL, 0, len(file.ACLs))
	for i, entry := range file.ACLs {
		acl, err := entry.toACL()
		if err != nil {
			return nil, fmt.Errorf("acl %d: %w", i, err)
		}
		acls = append(acls, acl)
	}
	if err := protocol.ValidateACLs(acls); err != nil {
		return nil, err
	}
	return acls, nil
}

func (s aclSpec) toACL() (protocol.ACL, error) {
	acl := protocol.ACL{
		Identity:    s.Identity,
		Key:         []byte(s.Key),
		MaxPriority: s.MaxPriority,
	}
	switch strings.ToUpper(s.Algorithm) {
	case "", "SHA1", "HMACSHA1":
		acl.HMACAlgorithm = protocol.HMACAlgorithmSHA1
	default:
		return protocol.ACL{}, fmt.Errorf("unsupported HMAC algorithm %q", s.Algorithm)
	}

	for _, sc := range s.Scopes {
		scope := protocol.Scope{Offset: sc.Offset, TLSRequired: sc.TLSRequired}
		if sc.Value != "" {
			scope.Value = []byte(sc.Value)
		}
		for _, name := range sc.Permissions {
			p, err := protocol.ParsePermission(strings.ToUpper(name))
			if err != nil {
				return protocol.ACL{}, err
			}
			scope.Permissions = append(scope.Permissions, p)
		}
		acl.Scopes = append(acl.Scopes, scope)
	}
	return acl, nil
}
