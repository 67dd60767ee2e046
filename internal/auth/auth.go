// Package auth maps mTLS client identities to roles and decides which
// warden verbs each role may run.
package auth

import (
	"crypto/tls"
	"errors"
	"fmt"
	"slices"
)

// ErrPermissionDenied is returned when a role lacks the permission a verb
// requires.
var ErrPermissionDenied = errors.New("permission denied")

type Permission string

const (
	PermissionContainerManage Permission = "container:manage"
	PermissionContainerQuery  Permission = "container:query"
	PermissionJobStart        Permission = "job:start"
	PermissionJobQuery        Permission = "job:query"
)

type Role string

const (
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

var RolePermissions = map[Role][]Permission{
	RoleOperator: {
		PermissionContainerManage,
		PermissionContainerQuery,
		PermissionJobStart,
		PermissionJobQuery,
	},
	RoleViewer: {PermissionContainerQuery, PermissionJobQuery},
}

// VerbPermissions is the permission required by each verb the server
// implements.
var VerbPermissions = map[string]Permission{
	"ping":    PermissionContainerQuery,
	"list":    PermissionContainerQuery,
	"info":    PermissionContainerQuery,
	"create":  PermissionContainerManage,
	"stop":    PermissionContainerManage,
	"destroy": PermissionContainerManage,
	"net":     PermissionContainerManage,
	"limit":   PermissionContainerManage,
	"spawn":   PermissionJobStart,
	"run":     PermissionJobStart,
	"link":    PermissionJobQuery,
}

// GetClientIdentity returns the common name and first organisational unit
// of the verified client certificate.
func GetClientIdentity(state *tls.ConnectionState) (string, string, error) {
	if state == nil {
		return "", "", fmt.Errorf("no TLS connection state")
	}

	if len(state.VerifiedChains) == 0 ||
		len(state.VerifiedChains[0]) == 0 {
		return "", "", fmt.Errorf("no verified chains in TLS connection state")
	}

	cert := state.VerifiedChains[0][0]

	cn := cert.Subject.CommonName

	var ou string
	if len(cert.Subject.OrganizationalUnit) > 0 {
		ou = cert.Subject.OrganizationalUnit[0]
	}

	return cn, ou, nil
}

func IsAuthorised(clientRole Role, verb string) error {
	requiredPermission, exists := VerbPermissions[verb]
	if !exists {
		return fmt.Errorf("verb %q not in verb permissions", verb)
	}

	permissions, ok := RolePermissions[clientRole]
	if !ok {
		return fmt.Errorf("role %q: %w", clientRole, ErrPermissionDenied)
	}

	if !slices.Contains(permissions, requiredPermission) {
		return fmt.Errorf("%s requires %s: %w", verb, requiredPermission, ErrPermissionDenied)
	}

	return nil
}

// Authorise checks the client identified by state may run verb.
func Authorise(state *tls.ConnectionState, verb string) error {
	_, ou, err := GetClientIdentity(state)
	if err != nil {
		return fmt.Errorf("get client identity: %w", err)
	}

	if err := IsAuthorised(Role(ou), verb); err != nil {
		return fmt.Errorf("authorise client: %w", err)
	}

	return nil
}
