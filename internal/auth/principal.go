package auth

import (
	"context"
	"errors"
	"fmt"
)

// Permission represents an access level
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

const (
	ResourceFormats   = "formats"
	ResourceCreatives = "creatives"
)

// Principal represents an authenticated entity with permissions
type Principal struct {
	PrincipalID string                  `json:"principal_id"`
	Permissions map[string][]Permission `json:"permissions"`
	Metadata    map[string]interface{}  `json:"metadata,omitempty"`
}

// HasPermission checks if a principal has a specific permission for a resource
func (p *Principal) HasPermission(resource string, permission Permission) bool {
	if p == nil || p.Permissions == nil {
		return false
	}
	for _, perm := range p.Permissions[resource] {
		if perm == permission {
			return true
		}
	}
	return false
}

// RequiredPermissions defines what permissions are needed for each operation.
// Operations not listed are public.
var RequiredPermissions = map[string]map[string]Permission{
	"build_creative": {
		ResourceCreatives: PermissionWrite,
	},
}

var ErrAuthenticationRequired = errors.New("authentication required")

// CheckOperationPermissions verifies if a principal has all required permissions for an operation
func CheckOperationPermissions(principal *Principal, operation string) error {
	requiredPerms, ok := RequiredPermissions[operation]
	if !ok {
		return nil
	}
	if principal == nil {
		return ErrAuthenticationRequired
	}
	for resource, requiredPerm := range requiredPerms {
		if !principal.HasPermission(resource, requiredPerm) {
			return &InsufficientPermissionsError{
				Resource:   resource,
				Permission: requiredPerm,
				Operation:  operation,
			}
		}
	}
	return nil
}

// InsufficientPermissionsError represents a permission denied error
type InsufficientPermissionsError struct {
	Resource   string
	Permission Permission
	Operation  string
}

func (e *InsufficientPermissionsError) Error() string {
	return fmt.Sprintf("insufficient permissions for %s: requires %s:%s", e.Operation, e.Resource, e.Permission)
}

type contextKey string

const (
	ContextKeyPrincipal contextKey = "principal"
)

// GetPrincipalFromContext retrieves the principal from context
func GetPrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(ContextKeyPrincipal).(*Principal)
	return principal, ok
}
