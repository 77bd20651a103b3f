package tenancy

import "errors"

var (
	ErrUnknownTenant        = errors.New("unknown tenant")
	ErrCrossTenantAccess    = errors.New("cross-tenant access rejected")
	ErrInvalidNamespace     = errors.New("invalid tenant namespace")
	ErrNamespaceUnavailable = errors.New("tenant namespace unavailable")
)
