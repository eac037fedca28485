// Package collections provides collection naming for voiced.
//
// Every tenant owns exactly one collection inside the vector index, named
// deterministically from the tenant id so the set of known tenants can be
// rediscovered after a restart by listing collections and matching the
// pattern.
//
// Example:
//
//	name, err := collections.ForTenant("alice")
//	// Result: "user_alice_voice_features"
package collections

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// prefix and suffix frame every tenant collection name.
	prefix = "user_"
	suffix = "_voice_features"
)

var (
	// ErrInvalidTenantID indicates an empty or malformed tenant id.
	ErrInvalidTenantID = errors.New("invalid tenant ID")

	// ErrNotTenantCollection indicates a collection name outside the
	// tenant naming pattern.
	ErrNotTenantCollection = errors.New("not a tenant collection name")
)

// tenantIDPattern restricts tenant ids to identifiers that survive the
// index backends' collection name rules (lowercase alphanumerics, dash,
// underscore, 1-64 characters).
var tenantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ForTenant returns the collection name for a tenant.
//
// The collection name format is: user_{tenant}_voice_features.
// Returns ErrInvalidTenantID if the tenant id is empty or malformed.
func ForTenant(tenantID string) (string, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	return prefix + tenantID + suffix, nil
}

// ValidateTenantID validates a tenant id against the naming rules.
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant ID required", ErrInvalidTenantID)
	}
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("%w: must match %s, got %q", ErrInvalidTenantID, tenantIDPattern.String(), tenantID)
	}
	return nil
}

// TenantID extracts the tenant id from a collection name.
//
// The collection name must follow the format user_{tenant}_voice_features.
// Returns ErrNotTenantCollection for names outside the pattern, which lets
// callers skip unrelated collections when scanning the index.
func TenantID(collectionName string) (string, error) {
	if !IsTenantCollection(collectionName) {
		return "", fmt.Errorf("%w: %q", ErrNotTenantCollection, collectionName)
	}
	return strings.TrimSuffix(strings.TrimPrefix(collectionName, prefix), suffix), nil
}

// IsTenantCollection reports whether a collection name follows the tenant
// naming pattern.
func IsTenantCollection(collectionName string) bool {
	if !strings.HasPrefix(collectionName, prefix) || !strings.HasSuffix(collectionName, suffix) {
		return false
	}
	tenant := strings.TrimSuffix(strings.TrimPrefix(collectionName, prefix), suffix)
	return tenantIDPattern.MatchString(tenant)
}
