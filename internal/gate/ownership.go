package gate

import "errors"

// ErrAccessDenied is returned for both missing and foreign-tenant
// records. The two cases are indistinguishable on purpose: a "not
// found" answer for foreign records would leak which ids exist.
var ErrAccessDenied = errors.New("gate: access denied")

// TenantOwned is any record that knows which tenant owns it.
type TenantOwned interface {
	OwnerTenantID() string
}

// ValidateRecordOwnership fails closed: a nil record is treated
// exactly like a record owned by another tenant.
func ValidateRecordOwnership(record TenantOwned, tenantID string) error {
	if record == nil || tenantID == "" {
		return ErrAccessDenied
	}
	if record.OwnerTenantID() != tenantID {
		return ErrAccessDenied
	}
	return nil
}
