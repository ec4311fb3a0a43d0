package models

// WritePolicy controls how an update may change a stored field.
type WritePolicy int

const (
	// Overwrite replaces the stored value.
	Overwrite WritePolicy = iota
	// OnlyIfNull writes the value only while the stored value is NULL.
	OnlyIfNull
)

// Company profile columns accepted by the update path.
const (
	CompanyFieldName     = "name"
	CompanyFieldEmail    = "email"
	CompanyFieldPhone    = "phone"
	CompanyFieldLocale   = "locale"
	CompanyFieldCurrency = "currency"
	CompanyFieldTimezone = "timezone"
	CompanyFieldOwnerID  = "owner_id"
)

// CompanyFieldPolicies is the field-level write policy table for companies.
// Fields that are absent are not writable through the profile update path.
var CompanyFieldPolicies = map[string]WritePolicy{
	CompanyFieldName:     Overwrite,
	CompanyFieldEmail:    Overwrite,
	CompanyFieldPhone:    OnlyIfNull,
	CompanyFieldLocale:   Overwrite,
	CompanyFieldCurrency: Overwrite,
	CompanyFieldTimezone: Overwrite,
	CompanyFieldOwnerID:  OnlyIfNull,
}

// FieldChange is one column write, already resolved against the policy table.
type FieldChange struct {
	Field  string
	Value  any
	Policy WritePolicy
}
