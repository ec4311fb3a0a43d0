package company

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/auth"
	"github.com/wolfeidau/ownerportal/internal/identity"
	"github.com/wolfeidau/ownerportal/internal/models"
	"github.com/wolfeidau/ownerportal/internal/store"
	"github.com/wolfeidau/ownerportal/internal/timeout"
)

const maxNameLength = 200

// ErrInvalidProfile is returned for profile updates that fail validation.
var ErrInvalidProfile = apperr.New(apperr.ErrValidation, "invalid company profile")

// Update holds the profile fields a partner may change. Nil fields are left as they are.
type Update struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Locale   *string `json:"locale,omitempty"`
	Currency *string `json:"currency,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
}

// ProfileService reads and updates the caller's company profile.
type ProfileService struct {
	companies store.CompanyStore
	resolver  *Resolver
	gate      *auth.Gate
	timeouts  timeout.Policy
}

// NewProfileService creates a profile service.
func NewProfileService(companies store.CompanyStore, resolver *Resolver, gate *auth.Gate, timeouts timeout.Policy) *ProfileService {
	if gate == nil {
		gate = auth.NewGate(nil)
	}
	return &ProfileService{
		companies: companies,
		resolver:  resolver,
		gate:      gate,
		timeouts:  timeouts,
	}
}

// GetProfile returns the caller's company, or apperr.ErrNoCompany.
func (s *ProfileService) GetProfile(ctx context.Context, p *models.Principal) (*models.Company, error) {
	if err := s.gate.Check(ctx, p, auth.ActionViewCompany); err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, p.ID)
}

// UpdateProfile creates the caller's company if needed and writes the
// update through the field policy table. Write-once fields that are already
// set keep their stored value.
func (s *ProfileService) UpdateProfile(ctx context.Context, p *models.Principal, upd Update) (*models.Company, error) {
	if err := s.gate.Check(ctx, p, auth.ActionUpdateCompany); err != nil {
		return nil, err
	}

	changes, err := upd.changes()
	if err != nil {
		return nil, err
	}

	company, err := s.resolver.ResolveOrCreate(ctx, p.ID, p.Email)
	if err != nil {
		return nil, err
	}

	// Claims legacy rows that predate owner_id. The store refuses the write
	// when the row already belongs to someone else.
	changes = append(changes, change(models.CompanyFieldOwnerID, p.ID))

	updated, err := timeout.Do(ctx, s.timeouts, timeout.Write, func(ctx context.Context) (*models.Company, error) {
		return s.companies.ApplyChanges(ctx, company.ID, p.ID, changes)
	})
	if errors.Is(err, store.ErrCompanyNotOwned) {
		zerolog.Ctx(ctx).Warn().
			Str("user_id", p.ID.String()).
			Str("company_id", company.ID.String()).
			Msg("Refused profile update on company owned by another user")
		return nil, apperr.ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (u Update) changes() ([]models.FieldChange, error) {
	var changes []models.FieldChange

	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			return nil, ErrInvalidProfile
		}
		changes = append(changes, change(models.CompanyFieldName, name))
	}
	if u.Email != nil {
		email, err := identity.NormalizeEmail(*u.Email)
		if err != nil {
			return nil, ErrInvalidProfile
		}
		changes = append(changes, change(models.CompanyFieldEmail, email))
	}
	if u.Phone != nil {
		phone := strings.TrimSpace(*u.Phone)
		if !validPhone(phone) {
			return nil, ErrInvalidProfile
		}
		changes = append(changes, change(models.CompanyFieldPhone, phone))
	}
	if u.Locale != nil {
		locale := strings.TrimSpace(*u.Locale)
		if !validToken(locale, 2, 10) {
			return nil, ErrInvalidProfile
		}
		changes = append(changes, change(models.CompanyFieldLocale, locale))
	}
	if u.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*u.Currency))
		if len(currency) != 3 || !isUpperASCII(currency) {
			return nil, ErrInvalidProfile
		}
		changes = append(changes, change(models.CompanyFieldCurrency, currency))
	}
	if u.Timezone != nil {
		tz := strings.TrimSpace(*u.Timezone)
		if !validToken(tz, 1, 64) {
			return nil, ErrInvalidProfile
		}
		changes = append(changes, change(models.CompanyFieldTimezone, tz))
	}

	return changes, nil
}

func change(field string, value any) models.FieldChange {
	return models.FieldChange{
		Field:  field,
		Value:  value,
		Policy: models.CompanyFieldPolicies[field],
	}
}

// validPhone accepts an optional leading + followed by digits and common separators.
func validPhone(s string) bool {
	s = strings.TrimPrefix(s, "+")
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 6 && digits <= 15
}

// validToken accepts identifiers such as "en-GB" or "Europe/Paris".
func validToken(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("-_/+", r)) {
			return false
		}
	}
	return true
}

func isUpperASCII(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
