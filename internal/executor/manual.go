// internal/executor/manual.go
package executor

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/portal"
)

// FieldKind says how a mapped field is applied.
type FieldKind int

const (
	TextField FieldKind = iota
	SelectField
	CheckField
)

// FieldMapping binds a page field to a value of the applicant record.
type FieldMapping struct {
	Target dom.Target
	Kind   FieldKind
	Value  func(c *schemas.AutomationConfig) string
}

func installationAddress(c *schemas.AutomationConfig) schemas.Address {
	if c.InstallationAddress != nil && !c.InstallationAddress.IsZero() {
		return *c.InstallationAddress
	}
	return c.Address
}

func intermediary(c *schemas.AutomationConfig) schemas.Intermediary {
	if c.Intermediary == nil {
		return schemas.Intermediary{}
	}
	return *c.Intermediary
}

func portalDate(d schemas.Date) string {
	s, err := d.Portal()
	if err != nil {
		return ""
	}
	return s
}

// ManualMappings is the field table of the manual fill mode.
var ManualMappings = []FieldMapping{
	{portal.Initials, TextField, func(c *schemas.AutomationConfig) string { return c.Applicant.Initials }},
	{portal.Prefix, TextField, func(c *schemas.AutomationConfig) string { return c.Applicant.Prefix }},
	{portal.LastName, TextField, func(c *schemas.AutomationConfig) string { return c.Applicant.LastName }},
	{portal.Phone, TextField, func(c *schemas.AutomationConfig) string { return c.Applicant.Phone }},
	{portal.Email, TextField, func(c *schemas.AutomationConfig) string { return c.Applicant.Email }},
	{portal.IBAN, TextField, func(c *schemas.AutomationConfig) string { return c.Applicant.IBAN }},
	{portal.AccountHolder, TextField, func(c *schemas.AutomationConfig) string { return c.Applicant.AccountHolder }},
	{portal.CompanyName, TextField, func(c *schemas.AutomationConfig) string { return intermediary(c).CompanyName }},
	{portal.KvKNumber, TextField, func(c *schemas.AutomationConfig) string { return intermediary(c).KvKNumber }},
	{portal.ContactName, TextField, func(c *schemas.AutomationConfig) string { return intermediary(c).ContactName }},
	{portal.IntermediaryEmail, TextField, func(c *schemas.AutomationConfig) string { return intermediary(c).Email }},
	{portal.IntermediaryPhone, TextField, func(c *schemas.AutomationConfig) string { return intermediary(c).Phone }},
	{portal.PostalCode, TextField, func(c *schemas.AutomationConfig) string {
		return normalizePostalCode(installationAddress(c).PostalCode)
	}},
	{portal.HouseNumber, TextField, func(c *schemas.AutomationConfig) string { return installationAddress(c).HouseNumber }},
	{portal.HouseNumberSuffix, TextField, func(c *schemas.AutomationConfig) string {
		return installationAddress(c).HouseNumberSuffix
	}},
	{portal.MeasureType, SelectField, func(c *schemas.AutomationConfig) string {
		if c.Measure.Type == "" {
			return ""
		}
		return portal.MeasureTypeLabel(c.Measure.Type)
	}},
	{portal.MeldcodeSearch, TextField, func(c *schemas.AutomationConfig) string { return c.Measure.Meldcode }},
	{portal.InstallationDate, TextField, func(c *schemas.AutomationConfig) string { return portalDate(c.Measure.InstallationDate) }},
	{portal.PurchaseDate, TextField, func(c *schemas.AutomationConfig) string { return portalDate(c.Measure.PurchaseDate) }},
	{portal.Installer, TextField, func(c *schemas.AutomationConfig) string { return c.Measure.Installer }},
	{portal.DeclarationCheckboxes, CheckField, func(*schemas.AutomationConfig) string { return "true" }},
}

// FillCurrentPage applies ManualMappings to whatever fields the current page
// shows, outside the stage machine. It never touches session state and
// returns the number of fields filled. Text fields that already hold the
// value are left alone; individual field failures are logged and skipped.
func (e *Executor) FillCurrentPage(ctx context.Context, cfg *schemas.AutomationConfig) (int, error) {
	if cfg == nil {
		return 0, &MissingInputError{Field: "config"}
	}
	snap, err := e.page.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	filled := 0
	for _, m := range ManualMappings {
		value := m.Value(cfg)
		if value == "" || !snap.Has(m.Target) {
			continue
		}
		if current, ok := snap.Attr(m.Target, "value"); ok && m.Kind == TextField && current == value {
			continue
		}
		if err := e.pacer.BeforeInteraction(ctx); err != nil {
			return filled, err
		}
		switch m.Kind {
		case SelectField:
			err = e.page.Select(ctx, m.Target, value)
		case CheckField:
			err = e.page.SetChecked(ctx, m.Target, value == "true")
		default:
			err = e.page.Fill(ctx, m.Target, value)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return filled, err
			}
			e.logger.Warn("Manual fill skipped a field.", zap.Stringer("target", m.Target), zap.Error(err))
			continue
		}
		filled++
		if err := e.pacer.Pause(ctx); err != nil {
			return filled, err
		}
	}
	e.logger.Info("Manual fill finished.", zap.Int("fields", filled), zap.String("url", snap.URL))
	return filled, nil
}
