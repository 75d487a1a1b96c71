// api/schemas/applicant.go
package schemas

import (
	"fmt"
	"strings"
	"time"
)

// AutomationConfig is the applicant record supplied with a start command. It is
// treated as immutable once a session has been created from it.
type AutomationConfig struct {
	Applicant           Applicant     `json:"applicant" yaml:"applicant"`
	Address             Address       `json:"address" yaml:"address"`
	InstallationAddress *Address      `json:"installationAddress,omitempty" yaml:"installation_address,omitempty"`
	Intermediary        *Intermediary `json:"intermediary,omitempty" yaml:"intermediary,omitempty"`
	Measure             Measure       `json:"measure" yaml:"measure"`
	Documents           Documents     `json:"documents" yaml:"documents"`
}

// Applicant holds the personal details entered on the applicant page.
type Applicant struct {
	Initials      string `json:"initials" yaml:"initials"`
	Prefix        string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	LastName      string `json:"lastName" yaml:"last_name"`
	Phone         string `json:"phone" yaml:"phone"`
	Email         string `json:"email" yaml:"email"`
	IBAN          string `json:"iban" yaml:"iban"`
	AccountHolder string `json:"accountHolder,omitempty" yaml:"account_holder,omitempty"`
}

// Address is a Dutch postal address. Street and City are informational; the
// portal resolves them from PostalCode and HouseNumber.
type Address struct {
	PostalCode        string `json:"postalCode" yaml:"postal_code"`
	HouseNumber       string `json:"houseNumber" yaml:"house_number"`
	HouseNumberSuffix string `json:"houseNumberSuffix,omitempty" yaml:"house_number_suffix,omitempty"`
	Street            string `json:"street,omitempty" yaml:"street,omitempty"`
	City              string `json:"city,omitempty" yaml:"city,omitempty"`
}

// IsZero reports whether no lookup fields are set.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.PostalCode) == "" && strings.TrimSpace(a.HouseNumber) == ""
}

// Intermediary is the company applying on behalf of the applicant. A nil
// Intermediary means the applicant applies directly.
type Intermediary struct {
	CompanyName string `json:"companyName" yaml:"company_name"`
	KvKNumber   string `json:"kvkNumber" yaml:"kvk_number"`
	ContactName string `json:"contactName" yaml:"contact_name"`
	Email       string `json:"email" yaml:"email"`
	Phone       string `json:"phone" yaml:"phone"`
}

// Measure describes the installed energy-saving measure.
type Measure struct {
	Type             string `json:"type" yaml:"type"`
	Meldcode         string `json:"meldcode" yaml:"meldcode"`
	InstallationDate Date   `json:"installationDate" yaml:"installation_date"`
	PurchaseDate     Date   `json:"purchaseDate" yaml:"purchase_date"`
	Installer        string `json:"installer,omitempty" yaml:"installer,omitempty"`
}

// Documents are the attachments uploaded in the measure wizard.
type Documents struct {
	Invoice      *FileAttachment `json:"invoice,omitempty" yaml:"invoice,omitempty"`
	PaymentProof *FileAttachment `json:"paymentProof,omitempty" yaml:"payment_proof,omitempty"`
}

// Date is a calendar date as written by a human: ISO (2006-01-02) or the
// portal's own dd-mm-jjjj notation.
type Date string

var dateLayouts = []string{"2006-01-02", "02-01-2006", "2-1-2006", "02/01/2006"}

// Time parses the date using the accepted layouts.
func (d Date) Time() (time.Time, error) {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Portal renders the date in the notation the portal's date fields expect.
func (d Date) Portal() (string, error) {
	t, err := d.Time()
	if err != nil {
		return "", err
	}
	return t.Format("02-01-2006"), nil
}

// Missing lists the dotted names of fields the full flow needs but the record
// lacks. Handlers report the same names when they halt on absent input.
func (c *AutomationConfig) Missing() []string {
	if c == nil {
		return []string{"config"}
	}
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("applicant.initials", c.Applicant.Initials)
	check("applicant.last_name", c.Applicant.LastName)
	check("applicant.email", c.Applicant.Email)
	check("applicant.phone", c.Applicant.Phone)
	check("applicant.iban", c.Applicant.IBAN)
	check("measure.type", c.Measure.Type)
	check("measure.meldcode", c.Measure.Meldcode)
	check("measure.installation_date", string(c.Measure.InstallationDate))
	check("measure.purchase_date", string(c.Measure.PurchaseDate))
	if c.InstallationAddress != nil {
		check("installation_address.postal_code", c.InstallationAddress.PostalCode)
		check("installation_address.house_number", c.InstallationAddress.HouseNumber)
	}
	if c.Intermediary != nil {
		check("intermediary.company_name", c.Intermediary.CompanyName)
		check("intermediary.kvk_number", c.Intermediary.KvKNumber)
	}
	if c.Documents.Invoice == nil {
		missing = append(missing, "documents.invoice")
	}
	if c.Documents.PaymentProof == nil {
		missing = append(missing, "documents.payment_proof")
	}
	return missing
}
