// internal/portal/portal.go

// Package portal is the DOM selector contract for the RVO "Mijn RVO" ISDE
// application wizard. The portal is third-party markup that changes without
// notice: every selector the automation relies on lives here, and a markup
// change is fixed by editing this file and bumping ContractVersion.
package portal

import (
	"strings"

	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
)

// ContractVersion identifies the revision of the portal markup the targets
// below were written against. It is logged at startup.
const ContractVersion = "2024.11-isde"

// Shared navigation.
var (
	NewApplicationLink = dom.CSS("nieuwe-aanvraag-link", "a").WithText("Nieuwe aanvraag")
	NextButton         = dom.CSS("volgende-knop", "button, input[type=submit]").WithText("Volgende")
	PageHeading        = dom.CSS("kop", "h1")
)

// Regeling catalog.
var (
	Catalog         = dom.CSS("regeling-catalogus", ".regeling-catalogus")
	CatalogISDE     = dom.CSS("isde-regeling", ".regeling-catalogus .regeling").WithText("ISDE")
	ISDEApplyButton = dom.XPath("isde-aanvragen",
		`//*[contains(concat(' ', normalize-space(@class), ' '), ' regeling ')][contains(., 'ISDE')]//*[self::a or self::button][contains(., 'Aanvragen')]`)
)

// Declarations page.
var DeclarationCheckboxes = dom.CSS("verklaringen", ".verklaringen input[type=checkbox]")

// Applicant details page.
var (
	Initials      = dom.CSS("voorletters", "#voorletters")
	Prefix        = dom.CSS("tussenvoegsel", "#tussenvoegsel")
	LastName      = dom.CSS("achternaam", "#achternaam")
	Phone         = dom.CSS("telefoon", "#telefoon")
	Email         = dom.CSS("email", "#email")
	IBAN          = dom.CSS("iban", "#iban")
	AccountHolder = dom.CSS("tenaamstelling", "#tenaamstelling")
)

// Intermediary page.
var (
	IntermediaryChoice = dom.CSS("intermediair", "input[name=intermediair]")
	IntermediaryYes    = dom.CSS("intermediair-ja", "input[name=intermediair][value=ja]")
	IntermediaryNo     = dom.CSS("intermediair-nee", "input[name=intermediair][value=nee]")
	CompanyName        = dom.CSS("bedrijfsnaam", "#bedrijfsnaam")
	KvKNumber          = dom.CSS("kvk-nummer", "#kvkNummer")
	ContactName        = dom.CSS("contactpersoon", "#contactpersoon")
	IntermediaryEmail  = dom.CSS("intermediair-email", "#intermediairEmail")
	IntermediaryPhone  = dom.CSS("intermediair-telefoon", "#intermediairTelefoon")
)

// Installation address page. The postcode lookup fills AddressLookupResult
// asynchronously once both PostalCode and HouseNumber are set.
var (
	SameAddress         = dom.CSS("adres-gelijk", "#installatieAdresGelijk")
	PostalCode          = dom.CSS("postcode", "#postcode")
	HouseNumber         = dom.CSS("huisnummer", "#huisnummer")
	HouseNumberSuffix   = dom.CSS("toevoeging", "#toevoeging")
	AddressLookupResult = dom.CSS("adres-resultaat", "#adresResultaat .adres")
)

// Measures page and the measure wizard modal.
var (
	MeasuresHeading   = PageHeading.WithText("Maatregelen")
	AddMeasureButton  = dom.CSS("maatregel-toevoegen", "button, a").WithText("Maatregel toevoegen")
	MeasureRows       = dom.CSS("maatregel-rijen", "#maatregelenOverzicht tbody tr")
	MeasureWizard     = dom.CSS("maatregel-wizard", "#maatregelWizard")
	MeasureType       = dom.CSS("maatregel-type", "#maatregelWizard #maatregelType")
	WizardNextButton  = dom.CSS("wizard-volgende", "#maatregelWizard button").WithText("Volgende")
	MeldcodeSearch    = dom.CSS("meldcode-zoeken", "#meldcodeZoeken")
	MeldcodeSearchBtn = dom.CSS("meldcode-zoekknop", "#maatregelWizard button").WithText("Zoeken")
	MeldcodeResults   = dom.CSS("meldcode-resultaten", ".meldcode-resultaat")
	InstallationDate  = dom.CSS("installatiedatum", "#installatiedatum")
	PurchaseDate      = dom.CSS("aankoopdatum", "#aankoopdatum")
	Installer         = dom.CSS("installateur", "#installateur")
)

// Attachments section of the measure wizard.
var (
	Attachments         = dom.CSS("bijlagen", "#bijlagenSectie")
	AddAttachmentButton = dom.CSS("bijlage-toevoegen", "#bijlagenSectie button").WithText("Bijlage toevoegen")
	FileInput           = dom.CSS("bestand", "#bijlagenSectie input[type=file]").Hidden()
	AttachmentItems     = dom.CSS("bijlage-items", "#bijlagenSectie .bijlage-item")
	SaveMeasureButton   = dom.CSS("maatregel-opslaan", "#maatregelWizard button").WithText("Opslaan")
)

// The safety dialog the portal may show after saving a measure.
var (
	ConfirmDialog  = dom.CSS("bevestiging", "dialog, .modal[role=dialog]").WithText("Weet u zeker")
	ContinueAnyway = dom.CSS("doorgaan", "dialog button, .modal[role=dialog] button").WithText("Doorgaan")
)

// Closing pages.
var (
	TruthDeclaration = dom.CSS("verklaring-waarheid", "#verklaringWaarheid")
	ReviewSummary    = dom.CSS("samenvatting", ".review-summary")
	TermsCheckbox    = dom.CSS("akkoord-voorwaarden", "#akkoordVoorwaarden")
	SubmitButton     = dom.CSS("indienen", "button, input[type=submit]").WithText("Indienen")
)

// MinimumAttachments is the number of uploaded documents the portal requires
// before a measure can be saved: the invoice and the proof of payment.
const MinimumAttachments = 2

// measureTypes maps short config keys to the option labels of MeasureType.
var measureTypes = map[string]string{
	"warmtepomp":       "Warmtepomp",
	"lucht-water":      "Warmtepomp",
	"zonneboiler":      "Zonneboiler",
	"isolatie":         "Isolatiemaatregel",
	"warmtenet":        "Aansluiting op een warmtenet",
	"elektrisch-koken": "Elektrische kookvoorziening",
}

// MeasureTypeLabel returns the option label for a measure type from the
// applicant record. Values that are not a known key are taken to be a label.
func MeasureTypeLabel(value string) string {
	key := strings.ToLower(strings.TrimSpace(value))
	if label, ok := measureTypes[key]; ok {
		return label
	}
	return strings.TrimSpace(value)
}

// MeldcodeResult narrows MeldcodeResults to the row for code.
func MeldcodeResult(code string) dom.Target {
	return MeldcodeResults.WithText(code).Named("meldcode-" + strings.ToLower(code))
}

// MeldcodeSelectButton is the select button inside the result row for code.
func MeldcodeSelectButton(code string) dom.Target {
	return dom.XPath("meldcode-selecteer",
		`//*[contains(concat(' ', normalize-space(@class), ' '), ' meldcode-resultaat ')][contains(., `+literal(code)+`)]//button`)
}

// AttachmentItem matches the listed attachment with the given file name.
func AttachmentItem(name string) dom.Target {
	return AttachmentItems.WithText(name)
}

func literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}

// Contract returns the fixed targets of the contract in page order, for
// diagnostics that show which parts of the contract a page still satisfies.
func Contract() []dom.Target {
	return []dom.Target{
		NewApplicationLink, NextButton,
		Catalog, CatalogISDE, ISDEApplyButton,
		DeclarationCheckboxes,
		Initials, Prefix, LastName, Phone, Email, IBAN, AccountHolder,
		IntermediaryChoice, CompanyName, KvKNumber, ContactName, IntermediaryEmail, IntermediaryPhone,
		SameAddress, PostalCode, HouseNumber, HouseNumberSuffix, AddressLookupResult,
		AddMeasureButton, MeasureRows, MeasureWizard, MeasureType, WizardNextButton,
		MeldcodeSearch, MeldcodeSearchBtn, MeldcodeResults, InstallationDate, PurchaseDate, Installer,
		Attachments, AddAttachmentButton, FileInput, AttachmentItems, SaveMeasureButton,
		ConfirmDialog, ContinueAnyway,
		TruthDeclaration, ReviewSummary, TermsCheckbox, SubmitButton,
	}
}
