// Package steps enumerates the stages of the ISDE application wizard.
//
// An identifier names the page state the wizard is in after the previous
// action succeeded: the regeling catalog, for instance, is the state
// "nieuwe_aanvraag_clicked". Identifier values are persisted and must stay
// stable.
package steps

// ID identifies one stage of the wizard.
type ID string

const (
	Unknown ID = "unknown"

	Start                    ID = "start"
	NieuweAanvraagClicked    ID = "nieuwe_aanvraag_clicked"
	ISDESelected             ID = "isde_selected"
	DeclarationsDone         ID = "declarations_done"
	PersonalInfoDone         ID = "personal_info_done"
	IntermediaryDone         ID = "intermediary_done"
	AddressDone              ID = "address_done"
	MeasureAdded             ID = "measure_added"
	MeldcodeSearchInWizard   ID = "meldcode_search_in_wizard"
	MeldcodeSelected         ID = "meldcode_selected"
	InstallationDetailsDone  ID = "installation_details_done"
	DocumentsUploaded        ID = "documents_uploaded"
	UploadConfirmationDialog ID = "upload_confirmation_dialog"
	MeasureOverview          ID = "measure_overview"
	FinalConfirmation        ID = "final_confirmation"
	FinalReview              ID = "final_review"
	TermsAcceptanceReached   ID = "terms_acceptance_reached"
)

// Initial is the stage a new session starts in.
const Initial = Start

// Flow lists the stages in wizard order.
var Flow = []ID{
	Start,
	NieuweAanvraagClicked,
	ISDESelected,
	DeclarationsDone,
	PersonalInfoDone,
	IntermediaryDone,
	AddressDone,
	MeasureAdded,
	MeldcodeSearchInWizard,
	MeldcodeSelected,
	InstallationDetailsDone,
	DocumentsUploaded,
	UploadConfirmationDialog,
	MeasureOverview,
	FinalConfirmation,
	FinalReview,
	TermsAcceptanceReached,
}

var flowIndex = func() map[ID]int {
	m := make(map[ID]int, len(Flow))
	for i, id := range Flow {
		m[id] = i
	}
	return m
}()

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// Valid reports whether id is a known stage. Unknown is not a stage.
func (id ID) Valid() bool {
	_, ok := flowIndex[id]
	return ok
}

// IsEmpty reports whether no stage was recorded.
func (id ID) IsEmpty() bool { return id == "" }

// IsTerminal reports whether the automation stops at this stage.
func (id ID) IsTerminal() bool { return id == TermsAcceptanceReached }

// Position returns the zero-based position in Flow, or -1.
func (id ID) Position() int {
	if i, ok := flowIndex[id]; ok {
		return i
	}
	return -1
}

// Parse converts a persisted value back into an ID. Unrecognised values map
// to Unknown.
func Parse(s string) ID {
	id := ID(s)
	if id.Valid() {
		return id
	}
	return Unknown
}

var labels = map[ID]string{
	Unknown:                  "onbekende pagina",
	Start:                    "startpagina",
	NieuweAanvraagClicked:    "regelingen",
	ISDESelected:             "verklaringen",
	DeclarationsDone:         "gegevens aanvrager",
	PersonalInfoDone:         "intermediair",
	IntermediaryDone:         "adres installatie",
	AddressDone:              "maatregelen",
	MeasureAdded:             "maatregel kiezen",
	MeldcodeSearchInWizard:   "meldcode zoeken",
	MeldcodeSelected:         "installatiegegevens",
	InstallationDetailsDone:  "bijlagen",
	DocumentsUploaded:        "bijlagen opgeslagen",
	UploadConfirmationDialog: "bevestiging bijlagen",
	MeasureOverview:          "overzicht maatregelen",
	FinalConfirmation:        "verklaring naar waarheid",
	FinalReview:              "controle aanvraag",
	TermsAcceptanceReached:   "voorwaarden en indienen",
}

// Label is a short human-readable name used in status lines.
func (id ID) Label() string {
	if l, ok := labels[id]; ok {
		return l
	}
	return string(id)
}
