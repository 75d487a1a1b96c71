// internal/detector/rules.go
package detector

import (
	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	p "github.com/xkilldash9x/isde-autofill/internal/portal"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// DefaultRules is the fingerprint table, most specific first. Pages of later
// stages keep elements of earlier ones in the DOM (the header link, the review
// page repeating applicant fields), so a rule may only be moved up if its
// fingerprint cannot occur on any page below it.
func DefaultRules() []Rule {
	return []Rule{
		{steps.TermsAcceptanceReached, func(s *dom.Snapshot) bool {
			return s.Has(p.TermsCheckbox) && s.Has(p.SubmitButton)
		}},
		{steps.FinalReview, func(s *dom.Snapshot) bool {
			return s.Has(p.ReviewSummary) && !s.Has(p.TermsCheckbox)
		}},
		{steps.FinalConfirmation, func(s *dom.Snapshot) bool {
			return s.Has(p.TruthDeclaration) && !s.Has(p.ReviewSummary)
		}},
		{steps.UploadConfirmationDialog, func(s *dom.Snapshot) bool {
			return s.Has(p.ConfirmDialog) && s.Has(p.ContinueAnyway)
		}},
		{steps.DocumentsUploaded, func(s *dom.Snapshot) bool {
			return s.Has(p.Attachments) && s.Count(p.AttachmentItems) >= p.MinimumAttachments
		}},
		{steps.InstallationDetailsDone, func(s *dom.Snapshot) bool {
			return s.Has(p.Attachments)
		}},
		{steps.MeldcodeSelected, func(s *dom.Snapshot) bool {
			return s.Has(p.InstallationDate)
		}},
		{steps.MeldcodeSearchInWizard, func(s *dom.Snapshot) bool {
			return s.Has(p.MeldcodeSearch)
		}},
		{steps.MeasureAdded, func(s *dom.Snapshot) bool {
			return s.Has(p.MeasureType)
		}},
		{steps.MeasureOverview, func(s *dom.Snapshot) bool {
			return s.Has(p.MeasureRows) && !s.Has(p.MeasureWizard)
		}},
		{steps.AddressDone, func(s *dom.Snapshot) bool {
			return s.Has(p.MeasuresHeading) && s.Has(p.AddMeasureButton) && !s.Has(p.MeasureRows)
		}},
		{steps.IntermediaryDone, func(s *dom.Snapshot) bool {
			return (s.Has(p.SameAddress) || s.Has(p.PostalCode)) && !s.Has(p.ReviewSummary)
		}},
		{steps.PersonalInfoDone, func(s *dom.Snapshot) bool {
			return s.Has(p.IntermediaryChoice) && !s.Has(p.ReviewSummary)
		}},
		{steps.DeclarationsDone, func(s *dom.Snapshot) bool {
			return (s.Has(p.Initials) || s.Has(p.LastName) || s.Has(p.Email)) && !s.Has(p.ReviewSummary)
		}},
		{steps.ISDESelected, func(s *dom.Snapshot) bool {
			return s.Has(p.DeclarationCheckboxes)
		}},
		{steps.NieuweAanvraagClicked, func(s *dom.Snapshot) bool {
			return s.Has(p.CatalogISDE)
		}},
		{steps.Start, func(s *dom.Snapshot) bool {
			return s.Has(p.NewApplicationLink)
		}},
	}
}
