// internal/executor/handlers.go
package executor

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/portal"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// definitions is the stage table, in wizard order.
func (e *Executor) definitions() []Definition {
	return []Definition{
		{steps.Start, e.startApplication, []steps.ID{steps.NieuweAanvraagClicked}},
		{steps.NieuweAanvraagClicked, e.selectISDE, []steps.ID{steps.ISDESelected}},
		{steps.ISDESelected, e.acceptDeclarations, []steps.ID{steps.DeclarationsDone}},
		{steps.DeclarationsDone, e.fillApplicant, []steps.ID{steps.PersonalInfoDone}},
		{steps.PersonalInfoDone, e.fillIntermediary, []steps.ID{steps.IntermediaryDone}},
		{steps.IntermediaryDone, e.fillInstallationAddress, []steps.ID{steps.AddressDone}},
		{steps.AddressDone, e.openMeasureWizard, []steps.ID{steps.MeasureAdded}},
		{steps.MeasureAdded, e.chooseMeasureType, []steps.ID{steps.MeldcodeSearchInWizard}},
		{steps.MeldcodeSearchInWizard, e.searchMeldcode, []steps.ID{steps.MeldcodeSelected}},
		{steps.MeldcodeSelected, e.fillInstallationDetails, []steps.ID{steps.InstallationDetailsDone}},
		{steps.InstallationDetailsDone, e.uploadDocuments, []steps.ID{steps.DocumentsUploaded}},
		{steps.DocumentsUploaded, e.saveMeasure, []steps.ID{steps.UploadConfirmationDialog, steps.MeasureOverview}},
		{steps.UploadConfirmationDialog, e.confirmUpload, []steps.ID{steps.MeasureOverview}},
		{steps.MeasureOverview, e.leaveMeasureOverview, []steps.ID{steps.FinalConfirmation}},
		{steps.FinalConfirmation, e.confirmTruthfulness, []steps.ID{steps.FinalReview}},
		{steps.FinalReview, e.leaveReview, []steps.ID{steps.TermsAcceptanceReached}},
		{steps.TermsAcceptanceReached, e.reachTerms, nil},
	}
}

// field pairs a page target with a value from the applicant record.
type field struct {
	name   string
	target dom.Target
	value  string
}

// requireAll reports the first empty field as missing input.
func requireAll(step steps.ID, fields []field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &MissingInputError{Step: step, Field: f.name}
		}
	}
	return nil
}

func (e *Executor) fillAll(ctx context.Context, fields []field) error {
	for _, f := range fields {
		if err := e.fill(ctx, f.target, f.value); err != nil {
			return err
		}
	}
	return nil
}

func chain(next steps.ID) Outcome {
	return Outcome{Next: next, Transition: Chain}
}

// -- Navigating stages --

func (e *Executor) startApplication(ctx context.Context, run *Run) (Outcome, error) {
	return e.navClick(ctx, run, portal.NewApplicationLink, steps.NieuweAanvraagClicked)
}

func (e *Executor) selectISDE(ctx context.Context, run *Run) (Outcome, error) {
	return e.navClick(ctx, run, portal.ISDEApplyButton, steps.ISDESelected)
}

func (e *Executor) acceptDeclarations(ctx context.Context, run *Run) (Outcome, error) {
	if err := e.setChecked(ctx, portal.DeclarationCheckboxes, true); err != nil {
		return Outcome{}, err
	}
	return e.navClick(ctx, run, portal.NextButton, steps.DeclarationsDone)
}

func (e *Executor) fillApplicant(ctx context.Context, run *Run) (Outcome, error) {
	a := run.Config.Applicant
	fields := []field{
		{"applicant.initials", portal.Initials, a.Initials},
		{"applicant.last_name", portal.LastName, a.LastName},
		{"applicant.phone", portal.Phone, a.Phone},
		{"applicant.email", portal.Email, a.Email},
		{"applicant.iban", portal.IBAN, a.IBAN},
	}
	if err := requireAll(run.Step, fields); err != nil {
		return Outcome{}, err
	}

	snap, err := e.waitFor(ctx, portal.Initials)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.fillAll(ctx, fields); err != nil {
		return Outcome{}, err
	}
	if err := e.fillOptional(ctx, snap, portal.Prefix, a.Prefix); err != nil {
		return Outcome{}, err
	}
	if err := e.fillOptional(ctx, snap, portal.AccountHolder, a.AccountHolder); err != nil {
		return Outcome{}, err
	}
	return e.navClick(ctx, run, portal.NextButton, steps.PersonalInfoDone)
}

func (e *Executor) fillIntermediary(ctx context.Context, run *Run) (Outcome, error) {
	im := run.Config.Intermediary
	if im == nil {
		if err := e.setChecked(ctx, portal.IntermediaryNo, true); err != nil {
			return Outcome{}, err
		}
		return e.navClick(ctx, run, portal.NextButton, steps.IntermediaryDone)
	}

	fields := []field{
		{"intermediary.company_name", portal.CompanyName, im.CompanyName},
		{"intermediary.kvk_number", portal.KvKNumber, im.KvKNumber},
	}
	if err := requireAll(run.Step, fields); err != nil {
		return Outcome{}, err
	}
	if err := e.setChecked(ctx, portal.IntermediaryYes, true); err != nil {
		return Outcome{}, err
	}
	// The company block is revealed by the radio button.
	snap, err := e.waitFor(ctx, portal.CompanyName)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.fillAll(ctx, fields); err != nil {
		return Outcome{}, err
	}
	for _, f := range []field{
		{"intermediary.contact_name", portal.ContactName, im.ContactName},
		{"intermediary.email", portal.IntermediaryEmail, im.Email},
		{"intermediary.phone", portal.IntermediaryPhone, im.Phone},
	} {
		if err := e.fillOptional(ctx, snap, f.target, f.value); err != nil {
			return Outcome{}, err
		}
	}
	return e.navClick(ctx, run, portal.NextButton, steps.IntermediaryDone)
}

func (e *Executor) fillInstallationAddress(ctx context.Context, run *Run) (Outcome, error) {
	addr := run.Config.InstallationAddress
	if addr == nil || addr.IsZero() {
		if err := e.setChecked(ctx, portal.SameAddress, true); err != nil {
			return Outcome{}, err
		}
		return e.navClick(ctx, run, portal.NextButton, steps.AddressDone)
	}

	fields := []field{
		{"installation_address.postal_code", portal.PostalCode, normalizePostalCode(addr.PostalCode)},
		{"installation_address.house_number", portal.HouseNumber, addr.HouseNumber},
	}
	if err := requireAll(run.Step, fields); err != nil {
		return Outcome{}, err
	}
	if snap := run.Snapshot; snap.Has(portal.SameAddress) {
		if err := e.setChecked(ctx, portal.SameAddress, false); err != nil {
			return Outcome{}, err
		}
	}
	snap, err := e.waitFor(ctx, portal.PostalCode)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.fillAll(ctx, fields); err != nil {
		return Outcome{}, err
	}
	if err := e.fillOptional(ctx, snap, portal.HouseNumberSuffix, addr.HouseNumberSuffix); err != nil {
		return Outcome{}, err
	}
	// The portal resolves street and city asynchronously.
	if _, err := e.waitFor(ctx, portal.AddressLookupResult); err != nil {
		return Outcome{}, err
	}
	return e.navClick(ctx, run, portal.NextButton, steps.AddressDone)
}

// -- Measure wizard (in-page modal) --

func (e *Executor) openMeasureWizard(ctx context.Context, run *Run) (Outcome, error) {
	if err := e.click(ctx, portal.AddMeasureButton); err != nil {
		return Outcome{}, err
	}
	return chain(steps.MeasureAdded), nil
}

func (e *Executor) chooseMeasureType(ctx context.Context, run *Run) (Outcome, error) {
	m := run.Config.Measure
	if strings.TrimSpace(m.Type) == "" {
		return Outcome{}, &MissingInputError{Step: run.Step, Field: "measure.type"}
	}
	if err := e.selectOption(ctx, portal.MeasureType, portal.MeasureTypeLabel(m.Type)); err != nil {
		return Outcome{}, err
	}
	if err := e.click(ctx, portal.WizardNextButton); err != nil {
		return Outcome{}, err
	}
	return chain(steps.MeldcodeSearchInWizard), nil
}

func (e *Executor) searchMeldcode(ctx context.Context, run *Run) (Outcome, error) {
	code := strings.ToUpper(strings.TrimSpace(run.Config.Measure.Meldcode))
	if code == "" {
		return Outcome{}, &MissingInputError{Step: run.Step, Field: "measure.meldcode"}
	}
	if err := e.fill(ctx, portal.MeldcodeSearch, code); err != nil {
		return Outcome{}, err
	}
	if err := e.click(ctx, portal.MeldcodeSearchBtn); err != nil {
		return Outcome{}, err
	}
	if _, err := e.waitFor(ctx, portal.MeldcodeResult(code)); err != nil {
		return Outcome{}, err
	}
	if err := e.click(ctx, portal.MeldcodeSelectButton(code)); err != nil {
		return Outcome{}, err
	}
	return chain(steps.MeldcodeSelected), nil
}

func (e *Executor) fillInstallationDetails(ctx context.Context, run *Run) (Outcome, error) {
	m := run.Config.Measure
	installed, err := m.InstallationDate.Portal()
	if err != nil {
		return Outcome{}, &MissingInputError{Step: run.Step, Field: "measure.installation_date"}
	}
	purchased, err := m.PurchaseDate.Portal()
	if err != nil {
		return Outcome{}, &MissingInputError{Step: run.Step, Field: "measure.purchase_date"}
	}

	snap, err := e.waitFor(ctx, portal.InstallationDate)
	if err != nil {
		return Outcome{}, err
	}
	if err := e.fillAll(ctx, []field{
		{"measure.installation_date", portal.InstallationDate, installed},
		{"measure.purchase_date", portal.PurchaseDate, purchased},
	}); err != nil {
		return Outcome{}, err
	}
	if err := e.fillOptional(ctx, snap, portal.Installer, m.Installer); err != nil {
		return Outcome{}, err
	}
	if err := e.click(ctx, portal.WizardNextButton); err != nil {
		return Outcome{}, err
	}
	return chain(steps.InstallationDetailsDone), nil
}

func (e *Executor) uploadDocuments(ctx context.Context, run *Run) (Outcome, error) {
	docs := []struct {
		field string
		doc   *schemas.FileAttachment
	}{
		{"documents.invoice", run.Config.Documents.Invoice},
		{"documents.payment_proof", run.Config.Documents.PaymentProof},
	}
	for _, d := range docs {
		if d.doc == nil {
			return Outcome{}, &MissingInputError{Step: run.Step, Field: d.field}
		}
	}

	snap, err := e.waitFor(ctx, portal.AddAttachmentButton)
	if err != nil {
		return Outcome{}, err
	}
	for _, d := range docs {
		// A retried stage keeps what an earlier attempt already uploaded.
		if snap.Has(portal.AttachmentItem(d.doc.Name)) {
			e.logger.Debug("Attachment already listed.", zap.String("document", d.field))
			continue
		}
		if err := e.upload(ctx, d.field, d.doc); err != nil {
			return Outcome{}, err
		}
	}
	return chain(steps.DocumentsUploaded), nil
}

// saveMeasure saves the wizard. The portal may interject a "continue anyway"
// dialog, so the successor is read from the page.
func (e *Executor) saveMeasure(ctx context.Context, run *Run) (Outcome, error) {
	if err := e.click(ctx, portal.SaveMeasureButton); err != nil {
		return Outcome{}, err
	}
	snap, err := e.settle(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if e.detector.Detect(snap) == steps.UploadConfirmationDialog {
		return chain(steps.UploadConfirmationDialog), nil
	}
	return chain(steps.MeasureOverview), nil
}

func (e *Executor) confirmUpload(ctx context.Context, run *Run) (Outcome, error) {
	if err := e.click(ctx, portal.ContinueAnyway); err != nil {
		return Outcome{}, err
	}
	snap, err := e.settle(ctx)
	if err != nil {
		return Outcome{}, err
	}
	// A second warning is handled by the next tick of this stage.
	if detected := e.detector.Detect(snap); detected == steps.UploadConfirmationDialog {
		return chain(steps.UploadConfirmationDialog), nil
	}
	return chain(steps.MeasureOverview), nil
}

// -- Closing pages --

func (e *Executor) leaveMeasureOverview(ctx context.Context, run *Run) (Outcome, error) {
	return e.navClick(ctx, run, portal.NextButton, steps.FinalConfirmation)
}

func (e *Executor) confirmTruthfulness(ctx context.Context, run *Run) (Outcome, error) {
	if err := e.setChecked(ctx, portal.TruthDeclaration, true); err != nil {
		return Outcome{}, err
	}
	return e.navClick(ctx, run, portal.NextButton, steps.FinalReview)
}

func (e *Executor) leaveReview(ctx context.Context, run *Run) (Outcome, error) {
	return e.navClick(ctx, run, portal.NextButton, steps.TermsAcceptanceReached)
}

// reachTerms stops short of submitting; a person accepts the terms and signs.
func (e *Executor) reachTerms(ctx context.Context, run *Run) (Outcome, error) {
	return Outcome{
		Next:       steps.TermsAcceptanceReached,
		Transition: Complete,
		Message:    "Application ready: accept the terms and submit it yourself",
	}, nil
}

// normalizePostalCode formats "1234 ab" as "1234AB".
func normalizePostalCode(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}
