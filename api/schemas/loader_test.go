package schemas_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAutomationConfig(t *testing.T) {
	t.Run("yaml with attachment paths", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "factuur.pdf", "%PDF-1.4 factuur")
		require.NoError(t, os.Mkdir(filepath.Join(dir, "docs"), 0o755))
		writeFile(t, filepath.Join(dir, "docs"), "betaling.png", "png")
		path := writeFile(t, dir, "aanvrager.yaml", `
applicant:
  initials: J.
  last_name: Jansen
  phone: "0612345678"
  email: j.jansen@example.nl
  iban: NL91ABNA0417164300
address:
  postal_code: 1234AB
  house_number: "10"
measure:
  type: Warmtepomp
  meldcode: KA12345
  installation_date: 2025-03-01
  purchase_date: 15-02-2025
documents:
  invoice:
    path: factuur.pdf
  payment_proof:
    name: bewijs.png
    path: docs/betaling.png
`)

		cfg, err := schemas.LoadAutomationConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "Jansen", cfg.Applicant.LastName)
		assert.Equal(t, schemas.Date("2025-03-01"), cfg.Measure.InstallationDate)
		assert.Empty(t, cfg.Missing())

		inv := cfg.Documents.Invoice
		assert.Equal(t, "factuur.pdf", inv.Name)
		assert.Equal(t, "application/pdf", inv.Type)
		assert.Empty(t, inv.Path)
		b, err := inv.Bytes()
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 factuur", string(b))

		proof := cfg.Documents.PaymentProof
		assert.Equal(t, "bewijs.png", proof.Name)
		assert.Equal(t, "image/png", proof.Type)
	})

	t.Run("json with inline payload", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "aanvrager.json", `{
  "applicant": {"initials": "A.", "lastName": "de Vries"},
  "intermediary": {"companyName": "Warmte BV", "kvkNumber": "12345678"},
  "documents": {"invoice": {"name": "f.pdf", "type": "application/pdf", "base64Data": "JVBERg=="}}
}`)
		cfg, err := schemas.LoadAutomationConfig(path)
		require.NoError(t, err)
		require.NotNil(t, cfg.Intermediary)
		assert.Equal(t, "Warmte BV", cfg.Intermediary.CompanyName)
		assert.Equal(t, "JVBERg==", cfg.Documents.Invoice.Base64Data)
		assert.Contains(t, cfg.Missing(), "documents.payment_proof")
	})

	t.Run("errors", func(t *testing.T) {
		dir := t.TempDir()

		_, err := schemas.LoadAutomationConfig(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)

		_, err = schemas.LoadAutomationConfig(writeFile(t, dir, "aanvrager.toml", "x = 1"))
		assert.ErrorContains(t, err, "unsupported applicant file type")

		_, err = schemas.LoadAutomationConfig(writeFile(t, dir, "broken.json", "{"))
		assert.ErrorContains(t, err, "failed to parse applicant JSON")

		_, err = schemas.LoadAutomationConfig(writeFile(t, dir, "attach.yaml", "documents:\n  invoice:\n    path: nope.pdf\n"))
		assert.ErrorContains(t, err, "failed to read attachment")
	})
}
