// internal/detector/detector_test.go
package detector_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/detector"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// -- Test Helpers --

func loadFixture(t *testing.T, name string) *dom.Snapshot {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name+".html"))
	require.NoError(t, err)
	defer f.Close()
	snap, err := dom.Parse(f, "https://mijn.rvo.nl/"+name)
	require.NoError(t, err)
	return snap
}

// -- Test Cases --

func TestDetect_EveryStageFixture(t *testing.T) {
	d := detector.New(zap.NewNop())
	rules := d.Rules()

	for _, id := range steps.Flow {
		id := id
		t.Run(id.String(), func(t *testing.T) {
			snap := loadFixture(t, id.String())
			assert.Equal(t, id, d.Detect(snap))

			// No rule of higher priority may match this page.
			for _, r := range rules {
				if r.Step == id {
					break
				}
				assert.False(t, r.Match(snap), "rule %s must not match the %s fixture", r.Step, id)
			}
		})
	}
}

func TestDetect_RuleTableCoversCatalog(t *testing.T) {
	rules := detector.DefaultRules()
	require.Len(t, rules, len(steps.Flow))

	seen := make(map[steps.ID]bool)
	for _, r := range rules {
		assert.True(t, r.Step.Valid(), "rule for invalid stage %q", r.Step)
		assert.False(t, seen[r.Step], "duplicate rule for %s", r.Step)
		seen[r.Step] = true
	}
	assert.Equal(t, steps.Start, rules[len(rules)-1].Step, "the header link must be the weakest fingerprint")
}

func TestDetect_LaterPagesShareEarlierElements(t *testing.T) {
	d := detector.New(nil)

	t.Run("review page repeats applicant fields", func(t *testing.T) {
		candidates := d.Candidates(loadFixture(t, "final_review"))
		require.NotEmpty(t, candidates)
		assert.Equal(t, steps.FinalReview, candidates[0])
		assert.NotContains(t, candidates, steps.DeclarationsDone)
		assert.NotContains(t, candidates, steps.FinalConfirmation)
		assert.Contains(t, candidates, steps.Start)
	})

	t.Run("confirmation dialog over a completed attachment list", func(t *testing.T) {
		candidates := d.Candidates(loadFixture(t, "upload_confirmation_dialog"))
		require.GreaterOrEqual(t, len(candidates), 2)
		assert.Equal(t, steps.UploadConfirmationDialog, candidates[0])
		assert.Equal(t, steps.DocumentsUploaded, candidates[1])
	})
}

func TestDetect_Unknown(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := detector.New(zap.New(core))

	assert.Equal(t, steps.Unknown, d.Detect(loadFixture(t, "unknown")))
	assert.Equal(t, steps.Unknown, d.Detect(nil))
	assert.Equal(t, steps.Unknown, d.Detect(dom.Empty()))

	entries := logs.FilterMessage("Stage detection inconclusive.").All()
	require.Len(t, entries, 2)
	assert.Equal(t, detector.ErrDetectionAmbiguous.Error(), entries[0].ContextMap()["error"])
}

func TestNewWithRules(t *testing.T) {
	always := detector.Rule{Step: steps.MeasureOverview, Match: func(*dom.Snapshot) bool { return true }}
	d := detector.NewWithRules(nil, []detector.Rule{always})
	assert.Equal(t, steps.MeasureOverview, d.Detect(dom.Empty()))
	assert.Equal(t, []steps.ID{steps.MeasureOverview}, d.Candidates(dom.Empty()))
}
