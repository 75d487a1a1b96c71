// internal/portal/portal_test.go
package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
)

func TestMeasureTypeLabel(t *testing.T) {
	tests := map[string]string{
		"warmtepomp":                   "Warmtepomp",
		" Zonneboiler ":                "Zonneboiler",
		"lucht-water":                  "Warmtepomp",
		"Aansluiting op een warmtenet": "Aansluiting op een warmtenet",
		"Hybride warmtepomp":           "Hybride warmtepomp",
	}
	for in, want := range tests {
		assert.Equal(t, want, MeasureTypeLabel(in), in)
	}
}

func TestMeldcodeTargets(t *testing.T) {
	snap, err := dom.ParseString(`<html><body>
		<div class="meldcode-resultaat">KA12345 <button>Selecteer</button></div>
		<div class="meldcode-resultaat">KA99999 <button>Selecteer</button></div>
	</body></html>`)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Count(MeldcodeResult("KA12345")))
	assert.Equal(t, "meldcode-ka12345", MeldcodeResult("KA12345").Name)
	assert.Equal(t, 1, snap.Count(MeldcodeSelectButton("KA99999")))
	assert.False(t, snap.Has(MeldcodeSelectButton("KA00000")))
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, `'KA12345'`, literal("KA12345"))
	assert.Equal(t, `"it's"`, literal("it's"))
}

func TestContract(t *testing.T) {
	seen := make(map[string]bool)
	for _, target := range Contract() {
		require.NotEmpty(t, target.Name)
		assert.False(t, target.IsZero(), "%s has no locator", target.Name)
		assert.False(t, seen[target.Name], "duplicate target name %s", target.Name)
		seen[target.Name] = true
	}
	assert.True(t, seen["bestand"])
	assert.True(t, seen["indienen"])
}
