package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pretimmo/service_backend/internal/apperrors"
)

func referenceInput() Input {
	return Input{
		Revenus:     3000,
		Charges:     500,
		Montant:     200000,
		Apport:      20000,
		Duree:       240,
		TauxInteret: 3.5,
		Contrat:     "cdi",
		Anciennete:  "plus_3_ans",
		Decouvert:   "jamais",
		NbEnfants:   0,
	}
}

func TestCompute_ReferenceCase(t *testing.T) {
	res, err := Compute(referenceInput())
	require.NoError(t, err)

	// Standard amortization over the borrowed capital (200000 - 20000).
	principal := 180000.0
	monthly := 3.5 / 100 / 12
	expected := principal * monthly / (1 - math.Pow(1+monthly, -240))

	assert.InDelta(t, expected, res.Mensualite, 0.01)
	assert.InDelta(t, res.Mensualite/3000, res.TauxEndettement, 0.0001)
	assert.Equal(t, res.TauxEndettement <= 0.35, res.HcsfOk)
	assert.True(t, res.HcsfOk)
	assert.InDelta(t, 0.10, res.ApportPct, 0.0001)
	assert.InDelta(t, 3000-500-res.Mensualite, res.ResteAVivre, 0.01)
	assert.Greater(t, res.ScoreGlobal, 50)
	assert.LessOrEqual(t, res.ScoreGlobal, 100)
}

func TestCompute_Deterministic(t *testing.T) {
	in := referenceInput()
	in.NbEnfants = 2
	in.Decouvert = "parfois"

	first, err := Compute(in)
	require.NoError(t, err)
	second, err := Compute(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompute_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Input)
	}{
		{"zero duree", func(in *Input) { in.Duree = 0 }},
		{"negative duree", func(in *Input) { in.Duree = -12 }},
		{"negative revenus", func(in *Input) { in.Revenus = -1 }},
		{"negative charges", func(in *Input) { in.Charges = -1 }},
		{"negative montant", func(in *Input) { in.Montant = -1 }},
		{"negative apport", func(in *Input) { in.Apport = -1 }},
		{"negative taux", func(in *Input) { in.TauxInteret = -0.5 }},
		{"negative enfants", func(in *Input) { in.NbEnfants = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := referenceInput()
			tc.mutate(&in)
			_, err := Compute(in)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
		})
	}
}

func TestCompute_NoIncomeSentinel(t *testing.T) {
	in := referenceInput()
	in.Revenus = 0

	res, err := Compute(in)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.TauxEndettement)
	assert.False(t, res.HcsfOk)
	require.NotEmpty(t, res.Actions)
	assert.Equal(t, PrioriteBloquant, res.Actions[0].Priorite)
}

func TestCompute_ZeroMontant(t *testing.T) {
	in := referenceInput()
	in.Montant = 0
	in.Apport = 0

	res, err := Compute(in)
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.ApportPct)
	assert.Equal(t, 0.0, res.Mensualite)
}

func TestCompute_ZeroRate(t *testing.T) {
	in := referenceInput()
	in.TauxInteret = 0

	res, err := Compute(in)
	require.NoError(t, err)

	// Zero rate degrades to linear repayment of the borrowed capital.
	assert.InDelta(t, 180000.0/240, res.Mensualite, 0.01)
}

func TestCompute_ActionOrdering(t *testing.T) {
	in := Input{
		Revenus:     1800,
		Charges:     600,
		Montant:     250000,
		Apport:      5000,
		Duree:       300,
		TauxInteret: 4.2,
		Contrat:     "cdd",
		Anciennete:  "moins_1_an",
		Decouvert:   "souvent",
		NbEnfants:   1,
	}

	res, err := Compute(in)
	require.NoError(t, err)
	require.NotEmpty(t, res.Actions)

	rank := map[string]int{PrioriteBloquant: 0, PrioriteImportant: 1, PrioriteConseil: 2}
	for i := 1; i < len(res.Actions); i++ {
		assert.LessOrEqual(t, rank[res.Actions[i-1].Priorite], rank[res.Actions[i].Priorite],
			"actions must be ordered blocking > important > advisory")
	}
	assert.Equal(t, PrioriteBloquant, res.Actions[0].Priorite)
	assert.False(t, res.HcsfOk)
}

func TestCompute_Simulations(t *testing.T) {
	res, err := Compute(referenceInput())
	require.NoError(t, err)

	require.Len(t, res.Simulations, 5)
	assert.Equal(t, 3.0, res.Simulations[0].Taux)
	assert.Equal(t, 3.5, res.Simulations[2].Taux)
	assert.Equal(t, 4.0, res.Simulations[4].Taux)
	assert.Equal(t, res.Mensualite, res.Simulations[2].Mensualite)

	// Higher rate, higher payment and total cost.
	for i := 1; i < len(res.Simulations); i++ {
		assert.Greater(t, res.Simulations[i].Mensualite, res.Simulations[i-1].Mensualite)
		assert.Greater(t, res.Simulations[i].CoutTotal, res.Simulations[i-1].CoutTotal)
	}
}

func TestCompute_RateFloorInSimulations(t *testing.T) {
	in := referenceInput()
	in.TauxInteret = 0.2

	res, err := Compute(in)
	require.NoError(t, err)

	require.Len(t, res.Simulations, 5)
	assert.Equal(t, 0.1, res.Simulations[0].Taux)
	assert.Equal(t, 0.1, res.Simulations[1].Taux)
}
