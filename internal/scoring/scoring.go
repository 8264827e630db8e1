// Package scoring implements the mortgage-readiness diagnostic engine: a pure
// function from borrower inputs to a scored result with remediation actions and
// rate sensitivity simulations. Given identical input the output is identical,
// so a stored diagnostic can always be reproduced from its stored inputs.
package scoring

import (
	"math"

	"github.com/pretimmo/service_backend/internal/apperrors"
)

// Regulatory and rubric constants.
const (
	// HCSFCeiling is the regulatory debt-to-income ceiling.
	HCSFCeiling = 0.35
	// ChildAllowance is the monthly living-allowance deduction per dependent,
	// in euros. See DESIGN.md for the rationale behind the value.
	ChildAllowance = 300.0

	// comfortableResteAVivre is the residual income granting full marks.
	comfortableResteAVivre = 1200.0
	// tightResteAVivre is the floor under which residual income draws an
	// "important" action even when positive.
	tightResteAVivre = 800.0
	// targetApportPct is the down-payment share granting full marks.
	targetApportPct = 0.20
	// minApportPct is the share under which the down payment is flagged.
	minApportPct = 0.10
	// maxTauxEndettement is the ratio at which the debt component reaches 0.
	maxTauxEndettement = 0.50
)

// Action priorities, ordered from most to least severe.
const (
	PrioriteBloquant  = "bloquant"
	PrioriteImportant = "important"
	PrioriteConseil   = "conseil"
)

// Input is the borrower snapshot a diagnostic is computed from. Monetary
// amounts are in euros, Duree in months, TauxInteret in percent per year.
type Input struct {
	Revenus     float64 `json:"revenus"`
	Charges     float64 `json:"charges"`
	Montant     float64 `json:"montant"`
	Apport      float64 `json:"apport"`
	Duree       int     `json:"duree"`
	TauxInteret float64 `json:"tauxInteret"`
	Contrat     string  `json:"contrat"`
	Anciennete  string  `json:"anciennete"`
	Decouvert   string  `json:"decouvert"`
	NbEnfants   int     `json:"nbEnfants"`
}

// ActionItem is a remediation item produced by a diagnostic run.
type ActionItem struct {
	Priorite string `json:"priorite"`
	Titre    string `json:"titre"`
	Detail   string `json:"detail"`
}

// Simulation is a what-if payment projection at an alternate rate.
type Simulation struct {
	Taux            float64 `json:"taux"`
	Mensualite      float64 `json:"mensualite"`
	CoutTotal       float64 `json:"coutTotal"`
	TauxEndettement float64 `json:"tauxEndettement"`
}

// Result is the computed diagnostic.
type Result struct {
	ScoreGlobal     int          `json:"scoreGlobal"`
	TauxEndettement float64      `json:"tauxEndettement"`
	Mensualite      float64      `json:"mensualite"`
	ResteAVivre     float64      `json:"resteAVivre"`
	ApportPct       float64      `json:"apportPct"`
	HcsfOk          bool         `json:"hcsfOk"`
	Actions         []ActionItem `json:"actions"`
	Simulations     []Simulation `json:"simulations"`
}

// simulationDeltas are the fixed rate offsets, in points, used for the
// sensitivity projections.
var simulationDeltas = [...]float64{-0.5, -0.2, 0, 0.2, 0.5}

// Validate checks the input domain: all numeric fields non-negative and a
// strictly positive term.
func Validate(in Input) error {
	switch {
	case in.Revenus < 0:
		return apperrors.Validation("revenus must be non-negative")
	case in.Charges < 0:
		return apperrors.Validation("charges must be non-negative")
	case in.Montant < 0:
		return apperrors.Validation("montant must be non-negative")
	case in.Apport < 0:
		return apperrors.Validation("apport must be non-negative")
	case in.TauxInteret < 0:
		return apperrors.Validation("tauxInteret must be non-negative")
	case in.NbEnfants < 0:
		return apperrors.Validation("nbEnfants must be non-negative")
	case in.Duree <= 0:
		return apperrors.Validation("duree must be a positive number of months")
	}
	return nil
}

// Compute runs the full diagnostic. It is deterministic and side-effect-free.
func Compute(in Input) (Result, error) {
	if err := Validate(in); err != nil {
		return Result{}, err
	}

	principal := in.Montant - in.Apport
	if principal < 0 {
		principal = 0
	}

	mensualite := round2(monthlyPayment(principal, in.TauxInteret, in.Duree))
	tauxEndettement := debtRatio(mensualite, in.Revenus)
	hcsfOk := in.Revenus > 0 && tauxEndettement <= HCSFCeiling
	resteAVivre := round2(in.Revenus - in.Charges - mensualite - float64(in.NbEnfants)*ChildAllowance)

	apportPct := 0.0
	if in.Montant > 0 {
		apportPct = round4(in.Apport / in.Montant)
	}

	res := Result{
		ScoreGlobal:     score(in, tauxEndettement, resteAVivre, apportPct),
		TauxEndettement: tauxEndettement,
		Mensualite:      mensualite,
		ResteAVivre:     resteAVivre,
		ApportPct:       apportPct,
		HcsfOk:          hcsfOk,
		Actions:         actions(in, tauxEndettement, hcsfOk, resteAVivre, apportPct),
		Simulations:     simulations(in, principal),
	}
	return res, nil
}

// monthlyPayment applies the standard amortization formula over the borrowed
// capital. Zero principal or zero rate short-circuit to the linear cases.
func monthlyPayment(principal, annualRatePct float64, months int) float64 {
	if principal <= 0 || months <= 0 {
		return 0
	}
	monthly := annualRatePct / 100 / 12
	if monthly == 0 {
		return principal / float64(months)
	}
	return principal * monthly / (1 - math.Pow(1+monthly, -float64(months)))
}

// debtRatio resolves to the 100% sentinel when no income is declared.
func debtRatio(mensualite, revenus float64) float64 {
	if revenus <= 0 {
		return 1.0
	}
	return round4(mensualite / revenus)
}

// score applies the fixed rubric: debt ratio 35 pts, residual income 25 pts,
// down payment 20 pts, profile stability 20 pts.
func score(in Input, tauxEndettement, resteAVivre, apportPct float64) int {
	var total float64

	// Debt ratio: full marks at or under the HCSF ceiling, zero at 50%.
	switch {
	case in.Revenus <= 0:
		// no income, no debt capacity
	case tauxEndettement <= HCSFCeiling:
		total += 35
	case tauxEndettement < maxTauxEndettement:
		total += 35 * (maxTauxEndettement - tauxEndettement) / (maxTauxEndettement - HCSFCeiling)
	}

	// Residual income: linear up to the comfortable threshold.
	switch {
	case resteAVivre >= comfortableResteAVivre:
		total += 25
	case resteAVivre > 0:
		total += 25 * resteAVivre / comfortableResteAVivre
	}

	// Down payment: linear up to the 20% target.
	switch {
	case apportPct >= targetApportPct:
		total += 20
	case apportPct > 0:
		total += 20 * apportPct / targetApportPct
	}

	total += contractPoints(in.Contrat)
	total += senioritePoints(in.Anciennete)
	total += decouvertPoints(in.Decouvert)

	rounded := int(math.Round(total))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

func contractPoints(contrat string) float64 {
	switch contrat {
	case "cdi", "fonctionnaire":
		return 10
	case "independant":
		return 6
	case "cdd":
		return 5
	case "interim":
		return 3
	default:
		return 4
	}
}

func senioritePoints(anciennete string) float64 {
	switch anciennete {
	case "plus_3_ans":
		return 5
	case "entre_1_et_3_ans":
		return 3
	case "moins_1_an":
		return 1
	default:
		return 2
	}
}

func decouvertPoints(decouvert string) float64 {
	switch decouvert {
	case "jamais":
		return 5
	case "parfois":
		return 2
	case "souvent":
		return 0
	default:
		return 2
	}
}

// actions evaluates the remediation rules in a fixed order: blocking rules
// first, then important, then advisory. Order within a tier follows rule
// evaluation order, so the list is stable for identical input.
func actions(in Input, tauxEndettement float64, hcsfOk bool, resteAVivre, apportPct float64) []ActionItem {
	items := []ActionItem{}

	if in.Revenus <= 0 {
		items = append(items, ActionItem{
			Priorite: PrioriteBloquant,
			Titre:    "Aucun revenu déclaré",
			Detail:   "Un dossier sans revenus ne peut pas être financé. Renseignez vos revenus mensuels nets.",
		})
	}
	if !hcsfOk {
		items = append(items, ActionItem{
			Priorite: PrioriteBloquant,
			Titre:    "Taux d'endettement au-dessus du plafond HCSF",
			Detail:   "Votre taux d'endettement dépasse 35% des revenus. Réduisez le montant emprunté, allongez la durée ou augmentez l'apport.",
		})
	}
	if resteAVivre < 0 {
		items = append(items, ActionItem{
			Priorite: PrioriteBloquant,
			Titre:    "Reste à vivre négatif",
			Detail:   "Vos charges et la mensualité dépassent vos revenus. Le projet n'est pas soutenable en l'état.",
		})
	}

	if in.Decouvert == "souvent" {
		items = append(items, ActionItem{
			Priorite: PrioriteImportant,
			Titre:    "Découverts bancaires fréquents",
			Detail:   "Les banques examinent les trois derniers relevés. Évitez tout découvert pendant au moins trois mois avant de déposer le dossier.",
		})
	}
	if in.Contrat == "cdd" || in.Contrat == "interim" {
		items = append(items, ActionItem{
			Priorite: PrioriteImportant,
			Titre:    "Contrat de travail non pérenne",
			Detail:   "Un CDD ou une mission d'intérim fragilise le dossier. Un co-emprunteur en CDI ou une titularisation améliore nettement l'acceptation.",
		})
	}
	if in.Montant > 0 && apportPct < minApportPct {
		items = append(items, ActionItem{
			Priorite: PrioriteImportant,
			Titre:    "Apport insuffisant",
			Detail:   "Un apport inférieur à 10% du projet couvre rarement les frais annexes. Visez au minimum 10% du montant.",
		})
	}
	if resteAVivre >= 0 && resteAVivre < tightResteAVivre {
		items = append(items, ActionItem{
			Priorite: PrioriteImportant,
			Titre:    "Reste à vivre serré",
			Detail:   "Après mensualité et charges, la marge mensuelle est faible. Réduisez les charges récurrentes ou le montant emprunté.",
		})
	}

	if in.Montant > 0 && apportPct >= minApportPct && apportPct < targetApportPct {
		items = append(items, ActionItem{
			Priorite: PrioriteConseil,
			Titre:    "Renforcer l'apport",
			Detail:   "Un apport de 20% ou plus ouvre l'accès aux meilleures conditions de taux.",
		})
	}
	if in.Anciennete == "moins_1_an" {
		items = append(items, ActionItem{
			Priorite: PrioriteConseil,
			Titre:    "Ancienneté professionnelle récente",
			Detail:   "Passé un an d'ancienneté, le dossier sera mieux noté. Si possible, attendez ce cap avant de déposer.",
		})
	}
	if hcsfOk && tauxEndettement > 0.30 {
		items = append(items, ActionItem{
			Priorite: PrioriteConseil,
			Titre:    "Marge d'endettement réduite",
			Detail:   "Vous êtes proche du plafond de 35%. Une hausse de taux pourrait faire basculer le dossier, gardez une marge.",
		})
	}

	return items
}

// simulations re-runs the payment computation at the fixed rate deltas.
func simulations(in Input, principal float64) []Simulation {
	sims := make([]Simulation, 0, len(simulationDeltas))
	for _, delta := range simulationDeltas {
		taux := in.TauxInteret + delta
		if taux < 0.1 {
			taux = 0.1
		}
		taux = round2(taux)

		mensualite := round2(monthlyPayment(principal, taux, in.Duree))
		sims = append(sims, Simulation{
			Taux:            taux,
			Mensualite:      mensualite,
			CoutTotal:       round2(mensualite*float64(in.Duree) - principal),
			TauxEndettement: debtRatio(mensualite, in.Revenus),
		})
	}
	return sims
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
