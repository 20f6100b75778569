// Stage definitions — per-stage input records, output shapes, required
// fields, system prompts, and fallbacks. Each stage's input is marshaled
// from the current state by the core; the advisor only ever sees what its
// builder puts in the record.
package advisors

import (
	"encoding/json"
	"fmt"

	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// Stage names, used for logging, metrics, and the tick log.
const (
	StageAnalyst   = "analyst"
	StageJudiciary = "judiciary"
	StageMedia     = "media"
	StageReaction  = "reaction"
	StageCrisis    = "crisis"
	StageHistorian = "historian"
)

// userPrompt frames a stage input record the way every advisor expects it.
func userPrompt(input any) (string, error) {
	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal stage input: %w", err)
	}
	return fmt.Sprintf("TICK INPUT DATA:\n%s\n\nAnalyze and respond with valid JSON only.", data), nil
}

// economySnapshot is the economy slice shared by several stage inputs.
type economySnapshot struct {
	GDP          float64 `json:"gdp"`
	GDPDelta     float64 `json:"gdp_delta"`
	Inflation    float64 `json:"inflation"`
	Unemployment float64 `json:"unemployment"`
	TaxRate      float64 `json:"tax_rate"`
	PriceIndex   float64 `json:"price_index"`
	Shortage     bool    `json:"shortage"`
	Deficit      float64 `json:"deficit"`
	Reserves     float64 `json:"reserves"`
}

// societySnapshot is the society slice shared by several stage inputs.
type societySnapshot struct {
	Stability       float64 `json:"stability"`
	PublicTrust     float64 `json:"public_trust"`
	Satisfaction    float64 `json:"satisfaction"`
	Radicalization  float64 `json:"radicalization"`
	ProtestPressure float64 `json:"protest_pressure"`
}

func snapEconomy(s *state.WorldState) economySnapshot {
	return economySnapshot{
		GDP:          s.Economy.GDP,
		GDPDelta:     s.Economy.GDPDelta,
		Inflation:    s.Economy.Inflation,
		Unemployment: s.Economy.Unemployment,
		TaxRate:      s.Economy.TaxRate,
		PriceIndex:   s.Economy.Market.PriceIndex,
		Shortage:     s.Economy.Market.Shortage,
		Deficit:      s.Economy.Budget.Deficit,
		Reserves:     s.Economy.Budget.Reserves,
	}
}

func snapSociety(s *state.WorldState) societySnapshot {
	return societySnapshot{
		Stability:       s.Society.Stability,
		PublicTrust:     s.Society.PublicTrust,
		Satisfaction:    s.Society.Satisfaction,
		Radicalization:  s.Society.Radicalization,
		ProtestPressure: s.Society.ProtestPressure,
	}
}

// ── Analyst ──────────────────────────────────────────────────────────────

type analystInput struct {
	Tick        uint64          `json:"tick"`
	Economy     economySnapshot `json:"economy"`
	Society     societySnapshot `json:"society"`
	ActiveLaws  int             `json:"active_laws"`
	PlayerCount int             `json:"player_count"`
}

// AnalystOutput feeds later stages; it never mutates state directly.
type AnalystOutput struct {
	Trends      []string           `json:"trends"`
	Risks       []string           `json:"risks"`
	Projections map[string]float64 `json:"projections"`
	Confidence  float64            `json:"confidence"`
}

var analystRequired = []string{"trends", "risks", "projections", "confidence"}

const analystSystem = `You are the state analyst of a simulated nation. You receive the current economic and social indicators and produce a sober briefing for the other government advisors.

Respond ONLY with a single JSON object:
- "trends": array of short strings naming current trends
- "risks": array of short strings naming emerging risks
- "projections": object mapping indicator names to projected numeric values
- "confidence": number in [0,1] for how confident you are in the briefing`

func analystFallback(s *state.WorldState) *AnalystOutput {
	// Pass-through projections: current values, no movement assumed.
	return &AnalystOutput{
		Trends: []string{},
		Risks:  []string{},
		Projections: map[string]float64{
			"gdp":          s.Economy.GDP,
			"inflation":    s.Economy.Inflation,
			"unemployment": s.Economy.Unemployment,
		},
		Confidence: 0,
	}
}

// ── Judiciary ────────────────────────────────────────────────────────────

type judiciaryInput struct {
	LawID        string          `json:"law_id"`
	OriginalText string          `json:"original_text"`
	ProposedTick uint64          `json:"proposed_tick"`
	Economy      economySnapshot `json:"economy"`
	Society      societySnapshot `json:"society"`
	Variables    []string        `json:"addressable_variables"`
}

// JudiciaryOutput is the binding of one law's free text to modifiers.
type JudiciaryOutput struct {
	LawID          string               `json:"law_id"`
	Interpretation string               `json:"interpretation"`
	Ambiguities    []string             `json:"ambiguities"`
	Implementation state.Implementation `json:"implementation"`
}

var judiciaryRequired = []string{"law_id", "interpretation", "ambiguities", "implementation"}

const judiciarySystem = `You are the constitutional court of a simulated nation. You receive the text of a newly enacted law and translate it into concrete numeric effects on the state.

Respond ONLY with a single JSON object:
- "law_id": the id you were given
- "interpretation": one paragraph stating what the law means in practice
- "ambiguities": array of short strings naming unclear points
- "implementation": object with "affected_variables" (array of dot-path names drawn from the provided addressable_variables) and "modifiers" (array of {"variable","operation","value"} where operation is one of "set","add","multiply")

Keep effects modest; sweeping changes belong to crises, not statutes.`

// noopInterpretation is the judiciary fallback: the law binds with no
// effect.
func noopInterpretation() *state.Interpretation {
	return &state.Interpretation{
		Interpretation: "No binding interpretation could be produced; the law stands without numeric effect.",
		Ambiguities:    []string{},
		Implementation: state.Implementation{AffectedVariables: []string{}, Modifiers: []state.Modifier{}},
	}
}

// ── Media ────────────────────────────────────────────────────────────────

type mediaInput struct {
	Tick          uint64   `json:"tick"`
	AnalystTrends []string `json:"analyst_trends"`
	AnalystRisks  []string `json:"analyst_risks"`
	RecentEvents  []string `json:"recent_events"`
	ActiveLaws    []string `json:"active_laws"`
	Approval      float64  `json:"approval_overall"`
}

// MediaHeadline, MediaArticle, and MediaRumor are the raw shapes the media
// advisor returns; ids and ticks are stamped by the core on application.
type MediaHeadline struct {
	Text       string  `json:"text"`
	TruthScore float64 `json:"truth_score"`
}

type MediaArticle struct {
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	TruthScore float64 `json:"truth_score"`
}

type MediaRumor struct {
	Text        string  `json:"text"`
	Credibility float64 `json:"credibility"`
}

// MediaOutput is the press landscape for the coming tick.
type MediaOutput struct {
	Headlines []MediaHeadline `json:"headlines"`
	Articles  []MediaArticle  `json:"articles"`
	Rumors    []MediaRumor    `json:"rumors"`
}

var mediaRequired = []string{"headlines", "articles", "rumors"}

const mediaSystem = `You are the independent press of a simulated nation. You receive this tick's notable developments and produce coverage. You may editorialize, exaggerate, or plant rumors — each item carries a truth score or credibility in [0,1] that you assign honestly.

Respond ONLY with a single JSON object:
- "headlines": array of {"text","truth_score"} (2 to 4 items)
- "articles": array of {"title","body","truth_score"} (0 to 2 items)
- "rumors": array of {"text","credibility"} (0 to 3 items)`

// mediaFallback is the placeholder press run when the stage fails.
func mediaFallback() *MediaOutput {
	return &MediaOutput{
		Headlines: []MediaHeadline{
			{Text: "Government affairs proceed without notable incident.", TruthScore: 1},
			{Text: "Markets quiet as the nation awaits developments.", TruthScore: 1},
		},
		Articles: []MediaArticle{},
		Rumors:   []MediaRumor{},
	}
}

// ── Reaction ─────────────────────────────────────────────────────────────

type reactionInput struct {
	Tick            uint64          `json:"tick"`
	Approval        state.Approval  `json:"approval"`
	Society         societySnapshot `json:"society"`
	Headlines       []string        `json:"headlines"`
	LawsThisTick    []string        `json:"laws_activated"`
	Movements       []movementBrief `json:"movements"`
	AnalystRisks    []string        `json:"analyst_risks"`
	ProtestPressure float64         `json:"protest_pressure"`
}

type movementBrief struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
	Members  int     `json:"members"`
}

// MovementDirective creates, strengthens, or dissolves a movement.
type MovementDirective struct {
	Action     string   `json:"action"`
	MovementID string   `json:"movement_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Type       string   `json:"type,omitempty"`
	Strength   float64  `json:"strength,omitempty"`
	Demands    []string `json:"demands,omitempty"`
}

// ReactionOutput is the public's response to the tick.
type ReactionOutput struct {
	ApprovalDelta      map[string]float64  `json:"approval_delta"`
	ProtestProb        float64             `json:"protest_prob"`
	Movements          []MovementDirective `json:"movements"`
	SuppressedWarnings []string            `json:"suppressed_warnings"`
}

var reactionRequired = []string{"approval_delta", "protest_prob", "movements", "suppressed_warnings"}

const reactionSystem = `You are the voice of public opinion in a simulated nation. You receive the current approval scores, the social climate, and this tick's press coverage, and you decide how the public reacts.

Respond ONLY with a single JSON object:
- "approval_delta": object mapping any of "overall","economic","social","security" to a numeric change (keep each within [-10,10])
- "protest_prob": number in [0,1] for how likely street protests are
- "movements": array of directives, each {"action":"create"|"strengthen"|"dissolve", "movement_id", "name", "type", "strength", "demands"} (type is one of reform, populist, radical, separatist, labor, business)
- "suppressed_warnings": array of short strings for tensions not yet visible`

// reactionFallback is the stage fallback: a uniform one-point approval dip
// and a small protest bump.
func reactionFallback() *ReactionOutput {
	return &ReactionOutput{
		ApprovalDelta: map[string]float64{
			"overall": -1, "economic": -1, "social": -1, "security": -1,
		},
		ProtestProb:        -1, // Sentinel: apply the fixed +0.02 bump instead of the ratchet.
		Movements:          []MovementDirective{},
		SuppressedWarnings: []string{},
	}
}

// ── Crisis ───────────────────────────────────────────────────────────────

type crisisInput struct {
	Tick             uint64          `json:"tick"`
	Economy          economySnapshot `json:"economy"`
	Society          societySnapshot `json:"society"`
	StabilityHistory []float64       `json:"stability_history"`
	GDPHistory       []float64       `json:"gdp_history"`
	ActiveEvents     []string        `json:"active_events"`
	Variables        []string        `json:"addressable_variables"`
}

// CrisisOutput describes an injected crisis event. A null output means no
// crisis this tick and is a legitimate success.
type CrisisOutput struct {
	EventType     string           `json:"event_type"`
	Severity      int              `json:"severity"`
	Modifiers     []state.Modifier `json:"modifiers"`
	NarrativeHook string           `json:"narrative_hook"`
	DurationTicks *uint64          `json:"duration_ticks"`
}

var crisisRequired = []string{"event_type", "severity", "modifiers", "narrative_hook", "duration_ticks"}

const crisisSystem = `You are the crisis director of a simulated nation. You receive the state of the world, including short stability and GDP histories, and decide whether a crisis erupts this tick. Most ticks, nothing should happen.

If no crisis is warranted, respond with the literal text: null

Otherwise respond ONLY with a single JSON object:
- "event_type": short snake_case name for the crisis
- "severity": integer 1 to 5
- "modifiers": array of {"variable","operation","value"} using the provided addressable_variables, operation one of "set","add","multiply"
- "narrative_hook": one dramatic sentence for the press
- "duration_ticks": integer number of ticks the effects last, or null for permanent`

// ── Historian ────────────────────────────────────────────────────────────

type historianInput struct {
	Tick         uint64             `json:"tick"`
	CurrentEra   string             `json:"current_era"`
	EraStartTick uint64             `json:"era_start_tick"`
	TickSummary  []string           `json:"tick_summary"`
	Players      []playerBrief      `json:"players"`
	Reputations  map[string]float64 `json:"known_reputations"`
}

type playerBrief struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// EraTransition opens a new historical era.
type EraTransition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HistorianOutput records the tick for posterity. It never mutates
// gameplay state.
type HistorianOutput struct {
	EraTransition     *EraTransition                    `json:"era_transition"`
	Summary           string                            `json:"summary"`
	PlayerReputations map[string]state.ReputationRecord `json:"player_reputations"`
}

var historianRequired = []string{"era_transition", "summary", "player_reputations"}

const historianSystem = `You are the court historian of a simulated nation. You receive a summary of the tick and judge whether history has turned a page.

Respond ONLY with a single JSON object:
- "era_transition": null, or {"name","description"} when a genuinely new era begins (rare — eras span many ticks)
- "summary": one or two sentences recording the tick for the chronicle
- "player_reputations": object mapping player ids to {"summary","score"} with score in [-100,100]; include only players whose legacy changed`
