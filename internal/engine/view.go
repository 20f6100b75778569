// View projection — the deliberately lossy, role-specific slice of state a
// player is allowed to see. Sensitive quantities are perturbed with seeded
// noise and presented categorically; hidden stats, raw society scalars, and
// law vote tallies never leave this function.
package engine

import (
	"math"

	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// View is the projection returned to one player.
type View struct {
	Tick          uint64           `json:"tick"`
	Phase         string           `json:"phase"`
	Role          string           `json:"role"`
	Wealth        float64          `json:"wealth"`
	PriceTrend    string           `json:"price_trend"`
	Availability  string           `json:"availability"`
	ApprovalVague string           `json:"approval_vague"`
	Headlines     []state.Headline `json:"headlines"`
	Rumors        []state.Rumor    `json:"rumors"`
	Laws          []LawSummary     `json:"laws"`
	Citizen       *CitizenView     `json:"citizen,omitempty"`
	Business      *BusinessView    `json:"business,omitempty"`
	Politician    *PoliticianView  `json:"politician,omitempty"`
}

// LawSummary shows a law's public face without its tallies.
type LawSummary struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

// CitizenView is the citizen role block.
type CitizenView struct {
	Employed bool   `json:"employed"`
	Mood     string `json:"mood"`
}

// BusinessView is the business_owner role block.
type BusinessView struct {
	Employees  int     `json:"employees"`
	Production float64 `json:"production"`
	WageLevel  float64 `json:"wage_level"`
	LaborMood  string  `json:"labor_mood"`
}

// PoliticianView is the politician role block. The two estimates are numeric
// but noise-perturbed.
type PoliticianView struct {
	LawsProposed         int     `json:"laws_proposed"`
	LawsPassed           int     `json:"laws_passed"`
	ApprovalEstimate     float64 `json:"approval_estimate"`
	UnemploymentEstimate float64 `json:"unemployment_estimate"`
}

// noise perturbs base by up to ±mag, deterministically from the view seed
// and a stable per-quantity index.
func noise(seed int64, base, mag float64, idx int) float64 {
	return base + (state.Uniform(seed, idx)-0.5)*2*mag
}

// ProjectView computes the projection of the post-tick state for one player.
// Returns nil if the player does not exist.
func ProjectView(s *state.WorldState, playerID string) *View {
	p, ok := s.Players[playerID]
	if !ok {
		return nil
	}
	seed := int64(s.Meta.Seed)*1000 + int64(s.Meta.Tick)

	v := &View{
		Tick:          s.Meta.Tick,
		Phase:         s.Meta.Phase,
		Role:          p.Role,
		Wealth:        math.Round(p.Visible.Wealth*100) / 100,
		PriceTrend:    priceTrend(noise(seed, s.Economy.Market.PriceIndex-1, 0.1, 1)),
		Availability:  availability(noise(seed, s.Economy.Market.Supply/math.Max(1, s.Economy.Market.Demand), 0.15, 2)),
		ApprovalVague: approvalVague(noise(seed, s.Government.Approval.Overall, 10, 3)),
		Headlines:     s.Media.Headlines,
		Rumors:        s.Media.Rumors,
	}

	for _, law := range s.Laws {
		if law.Status == state.LawVoting || law.Status == state.LawActive {
			v.Laws = append(v.Laws, LawSummary{ID: law.ID, Text: law.OriginalText, Status: law.Status})
		}
	}

	switch p.Role {
	case state.RoleCitizen:
		if c := p.Citizen; c != nil {
			v.Citizen = &CitizenView{Employed: c.Employed, Mood: moodBucket(c.Satisfaction)}
		}
	case state.RoleBusinessOwner:
		if b := p.Business; b != nil {
			v.Business = &BusinessView{
				Employees:  b.Employees,
				Production: b.ProductionCapacity,
				WageLevel:  b.WageLevel,
				LaborMood:  laborMood(b.StrikeRisk),
			}
		}
	case state.RolePolitician:
		if pol := p.Politician; pol != nil {
			v.Politician = &PoliticianView{
				LawsProposed:         pol.LawsProposed,
				LawsPassed:           pol.LawsPassed,
				ApprovalEstimate:     math.Round(noise(seed, s.Government.Approval.Overall, 8, 4)),
				UnemploymentEstimate: math.Round(noise(seed, s.Economy.Unemployment, 3, 5)*10) / 10,
			}
		}
	}
	return v
}

// priceTrend maps the perturbed price deviation to a direction with a
// ±0.05 dead band.
func priceTrend(dev float64) string {
	switch {
	case dev > 0.05:
		return "rising"
	case dev < -0.05:
		return "falling"
	default:
		return "stable"
	}
}

func availability(ratio float64) string {
	switch {
	case ratio > 1.3:
		return "abundant"
	case ratio > 0.8:
		return "normal"
	case ratio > 0.5:
		return "scarce"
	default:
		return "shortage"
	}
}

func approvalVague(v float64) string {
	switch {
	case v > 65:
		return "popular"
	case v > 40:
		return "mixed"
	case v > 20:
		return "unpopular"
	default:
		return "crisis"
	}
}

func moodBucket(satisfaction float64) string {
	switch {
	case satisfaction > 70:
		return "content"
	case satisfaction > 40:
		return "uneasy"
	default:
		return "angry"
	}
}

func laborMood(strikeRisk float64) string {
	switch {
	case strikeRisk > 0.8:
		return "striking"
	case strikeRisk > 0.5:
		return "restless"
	default:
		return "calm"
	}
}
