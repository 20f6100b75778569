// Action resolution — translates queued player submissions into state
// mutations. Handlers never read the wall clock and never call advisors; a
// malformed action is a logged no-op, never a tick failure.
package engine

import (
	"log/slog"
	"math"

	"github.com/sashko1391/they-voted-for-this/internal/kernel"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// Action types by role.
const (
	ActionWork          = "work"
	ActionConsume       = "consume"
	ActionVoteLaw       = "vote_law"
	ActionJoinMovement  = "join_movement"
	ActionLeaveMovement = "leave_movement"

	ActionProduce     = "produce"
	ActionSetWages    = "set_wages"
	ActionLobby       = "lobby"
	ActionEvadeTaxes  = "evade_taxes"
	ActionComplyTaxes = "comply_taxes"

	ActionProposeLaw        = "propose_law"
	ActionVoteLawPolitician = "vote_law_politician"
	ActionAllocateBudget    = "allocate_budget"
	ActionPublishStatement  = "publish_statement"
)

// RoleActions lists the action types each role may submit.
var RoleActions = map[string][]string{
	state.RoleCitizen:       {ActionWork, ActionConsume, ActionVoteLaw, ActionJoinMovement, ActionLeaveMovement},
	state.RoleBusinessOwner: {ActionProduce, ActionSetWages, ActionLobby, ActionEvadeTaxes, ActionComplyTaxes},
	state.RolePolitician:    {ActionProposeLaw, ActionVoteLawPolitician, ActionAllocateBudget, ActionPublishStatement},
}

// RoleAllows reports whether the role may submit the given action type.
func RoleAllows(role, actionType string) bool {
	for _, t := range RoleActions[role] {
		if t == actionType {
			return true
		}
	}
	return false
}

// resolveActions drains every player's pending queue into history and runs
// each action's handler. Players are processed in lexicographic id order so
// reruns from the same inputs replay identically. Returns counts of resolved
// and skipped actions for the tick log.
func resolveActions(s *state.WorldState) (resolved, skipped int) {
	for _, id := range s.PlayerIDs() {
		p := s.Players[id]
		pending := p.ActionsPending
		p.ActionsPending = nil
		if len(pending) > 0 {
			p.ActionsHistory = append(p.ActionsHistory, state.ActionGroup{
				Tick:    s.Meta.Tick,
				Actions: pending,
			})
			if len(p.ActionsHistory) > state.MaxActionHistory {
				p.ActionsHistory = p.ActionsHistory[len(p.ActionsHistory)-state.MaxActionHistory:]
			}
		}
		if !p.Alive {
			continue
		}
		for _, a := range pending {
			if applyAction(s, p, a) {
				resolved++
			} else {
				skipped++
			}
		}
	}
	return resolved, skipped
}

// applyAction dispatches one action. Unknown types are skipped with a
// warning; a handler that cannot use its parameters leaves the state alone.
func applyAction(s *state.WorldState, p *state.Player, a state.Action) bool {
	switch a.Type {
	case ActionWork:
		return handleWork(s, p)
	case ActionConsume:
		return handleConsume(s, p)
	case ActionVoteLaw:
		return handleVoteLaw(s, p, a, 1)
	case ActionJoinMovement:
		return handleJoinMovement(s, p, a)
	case ActionLeaveMovement:
		return handleLeaveMovement(s, p)
	case ActionProduce:
		return handleProduce(s, p)
	case ActionSetWages:
		return handleSetWages(s, p, a)
	case ActionLobby:
		return handleLobby(s, p, a)
	case ActionEvadeTaxes:
		return handleEvadeTaxes(s, p)
	case ActionComplyTaxes:
		return handleComplyTaxes(s, p)
	case ActionProposeLaw:
		return handleProposeLaw(s, p, a)
	case ActionVoteLawPolitician:
		return handleVoteLaw(s, p, a, 3)
	case ActionAllocateBudget:
		return handleAllocateBudget(s, p, a)
	case ActionPublishStatement:
		return handlePublishStatement(s, p, a)
	default:
		slog.Warn("unknown action type skipped", "player", p.ID, "type", a.Type)
		return false
	}
}

func handleWork(s *state.WorldState, p *state.Player) bool {
	c := p.Citizen
	if c == nil {
		return false
	}
	if !c.Employed {
		c.EconomicPressure = math.Min(100, c.EconomicPressure+5)
		return true
	}
	wageLevel := 1.0
	if emp, ok := s.Players[c.EmployerID]; ok && emp.Business != nil {
		wageLevel = emp.Business.WageLevel
	}
	wage := s.Economy.WageIndex * wageLevel
	p.Visible.Wealth += wage
	mustApply(s, addMod("economy.gdp", 0.01*wage))
	c.Satisfaction = math.Min(100, c.Satisfaction+1)
	return true
}

func handleConsume(s *state.WorldState, p *state.Player) bool {
	c := p.Citizen
	if c == nil {
		return false
	}
	amount := math.Min(0.3*p.Visible.Wealth, 0.01*s.Economy.Market.Supply)
	if amount <= 0 {
		c.EconomicPressure = math.Min(100, c.EconomicPressure+8)
		return true
	}
	p.Visible.Wealth -= amount
	mustApply(s, addMod("economy.market.demand", 0.1*amount))
	mustApply(s, addMod("economy.market.supply", -0.05*amount))
	c.Satisfaction = math.Min(100, c.Satisfaction+3)
	return true
}

// handleVoteLaw records a vote with the given weight. Politician votes count
// triple; both roles share this handler.
func handleVoteLaw(s *state.WorldState, p *state.Player, a state.Action, weight int) bool {
	lawID, ok := paramString(a, "law_id")
	if !ok {
		return false
	}
	law := s.Law(lawID)
	if law == nil || law.Status != state.LawVoting {
		return false
	}
	choice, _ := paramString(a, "vote")
	switch choice {
	case "against":
		law.Votes.Against += weight
	case "abstain":
		law.Votes.Abstain += weight
	default:
		law.Votes.For += weight
	}
	if p.Citizen != nil {
		p.Citizen.VotedThisTick = true
	}
	p.Hidden.Influence += 0.5
	return true
}

func handleJoinMovement(s *state.WorldState, p *state.Player, a state.Action) bool {
	c := p.Citizen
	if c == nil {
		return false
	}
	movementID, ok := paramString(a, "movement_id")
	if !ok {
		return false
	}
	m := s.Movement(movementID)
	if m == nil {
		return false
	}
	for _, id := range m.MemberPlayerIDs {
		if id == p.ID {
			p.Visible.MovementID = m.ID
			return true
		}
	}
	m.MemberPlayerIDs = append(m.MemberPlayerIDs, p.ID)
	p.Visible.MovementID = m.ID
	if m.Type == state.MovementRadical {
		c.Radicalization = math.Min(100, c.Radicalization+10)
	}
	p.Hidden.Influence += 2
	return true
}

func handleLeaveMovement(s *state.WorldState, p *state.Player) bool {
	if p.Visible.MovementID == "" {
		return true
	}
	if m := s.Movement(p.Visible.MovementID); m != nil {
		kept := m.MemberPlayerIDs[:0]
		for _, id := range m.MemberPlayerIDs {
			if id != p.ID {
				kept = append(kept, id)
			}
		}
		m.MemberPlayerIDs = kept
	}
	p.Visible.MovementID = ""
	return true
}

func handleProduce(s *state.WorldState, p *state.Player) bool {
	b := p.Business
	if b == nil {
		return false
	}
	if b.StrikeRisk > 0.8 {
		b.ProductionCapacity /= 2
	}
	output := b.ProductionCapacity
	mustApply(s, addMod("economy.market.supply", output))
	mustApply(s, addMod("economy.gdp", 0.1*output))
	profit := output*s.Economy.Market.PriceIndex - float64(b.Employees)*b.WageLevel*s.Economy.WageIndex
	p.Visible.Wealth += math.Max(0, profit)
	p.Hidden.Influence += 1
	return true
}

func handleSetWages(s *state.WorldState, p *state.Player, a state.Action) bool {
	b := p.Business
	if b == nil {
		return false
	}
	level, ok := paramFloat(a, "wage_level")
	if !ok {
		return false
	}
	level = math.Min(10, math.Max(0.1, level))
	old := b.WageLevel
	b.WageLevel = level
	if level < 0.7*s.Economy.WageIndex {
		b.StrikeRisk += 0.15
	} else if level > 1.2*s.Economy.WageIndex {
		b.StrikeRisk -= 0.1
	}
	b.StrikeRisk = math.Min(1, math.Max(0, b.StrikeRisk))
	mustApply(s, addMod("economy.wage_index", 0.01*(level-old)))
	return true
}

func handleLobby(s *state.WorldState, p *state.Player, a state.Action) bool {
	targetID, ok := paramString(a, "target_player_id")
	if !ok {
		return false
	}
	requested, ok := paramFloat(a, "amount")
	if !ok || requested <= 0 {
		return false
	}
	target, ok := s.Players[targetID]
	if !ok || target.Politician == nil {
		return false
	}
	actual := math.Min(0.2*p.Visible.Wealth, requested)
	if actual <= 0 {
		return false
	}
	p.Visible.Wealth -= actual
	target.Politician.LobbyMoneyReceived += actual
	target.Hidden.Corruption += 0.5 * actual
	p.Hidden.Influence += 3
	p.Hidden.Corruption += 2
	return true
}

// Tax behavior: evasion keeps a quarter of the player's notional tax bill in
// their pocket and erodes global compliance; compliance reverses the drift
// and repairs reputation.
func handleEvadeTaxes(s *state.WorldState, p *state.Player) bool {
	b := p.Business
	if b == nil {
		return false
	}
	b.TaxEvasion = math.Min(1, b.TaxEvasion+0.2)
	mustApply(s, addMod("economy.tax_compliance", -0.02))
	evaded := p.Visible.Wealth * s.Economy.TaxRate * 0.01 * 0.25
	p.Visible.Wealth += evaded
	p.Hidden.Corruption += 1.5
	return true
}

func handleComplyTaxes(s *state.WorldState, p *state.Player) bool {
	b := p.Business
	if b == nil {
		return false
	}
	b.TaxEvasion = math.Max(0, b.TaxEvasion-0.2)
	mustApply(s, addMod("economy.tax_compliance", 0.01))
	p.Hidden.Corruption = math.Max(0, p.Hidden.Corruption-0.5)
	p.Hidden.Reputation += 0.5
	return true
}

func handleProposeLaw(s *state.WorldState, p *state.Player, a state.Action) bool {
	pol := p.Politician
	if pol == nil {
		return false
	}
	text, ok := paramString(a, "text")
	if !ok || text == "" {
		return false
	}
	if len(text) > state.MaxLawTextLen {
		text = text[:state.MaxLawTextLen]
	}
	law := &state.Law{
		ID:           state.NewID("law", s.Meta.Seed, s.Meta.Tick, len(s.Laws)),
		ProposerID:   p.ID,
		ProposedTick: s.Meta.Tick,
		OriginalText: text,
		Status:       state.LawProposed,
	}
	s.Laws = append(s.Laws, law)
	pol.LawsProposed++
	p.Hidden.Influence += 3
	return true
}

func handleAllocateBudget(s *state.WorldState, p *state.Player, a state.Action) bool {
	if p.Politician == nil {
		return false
	}
	next := make(map[string]float64, len(state.AllocationCategories))
	sum := 0.0
	for _, cat := range state.AllocationCategories {
		v, ok := paramFloat(a, cat)
		if !ok || v < 0 || v > 1 {
			return false
		}
		next[cat] = v
		sum += v
	}
	if math.Abs(sum-1.0) > 0.01 {
		return false
	}
	s.Government.BudgetAllocation = next
	p.Hidden.Influence += 2
	return true
}

func handlePublishStatement(s *state.WorldState, p *state.Player, a state.Action) bool {
	pol := p.Politician
	if pol == nil {
		return false
	}
	text, ok := paramString(a, "text")
	if !ok || text == "" {
		return false
	}
	if len(text) > state.MaxStatementLen {
		text = text[:state.MaxStatementLen]
	}
	pol.Statements = append(pol.Statements, state.Statement{Tick: s.Meta.Tick, Text: text})
	p.Hidden.Reputation += 0.5
	return true
}

// addMod builds an add modifier for a kernel path.
func addMod(variable string, delta float64) state.Modifier {
	return state.Modifier{Variable: variable, Operation: kernel.OpAdd, Value: delta}
}

// mustApply routes a handler-originated write through the kernel so hard
// constraints hold. Handler writes target known paths with finite deltas;
// a rejection here indicates a registry bug, so it is logged loudly.
func mustApply(s *state.WorldState, m state.Modifier) {
	if err := kernel.Apply(s, m); err != nil {
		slog.Error("handler modifier rejected", "variable", m.Variable, "error", err)
	}
}

func paramString(a state.Action, key string) (string, bool) {
	v, ok := a.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func paramFloat(a state.Action, key string) (float64, bool) {
	v, ok := a.Params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
