// Economy and society recalculation — fixed-formula tick-end update of
// prices, inflation, GDP, budget, unemployment, stability, and protest
// pressure from the post-action state. Step order is fixed; every write to a
// constrained scalar goes through the kernel so hard bounds hold.
package engine

import (
	"math"

	"github.com/sashko1391/they-voted-for-this/internal/kernel"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// recalcEconomy runs once per tick, after all action handlers.
func recalcEconomy(s *state.WorldState) {
	eco := &s.Economy

	// 1. Price index tracks the demand/supply ratio with smoothing.
	if eco.Market.Supply > 0 {
		next := 0.8*eco.Market.PriceIndex + 0.2*(eco.Market.Demand/eco.Market.Supply)
		setPath(s, "economy.market.price_index", next)
	}

	// 2. Shortage flag.
	eco.Market.Shortage = eco.Market.Demand > 1.2*eco.Market.Supply

	// 3. Inflation follows price pressure and deficit monetization.
	inflTarget := 10*(eco.Market.PriceIndex-1) + math.Max(0, eco.Budget.Deficit)*0.01
	setPath(s, "economy.inflation", 0.7*eco.Inflation+0.3*inflTarget)

	// 4. GDP growth, dampened by inflation and unemployment.
	prevGDP := eco.GDP
	growth := 1 + 0.02 - 0.001*eco.Inflation - 0.001*eco.Unemployment
	setPath(s, "economy.gdp", eco.GDP*growth)
	eco.GDPDelta = eco.GDP - prevGDP

	// 5. Budget: revenue is the annual tax take spread across ticks.
	ticksPerYear := math.Round(365 / (float64(s.Meta.TickIntervalHours) / 24))
	if ticksPerYear < 1 {
		ticksPerYear = 1
	}
	eco.Budget.Revenue = eco.GDP * eco.TaxRate * 0.01 * eco.TaxCompliance / ticksPerYear
	eco.Budget.Deficit = eco.Budget.Spending - eco.Budget.Revenue
	setPath(s, "economy.budget.reserves", eco.Budget.Reserves-eco.Budget.Deficit)

	// 6. Unemployment drifts with growth.
	if eco.GDPDelta > 0 {
		setPath(s, "economy.unemployment", eco.Unemployment-0.3)
	} else {
		setPath(s, "economy.unemployment", eco.Unemployment+0.5)
	}

	// 7. Spending effects by allocation category.
	soc := &s.Society
	alloc := s.Government.BudgetAllocation
	spend := eco.Budget.Spending
	setPath(s, "society.satisfaction", soc.Satisfaction+alloc[state.AllocWelfare]*spend*0.001)
	setPath(s, "society.radicalization", soc.Radicalization-alloc[state.AllocEnforcement]*spend*0.0005)
	setPath(s, "society.public_trust", soc.PublicTrust-alloc[state.AllocEnforcement]*spend*0.0002)
	setPath(s, "society.stability", soc.Stability+alloc[state.AllocEducation]*spend*0.0001)
	setPath(s, "economy.gdp", eco.GDP+alloc[state.AllocInfrastructure]*spend*0.005)

	// 8. Feedback: low satisfaction and high radicalization erode stability.
	if soc.Satisfaction < 30 {
		setPath(s, "society.stability", soc.Stability-(30-soc.Satisfaction)*0.05)
	}
	if soc.Radicalization > 50 {
		setPath(s, "society.stability", soc.Stability-(soc.Radicalization-50)*0.03)
	}

	// 9. Protest pressure accumulates from grievances and decays naturally.
	pp := soc.ProtestPressure
	if soc.Satisfaction < 40 {
		pp += 0.05
	}
	if eco.Market.Shortage {
		pp += 0.10
	}
	if eco.Unemployment > 15 {
		pp += 0.03
	}
	setPath(s, "society.protest_pressure", pp*0.9)

	// 10. Market decay.
	setPath(s, "economy.market.supply", eco.Market.Supply*0.95)
	setPath(s, "economy.market.demand", eco.Market.Demand*0.90)
}

// setPath writes a recalculated value through the kernel's hard constraints.
func setPath(s *state.WorldState, variable string, v float64) {
	mustApply(s, state.Modifier{Variable: variable, Operation: kernel.OpSet, Value: v})
}
