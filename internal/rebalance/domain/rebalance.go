package domain

import (
	"github.com/shopspring/decimal"
)

// Member is one node of a redistribution scope (a month of the year, or a
// day of the month). A member is settled when it carries an actual, an
// intraday/intramonth estimate, or has elapsed without either.
type Member struct {
	Key      string
	Initial  decimal.Decimal
	Weight   decimal.Decimal
	Actual   *decimal.Decimal
	Estimate *decimal.Decimal
	Elapsed  bool
}

// settledValue returns the member's settled revenue and whether the member
// is settled at all. An elapsed member with no actual settles at zero.
func (m Member) settledValue() (decimal.Decimal, bool) {
	switch {
	case m.Actual != nil:
		return *m.Actual, true
	case m.Estimate != nil:
		return *m.Estimate, true
	case m.Elapsed:
		return decimal.Zero, true
	}
	return decimal.Decimal{}, false
}

// Adjustment is the rebalanced outcome for a single member.
type Adjustment struct {
	Key          string
	Initial      decimal.Decimal
	Settled      bool
	SettledValue decimal.Decimal
	Gap          decimal.Decimal
	Adjustment   decimal.Decimal
}

// Result is the outcome of one Rebalance pass.
type Result struct {
	Members     []Adjustment
	TotalGap    decimal.Decimal
	OpenWeight  decimal.Decimal
	Distributed bool
}

// Rebalance folds the settled members' gap into the open members,
// proportionally to their weights. Settled members keep their settled value
// as adjustment; open members absorb the total gap so that the scope total
// is preserved: when at least one member is open,
// sum(adjustment) == sum(initial) holds exactly, with the final open member
// taking the rounding remainder.
func Rebalance(members []Member) Result {
	res := Result{Members: make([]Adjustment, len(members))}

	openIdx := make([]int, 0, len(members))
	sumInitial := decimal.Zero
	for i, m := range members {
		sumInitial = sumInitial.Add(m.Initial)
		adj := Adjustment{Key: m.Key, Initial: m.Initial}
		if v, ok := m.settledValue(); ok {
			adj.Settled = true
			adj.SettledValue = v
			adj.Gap = v.Sub(m.Initial)
			adj.Adjustment = v
			res.TotalGap = res.TotalGap.Add(adj.Gap)
		} else {
			openIdx = append(openIdx, i)
			res.OpenWeight = res.OpenWeight.Add(m.Weight)
		}
		res.Members[i] = adj
	}

	if len(openIdx) == 0 {
		return res
	}
	res.Distributed = true

	// All but the last open member take their proportional share; the last
	// takes whatever keeps the scope total exact.
	assigned := decimal.Zero
	for _, i := range openIdx[:len(openIdx)-1] {
		m := members[i]
		var share decimal.Decimal
		if res.OpenWeight.IsPositive() {
			share = res.TotalGap.Mul(m.Weight).Div(res.OpenWeight)
		} else {
			share = res.TotalGap.Div(decimal.NewFromInt(int64(len(openIdx))))
		}
		res.Members[i].Adjustment = m.Initial.Sub(share)
		assigned = assigned.Add(res.Members[i].Adjustment)
	}

	settledTotal := decimal.Zero
	for _, adj := range res.Members {
		if adj.Settled {
			settledTotal = settledTotal.Add(adj.Adjustment)
		}
	}
	last := openIdx[len(openIdx)-1]
	res.Members[last].Adjustment = sumInitial.Sub(settledTotal).Sub(assigned)

	return res
}
