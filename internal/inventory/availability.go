// Package inventory computes available-to-promise from pre-fetched stock
// snapshots and distributes allocations across locations. The checker and
// planner are pure; only Apply touches the database, inside the caller's
// transaction.
package inventory

type Snapshot struct {
	SKUID     string
	Location  string
	OnHand    int
	Allocated int
}

// Available floors at zero: allocated can transiently exceed on-hand.
func (s Snapshot) Available() int {
	if a := s.OnHand - s.Allocated; a > 0 {
		return a
	}
	return 0
}

type RequestedLine struct {
	SKUID    string `json:"skuId"`
	Quantity int    `json:"quantity"`
}

type CheckResult struct {
	SKUID        string `json:"skuId"`
	Requested    int    `json:"requested"`
	OnHand       int    `json:"onHand"`
	Allocated    int    `json:"allocated"`
	Available    int    `json:"available"`
	Sufficient   bool   `json:"sufficient"`
	Shortfall    int    `json:"shortfall"`
	WarningLevel string `json:"warningLevel"`
}

const (
	WarningCritical = "critical"
	WarningLow      = "low"
	WarningNone     = "none"
)

// AggregateRequested merges duplicate SKU lines into one requested quantity
// per SKU, preserving first-seen order. Sufficiency must be judged against
// combined demand: two lines for the same SKU cannot each claim the same
// available units.
func AggregateRequested(lines []RequestedLine) []RequestedLine {
	totals := make(map[string]int, len(lines))
	order := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, seen := totals[l.SKUID]; !seen {
			order = append(order, l.SKUID)
		}
		totals[l.SKUID] += l.Quantity
	}
	out := make([]RequestedLine, 0, len(order))
	for _, id := range order {
		out = append(out, RequestedLine{SKUID: id, Quantity: totals[id]})
	}
	return out
}

// CheckAvailability sums available stock across all snapshot rows per SKU and
// reports per-line sufficiency. Never fails: an unknown SKU reports zero
// availability (trivially sufficient only when the requested quantity is 0).
func CheckAvailability(snapshots map[string][]Snapshot, requested []RequestedLine) []CheckResult {
	out := make([]CheckResult, 0, len(requested))
	for _, line := range requested {
		res := CheckResult{SKUID: line.SKUID, Requested: line.Quantity}
		for _, snap := range snapshots[line.SKUID] {
			res.OnHand += snap.OnHand
			res.Allocated += snap.Allocated
			res.Available += snap.Available()
		}
		res.Sufficient = res.Available >= line.Quantity
		if !res.Sufficient {
			res.Shortfall = line.Quantity - res.Available
		}
		switch {
		case res.Available < 5:
			res.WarningLevel = WarningCritical
		case res.Available < 20:
			res.WarningLevel = WarningLow
		default:
			res.WarningLevel = WarningNone
		}
		out = append(out, res)
	}
	return out
}

func AllSufficient(results []CheckResult) bool {
	for _, r := range results {
		if !r.Sufficient {
			return false
		}
	}
	return true
}
