package batch

// Prices holds the per-unit USD cost of external API usage. They are
// configuration values, never hardcoded at call sites.
type Prices struct {
	BackgroundRemoval float64
	DesignEdit        float64
}

// Ledger counts billable external calls for one run. It is mutated only by
// the run's single sequential worker; a parallel orchestrator would need to
// make these counters atomic.
type Ledger struct {
	prices             Prices
	backgroundRemovals int
	designEdits        int
}

func NewLedger(prices Prices) *Ledger {
	return &Ledger{prices: prices}
}

func (l *Ledger) AddBackgroundRemoval() { l.backgroundRemovals++ }
func (l *Ledger) AddDesignEdit()        { l.designEdits++ }

func (l *Ledger) BackgroundRemovals() int { return l.backgroundRemovals }
func (l *Ledger) DesignEdits() int        { return l.designEdits }

// Total derives the run cost from the counters. Computed once at run end.
func (l *Ledger) Total() float64 {
	return float64(l.backgroundRemovals)*l.prices.BackgroundRemoval +
		float64(l.designEdits)*l.prices.DesignEdit
}
