package ui

// Host state indicators.
const (
	SymbolHealthy  = "●" // every command produced a metric
	SymbolDegraded = "◐" // some commands failed
	SymbolDown     = "✗" // every command failed
	SymbolMissing  = "○" // no value for this column
)
