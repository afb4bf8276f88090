package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // Operation completed successfully
	SymbolFail     = "✗" // Operation failed
	SymbolPending  = "○" // Not yet started, or probe with no answer
	SymbolProgress = "◐" // In progress
	SymbolComplete = "●" // Done (alternative to success)
	SymbolSkipped  = "⊘" // Skipped
)
