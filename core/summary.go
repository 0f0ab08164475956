package core

import "fmt"

// Summary kinds
const (
	SummarySuccess = "success"
	SummaryError   = "error"
	SummaryInfo    = "info"
)

// Summary is the one human-readable line every workflow ends with.
type Summary struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func SuccessSummary(format string, args ...interface{}) Summary {
	return Summary{Kind: SummarySuccess, Message: fmt.Sprintf(format, args...)}
}

func ErrorSummary(format string, args ...interface{}) Summary {
	return Summary{Kind: SummaryError, Message: fmt.Sprintf(format, args...)}
}

func InfoSummary(format string, args ...interface{}) Summary {
	return Summary{Kind: SummaryInfo, Message: fmt.Sprintf(format, args...)}
}
