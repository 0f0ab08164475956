package core

// Logger is any service that can log messages.
// args may carry errors, extra data maps and the acting identity.Principal.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Metrics records workflow outcomes.
type Metrics interface {
	EnrollmentOutcome(outcome string)
	Delivery(recipient string, delivered bool)
	ResultsSaved(saved, skipped int)
}

type nopMetrics struct{}

func (nopMetrics) EnrollmentOutcome(string) {}
func (nopMetrics) Delivery(string, bool)    {}
func (nopMetrics) ResultsSaved(int, int)    {}

// NopMetrics discards everything.
var NopMetrics Metrics = nopMetrics{}
