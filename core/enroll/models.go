package enroll

import (
	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/clustering"
)

// Outcome of reconciling one Record.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeAlreadyExists Outcome = "alreadyExists"
	OutcomeRateLimited   Outcome = "rateLimited"
	OutcomePolicyDenied  Outcome = "policyDenied"
	OutcomeError         Outcome = "error"
)

var Outcomes = []Outcome{OutcomeCreated, OutcomeAlreadyExists, OutcomeRateLimited, OutcomePolicyDenied, OutcomeError}

// Record is one student to enroll, as read from a dataset.
type Record struct {
	IDNumber   string `json:"id_number"`
	Name       string `json:"name"`
	TrackLevel string `json:"track_level"`
	Section    string `json:"section"`
}

func (r *Record) Clean() {
	r.IDNumber = core.CleanString(r.IDNumber)
	r.Name = core.CleanString(r.Name)
	r.TrackLevel = core.CleanString(r.TrackLevel)
	r.Section = core.CleanString(r.Section)
}

// Result is the outcome of one Record. Password is only set on created accounts.
type Result struct {
	Record   Record  `json:"record"`
	Outcome  Outcome `json:"outcome"`
	Email    string  `json:"email,omitempty"`
	Password string  `json:"password,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// Report collects the results of a run, in input order.
type Report struct {
	Results []Result        `json:"results"`
	Counts  map[Outcome]int `json:"counts"`
	// Halted is set when a policy denial stopped the run; Skipped records were not processed.
	Halted  bool         `json:"halted"`
	Skipped int          `json:"skipped"`
	Summary core.Summary `json:"summary"`
}

func newReport(n int) *Report {
	r := &Report{Results: make([]Result, 0, n), Counts: make(map[Outcome]int, len(Outcomes))}
	for _, o := range Outcomes {
		r.Counts[o] = 0
	}
	return r
}

func (r *Report) Count(o Outcome) int { return r.Counts[o] }

// Records returns the records whose outcome is o.
func (r *Report) Records(o Outcome) []Record {
	var records []Record
	for _, res := range r.Results {
		if res.Outcome == o {
			records = append(records, res.Record)
		}
	}
	return records
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	r.Counts[res.Outcome]++
}

func (r *Report) summarize() {
	created, exist := r.Count(OutcomeCreated), r.Count(OutcomeAlreadyExists)
	limited, failed := r.Count(OutcomeRateLimited), r.Count(OutcomeError)

	switch {
	case r.Halted:
		r.Summary = core.ErrorSummary(
			"registration stopped: the backend denied account creation (%d created, %d not processed)", created, r.Skipped,
		)
	case len(r.Results) == 0:
		r.Summary = core.InfoSummary("no students to register")
	case limited+failed == len(r.Results):
		r.Summary = core.ErrorSummary("no student registered: %d rate-limited, %d failed", limited, failed)
	case limited+failed > 0:
		r.Summary = core.InfoSummary(
			"%d registered, %d already registered, %d rate-limited (retry later), %d failed", created, exist, limited, failed,
		)
	default:
		r.Summary = core.SuccessSummary("%d registered, %d already registered", created, exist)
	}
}

// FromRows returns the records of the rows having an ID number and a name, in order.
// Duplicate ID numbers are kept.
func FromRows(rows []clustering.Row) []Record {
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := Record{IDNumber: row.IDNumber, Name: row.Name, TrackLevel: row.TrackLevel, Section: row.Section}
		rec.Clean()
		if rec.IDNumber == "" || rec.Name == "" {
			continue
		}
		records = append(records, rec)
	}
	return records
}
