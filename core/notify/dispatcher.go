// Package notify sends the clustering results to the students' guardians and advisors over WhatsApp.
package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/identity"
)

// Recipients
const (
	RecipientGuardian = "guardian"
	RecipientAdvisor  = "advisor"
)

type (
	// Sender delivers one text message to a phone number.
	Sender interface {
		Send(ctx context.Context, target, message string) error
	}

	// ResultMarker flags a result as notified.
	ResultMarker interface {
		MarkSent(ctx context.Context, id string) error
	}

	Options struct {
		Template string // TemplateLetter (default) or TemplateReport
		// OnlyUnsent skips the results already marked as sent.
		OnlyUnsent bool
		// Requester receives the dispatch report by email.
		Requester identity.Principal
	}

	Delivery struct {
		ResultID  string `json:"result_id"`
		IDNumber  string `json:"id_number"`
		Recipient string `json:"recipient"`
		Target    string `json:"target"`
		Delivered bool   `json:"delivered"`
		Error     string `json:"error,omitempty"`
	}

	Report struct {
		Results    int          `json:"results"`
		Attempted  int          `json:"attempted"`
		Delivered  int          `json:"delivered"`
		Failed     int          `json:"failed"`
		Marked     int          `json:"marked"`
		Deliveries []Delivery   `json:"deliveries"`
		Summary    core.Summary `json:"summary"`
	}

	Dispatcher struct {
		sender      Sender
		marker      ResultMarker
		conf        core.WhatsAppConfig
		institution string
		limiter     *rate.Limiter
		mailSvc     core.EmailService
		logger      core.Logger
		metrics     core.Metrics
	}
)

func NewDispatcher(
	sender Sender,
	marker ResultMarker,
	conf *core.Config,
	mailSvc core.EmailService,
	logger core.Logger,
	metrics core.Metrics,
) *Dispatcher {
	if metrics == nil {
		metrics = core.NopMetrics
	}
	limit := rate.Inf
	if conf.WhatsApp.Rate > 0 {
		limit = rate.Limit(conf.WhatsApp.Rate)
	}
	return &Dispatcher{
		sender:      sender,
		marker:      marker,
		conf:        conf.WhatsApp,
		institution: conf.InstitutionName,
		limiter:     rate.NewLimiter(limit, 1),
		mailSvc:     mailSvc,
		logger:      logger,
		metrics:     metrics,
	}
}

// Check reports a missing WhatsApp configuration.
func (d *Dispatcher) Check() error {
	if err := d.conf.Check(); err != nil {
		return err
	}
	if c, ok := d.sender.(interface{ Check() error }); ok {
		return c.Check()
	}
	return nil
}

// DispatchBatch notifies the guardian and the advisor of each result, one result at a time.
// A missing contact is skipped and a failed delivery is counted; neither stops the batch.
// Each result is marked as sent once both contacts were attempted, whatever the outcome.
func (d *Dispatcher) DispatchBatch(ctx context.Context, results []clustering.ResultDetail, opts Options) (Report, error) {
	if err := d.Check(); err != nil {
		return Report{}, err
	}
	if opts.Template == "" {
		opts.Template = TemplateLetter
	}

	report := Report{Deliveries: make([]Delivery, 0, 2*len(results))}
	stats := clustering.ComputeStats(results)
	for _, r := range results {
		if opts.OnlyUnsent && r.IsSent() {
			continue
		}
		report.Results++

		msg, err := Render(opts.Template, newMessageData(r, stats, d.institution))
		if err != nil {
			return report, err
		}
		for _, rcpt := range contacts(r) {
			if err := d.limiter.Wait(ctx); err != nil {
				return report, errors.Wrap(err, "waiting for the send rate")
			}
			dlv := Delivery{ResultID: r.ID, IDNumber: r.IDNumber, Recipient: rcpt.recipient, Target: rcpt.target}
			if err := d.sender.Send(ctx, rcpt.target, msg); err != nil {
				dlv.Error = err.Error()
				report.Failed++
				d.logger.Warn(fmt.Sprintf("sending %s message of %s to %s: %v", rcpt.recipient, r.IDNumber, rcpt.target, err), err)
			} else {
				dlv.Delivered = true
				report.Delivered++
			}
			report.Attempted++
			report.Deliveries = append(report.Deliveries, dlv)
			d.metrics.Delivery(rcpt.recipient, dlv.Delivered)
		}

		if err := d.marker.MarkSent(ctx, r.ID); err != nil {
			d.logger.Error(fmt.Sprintf("marking result %s as sent: %v", r.ID, err), err)
			continue
		}
		report.Marked++
	}

	report.summarize()
	d.sendReport(opts.Requester, report)
	return report, nil
}

type contact struct {
	recipient string
	target    string
}

func contacts(r clustering.ResultDetail) []contact {
	if r.User == nil {
		return nil
	}
	var list []contact
	if t := strings.TrimSpace(r.User.GuardianContact.String); r.User.GuardianContact.Valid && t != "" {
		list = append(list, contact{recipient: RecipientGuardian, target: t})
	}
	if t := strings.TrimSpace(r.User.AdvisorContact.String); r.User.AdvisorContact.Valid && t != "" {
		list = append(list, contact{recipient: RecipientAdvisor, target: t})
	}
	return list
}

func (r *Report) summarize() {
	switch {
	case r.Results == 0:
		r.Summary = core.InfoSummary("no result to notify")
	case r.Attempted == 0:
		r.Summary = core.InfoSummary("no contact to notify; %d results marked as sent", r.Marked)
	case r.Delivered == 0:
		r.Summary = core.ErrorSummary("no message delivered (%d attempted); %d results marked as sent", r.Attempted, r.Marked)
	case r.Failed > 0:
		r.Summary = core.InfoSummary("%d of %d messages delivered; %d results marked as sent", r.Delivered, r.Attempted, r.Marked)
	default:
		r.Summary = core.SuccessSummary("%d messages delivered; %d results marked as sent", r.Delivered, r.Marked)
	}
}

func (d *Dispatcher) sendReport(requester identity.Principal, report Report) {
	if d.mailSvc == nil || requester.Email == "" {
		return
	}
	d.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: requester.Name, Address: requester.Email}},
		Subject:      "WhatsApp notification report",
		TemplateName: "dispatch_report",
		TemplateData: report,
	})
}
