// Package enroll reconciles dataset students with the account backend and the profiles.
package enroll

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/identity"
	"github.com/pnl-akademik/disiplin/core/user"
)

// ErrPolicyDenied halts a run: every following record would be denied too.
var ErrPolicyDenied = errors.New("account creation denied by the backend policy")

var nowFunc = func() time.Time { return time.Now().UTC() } // mockable

type (
	Options struct {
		Mode        string // core.EnrollmentSelfService or core.EnrollmentBulkProfile
		EmailDomain string
		Batch       core.BatchOptions
		Retry       core.RetryOptions
	}

	// Engine creates the missing accounts and profiles of a list of records,
	// strictly one record at a time, on behalf of the admin signed in on a client.
	Engine struct {
		users   user.Repository
		mailSvc core.EmailService
		logger  core.Logger
		metrics core.Metrics
		opts    Options
	}
)

func NewEngine(users user.Repository, mailSvc core.EmailService, logger core.Logger, metrics core.Metrics, opts Options) *Engine {
	if metrics == nil {
		metrics = core.NopMetrics
	}
	if opts.Mode == "" {
		opts.Mode = core.EnrollmentSelfService
	}
	// registrations never overlap: each one may rotate the session the next one restores
	opts.Batch.Size = 1
	return &Engine{
		users:   users,
		mailSvc: mailSvc,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}
}

// NewOptions reads the engine options from conf.
func NewOptions(conf core.EnrollmentConfig) Options {
	return Options{
		Mode:        conf.Mode,
		EmailDomain: conf.EmailDomain,
		Batch: core.BatchOptions{
			Size:       1,
			Delay:      conf.Delay,
			PauseEvery: conf.PauseEvery,
			Pause:      conf.Pause,
		},
		Retry: core.DefaultRetryOptions,
	}
}

// Run reconciles records in order, making one account-creation attempt per record.
// A policy denial halts the run: the report is returned along with ErrPolicyDenied.
func (e *Engine) Run(ctx context.Context, client *identity.Client, records []Record) (Report, error) {
	return e.run(ctx, client, records, false)
}

// RetryRateLimited runs the rate-limited records of prev again,
// retrying each creation with backoff while the backend keeps rate-limiting it.
func (e *Engine) RetryRateLimited(ctx context.Context, client *identity.Client, prev Report) (Report, error) {
	return e.run(ctx, client, prev.Records(OutcomeRateLimited), true)
}

func (e *Engine) run(ctx context.Context, client *identity.Client, records []Record, retry bool) (Report, error) {
	report := newReport(len(records))
	admin, _ := client.Principal()

	err := client.WithPreservedSession(ctx, func(ctx context.Context, g *identity.Guard) error {
		return core.ProcessBatch(ctx, len(records), e.opts.Batch, func(ctx context.Context, i int) error {
			res := e.reconcile(ctx, client, records[i], retry)
			g.Restore()

			report.add(res)
			e.metrics.EnrollmentOutcome(string(res.Outcome))
			e.logger.Info(fmt.Sprintf("enroll %s: %s %s", res.Record.IDNumber, res.Outcome, res.Message))
			if res.Outcome == OutcomePolicyDenied {
				return ErrPolicyDenied
			}
			return nil
		})
	})
	if errors.Is(err, ErrPolicyDenied) {
		report.Halted = true
		report.Skipped = len(records) - len(report.Results)
	} else if err != nil {
		return *report, err
	}

	report.summarize()
	e.sendReport(admin, report)
	return *report, err
}

func (e *Engine) reconcile(ctx context.Context, client *identity.Client, rec Record, retry bool) Result {
	rec.Clean()
	res := Result{Record: rec}
	if rec.IDNumber == "" || rec.Name == "" {
		res.Outcome, res.Message = OutcomeError, "missing ID number or name"
		return res
	}

	// live lookup: an earlier record of the same run may have created it
	p, err := e.users.GetProfile(ctx, user.GetFilter{IDNumber: rec.IDNumber})
	switch {
	case err == nil && !p.IsPlaceholder():
		res.Outcome, res.Email = OutcomeAlreadyExists, p.Email
		return res
	case err == nil:
		return e.linkPlaceholder(ctx, client, p, res, retry)
	case errors.Cause(err) != user.ErrNotFound:
		res.Outcome, res.Message = OutcomeError, errors.Wrap(err, "looking up profile").Error()
		return res
	}

	res.Email = DeriveEmail(rec.Name, rec.IDNumber, e.opts.EmailDomain)
	password := DeriveDefaultPassword(rec.IDNumber)
	accountID, err := e.createAccount(ctx, client, res.Email, password, retry)
	if err != nil {
		return classify(res, err)
	}

	now := nowFunc()
	np := user.Profile{
		AccountID: null.StringFrom(accountID),
		IDNumber:  rec.IDNumber,
		Name:      rec.Name,
		Email:     res.Email,
		Role:      user.RoleStudent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if e.opts.Mode == core.EnrollmentBulkProfile {
		np.TrackLevel, np.Section = rec.TrackLevel, rec.Section
	}
	if _, err := e.users.CreateProfile(ctx, np); err != nil {
		e.deleteAccount(ctx, client, accountID)
		if errors.Cause(err) == user.ErrIDNumberExists {
			res.Outcome, res.Message = OutcomeAlreadyExists, "profile created concurrently"
			return res
		}
		res.Outcome, res.Message = OutcomeError, errors.Wrap(err, "creating profile").Error()
		return res
	}

	res.Outcome, res.Password = OutcomeCreated, password
	return res
}

// linkPlaceholder creates the account of a profile that predates it.
func (e *Engine) linkPlaceholder(ctx context.Context, client *identity.Client, p user.Profile, res Result, retry bool) Result {
	res.Email = p.Email
	password := DeriveDefaultPassword(p.IDNumber)
	accountID, err := e.createAccount(ctx, client, p.Email, password, retry)
	if err != nil {
		return classify(res, err)
	}

	p.AccountID = null.StringFrom(accountID)
	p.UpdatedAt = nowFunc()
	if _, err := e.users.UpdateProfile(ctx, p); err != nil {
		e.deleteAccount(ctx, client, accountID)
		res.Outcome, res.Message = OutcomeError, errors.Wrap(err, "linking profile").Error()
		return res
	}
	res.Outcome, res.Password, res.Message = OutcomeCreated, password, "existing profile linked"
	return res
}

func (e *Engine) createAccount(ctx context.Context, client *identity.Client, email, password string, retry bool) (string, error) {
	var accountID string
	create := func(ctx context.Context) error {
		id, err := client.CreateAccountPrivileged(ctx, email, password)
		accountID = id
		return err
	}
	if !retry {
		return accountID, create(ctx)
	}

	err := core.RetryWithBackoff(ctx, e.opts.Retry, identity.IsRateLimited, create, func(err error, wait time.Duration) {
		e.logger.Warn(fmt.Sprintf("creating account %s: %v; retrying in %s", email, err, wait))
	})
	return accountID, err
}

func (e *Engine) deleteAccount(ctx context.Context, client *identity.Client, accountID string) {
	if err := client.Backend().DeleteAccount(ctx, accountID); err != nil {
		e.logger.Error(fmt.Sprintf("deleting orphan account %s: %v", accountID, err), err)
	}
}

func classify(res Result, err error) Result {
	res.Message = err.Error()
	switch identity.KindOf(err) {
	case identity.KindAlreadyRegistered:
		res.Outcome = OutcomeAlreadyExists
	case identity.KindRateLimited:
		res.Outcome = OutcomeRateLimited
	case identity.KindPolicyDenied:
		res.Outcome = OutcomePolicyDenied
	default:
		res.Outcome = OutcomeError
	}
	return res
}

func (e *Engine) sendReport(admin identity.Principal, report *Report) {
	if e.mailSvc == nil || admin.Email == "" {
		return
	}
	e.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: admin.Name, Address: admin.Email}},
		Subject:      "Student registration report",
		TemplateName: "enrollment_report",
		TemplateData: report,
	})
}
