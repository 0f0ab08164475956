package enroll_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/enroll"
	"github.com/pnl-akademik/disiplin/core/identity"
	"github.com/pnl-akademik/disiplin/core/user"
	"github.com/pnl-akademik/disiplin/services/auth/memory"
	"github.com/pnl-akademik/disiplin/storage/database/inmem"
	"github.com/pnl-akademik/disiplin/tests"
)

type fixture struct {
	users   user.Repository
	backend *memory.Backend
	mailer  *testutil.Mailer
	engine  *enroll.Engine
	client  *identity.Client
}

func setup(t *testing.T, mode string, opts ...memory.Option) fixture {
	t.Helper()
	f := fixture{
		users:   inmemdb.NewUserRepository(inmemdb.Open()),
		backend: memory.New(opts...),
		mailer:  new(testutil.Mailer),
	}
	f.engine = enroll.NewEngine(f.users, f.mailer, new(testutil.Logger), nil, enroll.Options{
		Mode:  mode,
		Retry: core.RetryOptions{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	})

	accountID := f.backend.Seed("admin@pnl.ac.id", "admin-secret")
	admin := testutil.CreateProfile(t, f.users, "ADM001", "Admin", "admin@pnl.ac.id", user.RoleAdmin, accountID)
	f.client = identity.NewClient(f.backend)
	_, err := f.client.SignIn(context.Background(), "admin@pnl.ac.id", "admin-secret")
	require.NoError(t, err)
	f.client.SetPrincipal(admin.Principal())
	return f
}

func rateLimitFor(emails ...string) memory.Hook {
	return func(op, email string) error {
		if op != memory.OpCreateAccount {
			return nil
		}
		for _, e := range emails {
			if e == email {
				return identity.NewAuthError("email rate limit exceeded", nil)
			}
		}
		return nil
	}
}

func TestEngine_ExistingProfile(t *testing.T) {
	f := setup(t, core.EnrollmentSelfService)
	testutil.CreateProfile(t, f.users, "2023001", "Budi Santoso", "budi_santoso001@student.pnl.ac.id", user.RoleStudent, "acc-1")

	report, err := f.engine.Run(context.Background(), f.client, []enroll.Record{{IDNumber: "2023001", Name: "Budi Santoso"}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, enroll.OutcomeAlreadyExists, report.Results[0].Outcome)
	assert.Equal(t, 0, f.backend.Calls(memory.OpCreateAccount))
	assert.Equal(t, 0, f.backend.Calls(memory.OpSignUp))
}

func TestEngine_DuplicateRecords(t *testing.T) {
	f := setup(t, core.EnrollmentSelfService)
	records := []enroll.Record{
		{IDNumber: "2023002", Name: "Siti Aminah"},
		{IDNumber: "2023002", Name: "Siti Aminah"},
	}

	report, err := f.engine.Run(context.Background(), f.client, records)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(enroll.OutcomeCreated))
	assert.Equal(t, 1, report.Count(enroll.OutcomeAlreadyExists))
	assert.Equal(t, enroll.OutcomeAlreadyExists, report.Results[1].Outcome)
	assert.Equal(t, 1, f.backend.Calls(memory.OpCreateAccount))
	assert.Equal(t, 2, f.backend.Len(), "admin and one student")
}

func TestEngine_MixedOutcomes(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.EnrollmentSelfService)
	testutil.CreateProfile(t, f.users, "2023001", "Budi Santoso", "budi_santoso001@student.pnl.ac.id", user.RoleStudent, "acc-1")
	f.backend.SetHook(rateLimitFor("andi003@student.pnl.ac.id"))
	before := f.client.SaveSession()

	report, err := f.engine.Run(ctx, f.client, []enroll.Record{
		{IDNumber: "2023001", Name: "Budi Santoso"},
		{IDNumber: "2023002", Name: "Siti Aminah", TrackLevel: "TK3", Section: "TI-3A"},
		{IDNumber: "2023003", Name: "Andi"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Count(enroll.OutcomeAlreadyExists))
	assert.Equal(t, 1, report.Count(enroll.OutcomeCreated))
	assert.Equal(t, 1, report.Count(enroll.OutcomeRateLimited))
	assert.Equal(t, 2, f.backend.Calls(memory.OpCreateAccount), "one attempt per new record")
	assert.Equal(t, core.SummaryInfo, report.Summary.Kind)
	assert.True(t, before.Equal(f.client.SaveSession()), "admin session must be restored")

	created := report.Results[1]
	assert.Equal(t, "siti_aminah002@student.pnl.ac.id", created.Email)
	assert.Equal(t, "2023002", created.Password)
	p, err := f.users.GetProfile(ctx, user.GetFilter{IDNumber: "2023002"})
	require.NoError(t, err)
	assert.False(t, p.IsPlaceholder())
	assert.Empty(t, p.TrackLevel, "self-service leaves the profile for the student to complete")
	assert.True(t, p.NeedsCompletion())

	msgs := f.mailer.Messages()
	require.NoError(t, f.mailer.Err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "admin@pnl.ac.id", msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].TextContent, "Rate limited:   1")

	t.Run("retry rate-limited", func(t *testing.T) {
		var attempts int
		f.backend.SetHook(func(op, email string) error {
			if op == memory.OpCreateAccount {
				attempts++
				if attempts < 3 {
					return identity.NewAuthError("Too many requests", nil)
				}
			}
			return nil
		})

		retried, err := f.engine.RetryRateLimited(ctx, f.client, report)
		require.NoError(t, err)
		require.Len(t, retried.Results, 1)
		assert.Equal(t, "2023003", retried.Results[0].Record.IDNumber)
		assert.Equal(t, enroll.OutcomeCreated, retried.Results[0].Outcome)
		assert.Equal(t, 3, attempts)
		assert.True(t, before.Equal(f.client.SaveSession()))
	})
}

func TestEngine_BulkProfileMode(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.EnrollmentBulkProfile)

	_, err := f.engine.Run(ctx, f.client, []enroll.Record{{IDNumber: "2023002", Name: "Siti Aminah", TrackLevel: "TK3", Section: "TI-3A"}})
	require.NoError(t, err)
	p, err := f.users.GetProfile(ctx, user.GetFilter{IDNumber: "2023002"})
	require.NoError(t, err)
	assert.Equal(t, "TK3", p.TrackLevel)
	assert.Equal(t, "TI-3A", p.Section)
}

func TestEngine_PolicyDeniedHalts(t *testing.T) {
	f := setup(t, core.EnrollmentSelfService)
	f.backend.SetHook(func(op, email string) error {
		if op == memory.OpCreateAccount && email == "siti_aminah002@student.pnl.ac.id" {
			return identity.NewAuthError("new row violates row-level security policy", nil)
		}
		return nil
	})

	report, err := f.engine.Run(context.Background(), f.client, []enroll.Record{
		{IDNumber: "2023001", Name: "Budi Santoso"},
		{IDNumber: "2023002", Name: "Siti Aminah"},
		{IDNumber: "2023003", Name: "Andi"},
		{IDNumber: "2023004", Name: "Rina"},
	})
	assert.ErrorIs(t, err, enroll.ErrPolicyDenied)
	assert.True(t, report.Halted)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Count(enroll.OutcomeCreated))
	assert.Equal(t, 1, report.Count(enroll.OutcomePolicyDenied))
	assert.Equal(t, core.SummaryError, report.Summary.Kind)
	assert.Equal(t, 2, f.backend.Calls(memory.OpCreateAccount))
}

func TestEngine_SignUpFallbackKeepsAdminSession(t *testing.T) {
	f := setup(t, core.EnrollmentSelfService, memory.WithoutPrivileged())
	before := f.client.SaveSession()

	report, err := f.engine.Run(context.Background(), f.client, []enroll.Record{
		{IDNumber: "2023001", Name: "Budi Santoso"},
		{IDNumber: "2023002", Name: "Siti Aminah"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(enroll.OutcomeCreated))
	assert.Equal(t, 2, f.backend.Calls(memory.OpSignUp))

	after := f.client.SaveSession()
	assert.True(t, before.Equal(after))
	assert.Equal(t, "admin@pnl.ac.id", after.Principal.Email)
}

func TestEngine_PlaceholderIsLinked(t *testing.T) {
	ctx := context.Background()
	f := setup(t, core.EnrollmentSelfService)
	testutil.CreateProfile(t, f.users, "2023001", "Budi Santoso", "budi.lama@student.pnl.ac.id", user.RoleStudent, "")

	report, err := f.engine.Run(ctx, f.client, []enroll.Record{{IDNumber: "2023001", Name: "Budi Santoso"}})
	require.NoError(t, err)
	assert.Equal(t, enroll.OutcomeCreated, report.Results[0].Outcome)
	assert.Equal(t, "budi.lama@student.pnl.ac.id", report.Results[0].Email)
	assert.True(t, f.backend.HasAccount("budi.lama@student.pnl.ac.id"))

	p, err := f.users.GetProfile(ctx, user.GetFilter{IDNumber: "2023001"})
	require.NoError(t, err)
	assert.False(t, p.IsPlaceholder())
}

func TestEngine_RequiresAdmin(t *testing.T) {
	f := setup(t, core.EnrollmentSelfService)
	student := identity.NewClient(f.backend)
	student.SetPrincipal(identity.Principal{Role: identity.RoleStudent})

	_, err := f.engine.Run(context.Background(), student, []enroll.Record{{IDNumber: "2023001", Name: "Budi Santoso"}})
	assert.Equal(t, identity.ErrAdminRequired, err)
	assert.Equal(t, 0, f.backend.Calls(memory.OpCreateAccount))
}

// gatedRepository holds CreateProfile until released, after the account was created.
type gatedRepository struct {
	user.Repository
	reached chan struct{}
	release chan struct{}
}

func (r gatedRepository) CreateProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	r.reached <- struct{}{}
	<-r.release
	return r.Repository.CreateProfile(ctx, p)
}

func TestEngine_ConcurrentRunsKeepAdminSession(t *testing.T) {
	f := setup(t, core.EnrollmentSelfService, memory.WithoutPrivileged())
	repo := gatedRepository{Repository: f.users, reached: make(chan struct{}), release: make(chan struct{})}
	engine := enroll.NewEngine(repo, f.mailer, new(testutil.Logger), nil, enroll.Options{Mode: core.EnrollmentSelfService})
	before := f.client.SaveSession()

	type outcome struct {
		report enroll.Report
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		report, err := engine.Run(context.Background(), f.client, []enroll.Record{{IDNumber: "2023001", Name: "Budi Santoso"}})
		first <- outcome{report, err}
	}()
	<-repo.reached // signed up: the client holds the student's session

	_, err := engine.Run(context.Background(), f.client, []enroll.Record{{IDNumber: "2023002", Name: "Siti Aminah"}})
	assert.ErrorIs(t, err, identity.ErrRunInProgress)

	close(repo.release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.report.Count(enroll.OutcomeCreated))

	assert.True(t, before.Equal(f.client.SaveSession()), "the admin session must come back")
	p, _ := f.client.Principal()
	assert.True(t, p.IsAdmin())
	assert.Equal(t, 1, f.backend.Calls(memory.OpSignUp))
}

func TestFromRows(t *testing.T) {
	records := enroll.FromRows([]clustering.Row{
		{IDNumber: "2023001", Name: " Budi Santoso "},
		{IDNumber: "", Name: "No ID"},
		{IDNumber: "2023002", Name: ""},
		{IDNumber: "2023001", Name: "Budi Santoso", TrackLevel: "TK3"},
	})
	require.Len(t, records, 2)
	assert.Equal(t, "Budi Santoso", records[0].Name)
	assert.Equal(t, "TK3", records[1].TrackLevel)
	assert.True(t, strings.HasPrefix(records[1].IDNumber, "2023"))
}
