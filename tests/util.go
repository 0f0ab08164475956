package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/academic"
	"github.com/pnl-akademik/disiplin/core/user"
)

// NewValidator returns a validator with every custom validation registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func CreateProfile(
	t *testing.T,
	repo user.Repository,
	idNumber, name, email, role, accountID string,
	createdAt ...time.Time,
) user.Profile {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	p, err := repo.CreateProfile(context.Background(), user.Profile{
		AccountID: null.NewString(accountID, accountID != ""),
		IDNumber:  idNumber,
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateProfile() failed: %v", err)
	}
	return p
}

func CreateBatch(t *testing.T, repo academic.Repository, name string) academic.Batch {
	t.Helper()
	ctx := context.Background()
	p, err := repo.CreatePeriod(ctx, academic.Period{
		Name:         "Ganjil",
		AcademicYear: "2024/2025",
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateBatch() failed: %v", err)
	}
	b, err := repo.CreateBatch(ctx, academic.Batch{
		Name:      name,
		Date:      time.Now().UTC().Truncate(24 * time.Hour),
		PeriodID:  p.ID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateBatch() failed: %v", err)
	}
	b.Period = &p
	return b
}

// Logger records messages instead of printing them.
type Logger struct {
	mu       sync.Mutex
	Messages []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, fmt.Sprintf("%s: %s", level, msg))
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("debug", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("info", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("warn", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("error", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("fatal", msg) }

// Mailer renders and keeps messages, synchronously.
type Mailer struct {
	mu   sync.Mutex
	Sent []core.EmailMessage
	Err  error // last render error
}

var _ core.EmailService = (*Mailer)(nil)

func (m *Mailer) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		if err := msg.Render("Disiplin"); err != nil {
			m.Err = err
			continue
		}
		m.Sent = append(m.Sent, *msg)
	}
}

func (m *Mailer) Messages() []core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.EmailMessage(nil), m.Sent...)
}
