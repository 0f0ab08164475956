package whatsapp

import (
	"context"
	"fmt"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/notify"
)

// ConsoleSender logs messages instead of sending them.
type ConsoleSender struct {
	logger core.Logger
}

var _ notify.Sender = (*ConsoleSender)(nil)

func NewConsoleSender(logger core.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

func (s *ConsoleSender) Send(_ context.Context, target, message string) error {
	s.logger.Info(fmt.Sprintf("whatsapp to %s:\n%s", NormalizeTarget(target), message))
	return nil
}
