package logsvc

import (
	"log"

	"github.com/pkg/errors"
	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/identity"
)

// RollbarLogger prints every entry on std and reports it to Rollbar when enabled.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(rollbarerrors.StackTracer)
	rollbar.SetCustom(map[string]interface{}{
		"identity_backend": conf.Identity.Backend,
		"enrollment_mode":  conf.Enrollment.Mode,
	})
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// prepare turns (msg, args) into Rollbar arguments.
// A Principal becomes the Rollbar person. Upstream, connectivity and account backend
// failures add their service, status and kind to the extras.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var (
		person  *identity.Principal
		extras  map[string]interface{}
		newArgs = []interface{}{msg}
	)
	for _, arg := range args {
		switch v := arg.(type) {
		case identity.Principal:
			if person == nil {
				person = &v
			}
		case *identity.Principal:
			if person == nil {
				person = v
			}
		case map[string]interface{}:
			extras = merge(extras, v)
		case error:
			extras = merge(extras, failureFields(v))
			newArgs = append(newArgs, v)
		default:
			newArgs = append(newArgs, arg)
		}
	}

	if person != nil {
		rollbar.SetPerson(person.ProfileID, person.IDNumber, person.Email)
	} else {
		rollbar.ClearPerson()
	}
	if extras != nil {
		newArgs = append(newArgs, extras)
	}
	return newArgs
}

func failureFields(err error) map[string]interface{} {
	var (
		upstream     *core.UpstreamError
		connectivity *core.ConnectivityError
		authErr      *identity.AuthError
	)
	fields := make(map[string]interface{})
	if errors.As(err, &upstream) {
		fields["service"] = upstream.Service
		fields["status"] = upstream.Status
	}
	if errors.As(err, &connectivity) {
		fields["service"] = connectivity.Service
	}
	if errors.As(err, &authErr) {
		fields["auth_kind"] = authErr.Kind.String()
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func merge(dst, src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (l RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("[%s] %s", level, msg)
	for _, arg := range args {
		if _, ok := arg.(identity.Principal); ok {
			continue
		}
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print("DEBUG", msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print("INFO", msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print("WARN", msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print("ERROR", msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print("FATAL", msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
