package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/pnl-akademik/disiplin/apps/api/di/dig"
	echoapi "github.com/pnl-akademik/disiplin/apps/api/echo"
	"github.com/pnl-akademik/disiplin/core"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		server *echoapi.Server,
	) {
		apiLogger.Info(fmt.Sprintf("disiplin API starting : version %q, env %q", conf.Build, conf.Env))
		reportIntegrations(conf, apiLogger)

		defer func() {
			if err := db.Close(); err != nil {
				dbLoggerParam.Logger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("disiplin API stopped")

		startDebugServer(conf, apiLogger)
		go server.Start()
		awaitShutdown(conf, server, apiLogger)
	}))
}

// reportIntegrations logs the backends in use and the integrations still missing a setting.
func reportIntegrations(conf *core.Config, logger core.Logger) {
	logger.Info(fmt.Sprintf("identity backend %q, enrollment mode %q", conf.Identity.Backend, conf.Enrollment.Mode))
	for _, check := range []func() error{conf.Clustering.Check, conf.WhatsApp.Check} {
		if err := check(); err != nil {
			logger.Warn(err.Error())
		}
	}
}

// startDebugServer serves /debug/vars on the debug host.
func startDebugServer(conf *core.Config, logger core.Logger) {
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("identity_backend").Set(conf.Identity.Backend)
	expvar.NewString("enrollment_mode").Set(conf.Enrollment.Mode)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()
}

// awaitShutdown blocks until the server fails or a shutdown signal arrives,
// then gives in-flight requests (a bulk registration can be one) until the shutdown timeout.
func awaitShutdown(conf *core.Config, server *echoapi.Server, logger core.Logger) {
	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: shutting down", sig))

		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
