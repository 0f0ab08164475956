package dig_container

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"

	echoapi "github.com/pnl-akademik/disiplin/apps/api/echo"
	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/academic"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/enroll"
	"github.com/pnl-akademik/disiplin/core/identity"
	"github.com/pnl-akademik/disiplin/core/notify"
	"github.com/pnl-akademik/disiplin/core/user"
	"github.com/pnl-akademik/disiplin/services/auth"
	"github.com/pnl-akademik/disiplin/services/clusteringapi"
	emailsvc "github.com/pnl-akademik/disiplin/services/email"
	logsvc "github.com/pnl-akademik/disiplin/services/logger"
	metricsvc "github.com/pnl-akademik/disiplin/services/metrics"
	"github.com/pnl-akademik/disiplin/services/whatsapp"
	"github.com/pnl-akademik/disiplin/storage/database"
	sqlxrepos "github.com/pnl-akademik/disiplin/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	metricsResult struct {
		dig.Out
		Metrics core.Metrics
		Handler http.Handler `name:"metrics"`
	}

	serverParams struct {
		dig.In
		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		Registry      *identity.Registry
		UserSvc       *user.Service
		AcademicSvc   *academic.Service
		ClusteringSvc *clustering.Service
		Engine        *enroll.Engine
		Dispatcher    *notify.Dispatcher
		Metrics       http.Handler `name:"metrics"`
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func(ctx context.Context) (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp(context.Background())
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newIdentityBackend(conf *core.Config, db *sqlx.DB, logger core.Logger) identity.Backend {
	backend, err := auth.NewBackend(conf, db)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up identity backend: %v", err), err)
	}
	if conf.Identity.Backend == core.IdentityMemory {
		logger.Warn("accounts are kept in memory and lost on restart")
	}
	return backend
}

func newRegistry(conf *core.Config, backend identity.Backend) *identity.Registry {
	return identity.NewRegistry(backend, conf.Server.JWTRefreshExpirationDelta)
}

func newValidate(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newMetrics() (metricsResult, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metricsvc.NewPrometheus(reg)
	if err != nil {
		return metricsResult{}, err
	}
	return metricsResult{
		Metrics: m,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}, nil
}

func newAnalyzer(conf *core.Config) clustering.Analyzer {
	return clusteringapi.NewClient(conf.Clustering)
}

func newClusteringService(
	repo clustering.Repository,
	users user.Repository,
	batches academic.Repository,
	analyzer clustering.Analyzer,
	conf *core.Config,
	metrics core.Metrics,
	logger core.Logger,
) *clustering.Service {
	return clustering.NewService(repo, users, batches, analyzer, conf.Clustering, metrics, logger)
}

func newSender(conf *core.Config, logger core.Logger) notify.Sender {
	if conf.WhatsApp.Console {
		return whatsapp.NewConsoleSender(logger)
	}
	return whatsapp.NewClient(conf.WhatsApp)
}

func newDispatcher(
	sender notify.Sender,
	results *clustering.Service,
	conf *core.Config,
	mailSvc core.EmailService,
	logger core.Logger,
	metrics core.Metrics,
) *notify.Dispatcher {
	return notify.NewDispatcher(sender, results, conf, mailSvc, logger, metrics)
}

func newEngine(
	users user.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	metrics core.Metrics,
	conf *core.Config,
) *enroll.Engine {
	return enroll.NewEngine(users, mailSvc, logger, metrics, enroll.NewOptions(conf.Enrollment))
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		Registry:      p.Registry,
		UserSvc:       p.UserSvc,
		AcademicSvc:   p.AcademicSvc,
		ClusteringSvc: p.ClusteringSvc,
		Engine:        p.Engine,
		Dispatcher:    p.Dispatcher,
		Metrics:       p.Metrics,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newMetrics))

	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewAcademicRepository, dig.As(new(academic.Repository))))
	must(c.Provide(sqlxrepos.NewClusteringRepository, dig.As(new(clustering.Repository))))

	must(c.Provide(newIdentityBackend))
	must(c.Provide(newRegistry))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidate))

	must(c.Provide(user.NewService))
	must(c.Provide(academic.NewService))
	must(c.Provide(newAnalyzer))
	must(c.Provide(newClusteringService))
	must(c.Provide(newSender))
	must(c.Provide(newDispatcher))
	must(c.Provide(newEngine))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
