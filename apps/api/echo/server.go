package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/academic"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/enroll"
	"github.com/pnl-akademik/disiplin/core/identity"
	"github.com/pnl-akademik/disiplin/core/notify"
	"github.com/pnl-akademik/disiplin/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		Registry      *identity.Registry
		UserSvc       *user.Service
		AcademicSvc   *academic.Service
		ClusteringSvc *clustering.Service
		Engine        *enroll.Engine
		Dispatcher    *notify.Dispatcher

		// Metrics serves GET /metrics when set.
		Metrics http.Handler
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		tokens   *tokenizer
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		tokens:   newTokenizer(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.BodyLimit("20M"))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", s.home)
	if s.deps.Metrics != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics))
	}

	v1 := s.app.Group("/v1")
	auth := s.authMiddleware()
	admin := adminMiddleware()

	registerUserAPI(v1, auth, admin, s.tokens, s.deps)
	registerStudentAPI(v1, auth, admin, s.deps)
	registerAcademicAPI(v1, auth, admin, s.deps)
	registerClusteringAPI(v1, auth, admin, s.deps)
	v1.GET("/config/status", s.configStatus, auth, admin)
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the application to stop gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

type (
	serviceStatus struct {
		Configured bool   `json:"configured"`
		Setting    string `json:"setting,omitempty"`
	}

	configStatusResponse struct {
		Clustering serviceStatus `json:"clustering"`
		WhatsApp   serviceStatus `json:"whatsapp"`
		Identity   string        `json:"identity_backend"`
		Enrollment string        `json:"enrollment_mode"`
	}
)

func statusOf(err error) serviceStatus {
	if err == nil {
		return serviceStatus{Configured: true}
	}
	st := serviceStatus{}
	if cErr, ok := err.(*core.ConfigurationError); ok {
		st.Setting = cErr.Setting
	}
	return st
}

func (s *Server) configStatus(ctx echo.Context) error {
	conf := s.deps.Conf
	return ctx.JSON(http.StatusOK, configStatusResponse{
		Clustering: statusOf(conf.Clustering.Check()),
		WhatsApp:   statusOf(conf.WhatsApp.Check()),
		Identity:   conf.Identity.Backend,
		Enrollment: conf.Enrollment.Mode,
	})
}
