package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Enrollment modes
const (
	EnrollmentSelfService = "selfservice"
	EnrollmentBulkProfile = "bulkprofile"
)

// Identity backends
const (
	IdentityLocal  = "local"
	IdentityGoTrue = "gotrue"
	IdentityMemory = "memory"
)

type (
	Config struct {
		Debug           bool
		TestMode        bool
		Env             string
		Build           string
		AppName         string
		SecretKey       string
		InstitutionName string
		WorkDir         string
		RollbarToken    string
		SendgridAPIKey  string
		defaultFrom     string

		Server     ServerConfig
		Database   DatabaseConfig
		Clustering ClusteringConfig
		WhatsApp   WhatsAppConfig
		Identity   IdentityConfig
		Enrollment EnrollmentConfig
	}

	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ClusteringConfig struct {
		URL     string
		Timeout time.Duration
	}

	WhatsAppConfig struct {
		URL         string
		Token       string
		CountryCode string
		Rate        float64 // messages per second; 0 disables pacing
		Console     bool    // print messages instead of sending them
	}

	IdentityConfig struct {
		Backend    string
		URL        string
		AnonKey    string
		ServiceKey string
	}

	EnrollmentConfig struct {
		Mode        string
		EmailDomain string
		Delay       time.Duration
		PauseEvery  int
		Pause       time.Duration
	}
)

func (db DatabaseConfig) Address() string {
	return db.Host + ":" + db.Port
}

// Check reports a missing clustering service URL.
func (c ClusteringConfig) Check() error {
	if strings.TrimSpace(c.URL) == "" {
		return NewConfigurationError("CLUSTERING_URL", "clustering service")
	}
	return nil
}

// Check reports a missing WhatsApp token.
func (c WhatsAppConfig) Check() error {
	if !c.Console && strings.TrimSpace(c.Token) == "" {
		return NewConfigurationError("WHATSAPP_TOKEN", "WhatsApp notification service")
	}
	return nil
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFrom)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: conf.defaultFrom}
	}
	if addr.Name == "" {
		addr.Name = conf.AppName
	}
	return *addr
}

// NewConfig loads the configuration from the environment,
// after loading `config/.env.<env>` when present.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("test_mode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("app_name", "Disiplin")
	v.SetDefault("secret_key", "zq8#n2$lk0+c!m3t9d&r6xw^p4e_v1hj(u7s)o5fb*g")
	v.SetDefault("institution_name", "Politeknik Negeri Lhokseumawe")
	v.SetDefault("default_from_email", "noreply@localhost")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("sendgrid_api_key", "")

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_addr", ":8000")
	v.SetDefault("server_debug_host", ":4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("server_jwt_expiration_delta", 24*time.Hour)
	v.SetDefault("server_jwt_refresh_expiration_delta", 7*24*time.Hour)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", "5432")
	v.SetDefault("database_name", "disiplin")
	v.SetDefault("database_user", "disiplin")
	v.SetDefault("database_password", "disiplin")
	v.SetDefault("database_admin_user", "")
	v.SetDefault("database_admin_password", "")
	v.SetDefault("database_disable_tls", true)

	v.SetDefault("clustering_url", "")
	v.SetDefault("clustering_timeout", 2*time.Minute)

	v.SetDefault("whatsapp_url", "https://api.fonnte.com/send")
	v.SetDefault("whatsapp_token", "")
	v.SetDefault("whatsapp_country_code", "62")
	v.SetDefault("whatsapp_rate", 1.0)
	v.SetDefault("whatsapp_console", false)

	v.SetDefault("identity_backend", IdentityLocal)
	v.SetDefault("identity_url", "")
	v.SetDefault("identity_anon_key", "")
	v.SetDefault("identity_service_key", "")

	v.SetDefault("enrollment_mode", EnrollmentSelfService)
	v.SetDefault("enrollment_email_domain", "student.pnl.ac.id")
	v.SetDefault("enrollment_delay", 500*time.Millisecond)
	v.SetDefault("enrollment_pause_every", 5)
	v.SetDefault("enrollment_pause", 2*time.Second)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("test_mode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("test_mode"),
		Env:             env,
		Build:           v.GetString("build"),
		AppName:         v.GetString("app_name"),
		SecretKey:       v.GetString("secret_key"),
		InstitutionName: v.GetString("institution_name"),
		WorkDir:         workDir,
		RollbarToken:    v.GetString("rollbar_token"),
		SendgridAPIKey:  v.GetString("sendgrid_api_key"),
		defaultFrom:     v.GetString("default_from_email"),
		Server: ServerConfig{
			Host:                      v.GetString("server_host"),
			Addr:                      v.GetString("server_addr"),
			DebugHost:                 v.GetString("server_debug_host"),
			ShutdownTimeout:           v.GetDuration("server_shutdown_timeout"),
			JWTExpirationDelta:        v.GetDuration("server_jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("server_jwt_refresh_expiration_delta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database_engine"),
			Host:          v.GetString("database_host"),
			Port:          v.GetString("database_port"),
			Name:          v.GetString("database_name"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_admin_user"),
			AdminPassword: v.GetString("database_admin_password"),
			DisableTLS:    v.GetBool("database_disable_tls"),
		},
		Clustering: ClusteringConfig{
			URL:     v.GetString("clustering_url"),
			Timeout: v.GetDuration("clustering_timeout"),
		},
		WhatsApp: WhatsAppConfig{
			URL:         v.GetString("whatsapp_url"),
			Token:       v.GetString("whatsapp_token"),
			CountryCode: v.GetString("whatsapp_country_code"),
			Rate:        v.GetFloat64("whatsapp_rate"),
			Console:     v.GetBool("whatsapp_console"),
		},
		Identity: IdentityConfig{
			Backend:    strings.ToLower(v.GetString("identity_backend")),
			URL:        v.GetString("identity_url"),
			AnonKey:    v.GetString("identity_anon_key"),
			ServiceKey: v.GetString("identity_service_key"),
		},
		Enrollment: EnrollmentConfig{
			Mode:        strings.ToLower(v.GetString("enrollment_mode")),
			EmailDomain: v.GetString("enrollment_email_domain"),
			Delay:       v.GetDuration("enrollment_delay"),
			PauseEvery:  v.GetInt("enrollment_pause_every"),
			Pause:       v.GetDuration("enrollment_pause"),
		},
	}
	if conf.Enrollment.Mode != EnrollmentSelfService && conf.Enrollment.Mode != EnrollmentBulkProfile {
		log.Fatalf("config: unknown enrollment mode %q", conf.Enrollment.Mode)
	}
	return conf
}
