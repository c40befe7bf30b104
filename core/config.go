package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address          string
		Host             string
		DebugHost        string
		ShutdownTimeout  time.Duration
		SessionTTL       time.Duration
		SessionCookie    string
		ClientIDHeader   string // empty: use the request's real IP
		LoginPath        string
		UnauthorizedPath string
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

	RedisConfig struct {
		Address  string // empty: admission windows are kept in memory
		Password string
		DB       int
	}

	AdmissionConfig struct {
		Limit         int
		Window        time.Duration
		IdleTTL       time.Duration
		SweepInterval time.Duration
	}

	BrokerConfig struct {
		URL   string // empty: decision events are not published
		Queue string
	}

	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridAPIKey   string

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		Admission AdmissionConfig
		Broker    BrokerConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig reads the configuration from the environment.
// ENV selects the environment (DEV by default) and the prefix of every variable, e.g. PROD_SECRETKEY.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "EduCore")
	v.SetDefault("secretKey", "n3w-s3cr3t)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "EduCore <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridAPIKey", "")

	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("serverSessionTTL", 8*time.Hour)
	v.SetDefault("serverSessionCookie", "session")
	v.SetDefault("serverClientIDHeader", "")
	v.SetDefault("serverLoginPath", "/login")
	v.SetDefault("serverUnauthorizedPath", "/unauthorized")

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "educore")
	v.SetDefault("dbUser", "educore")
	v.SetDefault("dbPassword", "educore")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("redisAddress", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)

	v.SetDefault("admissionLimit", 10)
	v.SetDefault("admissionWindow", time.Minute)
	v.SetDefault("admissionIdleTTL", 10*time.Minute)
	v.SetDefault("admissionSweepInterval", time.Minute)

	v.SetDefault("brokerURL", "")
	v.SetDefault("brokerQueue", "registration.decided")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: *fromEmail,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridAPIKey"),
		Server: ServerConfig{
			Address:          v.GetString("serverAddress"),
			Host:             v.GetString("serverHost"),
			DebugHost:        v.GetString("serverDebugHost"),
			ShutdownTimeout:  v.GetDuration("serverShutdownTimeout"),
			SessionTTL:       v.GetDuration("serverSessionTTL"),
			SessionCookie:    v.GetString("serverSessionCookie"),
			ClientIDHeader:   v.GetString("serverClientIDHeader"),
			LoginPath:        v.GetString("serverLoginPath"),
			UnauthorizedPath: v.GetString("serverUnauthorizedPath"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redisAddress"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
		},
		Admission: AdmissionConfig{
			Limit:         v.GetInt("admissionLimit"),
			Window:        v.GetDuration("admissionWindow"),
			IdleTTL:       v.GetDuration("admissionIdleTTL"),
			SweepInterval: v.GetDuration("admissionSweepInterval"),
		},
		Broker: BrokerConfig{
			URL:   v.GetString("brokerURL"),
			Queue: v.GetString("brokerQueue"),
		},
	}
}

// NewTestConfig returns the configuration used by tests: in-memory admission, no broker, fixed secret.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "EduCore",
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "EduCore", Address: "noreply@localhost"},
		Server: ServerConfig{
			SessionTTL:       time.Hour,
			SessionCookie:    "session",
			LoginPath:        "/login",
			UnauthorizedPath: "/unauthorized",
			ShutdownTimeout:  time.Second,
		},
		Database: DatabaseConfig{
			Engine:     "postgres",
			Host:       "localhost",
			Port:       "5432",
			Name:       "educore_test",
			User:       "educore",
			Password:   "educore",
			DisableTLS: true,
		},
		Admission: AdmissionConfig{
			Limit:         10,
			Window:        time.Minute,
			IdleTTL:       10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Broker: BrokerConfig{Queue: "registration.decided"},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s) env=%s debug=%v", c.AppName, c.Build, c.Env, c.Debug)
}
