package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env      string
		Debug    bool
		TestMode bool

		AppName         string
		Build           string
		SecretKey       string
		AllowedHosts    []string
		FrontendBaseURL string
		WorkDir         string

		DefaultFromEmailAddr  string
		DefaultFromEmailName  string
		SendgridApiKey        string
		RollbarToken          string
		AccountActivationDays int

		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		SMTP     SMTPConfig
		Sweep    SweepConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          int
		DisableTLS    bool
	}

	SMTPConfig struct {
		Host     string
		Port     int
		UseTLS   bool
		UseSSL   bool
		User     string
		Password string
	}

	SweepConfig struct {
		ExpirationInterval time.Duration
		DispatchInterval   time.Duration
	}
)

func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.DefaultFromEmailName, Address: c.DefaultFromEmailAddr}
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Ahadi")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "b#8s$v2@1r&=local-0nly-k3y+n0t-f0r-pr0d!!")
	v.SetDefault("allowedHosts", []string{"localhost", "127.0.0.1"})
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("defaultFromName", "Ahadi")
	v.SetDefault("accountActivationDays", 7)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "ahadi")
	v.SetDefault("databaseUser", "ahadi")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseAdminUser", "")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", 5432)
	v.SetDefault("databaseDisableTLS", true)

	v.SetDefault("smtpHost", "localhost")
	v.SetDefault("smtpPort", 25)
	v.SetDefault("smtpUseTLS", false)
	v.SetDefault("smtpUseSSL", false)
	v.SetDefault("smtpUser", "")
	v.SetDefault("smtpPassword", "")

	v.SetDefault("sweepExpirationInterval", 1*time.Hour)
	v.SetDefault("sweepDispatchInterval", 15*time.Minute)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:      env,
		Debug:    v.GetBool("debug"),
		TestMode: env == "TEST",

		AppName:         v.GetString("appName"),
		Build:           v.GetString("build"),
		SecretKey:       v.GetString("secretKey"),
		AllowedHosts:    v.GetStringSlice("allowedHosts"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		WorkDir:         wd,

		DefaultFromEmailAddr:  v.GetString("defaultFromEmail"),
		DefaultFromEmailName:  v.GetString("defaultFromName"),
		SendgridApiKey:        v.GetString("sendgridApiKey"),
		RollbarToken:          v.GetString("rollbarToken"),
		AccountActivationDays: v.GetInt("accountActivationDays"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetInt("databasePort"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtpHost"),
			Port:     v.GetInt("smtpPort"),
			UseTLS:   v.GetBool("smtpUseTLS"),
			UseSSL:   v.GetBool("smtpUseSSL"),
			User:     v.GetString("smtpUser"),
			Password: v.GetString("smtpPassword"),
		},
		Sweep: SweepConfig{
			ExpirationInterval: v.GetDuration("sweepExpirationInterval"),
			DispatchInterval:   v.GetDuration("sweepDispatchInterval"),
		},
	}
	if conf.TestMode {
		conf.Debug = true
	}
	return conf
}
