package config

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pawsaarthi/rescue-api/models"
)

// MemoryURL selects the in-process store instead of mongo
const MemoryURL = "memory://"

// Config holds the project config values
type Config struct {
	URL          string `mapstructure:"DB_URI"`
	DatabaseName string `mapstructure:"DB_NAME"`
	BaseURL      string `mapstructure:"BASE_URL"`
	Port         string `mapstructure:"PORT"`
	Env          string `mapstructure:"APP_ENV"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	DepositAmount  int64 `mapstructure:"DEPOSIT_AMOUNT"`
	MinTopUpAmount int64 `mapstructure:"MIN_TOPUP_AMOUNT"`

	EscalationDeadline time.Duration `mapstructure:"ESCALATION_DEADLINE"`
	EscalationSchedule string        `mapstructure:"ESCALATION_SCHEDULE"`
	ReconcileSchedule  string        `mapstructure:"RECONCILE_SCHEDULE"`
	OrgRadiusKm        float64       `mapstructure:"ORG_RADIUS_KM"`
	FacilityRadiusKm   float64       `mapstructure:"FACILITY_RADIUS_KM"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	CloudinaryURL       string `mapstructure:"CLOUDINARY_URL"`
	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeCurrency      string `mapstructure:"STRIPE_CURRENCY"`
	SendgridAPIKey      string `mapstructure:"SENDGRID_API_KEY"`
	MailFrom            string `mapstructure:"MAIL_FROM"`
	AppURL              string `mapstructure:"APP_URL"`
	AMQPURL             string `mapstructure:"AMQP_URL"`

	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
}

var defaults = map[string]interface{}{
	"DB_URI":                MemoryURL,
	"DB_NAME":               "pawsaarthi",
	"PORT":                  "8080",
	"APP_ENV":               "production",
	"JWT_TTL":               "168h",
	"DEPOSIT_AMOUNT":        20,
	"MIN_TOPUP_AMOUNT":      10,
	"ESCALATION_DEADLINE":   "5m",
	"ESCALATION_SCHEDULE":   "@every 1m",
	"RECONCILE_SCHEDULE":    "@every 15m",
	"ORG_RADIUS_KM":         50,
	"FACILITY_RADIUS_KM":    10,
	"REQUEST_TIMEOUT":       "30s",
	"STRIPE_CURRENCY":       "inr",
	"MAIL_FROM":             "no-reply@pawsaarthi.org",
	"BASE_URL":              "",
	"JWT_SECRET":            "",
	"CLOUDINARY_URL":        "",
	"STRIPE_SECRET_KEY":     "",
	"STRIPE_WEBHOOK_SECRET": "",
	"SENDGRID_API_KEY":      "",
	"AMQP_URL":              "",
	"APP_URL":               "",
	"ADMIN_EMAIL":           "",
	"ADMIN_PASSWORD":        "",
}

// New sets up all config related services
func New() *Config {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}
	v.AutomaticEnv()

	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		zap.S().Errorw("failed to unmarshal config, falling back to defaults", "error", err)
	}

	//setup zap logger and replace default logger
	if _, err := setLogger(conf.Env); err != nil {
		zap.S().Errorw("failed to build logger", "env", conf.Env, "error", err)
	}

	return conf
}

// InMemory reports whether the config selects the in-process store
func (c *Config) InMemory() bool {
	return c.URL == "" || strings.HasPrefix(c.URL, MemoryURL)
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	if httpStatusCode >= http.StatusInternalServerError {
		zap.S().Errorw(message, "error", err)
	} else {
		zap.S().Debugw(message, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	b, _ := json.Marshal(models.ErrorMessageResponse{Response: models.MessageError{Message: message, Error: detail}})
	_, _ = w.Write(b)
}
