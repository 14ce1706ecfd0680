package config

import "time"

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultNotionVersion       = "2022-06-28"
	DefaultNotionRatePerSecond = 3.0
	DefaultRemoteTimeout       = 25 * time.Second
	DefaultRemoteAttempts      = 3
	DefaultRetryWaitMin        = 500 * time.Millisecond
	DefaultRetryWaitMax        = 4 * time.Second

	DefaultSchemaTTL       = time.Hour
	DefaultConfirmationTTL = 5 * time.Minute

	DefaultConfirmStore      = "sqlite"
	DefaultConfirmSQLitePath = "finbot.db"

	DefaultSubscriptionResetCron = "0 0 1 * *"

	DefaultAgentTimeout   = 90 // seconds
	DefaultWebhookTimeout = 120

	DefaultCORSMaxAge = 300
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}

// DefaultSensitiveFields are masked in query rows handed to the model.
var DefaultSensitiveFields = []string{
	"email", "phone", "account number", "card number",
	"iban", "password", "pin", "secret", "token",
}
