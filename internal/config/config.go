package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "GA"
	configName = "grading-assistant"
)

type Config struct {
	APIPort           string `validate:"required"`
	LogLevel          string `validate:"oneof=debug info warn warning error"`
	LogFormat         string `validate:"oneof=json text"`
	WorkerMetricsPort string `validate:"required"`

	BlobBackend   string `validate:"oneof=localfs sqlite"`
	StoragePath   string `validate:"required_if=BlobBackend localfs"`
	SQLitePath    string `validate:"required_if=BlobBackend sqlite"`
	PublicBaseURL string `validate:"required,url"`

	AttachmentsFolder string `validate:"required"`
	OutputFolder      string `validate:"required"`
	ConfigFolder      string `validate:"required"`
	ConfigFileName    string `validate:"required"`

	OpenAIAPIKey  string
	OpenAIOrgID   string
	OpenAIBaseURL string
	SplitModel    string  `validate:"required"`
	ScoreModel    string  `validate:"required"`
	OpenAIRPS     float64 `validate:"gte=0"`

	SyntheseAssistantID   string
	EssaiAssistantID      string
	TraductionAssistantID string

	GradeTimeout time.Duration `validate:"gt=0"`
	PollInterval time.Duration `validate:"gt=0"`
	MaxPolls     int           `validate:"gte=0"`

	RetryMaxAttempts int           `validate:"gte=1"`
	AttemptTimeout   time.Duration `validate:"gte=0"`

	PandocPath string `validate:"required"`

	MailProvider    string `validate:"oneof=console sendgrid"`
	SendgridAPIKey  string `validate:"required_if=MailProvider sendgrid"`
	SendgridHost    string
	MailFrom        string `validate:"required,email"`
	MailFromName    string
	InstructorEmail string `validate:"omitempty,email"`

	NATSURL     string
	NATSSubject string `validate:"required"`

	PostgresDSN string

	APIRateLimitRPS     float64       `validate:"gte=0"`
	APIRateLimitBurst   int           `validate:"gte=0"`
	APIMaxInFlight      int           `validate:"gte=0"`
	APIBackpressureWait time.Duration `validate:"gte=0"`
	MaxUploadBytes      int64         `validate:"gt=0"`
}

// RegisterFlags adds every setting to fs. Flags, GA_* environment variables, a
// .env file and grading-assistant.yaml are merged by Load in that precedence.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("api-port", "8080", "HTTP listen port of the api")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "json", "Log format (json, text)")
	fs.String("worker-metrics-port", "9090", "Metrics listen port of the worker")

	fs.String("blob-backend", "localfs", "Blob store backend (localfs, sqlite)")
	fs.String("storage-path", "./data/storage", "Root directory of the localfs blob store")
	fs.String("sqlite-path", "./data/blobs.db", "Database file of the sqlite blob store")
	fs.String("public-base-url", "http://localhost:8080", "Base URL used in shareable links")

	fs.String("attachments-folder", "attachments", "Folder holding raw uploads")
	fs.String("output-folder", "graded", "Folder holding batch folders")
	fs.String("config-folder", "config", "Folder holding settings files")
	fs.String("config-file-name", "gaconfig.json", "Default settings file name")

	fs.String("openai-api-key", "", "OpenAI API key")
	fs.String("openai-org-id", "", "OpenAI organization id")
	fs.String("openai-base-url", "", "OpenAI API base URL override")
	fs.String("split-model", "gpt-4o", "Model used to split submissions into sections")
	fs.String("score-model", "gpt-4o-mini", "Model used to extract scores from feedback")
	fs.Float64("openai-rps", 5, "Maximum OpenAI requests per second (0 = unlimited)")

	fs.String("synthese-assistant-id", "", "Default rubric assistant for the Synthèse section")
	fs.String("essai-assistant-id", "", "Default rubric assistant for the Essai section")
	fs.String("traduction-assistant-id", "", "Default rubric assistant for the Traduction section")

	fs.Duration("grade-timeout", 120*time.Second, "Upper bound of one section grading run")
	fs.Duration("poll-interval", time.Second, "Interval between grading run status polls")
	fs.Int("max-polls", 0, "Maximum status polls per grading run (0 = timeout only)")

	fs.Int("retry-max-attempts", 3, "Attempts per outbound call")
	fs.Duration("attempt-timeout", 60*time.Second, "Timeout of a single outbound attempt (0 = none)")

	fs.String("pandoc-path", "pandoc", "Path to the pandoc binary")

	fs.String("mail-provider", "console", "Mail provider (console, sendgrid)")
	fs.String("sendgrid-api-key", "", "SendGrid API key")
	fs.String("sendgrid-host", "", "SendGrid API host override")
	fs.String("mail-from", "grader@localhost.localdomain", "Sender address of report emails")
	fs.String("mail-from-name", "The Grading Assistant", "Sender name of report emails")
	fs.String("instructor-email", "", "Recipient of reports for uploads without a student address")

	fs.String("nats-url", "", "NATS server URL (empty = process uploads in the api)")
	fs.String("nats-subject", "grading.uploads", "NATS subject of upload events")

	fs.String("postgres-dsn", "", "Postgres DSN of the run journal (empty = no journal)")

	fs.Float64("api-rate-limit-rps", 0, "Requests per second accepted on /v1 (0 = unlimited)")
	fs.Int("api-rate-limit-burst", 0, "Burst of the /v1 rate limiter")
	fs.Int("api-max-in-flight", 16, "Concurrent /v1 requests before backpressure (0 = unlimited)")
	fs.Duration("api-backpressure-wait", 2*time.Second, "Wait for a free request slot before 503")
	fs.Int64("max-upload-bytes", 20<<20, "Maximum size of a student upload")
}

// Load merges fs, the environment, an optional .env file and an optional config file.
func Load(fs *pflag.FlagSet) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	v, err := newViper(fs)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIPort:           v.GetString("api-port"),
		LogLevel:          strings.ToLower(v.GetString("log-level")),
		LogFormat:         strings.ToLower(v.GetString("log-format")),
		WorkerMetricsPort: v.GetString("worker-metrics-port"),

		BlobBackend:   strings.ToLower(v.GetString("blob-backend")),
		StoragePath:   v.GetString("storage-path"),
		SQLitePath:    v.GetString("sqlite-path"),
		PublicBaseURL: strings.TrimRight(v.GetString("public-base-url"), "/"),

		AttachmentsFolder: v.GetString("attachments-folder"),
		OutputFolder:      v.GetString("output-folder"),
		ConfigFolder:      v.GetString("config-folder"),
		ConfigFileName:    v.GetString("config-file-name"),

		OpenAIAPIKey:  v.GetString("openai-api-key"),
		OpenAIOrgID:   v.GetString("openai-org-id"),
		OpenAIBaseURL: v.GetString("openai-base-url"),
		SplitModel:    v.GetString("split-model"),
		ScoreModel:    v.GetString("score-model"),
		OpenAIRPS:     v.GetFloat64("openai-rps"),

		SyntheseAssistantID:   v.GetString("synthese-assistant-id"),
		EssaiAssistantID:      v.GetString("essai-assistant-id"),
		TraductionAssistantID: v.GetString("traduction-assistant-id"),

		GradeTimeout: v.GetDuration("grade-timeout"),
		PollInterval: v.GetDuration("poll-interval"),
		MaxPolls:     v.GetInt("max-polls"),

		RetryMaxAttempts: v.GetInt("retry-max-attempts"),
		AttemptTimeout:   v.GetDuration("attempt-timeout"),

		PandocPath: v.GetString("pandoc-path"),

		MailProvider:    strings.ToLower(v.GetString("mail-provider")),
		SendgridAPIKey:  v.GetString("sendgrid-api-key"),
		SendgridHost:    v.GetString("sendgrid-host"),
		MailFrom:        v.GetString("mail-from"),
		MailFromName:    v.GetString("mail-from-name"),
		InstructorEmail: v.GetString("instructor-email"),

		NATSURL:     v.GetString("nats-url"),
		NATSSubject: v.GetString("nats-subject"),

		PostgresDSN: v.GetString("postgres-dsn"),

		APIRateLimitRPS:     v.GetFloat64("api-rate-limit-rps"),
		APIRateLimitBurst:   v.GetInt("api-rate-limit-burst"),
		APIMaxInFlight:      v.GetInt("api-max-in-flight"),
		APIBackpressureWait: v.GetDuration("api-backpressure-wait"),
		MaxUploadBytes:      v.GetInt64("max-upload-bytes"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// loadDotEnv reads GA_DOTENV or ./.env when present. Existing variables win.
func loadDotEnv() error {
	path := os.Getenv(EnvPrefix + "_DOTENV")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configName)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/" + configName)
	v.AddConfigPath("/etc/" + configName)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		slog.Info("config_file_loaded", "path", v.ConfigFileUsed())
	}
	return v, nil
}
