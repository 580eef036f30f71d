package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/grading-assistant/internal/config"
	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
	"github.com/kirillkom/grading-assistant/internal/core/usecase"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/converter"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/converter/pandoc"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/converter/pdftext"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/converter/plaintext"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/gradebook/excel"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/mail/console"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/mail/sendgrid"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/storage/sqlite"
)

// Observer receives pipeline timings and resilience events.
type Observer interface {
	ports.PipelineObserver
	resilience.Hooks
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Blobs    ports.BlobStore
	Queue    ports.UploadQueue
	Pipeline *usecase.Pipeline
	Settings *usecase.SettingsUseCase
	Sessions *usecase.SessionRegistry
	Uploads  *usecase.UploadUseCase

	// Remote reports whether upload events travel over NATS.
	Remote bool

	closers []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observer Observer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	resCfg := resilience.DefaultConfig()
	resCfg.RetryMaxAttempts = cfg.RetryMaxAttempts
	resCfg.AttemptTimeout = cfg.AttemptTimeout
	executor := resilience.NewExecutor(resCfg)
	if observer != nil {
		executor.WithHooks(observer)
	}

	store, err := app.openBlobStore(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Blobs = store

	journal, err := app.openJournal(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	client := openai.New(openai.Config{
		APIKey:            cfg.OpenAIAPIKey,
		OrgID:             cfg.OpenAIOrgID,
		BaseURL:           cfg.OpenAIBaseURL,
		SplitModel:        cfg.SplitModel,
		ScoreModel:        cfg.ScoreModel,
		RequestsPerSecond: cfg.OpenAIRPS,
	}, executor)

	deps := usecase.PipelineDeps{
		Store: store,
		Converter: converter.NewRouter(
			plaintext.New(),
			pdftext.New(),
			pandoc.New(cfg.PandocPath),
		),
		Extractor:      openai.NewSplitExtractor(client),
		ScoreExtractor: openai.NewScoreExtractor(client),
		Grader:         openai.NewGrader(client),
		Mailer:         newMailer(cfg, executor, logger),
		Gradebook:      excel.New(),
		Logger:         logger,
	}
	if journal != nil {
		deps.Journal = journal
	}
	if observer != nil {
		deps.Observer = observer
	}
	app.Pipeline = usecase.NewPipeline(deps, usecase.PipelineConfig{
		Layout: usecase.Layout{
			AttachmentsFolder: cfg.AttachmentsFolder,
			OutputFolder:      cfg.OutputFolder,
			ConfigFolder:      cfg.ConfigFolder,
		},
		InstructorEmail: cfg.InstructorEmail,
		GradeTimeout:    cfg.GradeTimeout,
		PollInterval:    cfg.PollInterval,
		MaxPolls:        cfg.MaxPolls,
	})

	defaults := domain.DefaultSettings(domain.Rubrics{
		Synthese:   cfg.SyntheseAssistantID,
		Essai:      cfg.EssaiAssistantID,
		Traduction: cfg.TraductionAssistantID,
	})
	defaults.ConfigFileName = cfg.ConfigFileName
	app.Settings = usecase.NewSettingsUseCase(store, cfg.ConfigFolder, defaults, logger)
	if _, err := app.Settings.Load(ctx, cfg.ConfigFileName); err != nil {
		logger.Warn("settings_load_failed", "file", cfg.ConfigFileName, "error", err)
	}

	var inline *inlineQueue
	if cfg.NATSURL != "" {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		app.Queue = queue
		app.Remote = true
	} else {
		inline = newInlineQueue(logger)
		app.Queue = inline
	}

	app.Uploads = usecase.NewUploadUseCase(store, app.Queue, app.Pipeline, app.Settings)
	if inline != nil {
		inline.handle(app.Uploads.Process)
	}
	app.Sessions = usecase.NewSessionRegistry()

	logger.Info("bootstrap_ready",
		"blob_backend", cfg.BlobBackend,
		"mail_provider", cfg.MailProvider,
		"journal", journal != nil,
		"remote_queue", app.Remote,
	)
	return app, nil
}

func (a *App) openBlobStore(cfg config.Config) (ports.BlobStore, error) {
	switch cfg.BlobBackend {
	case "sqlite":
		store, err := sqlite.New(cfg.SQLitePath, cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("init sqlite blob store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	default:
		store, err := localfs.New(cfg.StoragePath, cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return store, nil
	}
}

// openJournal returns nil when no postgres DSN is configured.
func (a *App) openJournal(ctx context.Context, cfg config.Config) (*postgres.JournalRepository, error) {
	if cfg.PostgresDSN == "" {
		return nil, nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	repo := postgres.NewJournalRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func newMailer(cfg config.Config, executor *resilience.Executor, logger *slog.Logger) ports.Mailer {
	if cfg.MailProvider == "sendgrid" {
		return sendgrid.New(sendgrid.Config{
			APIKey:    cfg.SendgridAPIKey,
			Host:      cfg.SendgridHost,
			FromName:  cfg.MailFromName,
			FromEmail: cfg.MailFrom,
		}, executor)
	}
	return console.New(logger)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
