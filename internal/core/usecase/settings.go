package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

// SettingsUseCase reads and writes grading settings as JSON blobs in the config folder.
type SettingsUseCase struct {
	store        ports.BlobStore
	configFolder string
	defaults     domain.Settings
	logger       *slog.Logger

	mu      sync.RWMutex
	current domain.Settings
}

func NewSettingsUseCase(store ports.BlobStore, configFolder string, defaults domain.Settings, logger *slog.Logger) *SettingsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsUseCase{
		store:        store,
		configFolder: configFolder,
		defaults:     defaults,
		logger:       logger,
		current:      defaults,
	}
}

func (uc *SettingsUseCase) Current() domain.Settings {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.current
}

// Load reads fileName from the config folder. A missing file yields the defaults.
func (uc *SettingsUseCase) Load(ctx context.Context, fileName string) (domain.Settings, error) {
	name := strings.TrimSpace(fileName)
	if name == "" {
		name = uc.defaults.FileName()
	}
	folderID, err := uc.folder(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	fileID, ok, err := uc.store.FileID(ctx, folderID, name)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("lookup settings file: %w", err)
	}
	settings := uc.defaults
	settings.ConfigFileName = name
	if !ok {
		uc.logger.Info("settings_defaults_used", "file", name)
		uc.set(settings)
		return settings, nil
	}

	raw, err := uc.store.ReadBytes(ctx, fileID)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return domain.Settings{}, domain.WrapError(domain.ErrInvalidInput, "decode settings", err)
	}
	if settings.ConfigFileName == "" {
		settings.ConfigFileName = name
	}
	if err := settings.Validate(); err != nil {
		uc.logger.Warn("settings_loaded_invalid", "file", name, "error", err)
	}
	uc.set(settings)
	return settings, nil
}

// Save validates settings and writes them. Invalid settings are never written.
func (uc *SettingsUseCase) Save(ctx context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	settings.ConfigFileName = settings.FileName()
	folderID, err := uc.folder(ctx)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if _, err := uc.store.WriteOrReplace(ctx, folderID, settings.ConfigFileName, raw, domain.MimeJSON); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	uc.set(settings)
	return nil
}

func (uc *SettingsUseCase) ConfigFiles(ctx context.Context) ([]string, error) {
	folderID, err := uc.folder(ctx)
	if err != nil {
		return nil, err
	}
	files, err := uc.store.ListFiles(ctx, folderID, "json")
	if err != nil {
		return nil, fmt.Errorf("list settings files: %w", err)
	}
	return sortedNames(files), nil
}

func (uc *SettingsUseCase) folder(ctx context.Context) (string, error) {
	id, err := uc.store.EnsureFolder(ctx, ports.RootFolderID, uc.configFolder)
	if err != nil {
		return "", fmt.Errorf("ensure config folder: %w", err)
	}
	return id, nil
}

func (uc *SettingsUseCase) set(settings domain.Settings) {
	uc.mu.Lock()
	uc.current = settings
	uc.mu.Unlock()
}
