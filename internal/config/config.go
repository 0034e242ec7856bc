// Пакет config — загрузка и валидация конфигурации Imagery
// из YAML-файла. Если файл отсутствует, он создаётся со значениями
// по умолчанию — сервис стартует сразу после первого запуска.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Imagery.
type Config struct {
	// Порт HTTP-сервера
	Port int `yaml:"port"`
	// Публичный базовый URL без завершающего слэша
	BaseURL string `yaml:"baseUrl"`
	// Путь к индексному документу метаданных (id → FileRecord)
	IndexPath string `yaml:"indexPath"`
	// Путь к реестру пользователей
	UsersPath string `yaml:"usersPath"`
	// Путь к директории хранения загруженных файлов
	StoragePath string `yaml:"storagePath"`
	// Длина генерируемого идентификатора файла
	PathLength int `yaml:"pathLength"`
	// Заголовок с реальным IP клиента за прокси.
	// Nginx: X-Forwarded-For, Cloudflare: CF-Connecting-IP, прочие: X-Real-IP.
	AddressHeader string `yaml:"addressHeader"`
	// Требовать токен авторизации для загрузки файлов
	RequireAuth bool `yaml:"requireAuth"`
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64 `yaml:"maxFileSize"`
	// Уровень логирования (debug, info, warn, error)
	LogLevel string `yaml:"logLevel"`
	// Формат логов (json, text)
	LogFormat string `yaml:"logFormat"`
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	return &Config{
		Port:            8052,
		BaseURL:         "http://localhost:8052",
		IndexPath:       "./files.json",
		UsersPath:       "./users.json",
		StoragePath:     "./storage",
		PathLength:      8,
		AddressHeader:   "CF-Connecting-IP",
		RequireAuth:     true,
		MaxFileSize:     100 << 20, // 100 MiB
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Load читает конфигурацию из YAML-файла по указанному пути.
// Если файл отсутствует — создаёт его со значениями по умолчанию
// и возвращает их. Некорректный YAML или недопустимые значения —
// ошибка (процесс не должен стартовать).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if writeErr := writeDefault(path, cfg); writeErr != nil {
			return nil, fmt.Errorf("создание конфигурации по умолчанию %s: %w", path, writeErr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	// Значения, не указанные в файле, получают значения по умолчанию
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// writeDefault сериализует конфигурацию и записывает её в файл.
func writeDefault(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("сериализация: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("создание директории %s: %w", dir, err)
	}

	return os.WriteFile(path, data, 0o640)
}

// validate проверяет допустимость значений конфигурации.
func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port: значение %d вне допустимого диапазона 1-65535", c.Port)
	}

	if c.BaseURL == "" {
		return fmt.Errorf("baseUrl: обязательный параметр не задан")
	}
	// Завершающий слэш убираем: URL собирается как baseUrl + "/" + имя файла
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.IndexPath == "" {
		return fmt.Errorf("indexPath: обязательный параметр не задан")
	}
	if c.UsersPath == "" {
		return fmt.Errorf("usersPath: обязательный параметр не задан")
	}
	if c.StoragePath == "" {
		return fmt.Errorf("storagePath: обязательный параметр не задан")
	}

	if c.PathLength < 4 || c.PathLength > 64 {
		return fmt.Errorf("pathLength: значение %d вне допустимого диапазона 4-64", c.PathLength)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("maxFileSize: значение должно быть положительным")
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("logLevel: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("logFormat: недопустимое значение %q, допустимые: json, text", c.LogFormat)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdownTimeout: значение должно быть положительным")
	}

	return nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	level, _ := ParseLogLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLogLevel преобразует строку уровня логирования в slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
