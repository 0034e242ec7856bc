// Точка входа Imagery — сервиса хостинга файлов с короткими URL.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/arturkryukov/imagery/internal/api/handlers"
	"github.com/arturkryukov/imagery/internal/api/middleware"
	"github.com/arturkryukov/imagery/internal/auth"
	"github.com/arturkryukov/imagery/internal/config"
	"github.com/arturkryukov/imagery/internal/server"
	"github.com/arturkryukov/imagery/internal/service"
	"github.com/arturkryukov/imagery/internal/storage/filestore"
	"github.com/arturkryukov/imagery/internal/storage/indexfile"
)

func main() {
	// Путь к конфигурации; файл создаётся при первом запуске
	configPath := flag.String("config", "./config.yaml", "путь к файлу конфигурации, создаётся при отсутствии")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Imagery запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("require_auth", cfg.RequireAuth),
	)

	// --- Инициализация компонентов ---

	// 1. Файловое хранилище (создаёт директорию при отсутствии)
	store, err := filestore.New(cfg.StoragePath)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Индекс метаданных: повреждённый документ — фатальная ошибка,
	// старт с частично загруженным индексом недопустим
	index := indexfile.New(cfg.IndexPath, logger)
	if err := index.Load(); err != nil {
		logger.Error("Ошибка загрузки индекса", slog.String("error", err.Error()))
		os.Exit(1)
	}
	middleware.FilesTotal.Set(float64(index.Count()))

	// 3. Реестр пользователей (при пустом реестре создаётся
	// пользователь по умолчанию)
	registry := auth.New(cfg.UsersPath, logger)
	if err := registry.Load(); err != nil {
		logger.Error("Ошибка загрузки реестра пользователей", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Кэш отдачи файлов
	cache := service.NewCacheService(service.ExpireAfterWrite, service.ExpireAfterAccess)

	// 5. Сервисы
	uploadSvc := service.NewUploadService(cfg, index, store, cache, logger)
	downloadSvc := service.NewDownloadService(index, store, cache, logger)

	// 6. Handlers
	filesHandler := handlers.NewFilesHandler(uploadSvc, downloadSvc)
	healthHandler := handlers.NewHealthHandler(store.DataDir(), index)

	// 7. Авторизация загрузки
	var authMW func(http.Handler) http.Handler
	if cfg.RequireAuth {
		authMW = middleware.TokenAuth(registry, logger)
	} else {
		logger.Warn("Авторизация загрузки выключена (requireAuth: false)")
	}

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, filesHandler, healthHandler, authMW,
		middleware.RequestLogger(logger, cfg.AddressHeader),
		middleware.MetricsMiddleware(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Imagery остановлен")
}
