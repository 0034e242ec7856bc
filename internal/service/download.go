// download.go — сервис отдачи загруженных файлов.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	apierrors "github.com/arturkryukov/imagery/internal/api/errors"
	"github.com/arturkryukov/imagery/internal/api/middleware"
	"github.com/arturkryukov/imagery/internal/storage/filestore"
	"github.com/arturkryukov/imagery/internal/storage/indexfile"
)

// defaultContentType — тип по умолчанию для неизвестных расширений.
const defaultContentType = "image/png"

// DownloadError — ошибка отдачи файла с HTTP-кодом.
type DownloadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// DownloadService — сервис отдачи файлов через кэш с fallback в индекс.
type DownloadService struct {
	index  *indexfile.Store
	files  *filestore.FileStore
	cache  *CacheService
	logger *slog.Logger
}

// NewDownloadService создаёт сервис отдачи файлов.
func NewDownloadService(
	index *indexfile.Store,
	files *filestore.FileStore,
	cache *CacheService,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		index:  index,
		files:  files,
		cache:  cache,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Resolve находит запись по имени файла из URL: сперва кэш,
// при промахе — индекс с наполнением кэша. Промах по обоим
// источникам — ErrNotFound, и этот результат не кэшируется.
func (s *DownloadService) Resolve(storedName string) (*CacheEntry, error) {
	return s.cache.GetOrLoad(storedName, func() (*CacheEntry, error) {
		// Ключ URL — имя файла на диске ({id}{ext}),
		// индекс ключуется голым id
		id := strings.TrimSuffix(storedName, filepath.Ext(storedName))

		record := s.index.Get(id)
		if record == nil || record.StoredFileName != storedName {
			return nil, ErrNotFound
		}

		path, err := s.files.FullPath(record.StoredFileName)
		if err != nil {
			return nil, ErrNotFound
		}
		if !s.files.Exists(record.StoredFileName) {
			// Запись есть, а байтов нет: индекс и диск разошлись
			s.logger.Error("Файл из индекса отсутствует на диске",
				slog.String("id", id),
				slog.String("stored_name", record.StoredFileName),
			)
			return nil, ErrNotFound
		}

		return &CacheEntry{Record: record, Path: path}, nil
	})
}

// Serve отдаёт файл клиенту через http.ServeContent
// (Range requests и If-Modified-Since обрабатываются автоматически).
// Content-Type берётся из записи, для неизвестных расширений —
// image/png.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, storedName string) *DownloadError {
	entry, err := s.Resolve(storedName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &DownloadError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    "Файл не существует",
			}
		}
		s.logger.Error("Ошибка поиска файла",
			slog.String("stored_name", storedName),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка поиска файла",
		}
	}

	file, err := s.files.Open(entry.Record.StoredFileName)
	if err != nil {
		s.logger.Error("Файл не найден на диске",
			slog.String("stored_name", storedName),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    "Файл не существует",
		}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		s.logger.Error("Ошибка получения stat файла",
			slog.String("stored_name", storedName),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}

	contentType := entry.Record.MimeType
	if contentType == "" {
		contentType = defaultContentType
	}
	w.Header().Set("Content-Type", contentType)

	http.ServeContent(w, r, entry.Record.StoredFileName, stat.ModTime(), file)

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()

	s.logger.Debug("Файл отдан",
		slog.String("stored_name", storedName),
		slog.String("owner", entry.Record.Owner),
		slog.Int64("size", stat.Size()),
	)

	return nil
}
