// upload.go — сервис загрузки файлов.
package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	apierrors "github.com/arturkryukov/imagery/internal/api/errors"
	"github.com/arturkryukov/imagery/internal/api/middleware"
	"github.com/arturkryukov/imagery/internal/config"
	"github.com/arturkryukov/imagery/internal/domain/model"
	"github.com/arturkryukov/imagery/internal/storage/filestore"
	"github.com/arturkryukov/imagery/internal/storage/indexfile"
)

// idAlphabet — допустимые символы идентификатора файла.
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxIDAttempts — число попыток генерации идентификатора
// при коллизии с существующей записью.
const maxIDAttempts = 8

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — оригинальное имя файла
	OriginalFilename string
	// Size — размер файла (из multipart part)
	Size int64
	// Owner — имя авторизованного пользователя; пустое значение
	// атрибутируется как "Unknown"
	Owner string
}

// UploadResult — результат загрузки файла.
type UploadResult struct {
	Record *model.FileRecord
	// URL — публичный URL загруженного файла
	URL string
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	cfg    *config.Config
	index  *indexfile.Store
	files  *filestore.FileStore
	cache  *CacheService
	logger *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(
	cfg *config.Config,
	index *indexfile.Store,
	files *filestore.FileStore,
	cache *CacheService,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		cfg:    cfg,
		index:  index,
		files:  files,
		cache:  cache,
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Upload загружает файл в хранилище.
//
// Поток:
//  1. Проверка размера файла
//  2. Генерация id (с проверкой коллизий против индекса и диска)
//  3. Запись байтов на диск под именем {id}{ext}
//  4. Формирование FileRecord
//  5. Синхронная запись в индекс — документ зафиксирован на диске
//     до ответа клиенту; при ошибке файл с диска удаляется
//  6. Наполнение кэша
//
// Возвращает запись и публичный URL файла.
func (s *UploadService) Upload(params UploadParams) (*UploadResult, *UploadError) {
	// 1. Проверяем размер файла
	if params.Size > s.cfg.MaxFileSize {
		return nil, &UploadError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.cfg.MaxFileSize),
		}
	}

	// 2. Генерируем id и имя файла на диске
	ext := filepath.Ext(filepath.Base(params.OriginalFilename))
	id, storedName, err := s.newFileID(ext)
	if err != nil {
		s.logger.Error("Ошибка генерации идентификатора", slog.String("error", err.Error()))
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Не удалось сгенерировать идентификатор файла",
		}
	}

	// 3. Записываем байты на диск
	saved, err := s.files.Save(params.Reader, storedName)
	if err != nil {
		s.logger.Error("Ошибка сохранения файла",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения файла на диск",
		}
	}

	// 4. Формируем запись метаданных
	owner := params.Owner
	if owner == "" {
		owner = "Unknown"
	}

	record := &model.FileRecord{
		ID:               id,
		Owner:            owner,
		UploadedAtMillis: time.Now().UTC().UnixMilli(),
		StoredFileName:   storedName,
		OriginalFileName: filepath.Base(params.OriginalFilename),
		Extension:        ext,
		MimeType:         mime.TypeByExtension(ext),
		Checksum:         saved.Checksum,
	}

	// 5. Синхронно фиксируем запись в индексе.
	// При ошибке удаляем файл: URL без долговременной записи не выдаём.
	if err := s.index.Put(record); err != nil {
		_ = s.files.Delete(storedName)
		s.logger.Error("Ошибка записи индекса",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения метаданных",
		}
	}

	// 6. Наполняем кэш
	s.cache.Put(storedName, record, saved.FullPath)

	// 7. Обновляем метрики
	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	middleware.FilesTotal.Set(float64(s.index.Count()))

	s.logger.Info("Файл загружен",
		slog.String("id", id),
		slog.String("stored_name", storedName),
		slog.String("filename", record.OriginalFileName),
		slog.Int64("size", saved.Size),
		slog.String("checksum", saved.Checksum),
		slog.String("owner", owner),
	)

	return &UploadResult{
		Record: record,
		URL:    s.cfg.BaseURL + "/" + storedName,
	}, nil
}

// newFileID генерирует уникальный идентификатор файла.
// Коллизия со свежесгенерированным id перезаписала бы чужой файл
// и его метаданные, поэтому id проверяется против индекса и диска;
// после maxIDAttempts неудач — ошибка.
func (s *UploadService) newFileID(ext string) (id, storedName string, err error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err = randomID(s.cfg.PathLength)
		if err != nil {
			return "", "", err
		}

		storedName = id + ext
		if !s.index.Has(id) && !s.files.Exists(storedName) {
			return id, storedName, nil
		}

		s.logger.Warn("Коллизия идентификатора, повторная генерация",
			slog.String("id", id),
			slog.Int("attempt", attempt+1),
		)
	}
	return "", "", fmt.Errorf("не удалось подобрать свободный идентификатор за %d попыток", maxIDAttempts)
}

// randomID возвращает случайную алфавитно-цифровую строку длины n.
func randomID(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("чтение случайных байт: %w", err)
	}
	for i := range buf {
		buf[i] = idAlphabet[int(buf[i])%len(idAlphabet)]
	}
	return string(buf), nil
}
