package service

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arturkryukov/imagery/internal/config"
	"github.com/arturkryukov/imagery/internal/storage/filestore"
	"github.com/arturkryukov/imagery/internal/storage/indexfile"
)

// testEnv — собранный стек сервисов поверх временных директорий.
type testEnv struct {
	cfg      *config.Config
	index    *indexfile.Store
	files    *filestore.FileStore
	cache    *CacheService
	upload   *UploadService
	download *DownloadService
}

// newTestEnv собирает стек сервисов во временной директории.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.BaseURL = "http://img.example.com"
	cfg.IndexPath = filepath.Join(dir, "files.json")
	cfg.StoragePath = filepath.Join(dir, "storage")

	logger := testLogger()

	files, err := filestore.New(cfg.StoragePath)
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}

	index := indexfile.New(cfg.IndexPath, logger)
	if err := index.Load(); err != nil {
		t.Fatalf("index.Load: %v", err)
	}

	cache := NewCacheService(time.Hour, time.Hour)

	return &testEnv{
		cfg:      cfg,
		index:    index,
		files:    files,
		cache:    cache,
		upload:   NewUploadService(cfg, index, files, cache, logger),
		download: NewDownloadService(index, files, cache, logger),
	}
}

// doUpload выполняет загрузку и завершает тест при ошибке.
func (env *testEnv) doUpload(t *testing.T, content []byte, filename, owner string) *UploadResult {
	t.Helper()
	result, uploadErr := env.upload.Upload(UploadParams{
		Reader:           bytes.NewReader(content),
		OriginalFilename: filename,
		Size:             int64(len(content)),
		Owner:            owner,
	})
	if uploadErr != nil {
		t.Fatalf("Upload: %v", uploadErr)
	}
	return result
}

// TestUpload проверяет полный поток загрузки: файл на диске,
// запись в индексе, URL и наполненный кэш.
func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("\x89PNG содержимое картинки")

	result := env.doUpload(t, content, "photo.png", "alice")
	rec := result.Record

	if len(rec.ID) != env.cfg.PathLength {
		t.Errorf("длина ID = %d, ожидалось %d", len(rec.ID), env.cfg.PathLength)
	}
	for _, c := range rec.ID {
		if !strings.ContainsRune(idAlphabet, c) {
			t.Errorf("недопустимый символ %q в ID %q", c, rec.ID)
		}
	}
	if rec.StoredFileName != rec.ID+".png" {
		t.Errorf("StoredFileName = %q, ожидалось %q", rec.StoredFileName, rec.ID+".png")
	}
	if rec.OriginalFileName != "photo.png" {
		t.Errorf("OriginalFileName = %q", rec.OriginalFileName)
	}
	if rec.Extension != ".png" {
		t.Errorf("Extension = %q", rec.Extension)
	}
	if rec.MimeType != "image/png" {
		t.Errorf("MimeType = %q", rec.MimeType)
	}
	if rec.Owner != "alice" {
		t.Errorf("Owner = %q, ожидался alice", rec.Owner)
	}
	if rec.Checksum == "" {
		t.Error("Checksum пуст")
	}
	if result.URL != env.cfg.BaseURL+"/"+rec.StoredFileName {
		t.Errorf("URL = %q", result.URL)
	}

	// Байты на диске
	if !env.files.Exists(rec.StoredFileName) {
		t.Error("файл отсутствует на диске")
	}

	// Кэш наполнен
	if _, ok := env.cache.GetIfPresent(rec.StoredFileName); !ok {
		t.Error("кэш не наполнен после загрузки")
	}

	// Запись зафиксирована в документе до ответа клиенту:
	// свежий индекс поверх того же документа видит её
	reloaded := indexfile.New(env.cfg.IndexPath, testLogger())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("повторная загрузка индекса: %v", err)
	}
	if reloaded.Get(rec.ID) == nil {
		t.Error("запись не зафиксирована в документе индекса")
	}
}

// TestUpload_AnonymousOwner проверяет атрибуцию Unknown
// при пустом имени пользователя.
func TestUpload_AnonymousOwner(t *testing.T) {
	env := newTestEnv(t)

	result := env.doUpload(t, []byte("data"), "photo.png", "")
	if result.Record.Owner != "Unknown" {
		t.Errorf("Owner = %q, ожидался Unknown", result.Record.Owner)
	}
}

// TestUpload_NoExtension проверяет загрузку файла без расширения:
// имя на диске совпадает с id, MIME-тип пуст.
func TestUpload_NoExtension(t *testing.T) {
	env := newTestEnv(t)

	result := env.doUpload(t, []byte("raw data"), "rawfile", "alice")
	rec := result.Record

	if rec.Extension != "" {
		t.Errorf("Extension = %q, ожидалось пустое", rec.Extension)
	}
	if rec.StoredFileName != rec.ID {
		t.Errorf("StoredFileName = %q, ожидался голый id %q", rec.StoredFileName, rec.ID)
	}
	if rec.MimeType != "" {
		t.Errorf("MimeType = %q, ожидался пустой", rec.MimeType)
	}
}

// TestUpload_TooLarge проверяет отказ 413 для файла больше лимита:
// ни байтов на диске, ни записи в индексе не появляется.
func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxFileSize = 10

	content := []byte("слишком большое содержимое")
	_, uploadErr := env.upload.Upload(UploadParams{
		Reader:           bytes.NewReader(content),
		OriginalFilename: "big.png",
		Size:             int64(len(content)),
		Owner:            "alice",
	})
	if uploadErr == nil {
		t.Fatal("ожидалась ошибка размера")
	}
	if uploadErr.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("StatusCode = %d, ожидался 413", uploadErr.StatusCode)
	}

	if env.index.Count() != 0 {
		t.Error("индекс не должен меняться при отказе")
	}
	entries, err := os.ReadDir(env.cfg.StoragePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("в хранилище %d файлов, ожидалось 0", len(entries))
	}
}

// TestUpload_SanitizesFilename проверяет, что путь в имени файла
// не влияет на имя на диске: берётся только базовое имя.
func TestUpload_SanitizesFilename(t *testing.T) {
	env := newTestEnv(t)

	result := env.doUpload(t, []byte("data"), "../../etc/evil.png", "alice")
	rec := result.Record

	if rec.OriginalFileName != "evil.png" {
		t.Errorf("OriginalFileName = %q, ожидалось evil.png", rec.OriginalFileName)
	}
	if rec.Extension != ".png" {
		t.Errorf("Extension = %q", rec.Extension)
	}
	if !env.files.Exists(rec.StoredFileName) {
		t.Error("файл отсутствует на диске")
	}
}

// TestRandomID проверяет длину и алфавит генерируемых идентификаторов.
func TestRandomID(t *testing.T) {
	for _, n := range []int{4, 8, 16} {
		id, err := randomID(n)
		if err != nil {
			t.Fatalf("randomID(%d): %v", n, err)
		}
		if len(id) != n {
			t.Errorf("длина = %d, ожидалось %d", len(id), n)
		}
		for _, c := range id {
			if !strings.ContainsRune(idAlphabet, c) {
				t.Errorf("недопустимый символ %q", c)
			}
		}
	}
}
