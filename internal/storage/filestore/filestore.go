// Пакет filestore — операции с физическими файлами на диске.
// Плоская директория хранения: каждый загруженный файл лежит под
// именем {id}{ext}. Запись streaming с подсчётом SHA-256 на лету
// и атомарным rename, чтение — через os.File для http.ServeContent.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore — управление физическими файлами на диске.
type FileStore struct {
	// dataDir — корневая директория хранения файлов
	dataDir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// New создаёт новый FileStore. Проверяет и создаёт директорию,
// если она не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранения %s: %w", dataDir, err)
	}

	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить абсолютный путь %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: abs}, nil
}

// Save записывает данные из reader на диск под именем storedName
// с подсчётом SHA-256 на лету.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) Save(reader io.Reader, storedName string) (*SaveResult, error) {
	fullPath, err := fs.resolve(storedName)
	if err != nil {
		return nil, err
	}
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("создание временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("запись данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("закрытие файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("атомарное переименование: %w", err)
	}

	return &SaveResult{
		FullPath: fullPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (fs *FileStore) Open(storedName string) (*os.File, error) {
	fullPath, err := fs.resolve(storedName)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", storedName)
		}
		return nil, fmt.Errorf("открытие файла %s: %w", storedName, err)
	}

	return f, nil
}

// Exists проверяет существование файла на диске.
func (fs *FileStore) Exists(storedName string) bool {
	fullPath, err := fs.resolve(storedName)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(fullPath)
	return statErr == nil
}

// Delete удаляет файл с диска. Используется только для отката
// незавершённой загрузки. Возвращает nil, если файла уже нет.
func (fs *FileStore) Delete(storedName string) error {
	fullPath, err := fs.resolve(storedName)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("удаление файла %s: %w", storedName, err)
	}
	return nil
}

// FullPath возвращает абсолютный путь к файлу на диске.
func (fs *FileStore) FullPath(storedName string) (string, error) {
	return fs.resolve(storedName)
}

// DataDir возвращает путь к директории хранения.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// resolve строит полный путь и гарантирует, что он не выходит
// за пределы директории хранения. Имена с разделителями пути
// или ".." отклоняются.
func (fs *FileStore) resolve(storedName string) (string, error) {
	if storedName == "" || storedName != filepath.Base(storedName) ||
		strings.HasPrefix(storedName, ".") {
		return "", fmt.Errorf("недопустимое имя файла: %q", storedName)
	}

	fullPath := filepath.Join(fs.dataDir, storedName)
	if !strings.HasPrefix(fullPath, fs.dataDir+string(filepath.Separator)) {
		return "", fmt.Errorf("путь %q выходит за пределы директории хранения", storedName)
	}

	return fullPath, nil
}
