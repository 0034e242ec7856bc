// Пакет indexfile — долговременный индекс метаданных загруженных файлов.
// Единственный JSON-документ (id → FileRecord), целиком загружаемый
// в память при старте и целиком переписываемый при каждой записи.
// Все операции записи выполняются атомарно: temp → fsync → rename.
//
// Записи сериализуются мьютексом: одновременные загрузки не могут
// потерять обновления друг друга, читатель никогда не видит
// частично записанный документ. Запись синхронная — Put возвращает
// управление только после фиксации документа на диске.
package indexfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/arturkryukov/imagery/internal/domain/model"
)

// Store — индекс метаданных с долговременным JSON-документом.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]*model.FileRecord // id → record
	logger  *slog.Logger
}

// New создаёт индекс с документом по указанному пути.
// Для заполнения вызовите Load.
func New(path string, logger *slog.Logger) *Store {
	return &Store{
		path:    path,
		records: make(map[string]*model.FileRecord),
		logger:  logger.With(slog.String("component", "indexfile")),
	}
}

// Load читает индексный документ с диска. Вызывается при старте.
// Если документ отсутствует — создаёт пустой и сразу сохраняет его.
// Повреждённый документ — ошибка: процесс не должен стартовать
// с частично загруженным индексом.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.records = make(map[string]*model.FileRecord)
		if writeErr := s.persistLocked(); writeErr != nil {
			return fmt.Errorf("создание пустого индекса %s: %w", s.path, writeErr)
		}
		s.logger.Info("Индексный документ создан", slog.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("чтение индекса %s: %w", s.path, err)
	}

	records := make(map[string]*model.FileRecord)
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("повреждённый индекс %s: %w", s.path, err)
	}

	s.records = records
	s.logger.Info("Индекс метаданных загружен",
		slog.Int("files", len(s.records)),
		slog.String("path", s.path),
	)

	return nil
}

// Put добавляет запись под ключом record.ID и синхронно переписывает
// весь документ на диск. При ошибке записи вставка откатывается,
// чтобы память и диск не расходились.
func (s *Store) Put(record *model.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.records[record.ID]

	copied := *record
	s.records[record.ID] = &copied

	if err := s.persistLocked(); err != nil {
		if existed {
			s.records[record.ID] = prev
		} else {
			delete(s.records, record.ID)
		}
		return fmt.Errorf("сохранение индекса %s: %w", s.path, err)
	}

	return nil
}

// Get возвращает запись по id или nil, если запись отсутствует.
// Отсутствие записи — не ошибка.
func (s *Store) Get(id string) *model.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil
	}

	// Возвращаем копию для потокобезопасности
	copied := *record
	return &copied
}

// Has проверяет наличие записи с указанным id.
// Используется при генерации идентификаторов для проверки коллизий.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// Count возвращает количество записей в индексе.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Path возвращает путь к индексному документу.
func (s *Store) Path() string {
	return s.path
}

// persistLocked атомарно записывает документ на диск.
// Паттерн: JSON → temp файл → fsync → atomic rename.
// Вызывается только под s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация индекса: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("создание директории %s: %w", dir, err)
	}

	tmpPath := s.path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("запись: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("закрытие файла: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("атомарное переименование: %w", err)
	}

	return nil
}
