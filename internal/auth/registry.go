// Пакет auth — реестр пользователей и токенов для загрузки файлов.
// Реестр хранится в JSON-документе и целиком загружается в память
// при старте. Токен — 48 случайных байт в base64, сравнивается
// с заголовком Authorization как непрозрачный секрет.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/arturkryukov/imagery/internal/domain/model"
)

// DefaultUsername — имя пользователя, создаваемого при пустом реестре.
const DefaultUsername = "user"

// tokenBytes — длина секрета токена до base64-кодирования.
const tokenBytes = 48

// registryDoc — формат долговременного документа реестра.
type registryDoc struct {
	Users []model.User `json:"users"`
}

// Registry — реестр пользователей с долговременным JSON-документом.
type Registry struct {
	mu     sync.RWMutex
	path   string
	users  []model.User // порядок сохраняется в документе
	logger *slog.Logger
}

// New создаёт реестр с документом по указанному пути.
// Для заполнения вызовите Load.
func New(path string, logger *slog.Logger) *Registry {
	return &Registry{
		path:   path,
		logger: logger.With(slog.String("component", "auth")),
	}
}

// Load читает реестр пользователей с диска. Вызывается при старте.
// Если документ отсутствует — создаёт его. Если реестр пуст —
// создаёт одного пользователя по умолчанию со сгенерированным
// токеном, чтобы сервис был пригоден сразу после первого запуска.
// Повреждённый документ — ошибка: процесс не должен стартовать.
func (r *Registry) Load() error {
	r.mu.Lock()

	data, err := os.ReadFile(r.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.users = nil
		if writeErr := r.persistLocked(); writeErr != nil {
			r.mu.Unlock()
			return fmt.Errorf("создание реестра пользователей %s: %w", r.path, writeErr)
		}
		r.logger.Info("Реестр пользователей создан", slog.String("path", r.path))
	case err != nil:
		r.mu.Unlock()
		return fmt.Errorf("чтение реестра пользователей %s: %w", r.path, err)
	default:
		var doc registryDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("повреждённый реестр пользователей %s: %w", r.path, err)
		}
		r.users = doc.Users
		r.logger.Info("Реестр пользователей загружен",
			slog.Int("users", len(r.users)),
			slog.String("path", r.path),
		)
	}
	r.mu.Unlock()

	// Пустой реестр: создаём пользователя по умолчанию
	if r.Count() == 0 {
		user, err := r.CreateUser(DefaultUsername, "")
		if err != nil {
			return fmt.Errorf("создание пользователя по умолчанию: %w", err)
		}
		r.logger.Info("Создан пользователь по умолчанию, токен — в реестре",
			slog.String("username", user.Username),
			slog.String("path", r.path),
		)
	}

	return nil
}

// CreateUser регистрирует пользователя и синхронно сохраняет реестр.
// Пустой token означает «сгенерировать». Пользователь с тем же именем
// заменяется и в памяти, и в документе — расхождение исключено.
func (r *Registry) CreateUser(name, token string) (*model.User, error) {
	if name == "" {
		return nil, fmt.Errorf("имя пользователя не задано")
	}

	if token == "" {
		generated, err := GenerateToken()
		if err != nil {
			return nil, err
		}
		token = generated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user := model.User{Username: name, Token: token}

	replaced := false
	for i := range r.users {
		if r.users[i].Username == name {
			r.users[i] = user
			replaced = true
			break
		}
	}
	if !replaced {
		r.users = append(r.users, user)
	}

	if err := r.persistLocked(); err != nil {
		return nil, fmt.Errorf("сохранение реестра %s: %w", r.path, err)
	}

	return &user, nil
}

// IsAuthorized проверяет, совпадает ли токен с токеном любого
// зарегистрированного пользователя. Линейный перебор: реестр мал.
func (r *Registry) IsAuthorized(token string) bool {
	return r.UserByToken(token) != nil
}

// UserByToken возвращает пользователя по токену или nil.
// Используется для атрибуции загрузки.
func (r *Registry) UserByToken(token string) *model.User {
	if token == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.users {
		if r.users[i].Token == token {
			copied := r.users[i]
			return &copied
		}
	}
	return nil
}

// Count возвращает количество пользователей в реестре.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// GenerateToken возвращает новый секретный токен:
// 48 случайных байт в base64.
func GenerateToken() (string, error) {
	secret := make([]byte, tokenBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("генерация токена: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secret), nil
}

// persistLocked атомарно записывает реестр на диск.
// Паттерн: JSON → temp файл → fsync → atomic rename.
// Вызывается только под r.mu.
func (r *Registry) persistLocked() error {
	doc := registryDoc{Users: r.users}
	if doc.Users == nil {
		doc.Users = []model.User{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация реестра: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("создание директории %s: %w", dir, err)
	}

	tmpPath := r.path + ".tmp"

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

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("атомарное переименование: %w", err)
	}

	return nil
}
