// Пакет service — бизнес-логика Imagery.
// CacheService — in-memory кэш соответствия «имя файла → метаданные
// и путь на диске», ускоряющий отдачу файлов. Обёртка над
// hashicorp/golang-lru/v2/expirable с двумя политиками истечения
// и атомарным get-or-load через singleflight.
package service

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/arturkryukov/imagery/internal/domain/model"
)

// Политики истечения записей кэша. Запись вытесняется по первому
// из двух сроков: после вставки или после последнего чтения.
const (
	// ExpireAfterWrite — максимальный срок жизни записи после вставки.
	ExpireAfterWrite = 15 * time.Minute
	// ExpireAfterAccess — максимальный срок жизни записи после
	// последнего успешного чтения.
	ExpireAfterAccess = 10 * time.Minute
)

// ErrNotFound — файл отсутствует и в кэше, и в индексе.
// Этот результат никогда не кэшируется: файл, загруженный после
// промаха, должен быть доступен немедленно.
var ErrNotFound = errors.New("файл не найден")

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagery_cache_hits_total",
		Help: "Общее количество попаданий в кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagery_cache_misses_total",
		Help: "Общее количество промахов кэша метаданных.",
	})
)

// CacheEntry — запись кэша: метаданные файла и его путь на диске.
type CacheEntry struct {
	// Record — метаданные файла
	Record *model.FileRecord
	// Path — абсолютный путь файла на диске
	Path string

	// lastAccess — время последнего чтения (unix nano)
	lastAccess atomic.Int64
}

// touch обновляет отметку последнего чтения.
func (e *CacheEntry) touch(now time.Time) {
	e.lastAccess.Store(now.UnixNano())
}

// expiredByAccess сообщает, истекла ли запись по сроку с последнего чтения.
func (e *CacheEntry) expiredByAccess(now time.Time, ttl time.Duration) bool {
	return now.Sub(time.Unix(0, e.lastAccess.Load())) > ttl
}

// CacheService — кэш записей с TTL и защитой от параллельной загрузки.
// Размер не ограничен: записи вытесняются по времени.
type CacheService struct {
	cache     *expirable.LRU[string, *CacheEntry]
	group     singleflight.Group
	accessTTL time.Duration
}

// NewCacheService создаёт кэш с указанными сроками истечения.
// writeTTL — срок жизни после вставки, accessTTL — после последнего чтения.
func NewCacheService(writeTTL, accessTTL time.Duration) *CacheService {
	// size 0 — без ограничения количества записей
	cache := expirable.NewLRU[string, *CacheEntry](0, nil, writeTTL)
	return &CacheService{
		cache:     cache,
		accessTTL: accessTTL,
	}
}

// Put безусловно вставляет или перезаписывает запись,
// сбрасывая оба срока истечения.
func (c *CacheService) Put(key string, record *model.FileRecord, path string) {
	entry := &CacheEntry{Record: record, Path: path}
	entry.touch(time.Now())
	c.cache.Add(key, entry)
}

// GetIfPresent возвращает запись, только если она уже в кэше.
// К индексу не обращается. Обновляет метрики hit/miss.
func (c *CacheService) GetIfPresent(key string) (*CacheEntry, bool) {
	entry, ok := c.lookup(key)
	if ok {
		cacheHitsTotal.Inc()
		return entry, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// GetOrLoad возвращает запись из кэша, а при её отсутствии —
// синхронно вызывает loader и кэширует результат. Для одного
// отсутствующего ключа loader выполняется не более одного раза
// даже при конкурентных запросах (singleflight); все ожидающие
// получают общий результат. Ошибка loader (включая ErrNotFound)
// не кэшируется.
func (c *CacheService) GetOrLoad(key string, loader func() (*CacheEntry, error)) (*CacheEntry, error) {
	if entry, ok := c.lookup(key); ok {
		cacheHitsTotal.Inc()
		return entry, nil
	}
	cacheMissesTotal.Inc()

	value, err, _ := c.group.Do(key, func() (any, error) {
		// Запись могла появиться, пока запрос ждал своей очереди
		if entry, ok := c.lookup(key); ok {
			return entry, nil
		}

		entry, err := loader()
		if err != nil {
			return nil, err
		}

		entry.touch(time.Now())
		c.cache.Add(key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	return value.(*CacheEntry), nil
}

// Remove удаляет запись из кэша.
func (c *CacheService) Remove(key string) {
	c.cache.Remove(key)
}

// Len возвращает текущее количество записей в кэше.
func (c *CacheService) Len() int {
	return c.cache.Len()
}

// lookup возвращает живую запись, проверяя срок с последнего чтения.
// Истечение после вставки контролирует сам LRU, истечение после
// чтения — отметка lastAccess. Живая запись получает новую отметку.
func (c *CacheService) lookup(key string) (*CacheEntry, bool) {
	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}

	now := time.Now()
	if entry.expiredByAccess(now, c.accessTTL) {
		c.cache.Remove(key)
		return nil, false
	}

	entry.touch(now)
	return entry, true
}
