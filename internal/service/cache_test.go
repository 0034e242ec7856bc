package service

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arturkryukov/imagery/internal/domain/model"
)

// testLogger возвращает логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// cacheRecord создаёт тестовую запись кэша.
func cacheRecord(id string) *model.FileRecord {
	return &model.FileRecord{
		ID:             id,
		Owner:          "user",
		StoredFileName: id + ".png",
		MimeType:       "image/png",
	}
}

// TestCache_PutGetIfPresent проверяет вставку и чтение без loader.
func TestCache_PutGetIfPresent(t *testing.T) {
	cache := NewCacheService(time.Hour, time.Hour)

	if _, ok := cache.GetIfPresent("Ab3dEf9x.png"); ok {
		t.Fatal("пустой кэш не должен отдавать запись")
	}

	cache.Put("Ab3dEf9x.png", cacheRecord("Ab3dEf9x"), "/storage/Ab3dEf9x.png")

	entry, ok := cache.GetIfPresent("Ab3dEf9x.png")
	if !ok {
		t.Fatal("запись не найдена после Put")
	}
	if entry.Record.ID != "Ab3dEf9x" {
		t.Errorf("ID = %q, ожидался %q", entry.Record.ID, "Ab3dEf9x")
	}
	if entry.Path != "/storage/Ab3dEf9x.png" {
		t.Errorf("Path = %q", entry.Path)
	}
}

// TestCache_GetOrLoad проверяет, что loader вызывается только
// при промахе, а результат кэшируется.
func TestCache_GetOrLoad(t *testing.T) {
	cache := NewCacheService(time.Hour, time.Hour)

	var calls atomic.Int32
	loader := func() (*CacheEntry, error) {
		calls.Add(1)
		return &CacheEntry{Record: cacheRecord("Ab3dEf9x"), Path: "/p"}, nil
	}

	for i := 0; i < 3; i++ {
		entry, err := cache.GetOrLoad("Ab3dEf9x.png", loader)
		if err != nil {
			t.Fatalf("GetOrLoad: %v", err)
		}
		if entry.Record.ID != "Ab3dEf9x" {
			t.Errorf("ID = %q", entry.Record.ID)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("loader вызван %d раз, ожидался 1", got)
	}
}

// TestCache_GetOrLoad_Concurrent проверяет, что при конкурентных
// промахах по одному ключу loader выполняется не более одного раза,
// а все ожидающие получают общий результат.
func TestCache_GetOrLoad_Concurrent(t *testing.T) {
	cache := NewCacheService(time.Hour, time.Hour)

	var calls atomic.Int32
	loader := func() (*CacheEntry, error) {
		calls.Add(1)
		// Удерживаем загрузку, чтобы остальные запросы успели встать в очередь
		time.Sleep(50 * time.Millisecond)
		return &CacheEntry{Record: cacheRecord("Ab3dEf9x"), Path: "/p"}, nil
	}

	const readers = 20
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := cache.GetOrLoad("Ab3dEf9x.png", loader)
			if err != nil {
				t.Errorf("GetOrLoad: %v", err)
				return
			}
			if entry.Record.ID != "Ab3dEf9x" {
				t.Errorf("ID = %q", entry.Record.ID)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("loader вызван %d раз, ожидался 1", got)
	}
}

// TestCache_NotFoundNotCached проверяет, что ошибка loader
// (в том числе ErrNotFound) не кэшируется: следующий запрос
// снова обращается к loader.
func TestCache_NotFoundNotCached(t *testing.T) {
	cache := NewCacheService(time.Hour, time.Hour)

	var calls atomic.Int32
	missing := func() (*CacheEntry, error) {
		calls.Add(1)
		return nil, ErrNotFound
	}

	for i := 0; i < 3; i++ {
		if _, err := cache.GetOrLoad("nope.png", missing); !errors.Is(err, ErrNotFound) {
			t.Fatalf("ожидался ErrNotFound, получено %v", err)
		}
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("loader вызван %d раз, ожидалось 3", got)
	}
	if cache.Len() != 0 {
		t.Errorf("ошибка закэширована: Len = %d", cache.Len())
	}

	// Файл, появившийся после промахов, доступен немедленно
	cache.Put("nope.png", cacheRecord("nope"), "/p")
	if _, ok := cache.GetIfPresent("nope.png"); !ok {
		t.Error("запись недоступна после Put")
	}
}

// TestCache_ExpireAfterWrite проверяет вытеснение записи
// по сроку жизни после вставки.
func TestCache_ExpireAfterWrite(t *testing.T) {
	cache := NewCacheService(100*time.Millisecond, time.Hour)

	cache.Put("Ab3dEf9x.png", cacheRecord("Ab3dEf9x"), "/p")
	if _, ok := cache.GetIfPresent("Ab3dEf9x.png"); !ok {
		t.Fatal("запись должна быть доступна сразу после Put")
	}

	time.Sleep(200 * time.Millisecond)

	if _, ok := cache.GetIfPresent("Ab3dEf9x.png"); ok {
		t.Error("запись должна истечь по сроку после вставки")
	}
}

// TestCache_ExpireAfterAccess проверяет вытеснение записи
// по сроку с последнего чтения: регулярные чтения продлевают
// жизнь записи, пауза дольше срока — вытесняет.
func TestCache_ExpireAfterAccess(t *testing.T) {
	cache := NewCacheService(time.Hour, 100*time.Millisecond)

	cache.Put("Ab3dEf9x.png", cacheRecord("Ab3dEf9x"), "/p")

	// Чтения чаще срока истечения удерживают запись
	for i := 0; i < 3; i++ {
		time.Sleep(50 * time.Millisecond)
		if _, ok := cache.GetIfPresent("Ab3dEf9x.png"); !ok {
			t.Fatalf("запись вытеснена несмотря на регулярные чтения (итерация %d)", i)
		}
	}

	// Пауза дольше срока — запись истекает
	time.Sleep(200 * time.Millisecond)
	if _, ok := cache.GetIfPresent("Ab3dEf9x.png"); ok {
		t.Error("запись должна истечь по сроку с последнего чтения")
	}
}

// TestCache_Remove проверяет явное удаление записи.
func TestCache_Remove(t *testing.T) {
	cache := NewCacheService(time.Hour, time.Hour)

	cache.Put("Ab3dEf9x.png", cacheRecord("Ab3dEf9x"), "/p")
	cache.Remove("Ab3dEf9x.png")

	if _, ok := cache.GetIfPresent("Ab3dEf9x.png"); ok {
		t.Error("запись должна отсутствовать после Remove")
	}
	if cache.Len() != 0 {
		t.Errorf("Len = %d, ожидалось 0", cache.Len())
	}
}
