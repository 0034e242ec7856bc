// health.go — обработчики health endpoints.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/arturkryukov/imagery/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// IndexCounter — интерфейс для проверки загруженности индекса.
type IndexCounter interface {
	Count() int
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// storageDir — путь к директории хранения (для проверки FS)
	storageDir string
	// idx — ссылка на индекс
	idx IndexCounter
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(storageDir string, idx IndexCounter) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		storageDir: storageDir,
		idx:        idx,
	}
}

// Live обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "imagery",
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready обрабатывает GET /health/ready.
// Проверяет доступность директории хранения на запись.
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "imagery",
		"checks": map[string]any{
			"filesystem": fsCheck,
		},
	}
	if h.idx != nil {
		resp["files"] = h.idx.Count()
	}

	writeJSON(w, httpStatus, resp)
}

// checkFilesystem проверяет доступность директории хранения на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	testFile := filepath.Join(h.storageDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория хранения недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}
