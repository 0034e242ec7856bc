// logging.go — middleware логирования HTTP-запросов через slog.
// Каждый сопоставленный запрос логируется до обработчика (метод,
// IP клиента, полный URL), а после обработки — статус, длительность
// и размер ответа. IP клиента восстанавливается из доверенного
// заголовка прокси, при его отсутствии — из адреса соединения.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// responseWriter — обёртка для перехвата статус-кода ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestLogger возвращает middleware, логирующий каждый HTTP-запрос.
// addressHeader — имя доверенного заголовка прокси с реальным IP
// клиента (например, CF-Connecting-IP).
// Уровень итоговой записи зависит от статус-кода: INFO (1xx-3xx),
// WARN (4xx), ERROR (5xx).
func RequestLogger(logger *slog.Logger, addressHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			ip := ClientIP(r, addressHeader)

			logger.Info("HTTP запрос получен",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("ip", ip),
				slog.String("host", r.Host),
				slog.String("url", r.URL.RequestURI()),
			)

			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			// Уровень логирования зависит от статус-кода
			level := slog.LevelInfo
			if wrapped.statusCode >= 500 {
				level = slog.LevelError
			} else if wrapped.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос обработан",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", duration),
				slog.Int64("bytes", wrapped.written),
				slog.String("ip", ip),
			)
		})
	}
}

// ClientIP возвращает IP клиента: значение доверенного заголовка
// прокси (первый адрес, если заголовок содержит список), иначе —
// host-часть RemoteAddr.
func ClientIP(r *http.Request, addressHeader string) string {
	if addressHeader != "" {
		if v := r.Header.Get(addressHeader); v != "" {
			// X-Forwarded-For может содержать цепочку адресов
			if idx := strings.Index(v, ","); idx != -1 {
				v = v[:idx]
			}
			return strings.TrimSpace(v)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
