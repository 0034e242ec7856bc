package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestClientIP проверяет восстановление IP клиента из доверенного
// заголовка прокси и из адреса соединения.
func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		header     string
		headerVal  string
		remoteAddr string
		want       string
	}{
		{"заголовок прокси", "CF-Connecting-IP", "203.0.113.7", "10.0.0.1:4567", "203.0.113.7"},
		{"цепочка X-Forwarded-For", "X-Forwarded-For", "203.0.113.7, 10.0.0.2", "10.0.0.1:4567", "203.0.113.7"},
		{"без заголовка", "CF-Connecting-IP", "", "10.0.0.1:4567", "10.0.0.1"},
		{"заголовок не настроен", "", "", "10.0.0.1:4567", "10.0.0.1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.headerVal != "" {
				req.Header.Set(tc.header, tc.headerVal)
			}

			if got := ClientIP(req, tc.header); got != tc.want {
				t.Errorf("ClientIP = %q, ожидалось %q", got, tc.want)
			}
		})
	}
}

// TestResponseWriter проверяет перехват статус-кода и размера ответа.
func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusNotFound)
	if _, err := rw.Write([]byte("not found")); err != nil {
		t.Fatal(err)
	}

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, ожидался 404", rw.statusCode)
	}
	if rw.written != int64(len("not found")) {
		t.Errorf("written = %d, ожидалось %d", rw.written, len("not found"))
	}
}

// TestResponseWriter_DefaultStatus проверяет статус 200 по умолчанию,
// когда обработчик не вызывает WriteHeader явно.
func TestResponseWriter_DefaultStatus(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	if _, err := rw.Write([]byte("ok")); err != nil {
		t.Fatal(err)
	}
	if rw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, ожидался 200", rw.statusCode)
	}
}
