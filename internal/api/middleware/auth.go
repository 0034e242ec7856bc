// auth.go — middleware авторизации загрузки по токену.
// Токен — непрозрачный секрет из заголовка Authorization,
// сверяется с реестром пользователей. Префикс "Bearer " допустим,
// но не обязателен. Отсутствующий или неизвестный токен — 403.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/arturkryukov/imagery/internal/api/errors"
	"github.com/arturkryukov/imagery/internal/auth"
	"github.com/arturkryukov/imagery/internal/domain/model"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyUser — ключ авторизованного пользователя в контексте запроса.
const ContextKeyUser contextKey = "auth_user"

// TokenAuth возвращает middleware авторизации по токену.
// Авторизованный пользователь помещается в контекст запроса
// для атрибуции загрузки.
func TokenAuth(registry *auth.Registry, logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("component", "token_auth"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Forbidden(w, "Отсутствует заголовок Authorization")
				return
			}

			token := extractToken(authHeader)
			user := registry.UserByToken(token)
			if user == nil {
				log.Debug("Токен не прошёл проверку",
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Forbidden(w, "Невалидный токен")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken извлекает токен из значения заголовка Authorization.
// Поддерживаются формы "Bearer <token>" и "<token>".
func extractToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return header
}

// UserFromContext извлекает авторизованного пользователя из контекста.
// Возвращает nil, если авторизация не выполнялась.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(ContextKeyUser).(*model.User)
	return user
}
