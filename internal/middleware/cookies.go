package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sermonhub/internal/auth"
)

const (
	// SessionCookieName はセッションIDを保持するHTTP Only Cookie。
	SessionCookieName = "sermonhub_session"

	// ClientCookieName はブラウザ単位のクライアントIDを保持するCookie。
	// 認証状態の変化通知をクライアントごとに振り分けるために使う。
	ClientCookieName = "sermonhub_client"

	clientCookieMaxAge = 365 * 24 * 60 * 60
)

// CookieConfig はCookie属性の設定。
type CookieConfig struct {
	Secure bool
	Domain string
	// SessionMaxAge はセッションCookieの有効期間（秒）。
	SessionMaxAge int
}

// SetSessionCookie はセッションCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, cfg CookieConfig, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionIDFromRequest はセッションCookieの値を返す。未設定の場合は空文字。
func SessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// NewClientIDMiddleware はクライアントIDのCookieを発行・読み取り、
// auth.WithClientIDでリクエストコンテキストに注入する。
func NewClientIDMiddleware(cfg CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var clientID string
			if cookie, err := r.Cookie(ClientCookieName); err == nil && isClientID(cookie.Value) {
				clientID = cookie.Value
			} else {
				id, err := generateClientID()
				if err != nil {
					slog.Error("failed to generate client id", slog.String("error", err.Error()))
					next.ServeHTTP(w, r)
					return
				}
				clientID = id
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    clientID,
					Path:     "/",
					Domain:   cfg.Domain,
					MaxAge:   clientCookieMaxAge,
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClientID(r.Context(), clientID)))
		})
	}
}

func generateClientID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// isClientID は値が32桁の16進数かを判定する。
func isClientID(v string) bool {
	if len(v) != 32 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}
