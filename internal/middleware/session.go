// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sermonhub/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey      = contextKey("session")
	membershipContextKey   = contextKey("membership")
	unconfiguredContextKey = contextKey("session_store_unconfigured")
)

// SessionGetter はセッションの検索に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionGetter interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
}

// MembershipResolver はidentityを所属に解決するインターフェース。
type MembershipResolver interface {
	Resolve(ctx context.Context, userID string) (*model.Membership, *model.APIError)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 有効なセッションをリクエストコンテキストに注入する。
// このミドルウェア自体はリクエストを拒否しない。拒否はRequire系のガードが行う。
// storeがnilの場合はセッションストア未設定としてマークする。
func NewSessionMiddleware(store SessionGetter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				ctx := context.WithValue(r.Context(), unconfiguredContextKey, true)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			sessionID := SessionIDFromRequest(r)
			if sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := store.GetSession(r.Context(), sessionID)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			setRequestUserID(r.Context(), session.UserID)
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// RequireIdentity は認証済みセッションを必須とするガード。
// セッションストア未設定の場合は503、未認証の場合は401を返す。
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unconfigured, _ := r.Context().Value(unconfiguredContextKey).(bool); unconfigured {
			WriteAPIError(w, model.NewConfigurationMissingError("DATABASE_URL"))
			return
		}
		if SessionFromContext(r.Context()) == nil {
			WriteAPIError(w, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRequireMembership は認証済みidentityを所属教会に解決し、
// 解決できた所属をコンテキストに注入するガードを返す。
// RequireIdentityの後に配置する。
func NewRequireMembership(members MembershipResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteAPIError(w, model.NewUnauthorizedError())
				return
			}
			if members == nil {
				WriteAPIError(w, model.NewConfigurationMissingError("DATABASE_URL"))
				return
			}

			membership, apiErr := members.Resolve(r.Context(), userID)
			if apiErr != nil {
				WriteAPIError(w, apiErr)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithMembership(r.Context(), membership)))
		})
	}
}

// RequireAdmin はプラットフォーム管理者のみ通過させるガード。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		if identity == nil {
			WriteAPIError(w, model.NewUnauthorizedError())
			return
		}
		if !identity.Metadata.IsAdmin {
			WriteAPIError(w, model.NewForbiddenError("管理者権限が必要です。"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireEditor は編集権限（admin/editor）を持つ所属のみ通過させるガード。
// NewRequireMembershipの後に配置する。
func RequireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		membership := MembershipFromContext(r.Context())
		if membership == nil {
			WriteAPIError(w, model.NewNoChurchRecordError())
			return
		}
		if !membership.Role.CanEdit() {
			WriteAPIError(w, model.NewForbiddenError("説教を編集する権限がありません。"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// IdentityFromContext はセッションに紐づくidentityを取得する。
func IdentityFromContext(ctx context.Context) *model.Identity {
	session := SessionFromContext(ctx)
	if session == nil {
		return nil
	}
	return session.Identity
}

// MembershipFromContext は解決済みの所属を取得する。
func MembershipFromContext(ctx context.Context) *model.Membership {
	membership, _ := ctx.Value(membershipContextKey).(*model.Membership)
	return membership
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	session := SessionFromContext(ctx)
	if session == nil || session.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return session.UserID, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// ContextWithMembership はコンテキストに所属を注入する。
func ContextWithMembership(ctx context.Context, membership *model.Membership) context.Context {
	return context.WithValue(ctx, membershipContextKey, membership)
}
