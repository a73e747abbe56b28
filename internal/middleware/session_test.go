package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sermonhub/internal/model"
)

// --- モック定義 ---

type mockSessionStore struct {
	getSessionFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, id)
	}
	return nil, nil
}

type mockMembershipResolver struct {
	resolveFn func(ctx context.Context, userID string) (*model.Membership, *model.APIError)
}

func (m *mockMembershipResolver) Resolve(ctx context.Context, userID string) (*model.Membership, *model.APIError) {
	return m.resolveFn(ctx, userID)
}

func validSessionStore(userID string) *mockSessionStore {
	return &mockSessionStore{
		getSessionFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "valid-session-id" {
				return nil, nil
			}
			return &model.Session{
				ID:        id,
				UserID:    userID,
				ExpiresAt: time.Now().Add(time.Hour),
				Identity:  &model.Identity{ID: userID, Email: userID + "@example.org"},
			}, nil
		},
	}
}

func requestWithSession(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session-id"})
	return req
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- NewSessionMiddleware ---

func TestSessionMiddleware_ValidSession_InjectsSession(t *testing.T) {
	var capturedUserID string
	var capturedSession *model.Session
	handler := NewSessionMiddleware(validSessionStore("user-123"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedUserID, _ = UserIDFromContext(r.Context())
		capturedSession = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithSession(http.MethodGet, "/api/sermons"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-123")
	}
	if capturedSession == nil || capturedSession.ID != "valid-session-id" {
		t.Errorf("session = %+v, want valid-session-id", capturedSession)
	}
}

// セッションミドルウェア自体は未認証リクエストを拒否しない
func TestSessionMiddleware_NoSession_PassesThroughAnonymous(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
		store  *mockSessionStore
	}{
		{name: "no cookie", store: validSessionStore("u")},
		{name: "empty cookie", cookie: &http.Cookie{Name: SessionCookieName, Value: ""}, store: validSessionStore("u")},
		{name: "unknown session", cookie: &http.Cookie{Name: SessionCookieName, Value: "expired"}, store: validSessionStore("u")},
		{
			name:   "store error",
			cookie: &http.Cookie{Name: SessionCookieName, Value: "valid-session-id"},
			store: &mockSessionStore{getSessionFn: func(ctx context.Context, id string) (*model.Session, error) {
				return nil, errors.New("db down")
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewSessionMiddleware(tt.store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if SessionFromContext(r.Context()) != nil {
					t.Error("expected no session in context")
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/auth/state", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if !called {
				t.Error("next handler should be called")
			}
		})
	}
}

// --- RequireIdentity ---

func TestRequireIdentity_NoSession_Returns401(t *testing.T) {
	handler := NewSessionMiddleware(validSessionStore("u"))(RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sermons", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
	}
}

func TestRequireIdentity_StoreUnconfigured_Returns503(t *testing.T) {
	handler := NewSessionMiddleware(nil)(RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithSession(http.MethodGet, "/api/sermons"))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if body := decodeErrorBody(t, w); body.Message != model.MsgConfigurationMissing {
		t.Errorf("message = %q, want %q", body.Message, model.MsgConfigurationMissing)
	}
}

func TestRequireIdentity_ValidSession_PassesThrough(t *testing.T) {
	called := false
	handler := NewSessionMiddleware(validSessionStore("u"))(RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})))

	handler.ServeHTTP(httptest.NewRecorder(), requestWithSession(http.MethodGet, "/api/sermons"))

	if !called {
		t.Error("handler should be called")
	}
}

// --- NewRequireMembership ---

func TestRequireMembership_Resolved_InjectsMembership(t *testing.T) {
	resolver := &mockMembershipResolver{resolveFn: func(ctx context.Context, userID string) (*model.Membership, *model.APIError) {
		return &model.Membership{ChurchID: "church-1", UserID: userID, Role: model.RoleEditor}, nil
	}}

	var got *model.Membership
	handler := NewRequireMembership(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = MembershipFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sermons", nil)
	req = req.WithContext(ContextWithSession(req.Context(), &model.Session{UserID: "user-1"}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || got.ChurchID != "church-1" || got.UserID != "user-1" {
		t.Errorf("membership = %+v, want church-1 for user-1", got)
	}
}

func TestRequireMembership_ResolutionErrors(t *testing.T) {
	tests := []struct {
		name       string
		apiErr     *model.APIError
		wantStatus int
		wantMsg    string
	}{
		{"no church record", model.NewNoChurchRecordError(), http.StatusNotFound, model.MsgNoChurchRecord},
		{"directory unconfigured", model.NewConfigurationMissingError("DATABASE_URL"), http.StatusServiceUnavailable, model.MsgConfigurationMissing},
		{"lookup failed", model.NewUpstreamError(errors.New("connection reset")), http.StatusBadGateway, "connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &mockMembershipResolver{resolveFn: func(ctx context.Context, userID string) (*model.Membership, *model.APIError) {
				return nil, tt.apiErr
			}}
			handler := NewRequireMembership(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/sermons", nil)
			req = req.WithContext(ContextWithSession(req.Context(), &model.Session{UserID: "user-1"}))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeErrorBody(t, w); body.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMsg)
			}
		})
	}
}

func TestRequireMembership_NilResolver_Returns503(t *testing.T) {
	handler := NewRequireMembership(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sermons", nil)
	req = req.WithContext(ContextWithSession(req.Context(), &model.Session{UserID: "user-1"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// --- RequireAdmin / RequireEditor ---

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		session    *model.Session
		wantStatus int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"non admin", &model.Session{UserID: "u", Identity: &model.Identity{ID: "u"}}, http.StatusForbidden},
		{"admin", &model.Session{UserID: "u", Identity: &model.Identity{ID: "u", Metadata: model.IdentityMetadata{IsAdmin: true}}}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/admin/churches", nil)
			if tt.session != nil {
				req = req.WithContext(ContextWithSession(req.Context(), tt.session))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireEditor(t *testing.T) {
	tests := []struct {
		name       string
		membership *model.Membership
		wantStatus int
	}{
		{"no membership", nil, http.StatusNotFound},
		{"viewer", &model.Membership{Role: model.RoleViewer}, http.StatusForbidden},
		{"editor", &model.Membership{Role: model.RoleEditor}, http.StatusOK},
		{"admin", &model.Membership{Role: model.RoleAdmin}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireEditor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodPost, "/api/sermons", nil)
			if tt.membership != nil {
				req = req.WithContext(ContextWithMembership(req.Context(), tt.membership))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// --- コンテキストアクセサ ---

func TestUserIDFromContext_NoValue_ReturnsError(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}
}

func TestIdentityFromContext_SessionWithoutIdentity_ReturnsNil(t *testing.T) {
	ctx := ContextWithSession(context.Background(), &model.Session{UserID: "u"})
	if got := IdentityFromContext(ctx); got != nil {
		t.Errorf("IdentityFromContext() = %+v, want nil", got)
	}
}

// --- chiルーターでの組み合わせ ---

func TestRouterIntegration_ProtectedRoute_WithMiddlewareChain(t *testing.T) {
	resolver := &mockMembershipResolver{resolveFn: func(ctx context.Context, userID string) (*model.Membership, *model.APIError) {
		return &model.Membership{ChurchID: "church-1", UserID: userID, Role: model.RoleViewer}, nil
	}}

	r := chi.NewRouter()
	r.Use(NewSessionMiddleware(validSessionStore("user-1")))
	r.Use(NewCSRFMiddleware(CSRFConfig{}))
	r.Group(func(r chi.Router) {
		r.Use(RequireIdentity)
		r.Use(NewRequireMembership(resolver))
		r.Get("/api/sermons", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.With(RequireEditor).Post("/api/sermons", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})

	t.Run("GET as viewer", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, requestWithSession(http.MethodGet, "/api/sermons"))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("POST as viewer is forbidden", func(t *testing.T) {
		req := requestWithSession(http.MethodPost, "/api/sermons")
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
		req.Header.Set(csrfHeaderName, "tok")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sermons", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
