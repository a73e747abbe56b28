// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sermonhub/internal/auth"
	"github.com/hitoshi/sermonhub/internal/middleware"
	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/resolver"
)

const (
	defaultStateTimeout      = 5 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
)

// AuthServiceInterface は認証ハンドラーがSession Storeに直接委譲する操作。
type AuthServiceInterface interface {
	RefreshSession(ctx context.Context, sessionID string) (*model.Session, error)
	ResetPasswordForEmail(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

// SessionClientFactory はブラウザクライアント単位のSession Storeビューを生成する。
type SessionClientFactory func(clientID, sessionID string) resolver.SessionStore

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie middleware.CookieConfig

	// StateTimeout は所属の解決完了を待つ上限。
	StateTimeout time.Duration
	// HeartbeatInterval はSSEのコメント行を送る間隔。
	HeartbeatInterval time.Duration
}

// AuthHandler はサインイン・サインアウトと認証状態のHTTPハンドラー。
// リクエストごとにResolverを生成し、Session Storeの変化通知から状態を組み立てる。
type AuthHandler struct {
	service AuthServiceInterface
	clients SessionClientFactory
	members *resolver.MembershipResolver
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
// serviceまたはclientsがnilの場合、Session Storeは未設定として扱う。
func NewAuthHandler(service AuthServiceInterface, clients SessionClientFactory, members *resolver.MembershipResolver, config AuthHandlerConfig) *AuthHandler {
	if config.StateTimeout <= 0 {
		config.StateTimeout = defaultStateTimeout
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaultHeartbeatInterval
	}
	return &AuthHandler{
		service: service,
		clients: clients,
		members: members,
		config:  config,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type passwordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type identityResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

type membershipResponse struct {
	ID       string          `json:"id"`
	ChurchID string          `json:"church_id"`
	Role     string          `json:"role"`
	Church   *churchResponse `json:"church,omitempty"`
}

// authStateResponse はResolverの状態スナップショット。
type authStateResponse struct {
	Identity   *identityResponse   `json:"identity"`
	Membership *membershipResponse `json:"membership"`
	IsLoading  bool                `json:"is_loading"`
	FetchError *string             `json:"fetch_error"`
}

func toAuthStateResponse(st resolver.State) authStateResponse {
	resp := authStateResponse{IsLoading: st.IsLoading}
	if st.Identity != nil {
		resp.Identity = &identityResponse{
			ID:      st.Identity.ID,
			Email:   st.Identity.Email,
			IsAdmin: st.Identity.Metadata.IsAdmin,
		}
	}
	if st.Membership != nil {
		resp.Membership = &membershipResponse{
			ID:       st.Membership.ID,
			ChurchID: st.Membership.ChurchID,
			Role:     string(st.Membership.Role),
		}
		if st.Membership.Church != nil {
			c := toChurchResponse(st.Membership.Church)
			resp.Membership.Church = &c
		}
	}
	if st.FetchError != nil {
		msg := st.FetchErrorMessage()
		resp.FetchError = &msg
	}
	return resp
}

// newResolver はリクエストのクライアントとセッションに対するResolverを生成する。
func (h *AuthHandler) newResolver(r *http.Request) *resolver.Resolver {
	var store resolver.SessionStore
	if h.clients != nil && h.service != nil {
		store = h.clients(clientIDFor(r), middleware.SessionIDFromRequest(r))
	}
	return resolver.New(store, h.members)
}

// clientIDFor はクライアントIDを返す。Cookieがない場合はこのリクエスト限りのIDを使う。
func clientIDFor(r *http.Request) string {
	if id := auth.ClientIDFromContext(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

// settle は解決完了を待って状態を返す。タイムアウト時は読み込み中の状態を返す。
func (h *AuthHandler) settle(ctx context.Context, res *resolver.Resolver) resolver.State {
	ctx, cancel := context.WithTimeout(ctx, h.config.StateTimeout)
	defer cancel()
	st, err := res.Settled(ctx)
	if err != nil {
		slog.Warn("membership resolution did not settle", slog.String("error", err.Error()))
	}
	return st
}

// State は現在の認証・テナント状態を返す。
// GET /auth/state
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	res := h.newResolver(r)
	res.Start(r.Context())
	defer res.Close()

	writeJSON(w, http.StatusOK, toAuthStateResponse(h.settle(r.Context(), res)))
}

// Events は認証状態の変化をServer-Sent Eventsで配信する。接続が切れるまで続く。
// GET /auth/events
func (h *AuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("streaming unsupported by response writer")
		middleware.WriteInternalServerError(w)
		return
	}
	// サーバーのWriteTimeoutをこの接続では解除する
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("failed to clear write deadline", slog.String("error", err.Error()))
	}

	h.streamHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	res := h.newResolver(r)
	res.Start(r.Context())
	defer res.Close()

	heartbeat := time.NewTicker(h.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-res.Changes():
			if err := writeEvent(w, "state", toAuthStateResponse(st)); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *AuthHandler) streamHeaders(w http.ResponseWriter) {
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// SignIn はメールアドレスとパスワードでサインインし、解決済みの状態を返す。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, http.StatusOK, (*resolver.Resolver).SignIn)
}

// SignUp はidentityを作成してサインインし、解決済みの状態を返す。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, http.StatusCreated, (*resolver.Resolver).SignUp)
}

func (h *AuthHandler) authenticate(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	op func(*resolver.Resolver, context.Context, string, string) (*model.Session, error),
) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := h.newResolver(r)
	res.Start(r.Context())
	defer res.Close()

	session, err := op(res, r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.SetSessionCookie(w, h.config.Cookie, session.ID)

	writeJSON(w, status, toAuthStateResponse(h.settle(r.Context(), res)))
}

// SignOut はセッションを破棄する。失敗してもCookieはクリアする。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	res := h.newResolver(r)
	defer res.Close()

	if err := res.SignOut(r.Context()); err != nil {
		slog.Error("failed to sign out", slog.String("error", err.Error()))
	}
	middleware.ClearSessionCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh は現在のセッションを新しいIDに置き換える。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		middleware.WriteAPIError(w, model.NewConfigurationMissingError("DATABASE_URL"))
		return
	}
	sessionID := middleware.SessionIDFromRequest(r)
	if sessionID == "" {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	ctx := auth.WithClientID(r.Context(), clientIDFor(r))
	session, err := h.service.RefreshSession(ctx, sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if session == nil {
		middleware.ClearSessionCookie(w, h.config.Cookie)
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	middleware.SetSessionCookie(w, h.config.Cookie, session.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"expires_at": session.ExpiresAt,
	})
}

// RequestPasswordReset はパスワードリセットメールの送信を依頼する。
// 登録有無にかかわらず202を返す。
// POST /auth/password-reset
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		middleware.WriteAPIError(w, model.NewConfigurationMissingError("DATABASE_URL"))
		return
	}
	var req passwordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.ResetPasswordForEmail(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "If an account exists for this email, a password reset link has been sent.",
	})
}

// ConfirmPasswordReset はリセットトークンを検証して新しいパスワードを設定する。
// POST /auth/password-reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		middleware.WriteAPIError(w, model.NewConfigurationMissingError("DATABASE_URL"))
		return
	}
	var req passwordResetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
