// Package auth はパスワード認証、セッション管理、認証状態の変更通知を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sermonhub/internal/mail"
	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int    // セッション有効期間（秒）
	BaseURL       string // リセットリンクの生成に使う公開URL
}

// Service はSession Storeの実装。
// identity・セッションの永続化とイベント配送を担う。
type Service struct {
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	passwords   *PasswordService
	resetTokens *ResetTokenService // nilの場合パスワードリセットは設定欠如
	mailer      mail.Sender        // nilの場合パスワードリセットは設定欠如
	events      *Broadcaster
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。resetTokensまたはmailerがnilの場合、パスワードリセットは無効になる。
func NewService(
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	passwords *PasswordService,
	resetTokens *ResetTokenService,
	mailer mail.Sender,
	config ServiceConfig,
) *Service {
	return &Service{
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		passwords:   passwords,
		resetTokens: resetTokens,
		mailer:      mailer,
		events:      NewBroadcaster(),
		config:      config,
		now:         time.Now,
	}
}

// NormalizeEmail はメールアドレスを比較用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetSession は有効なセッションをidentity付きで返す。存在しないか期限切れの場合はnilを返す。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// OnAuthStateChange は認証状態変化の購読を登録し、解除関数を返す。
func (s *Service) OnAuthStateChange(cb func(Event)) func() {
	return s.events.Subscribe(cb)
}

// SignUp はidentityを作成してサインインする。
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, model.NewValidationError("email", err.Error())
	}
	if err := validatePassword(password); err != nil {
		return nil, model.NewValidationError("password", err.Error())
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	identity := &model.Identity{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.identRepo.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	slog.Info("identity created", slog.String("user_id", identity.ID))

	return s.signIn(ctx, identity)
}

// SignInWithPassword はメールアドレスとパスワードで認証してセッションを発行する。
// メールアドレスの不一致とパスワードの不一致は区別しない。
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	identity, err := s.identRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := s.passwords.Verify(identity.PasswordHash, password); err != nil {
		if errors.Is(err, errPasswordMismatch) {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, err
	}
	return s.signIn(ctx, identity)
}

// SignOut はセッションを破棄してSIGNED_OUTを通知する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("session_id", sessionID))
	s.events.Publish(Event{
		Type:              EventSignedOut,
		ClientID:          ClientIDFromContext(ctx),
		PreviousSessionID: sessionID,
	})
	return nil
}

// RefreshSession は有効なセッションを新しいIDで置き換え、TOKEN_REFRESHEDを通知する。
// 無効なセッションの場合はnilを返す。
func (s *Service) RefreshSession(ctx context.Context, sessionID string) (*model.Session, error) {
	current, err := s.GetSession(ctx, sessionID)
	if err != nil || current == nil {
		return nil, err
	}

	next, err := s.createSession(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	next.Identity = current.Identity

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete previous session: %w", err)
	}

	s.events.Publish(Event{
		Type:              EventTokenRefreshed,
		ClientID:          ClientIDFromContext(ctx),
		Session:           next,
		PreviousSessionID: sessionID,
	})
	return next, nil
}

// ResetPasswordForEmail はリセットリンクをメールで送信する。
// 未登録のメールアドレスでもnilを返し、登録有無を外部に漏らさない。
// 設定欠如の判定は登録有無に依存しないよう検索前に行う。
func (s *Service) ResetPasswordForEmail(ctx context.Context, email string) error {
	if s.resetTokens == nil {
		return model.NewConfigurationMissingError("SESSION_SECRET")
	}
	if s.mailer == nil {
		return model.NewConfigurationMissingError("SMTP_HOST")
	}

	email = NormalizeEmail(email)
	identity, err := s.identRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		slog.Info("password reset requested for unknown email")
		return nil
	}

	token, err := s.resetTokens.Generate(identity.ID, identity.Email, identity.PasswordHash)
	if err != nil {
		return err
	}

	link := strings.TrimRight(s.config.BaseURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
	msg := mail.Message{
		To:      identity.Email,
		Subject: "Reset your sermon portal password",
		Body: "A password reset was requested for your account.\n\n" +
			"Open the link below to choose a new password:\n\n" + link + "\n\n" +
			"If you did not request this, you can ignore this email.",
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	slog.Info("password reset email sent", slog.String("user_id", identity.ID))
	return nil
}

// ConfirmPasswordReset はリセットトークンを検証して新しいパスワードを設定し、
// 対象identityの全セッションを破棄する。
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if s.resetTokens == nil {
		return model.NewConfigurationMissingError("SESSION_SECRET")
	}
	if err := validatePassword(newPassword); err != nil {
		return model.NewValidationError("password", err.Error())
	}

	target, err := s.resetTokens.Validate(token)
	if err != nil {
		return model.NewInvalidResetTokenError()
	}

	identity, err := s.identRepo.FindByID(ctx, target.UserID)
	if err != nil {
		return fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil || identity.Email != target.Email ||
		passwordFingerprint(identity.PasswordHash) != target.PasswordFingerprint {
		return model.NewInvalidResetTokenError()
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.identRepo.UpdatePassword(ctx, identity.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.sessionRepo.DeleteByUserID(ctx, identity.ID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	slog.Info("password reset completed", slog.String("user_id", identity.ID))
	return nil
}

// Client は指定クライアント向けのSession Storeビューを返す。
func (s *Service) Client(clientID, sessionID string) *Client {
	return &Client{store: s, clientID: clientID, sessionID: sessionID}
}

func (s *Service) signIn(ctx context.Context, identity *model.Identity) (*model.Session, error) {
	session, err := s.createSession(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	session.Identity = identity

	slog.Info("user signed in", slog.String("user_id", identity.ID))
	s.events.Publish(Event{
		Type:     EventSignedIn,
		ClientID: ClientIDFromContext(ctx),
		Session:  session,
	})
	return session, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidateEmail はメールアドレスの最低限の形式（@の前後が空でない、空白なし）を検証する。
func ValidateEmail(email string) error {
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return fmt.Errorf("a valid email address is required")
	}
	return nil
}
