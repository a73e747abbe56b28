package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	resetTokenIssuer  = "sermonhub"
	resetTokenPurpose = "password_reset"
)

// errInvalidResetToken はリセットトークンの署名・期限・用途のいずれかが不正なことを表す。
var errInvalidResetToken = errors.New("invalid reset token")

// resetClaims はパスワードリセットトークンのペイロード。
// PasswordFingerprintはパスワード変更後にトークンを無効化するために使う。
type resetClaims struct {
	Email               string `json:"email"`
	Purpose             string `json:"purpose"`
	PasswordFingerprint string `json:"pwf"`
	jwt.RegisteredClaims
}

// ResetTokenService はHS256で署名したパスワードリセットトークンを発行・検証する。
type ResetTokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewResetTokenService はResetTokenServiceを生成する。
func NewResetTokenService(secret string, ttl time.Duration) *ResetTokenService {
	return &ResetTokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// ResetTarget はリセットトークンから復元した対象アカウント。
type ResetTarget struct {
	UserID              string
	Email               string
	PasswordFingerprint string
}

// Generate はidentity向けのリセットトークンを発行する。
func (s *ResetTokenService) Generate(userID, email, passwordHash string) (string, error) {
	now := s.now()
	c := resetClaims{
		Email:               email,
		Purpose:             resetTokenPurpose,
		PasswordFingerprint: passwordFingerprint(passwordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    resetTokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}
	return signed, nil
}

// Validate はトークンを検証し、対象アカウントを返す。
func (s *ResetTokenService) Validate(token string) (*ResetTarget, error) {
	parsed, err := jwt.ParseWithClaims(token, &resetClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(resetTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidResetToken, err)
	}
	c, ok := parsed.Claims.(*resetClaims)
	if !ok || !parsed.Valid || c.Purpose != resetTokenPurpose || c.Subject == "" {
		return nil, errInvalidResetToken
	}
	return &ResetTarget{UserID: c.Subject, Email: c.Email, PasswordFingerprint: c.PasswordFingerprint}, nil
}

func passwordFingerprint(passwordHash string) string {
	return strconv.FormatUint(xxhash.Sum64String(passwordHash), 16)
}
