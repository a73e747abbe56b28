package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// パスワード長の制約（バイト数）。bcryptは72バイトを超える入力を切り詰めるため上限を設ける。
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// errPasswordMismatch はパスワード不一致を表す。
var errPasswordMismatch = errors.New("password mismatch")

// PasswordService はbcryptによるパスワードハッシュ化と検証を提供する。
type PasswordService struct {
	cost int
}

// NewPasswordService はPasswordServiceを生成する。
// costがbcryptの許容範囲外の場合はbcrypt.DefaultCostを使う。
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordService{cost: cost}
}

// Hash は平文パスワードをハッシュ化する。
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordLength {
		return "", fmt.Errorf("password must be %d bytes or fewer", MaxPasswordLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify は平文パスワードがハッシュと一致するかを検証する。不一致の場合はerrPasswordMismatchを返す。
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return errPasswordMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to compare password hash: %w", err)
	}
	return nil
}

// validatePassword はサインアップ・リセット時のパスワード長を検証する。
func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be %d bytes or fewer", MaxPasswordLength)
	}
	return nil
}
