package model

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrorKind はエラーの種別を表すタグ。
// 外部コラボレーター呼び出しの失敗は境界で必ず3種別のいずれかに正規化される。
type ErrorKind string

const (
	// KindConfigurationMissing は必須の外部設定が存在しないことを表す。再試行不可。
	KindConfigurationMissing ErrorKind = "configuration_missing"
	// KindNotFound は検索が正常に0件を返したことを表す。
	KindNotFound ErrorKind = "not_found"
	// KindTransportOrServer はそれ以外のコラボレーター由来の失敗を表す。
	KindTransportOrServer ErrorKind = "transport_or_server"

	// 以下はAPIリクエスト自体の問題を表す種別。
	KindValidation   ErrorKind = "validation"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindConflict     ErrorKind = "conflict"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind // エラー種別
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: auth, validation, tenant, sermon, intake, system
	Action   string    // ユーザー向け対処方法
	Err      error     // 元のエラー（ログ用、レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は元のエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeConfigurationMissing = "CONFIGURATION_MISSING"
	ErrCodeNoChurchRecord       = "NO_CHURCH_RECORD"
	ErrCodeUpstreamFailure      = "UPSTREAM_FAILURE"
	ErrCodeValidation           = "VALIDATION_FAILED"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	ErrCodeDuplicateSlug        = "DUPLICATE_SLUG"
	ErrCodeChurchNotFound       = "CHURCH_NOT_FOUND"
	ErrCodeSermonNotFound       = "SERMON_NOT_FOUND"
	ErrCodeContentNotFound      = "CONTENT_NOT_FOUND"
	ErrCodeIntakeRejected       = "INTAKE_REJECTED"
	ErrCodeInvalidResetToken    = "INVALID_RESET_TOKEN"
)

// MsgConfigurationMissing は設定欠如時に表示する固定メッセージ。
const MsgConfigurationMissing = "configuration missing"

// MsgNoChurchRecord はidentityに紐づくテナントがない場合のメッセージ。
const MsgNoChurchRecord = "No church record found for this account"

// NewConfigurationMissingError は外部設定欠如エラーを生成する。
// settingには欠如している設定名を指定する（ログ用）。
func NewConfigurationMissingError(setting string) *APIError {
	return &APIError{
		Kind:     KindConfigurationMissing,
		Code:     ErrCodeConfigurationMissing,
		Message:  MsgConfigurationMissing,
		Category: "system",
		Action:   "管理者に設定を確認するよう依頼してください。",
		Err:      fmt.Errorf("setting not configured: %s", setting),
	}
}

// NewNoChurchRecordError はアカウントにテナントが割り当てられていない場合のエラーを生成する。
func NewNoChurchRecordError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeNoChurchRecord,
		Message:  MsgNoChurchRecord,
		Category: "tenant",
		Action:   "管理者に連絡して教会アカウントの割り当てを依頼してください。",
	}
}

// NewUpstreamError はコラボレーター呼び出しの失敗をTransportOrServerとして包む。
// メッセージには元のエラーメッセージをそのまま使う。
func NewUpstreamError(err error) *APIError {
	msg := "unexpected error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &APIError{
		Kind:     KindTransportOrServer,
		Code:     ErrCodeUpstreamFailure,
		Message:  msg,
		Category: "system",
		Action:   "しばらく待ってから再度お試しいただくか、サポートにお問い合わせください。",
		Err:      err,
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   fmt.Sprintf("%s を確認してください。", field),
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードの不一致エラーを生成する。
// どちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeInvalidCredentials,
		Message:  "invalid login credentials",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
		Action:   "必要な権限を管理者に依頼してください。",
	}
}

// NewDuplicateEmailError は登録済みメールアドレスでのサインアップエラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、パスワードのリセットを依頼してください。",
	}
}

// NewDuplicateSlugError は重複したslugでの教会登録エラーを生成する。
func NewDuplicateSlugError(slug string) *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateSlug,
		Message:  fmt.Sprintf("slugは既に使用されています: %s", slug),
		Category: "tenant",
		Action:   "別のslugを指定してください。",
	}
}

// NewChurchNotFoundError は教会が見つからない場合のエラーを生成する。
func NewChurchNotFoundError(churchID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeChurchNotFound,
		Message:  fmt.Sprintf("指定された教会が見つかりません: %s", churchID),
		Category: "tenant",
		Action:   "教会IDを確認してください。",
	}
}

// NewSermonNotFoundError は説教が見つからない場合のエラーを生成する。
func NewSermonNotFoundError(sermonID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeSermonNotFound,
		Message:  fmt.Sprintf("指定された説教が見つかりません: %s", sermonID),
		Category: "sermon",
		Action:   "説教IDを確認してください。",
	}
}

// NewContentNotFoundError は説教の派生コンテンツ行が存在しない場合のエラーを生成する。
func NewContentNotFoundError(sermonID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeContentNotFound,
		Message:  fmt.Sprintf("説教のコンテンツがまだありません: %s", sermonID),
		Category: "sermon",
		Action:   "コンテンツの生成完了までお待ちください。",
	}
}

// NewIntakeRejectedError はWebhookへの送信失敗エラーを生成する。
func NewIntakeRejectedError(err error) *APIError {
	return &APIError{
		Kind:     KindTransportOrServer,
		Code:     ErrCodeIntakeRejected,
		Message:  "Failed to submit sermon. Please try again or contact support.",
		Category: "intake",
		Action:   "しばらく待ってから再度送信してください。",
		Err:      err,
	}
}

// NewInvalidResetTokenError はパスワードリセットトークンが無効な場合のエラーを生成する。
func NewInvalidResetTokenError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeInvalidResetToken,
		Message:  "パスワードリセットのリンクが無効か期限切れです。",
		Category: "auth",
		Action:   "もう一度パスワードのリセットを依頼してください。",
	}
}

// Normalize は任意のエラーを境界でAPIErrorに正規化する。
//   - *APIError はそのまま返す
//   - sql.ErrNoRows はNotFound
//   - それ以外はTransportOrServer（元のメッセージを保持）
//
// nilにはnilを返す。
func Normalize(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &APIError{
			Kind:     KindNotFound,
			Code:     "NOT_FOUND",
			Message:  "record not found",
			Category: "system",
			Action:   "管理者にお問い合わせください。",
			Err:      err,
		}
	}
	return NewUpstreamError(err)
}

// IsKind はエラーが指定種別のAPIErrorかを判定する。
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}
