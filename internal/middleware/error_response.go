package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sermonhub/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// StatusForKind はエラー種別をHTTPステータスコードに対応付ける。
func StatusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindConfigurationMissing:
		return http.StatusServiceUnavailable
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindTransportOrServer:
		return http.StatusBadGateway
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteAPIError は種別に応じたステータスコードでAPIErrorを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForKind(apiErr.Kind), apiErr)
}

// WriteServiceError はサービス層のエラーをレスポンスに変換する。
// APIError以外はディレクトリ等の呼び出し失敗として扱い、詳細はログのみに残す。
func WriteServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Err != nil && apiErr.Kind == model.KindTransportOrServer {
			slog.Error("collaborator request failed",
				slog.String("code", apiErr.Code),
				slog.String("error", apiErr.Err.Error()),
			)
		}
		WriteAPIError(w, apiErr)
		return
	}

	slog.Error("collaborator request failed", slog.String("error", err.Error()))
	WriteAPIError(w, &model.APIError{
		Kind:     model.KindTransportOrServer,
		Code:     model.ErrCodeUpstreamFailure,
		Message:  "The request could not be completed. Please try again or contact support.",
		Category: "system",
		Action:   "しばらく待ってから再度お試しいただくか、サポートにお問い合わせください。",
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
