package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/sermonhub/internal/middleware"
	"github.com/hitoshi/sermonhub/internal/model"
)

// maxRequestBody はJSONリクエストボディの上限。
const maxRequestBody = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをJSONとして読み取る。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Kind:     model.KindValidation,
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを種別に応じたHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	middleware.WriteServiceError(w, err)
}

// membershipOrError は解決済みの所属を返す。ガードを通っていない場合は404を書き込む。
func membershipOrError(w http.ResponseWriter, r *http.Request) *model.Membership {
	membership := middleware.MembershipFromContext(r.Context())
	if membership == nil {
		middleware.WriteAPIError(w, model.NewNoChurchRecordError())
		return nil
	}
	return membership
}

// pathID はURLパラメータ{id}をUUIDとして読み取る。
// UUIDでない場合はnotFoundのエラーを書き込みfalseを返す（存在しないIDと同じ扱い）。
func pathID(w http.ResponseWriter, r *http.Request, notFound func(id string) *model.APIError) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		middleware.WriteAPIError(w, notFound(raw))
		return "", false
	}
	return id.String(), true
}
