package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/horo/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteJSON はJSONレスポンスを書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteJSON(w, statusCode, ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// ErrorStatus はサービス層のエラーをHTTPステータスとエラーレスポンスに変換する。
// 個別エラーを先に判定し、該当しなければ種別エラーで判定する。
func ErrorStatus(err error) (int, *model.APIError) {
	switch {
	case errors.Is(err, model.ErrInviteExpired):
		return http.StatusGone, model.NewInviteExpiredError()
	case errors.Is(err, model.ErrInviteNotFound):
		return http.StatusNotFound, model.NewInviteNotFoundError()
	case errors.Is(err, model.ErrInviteAlreadyConsumed):
		return http.StatusConflict, model.NewInviteAlreadyUsedError()
	case errors.Is(err, model.ErrSelfInvite):
		return http.StatusBadRequest, model.NewSelfInviteError()
	case errors.Is(err, model.ErrUserNotFound):
		return http.StatusNotFound, model.NewUserNotFoundError()
	case errors.Is(err, model.ErrExchangeFailed):
		return http.StatusUnauthorized, model.NewAuthFailedError()

	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest, model.NewInvalidRequestError(err.Error())
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized, model.NewUnauthenticatedError()
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, model.NewNotFoundError()
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, model.NewConflictError()
	case errors.Is(err, model.ErrUpstreamFailure):
		return http.StatusBadGateway, model.NewUpstreamFailureError()
	default:
		return http.StatusInternalServerError, model.NewInternalError()
	}
}

// WriteServiceError はサービス層のエラーを統一フォーマットで書き込む。
// 5xxの場合はエラー詳細をログに記録する。
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	WriteErrorResponse(w, status, apiErr)
}
