package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/horo/internal/invite"
	"github.com/hitoshi/horo/internal/metrics"
	"github.com/hitoshi/horo/internal/middleware"
	"github.com/hitoshi/horo/internal/model"
)

// DefaultInviteRedirect は招待使用後の遷移先。
const DefaultInviteRedirect = "/compatibility"

// InviteServiceInterface は招待ハンドラーが必要とするサービスインターフェース。
type InviteServiceInterface interface {
	Issue(ctx context.Context, inviterID string, ttl time.Duration) (*invite.IssuedInvite, error)
	Resolve(ctx context.Context, token string) (*invite.Resolution, error)
	Consume(ctx context.Context, token, userID string) (*invite.Resolution, error)
}

// InviteHandlerConfig は招待ハンドラーの設定。
type InviteHandlerConfig struct {
	// GenericErrors がtrueなら、存在しない・期限切れ・使用済みを区別せず404を返す。
	GenericErrors bool
	RedirectTo    string
}

// InviteHandler は招待関連のHTTPハンドラー。
type InviteHandler struct {
	service InviteServiceInterface
	config  InviteHandlerConfig
	metrics metrics.MetricsCollector
}

// NewInviteHandler はInviteHandlerを生成する。
func NewInviteHandler(service InviteServiceInterface, config InviteHandlerConfig, collector metrics.MetricsCollector) *InviteHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if config.RedirectTo == "" {
		config.RedirectTo = DefaultInviteRedirect
	}
	return &InviteHandler{
		service: service,
		config:  config,
		metrics: collector,
	}
}

type issueInviteResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type resolveInviteResponse struct {
	InviterName string    `json:"inviterName"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Consumed    bool      `json:"consumed"`
}

type useInviteResponse struct {
	Success    bool   `json:"success"`
	InviterID  string `json:"inviterId"`
	RedirectTo string `json:"redirectTo"`
}

// Issue はログインユーザーを招待者とする招待を発行する。
// POST /invite
func (h *InviteHandler) Issue(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	issued, err := h.service.Issue(r.Context(), userID, 0)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	h.metrics.RecordInviteIssued()

	middleware.WriteJSON(w, http.StatusCreated, issueInviteResponse{
		Token:     issued.Token,
		URL:       issued.URL,
		CreatedAt: issued.CreatedAt,
		ExpiresAt: issued.ExpiresAt,
	})
}

// Resolve は招待を消費せずに招待者情報を返す。
// GET /invite/{token}
func (h *InviteHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("token is required"))
		return
	}

	res, err := h.service.Resolve(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, resolveInviteResponse{
		InviterName: res.InviterName,
		CreatedAt:   res.CreatedAt,
		ExpiresAt:   res.ExpiresAt,
		Consumed:    res.Consumed,
	})
}

// Use はログインユーザーとして招待を使用する。
// POST /invite/{token}/use
func (h *InviteHandler) Use(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}
	token := chi.URLParam(r, "token")
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("token is required"))
		return
	}

	res, err := h.service.Consume(r.Context(), token, userID)
	if err != nil {
		h.metrics.RecordInviteConsumed(metrics.ResultFailure)
		h.writeError(w, r, err)
		return
	}
	h.metrics.RecordInviteConsumed(metrics.ResultSuccess)

	middleware.WriteJSON(w, http.StatusOK, useInviteResponse{
		Success:    true,
		InviterID:  res.InviterID,
		RedirectTo: h.config.RedirectTo,
	})
}

// writeError は招待エラーを書き込む。GenericErrorsが有効なら状態を区別しない。
func (h *InviteHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if h.config.GenericErrors &&
		(errors.Is(err, model.ErrInviteNotFound) ||
			errors.Is(err, model.ErrInviteExpired) ||
			errors.Is(err, model.ErrInviteAlreadyConsumed)) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewInviteUnavailableError())
		return
	}
	middleware.WriteServiceError(w, r, err)
}
