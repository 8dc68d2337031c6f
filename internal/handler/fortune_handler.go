package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/horo/internal/metrics"
	"github.com/hitoshi/horo/internal/middleware"
	"github.com/hitoshi/horo/internal/model"
)

// maxProfileBodyBytes はプロフィールリクエストボディの上限。
const maxProfileBodyBytes = 16 << 10

// FortuneServiceInterface は鑑定ハンドラーが必要とするサービスインターフェース。
type FortuneServiceInterface interface {
	Teaser(ctx context.Context, p model.BirthProfile) (*model.Teaser, error)
	SaveProfile(ctx context.Context, userID string, p model.BirthProfile) (*model.StoredProfile, error)
}

// FortuneHandler は鑑定関連のHTTPハンドラー。
type FortuneHandler struct {
	service  FortuneServiceInterface
	metrics  metrics.MetricsCollector
	validate *validator.Validate
}

// NewFortuneHandler はFortuneHandlerを生成する。
func NewFortuneHandler(service FortuneServiceInterface, collector metrics.MetricsCollector) *FortuneHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &FortuneHandler{
		service:  service,
		metrics:  collector,
		validate: validate,
	}
}

type birthTimeRequest struct {
	Period      string `json:"period" validate:"max=32"`
	ChineseHour int    `json:"chineseHour" validate:"min=0,max=23"`
	IsUnknown   bool   `json:"isUnknown"`
}

// profileRequest は出生プロフィールのリクエストボディ。
type profileRequest struct {
	Name      string            `json:"name" validate:"required,max=100"`
	BirthDate string            `json:"birthDate" validate:"required,datetime=2006-01-02"`
	Gender    string            `json:"gender" validate:"omitempty,oneof=male female other"`
	BirthTime *birthTimeRequest `json:"birthTime"`
}

func (req profileRequest) toModel() model.BirthProfile {
	p := model.BirthProfile{
		Name:      req.Name,
		BirthDate: req.BirthDate,
		Gender:    model.Gender(req.Gender),
	}
	if req.BirthTime != nil {
		p.BirthTime = &model.BirthTime{
			Period:      req.BirthTime.Period,
			ChineseHour: req.BirthTime.ChineseHour,
			Unknown:     req.BirthTime.IsUnknown,
		}
	}
	return p
}

type teaserResponse struct {
	ElementType  string `json:"elementType"`
	Personality  string `json:"personality"`
	TodaySnippet string `json:"todaySnippet"`
	LuckyColor   string `json:"luckyColor"`
	LuckyNumber  int    `json:"luckyNumber"`
}

// Teaser は認証なしで簡易鑑定を返す。
// POST /fortune/teaser
func (h *FortuneHandler) Teaser(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProfile(w, r)
	if !ok {
		return
	}

	start := time.Now()
	teaser, err := h.service.Teaser(r.Context(), req.toModel())
	if err != nil {
		h.metrics.RecordTeaser(metrics.ResultFailure, time.Since(start))
		middleware.WriteServiceError(w, r, err)
		return
	}
	h.metrics.RecordTeaser(metrics.ResultSuccess, time.Since(start))

	middleware.WriteJSON(w, http.StatusOK, teaserResponse{
		ElementType:  teaser.ElementType,
		Personality:  teaser.Personality,
		TodaySnippet: teaser.TodaySnippet,
		LuckyColor:   teaser.LuckyColor,
		LuckyNumber:  teaser.LuckyNumber,
	})
}

// SaveProfile はログインユーザーの出生プロフィールを保存する。
// POST /fortune/profile
func (h *FortuneHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	req, ok := h.decodeProfile(w, r)
	if !ok {
		return
	}

	stored, err := h.service.SaveProfile(r.Context(), userID, req.toModel())
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"profileId": stored.ID,
	})
}

// decodeProfile はボディを読み込んで検証する。失敗時はレスポンスを書き込みfalseを返す。
func (h *FortuneHandler) decodeProfile(w http.ResponseWriter, r *http.Request) (profileRequest, bool) {
	var req profileRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxProfileBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("invalid request body"))
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(validationMessage(err)))
		return req, false
	}
	return req, true
}

// validationMessage は検証エラーを利用者向けの短い文に変換する。
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must be YYYY-MM-DD", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
