package model

import (
	"errors"
	"fmt"
)

// 種別エラー。サービス層のエラーはいずれかをラップし、
// ハンドラーはerrors.IsでHTTPステータスを決定する。
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrInternal        = errors.New("internal error")
)

// kindError は種別エラーをラップした個別エラー。
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// NewKindError はkindをラップする個別エラーを生成する。
func NewKindError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

// 個別エラー
var (
	ErrExchangeFailed        = NewKindError(ErrUpstreamFailure, "oauth code exchange failed")
	ErrGenerationFailed      = NewKindError(ErrUpstreamFailure, "text generation failed")
	ErrReconciliationFailed  = NewKindError(ErrInternal, "user reconciliation failed")
	ErrUserNotFound          = NewKindError(ErrNotFound, "user not found")
	ErrInviteNotFound        = NewKindError(ErrNotFound, "invite not found")
	ErrInviteExpired         = NewKindError(ErrNotFound, "invite expired")
	ErrInviteAlreadyConsumed = NewKindError(ErrConflict, "invite already consumed")
	ErrSelfInvite            = NewKindError(ErrInvalidRequest, "invite cannot be used by its inviter")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, invite, fortune, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnsupportedProvider = "UNSUPPORTED_PROVIDER"
	ErrCodeAuthFailed          = "AUTH_FAILED"
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeInviteNotFound      = "INVITE_NOT_FOUND"
	ErrCodeInviteExpired       = "INVITE_EXPIRED"
	ErrCodeInviteUsed          = "INVITE_ALREADY_USED"
	ErrCodeInviteUnavailable   = "INVITE_UNAVAILABLE"
	ErrCodeSelfInvite          = "SELF_INVITE"
	ErrCodeUpstreamFailure     = "UPSTREAM_FAILURE"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeCSRFInvalid         = "CSRF_TOKEN_INVALID"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnsupportedProviderError は未対応IdPエラーを生成する。
func NewUnsupportedProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedProvider,
		Message:  fmt.Sprintf("未対応のログイン方法です: %s", provider),
		Category: "validation",
		Action:   "google または x を指定してください。",
	}
}

// NewAuthFailedError はOAuth認証失敗エラーを生成する。
// IdP側のエラー詳細は含めない。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "もう一度ログインしてください。",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInviteNotFoundError は招待未検出エラーを生成する。
func NewInviteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeInviteNotFound,
		Message:  "招待リンクが見つかりません。",
		Category: "invite",
		Action:   "招待リンクのURLを確認してください。",
	}
}

// NewInviteExpiredError は招待期限切れエラーを生成する。
func NewInviteExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeInviteExpired,
		Message:  "招待リンクの有効期限が切れています。",
		Category: "invite",
		Action:   "招待した相手に新しいリンクを発行してもらってください。",
	}
}

// NewInviteAlreadyUsedError は招待使用済みエラーを生成する。
func NewInviteAlreadyUsedError() *APIError {
	return &APIError{
		Code:     ErrCodeInviteUsed,
		Message:  "この招待リンクは既に使用されています。",
		Category: "invite",
		Action:   "招待した相手に新しいリンクを発行してもらってください。",
	}
}

// NewInviteUnavailableError は招待が利用できない場合の汎用エラーを生成する。
// 未検出・期限切れ・使用済みを区別しない。
func NewInviteUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeInviteUnavailable,
		Message:  "この招待リンクは利用できません。",
		Category: "invite",
		Action:   "招待した相手に新しいリンクを発行してもらってください。",
	}
}

// NewSelfInviteError は自分の招待を使用しようとした場合のエラーを生成する。
func NewSelfInviteError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfInvite,
		Message:  "自分が発行した招待リンクは使用できません。",
		Category: "invite",
		Action:   "招待リンクを相手に共有してください。",
	}
}

// NewUpstreamFailureError は外部サービス呼び出し失敗エラーを生成する。
func NewUpstreamFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailure,
		Message:  "外部サービスとの通信に失敗しました。",
		Category: "fortune",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNotFoundError は汎用のリソース未検出エラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "リソースが見つかりません。",
		Category: "validation",
		Action:   "URLを確認してください。",
	}
}

// NewConflictError は汎用の競合エラーを生成する。
func NewConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  "リクエストが現在の状態と競合しています。",
		Category: "validation",
		Action:   "画面を再読み込みしてから再度お試しください。",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細は含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
