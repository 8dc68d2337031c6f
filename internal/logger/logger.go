// Package logger は構造化ログ出力を設定する。
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
)

// Options はロガーの出力形式とレベル。
type Options struct {
	// Format は "json"（デフォルト）または "text"。textは開発用のカラー出力。
	Format string
	Level  slog.Level
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer) *slog.Logger {
	return New(w, Options{Format: "json", Level: slog.LevelInfo})
}

// New はOptionsに従ったslog.Loggerを生成する。
// すべてのレコードにリクエストIDが付与される。
func New(w io.Writer, opts Options) *slog.Logger {
	var inner slog.Handler
	if opts.Format == "text" {
		inner = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: opts.Level,
		})
	}
	return slog.New(NewContextHandler(inner))
}

// SetupDefault は構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer, opts Options) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(New(w, opts))
}

// ContextHandler はslog.Handlerをラップし、
// コンテキストのリクエストIDをrequest_idとして付与する。
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler はinnerに委譲するContextHandlerを返す。
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := chimw.GetReqID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
