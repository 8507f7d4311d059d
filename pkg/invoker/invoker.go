// Package invoker は外部の生成プロバイダ呼び出しと、その一時障害リトライを担当します。
// ここでのリトライは「同一ペイロードの再送」であり、創作内容のリトライ
// （修正プロンプトによる再生成）は批評ループ側の責務です。
package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shouni/adgen-kit/pkg/domain"
)

// Request は1回のプロバイダ呼び出しのペイロードです。
type Request struct {
	Prompt      string
	Parts       []domain.ImagePart
	History     []domain.Turn
	AspectRatio string
	Resolution  domain.Resolution
}

// Provider は外部マルチモーダル生成プロバイダの契約です。
// 実装はエラーを domain のエラー分類（RateLimitedError / ProviderError 等）に
// ラップして返す必要があります。
type Provider interface {
	Generate(ctx context.Context, req Request) (*domain.RawResult, error)
}

// Config はインボーカの調整値です。
type Config struct {
	// MaxAttempts は同一ペイロードの総試行回数です（初回を含む）。
	MaxAttempts int
	// InitialInterval はバックオフの初期待機です。試行ごとに倍化します。
	InitialInterval time.Duration
	// MaxInterval は待機の上限です。
	MaxInterval time.Duration
	// CallTimeout は1回の呼び出しに許す時間です。モデルのレイテンシに合わせ長めにとります。
	CallTimeout time.Duration
}

// DefaultConfig は既定の調整値を返します。
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		CallTimeout:     2 * time.Minute,
	}
}

// withDefaults はゼロ値のフィールドだけを既定値で補います。
// 明示的に設定されたフィールドは保持されます。
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	return c
}

// Invoker はプロバイダ呼び出しをラップし、一時障害のみをバックオフ付きで再試行します。
type Invoker struct {
	provider Provider
	cfg      Config
}

// New は依存関係を注入して Invoker を初期化します。
func New(provider Provider, cfg Config) (*Invoker, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	return &Invoker{provider: provider, cfg: cfg.withDefaults()}, nil
}

// Invoke は同一ペイロードでプロバイダを呼び出します。
// 一時障害（タイムアウト、5xx相当）は上限までバックオフ再試行し、
// レート制限と検証系の失敗は即座に呼び出し元へ返します。
func (iv *Invoker) Invoke(ctx context.Context, req Request) (*domain.RawResult, error) {
	var result *domain.RawResult
	attempt := 0

	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, iv.cfg.CallTimeout)
		defer cancel()

		res, err := iv.provider.Generate(callCtx, req)
		if err == nil {
			result = res
			return nil
		}

		// レート制限はこの層で抱え込まず、呼び出し元の方針に委ねる
		var rl *domain.RateLimitedError
		if errors.As(err, &rl) {
			return backoff.Permanent(err)
		}
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return backoff.Permanent(err)
		}
		if !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}

		slog.WarnContext(ctx, "プロバイダ呼び出しが一時エラーで失敗しました。再試行します",
			"attempt", attempt, "max_attempts", iv.cfg.MaxAttempts, "error", err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = iv.cfg.InitialInterval
	b.MaxInterval = iv.cfg.MaxInterval
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(iv.cfg.MaxAttempts-1)))
	if err != nil {
		return nil, fmt.Errorf("invoker: プロバイダ呼び出しに失敗しました: %w", err)
	}
	return result, nil
}
