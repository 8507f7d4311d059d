// Package pipeline は広告画像生成の全工程をオーケストレートする司令塔です。
// コンテキスト収集 → プロンプトコンパイル → プロバイダ呼び出し → 批評 → 永続化
// の流れと、編集リクエストの会話継続を管理します。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/adgen-kit/pkg/compiler"
	"github.com/shouni/adgen-kit/pkg/critic"
	"github.com/shouni/adgen-kit/pkg/domain"
	"github.com/shouni/adgen-kit/pkg/invoker"
	"github.com/shouni/adgen-kit/pkg/sources"
	"github.com/shouni/adgen-kit/pkg/store"
)

// Invoker はプロバイダ呼び出し層の契約です。*invoker.Invoker が満たします。
type Invoker interface {
	Invoke(ctx context.Context, req invoker.Request) (*domain.RawResult, error)
}

// Config はパイプラインの調整値です。
type Config struct {
	// MaxAttempts は創作リトライを含めた総試行回数です（既定: 3 = 初回 + 2リトライ）。
	// インボーカ内部の同一ペイロード再送とは独立しています。
	MaxAttempts int
	// Model は永続化メタデータに記録するモデル名です。
	Model string
	// DefaultAspectRatio はテンプレートが指定しない場合のアスペクト比です。
	DefaultAspectRatio string
}

// DefaultConfig は既定の調整値を返します。
func DefaultConfig() Config {
	return Config{
		MaxAttempts:        3,
		Model:              "gemini-3-pro-image-preview",
		DefaultAspectRatio: "1:1",
	}
}

// withDefaults はゼロ値のフィールドだけを既定値で補います。
// 明示的に設定されたフィールドは保持されます。
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.DefaultAspectRatio == "" {
		c.DefaultAspectRatio = d.DefaultAspectRatio
	}
	return c
}

// Pipeline は各コンポーネントのインターフェースを束ねるオーケストレータです。
// 1リクエストの GenerationContext はそのリクエストのゴルーチンが専有するため、
// パイプライン自身はリクエスト間の共有可変状態を持ちません。
type Pipeline struct {
	assembler *sources.Assembler
	compiler  *compiler.Compiler
	invoker   Invoker
	critic    critic.Critic
	persister store.Persister
	sink      store.ImageSink
	cfg       Config
}

// New は依存関係を注入して Pipeline を初期化します。
func New(assembler *sources.Assembler, inv Invoker, cr critic.Critic, persister store.Persister, sink store.ImageSink, cfg Config) (*Pipeline, error) {
	if assembler == nil {
		return nil, fmt.Errorf("assembler is required")
	}
	if inv == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if cr == nil {
		return nil, fmt.Errorf("critic is required")
	}
	if persister == nil {
		return nil, fmt.Errorf("persister is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	return &Pipeline{
		assembler: assembler,
		compiler:  compiler.New(),
		invoker:   inv,
		critic:    cr,
		persister: persister,
		sink:      sink,
		cfg:       cfg.withDefaults(),
	}, nil
}

// RunGeneration は新規生成リクエストを実行します。
// 品質不合格はエラーではなく、Issues 付きの成功として返します（劣化成功）。
func (p *Pipeline) RunGeneration(ctx context.Context, in domain.GenerationInput) (*domain.GenerationResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	// 1. コンテキスト収集（並列ファンアウト、欠落許容）
	gc := p.assembler.Assemble(ctx, in)
	slog.InfoContext(ctx, "コンテキスト収集が完了しました",
		"stages", strings.Join(gc.Stages, ","), "mode", string(in.Mode))

	// 2〜4. コンパイル → 呼び出し → 批評 のリトライループ
	att, err := p.runAttempts(ctx, gc)
	if err != nil {
		return nil, err
	}

	// 5. 永続化
	gen, err := p.persistRoot(ctx, gc, att)
	if err != nil {
		return nil, err
	}

	result := &domain.GenerationResult{
		GenerationID:    gen.ID,
		ImageURL:        gen.ImageURL,
		Prompt:          att.prompt,
		CanEdit:         true,
		Mode:            in.Mode,
		TemplateID:      in.TemplateID,
		StagesCompleted: gc.Stages,
		Score:           att.critique.Score,
	}
	if !att.critique.Passed {
		// 品質不合格のまま返す劣化成功。指摘事項を呼び出し元に開示する
		result.Issues = att.critique.Issues
	}
	return result, nil
}

// RunEdit は既存生成への編集を実行します。親の会話履歴を逐語的に復元して
// 編集指示を次のターンとして送るため、プロバイダがステートレスでも
// 2回目の編集が1回目の内容を踏まえた一貫した結果になります。
// コンテキストの再収集は行いません（商品・ブランド等は親の履歴に焼き込み済み）。
func (p *Pipeline) RunEdit(ctx context.Context, parentID, editPrompt string) (*domain.GenerationResult, error) {
	if strings.TrimSpace(editPrompt) == "" {
		return nil, &domain.ValidationError{Reason: "編集指示が空です"}
	}

	parent, err := p.persister.GetGeneration(ctx, parentID)
	if err != nil {
		return nil, err
	}

	res, err := p.invoker.Invoke(ctx, invoker.Request{
		Prompt:      editPrompt,
		History:     parent.ConversationHistory,
		AspectRatio: parent.AspectRatio,
	})
	if err != nil {
		return nil, err
	}

	url, err := p.sink.Save(ctx, res.Data, res.MimeType)
	if err != nil {
		return nil, &domain.PersistenceError{Err: err}
	}

	child, err := p.persister.CreateEdit(ctx, parentID, editPrompt, store.NewGeneration{
		UserID:      parent.UserID,
		Prompt:      editPrompt,
		ImageURL:    url,
		Model:       p.cfg.Model,
		AspectRatio: parent.AspectRatio,
		History:     res.History,
	})
	if err != nil {
		slog.WarnContext(ctx, "編集行の保存に失敗しました。画像が孤児になっている可能性があります", "image_url", url, "error", err)
		return nil, &domain.PersistenceError{Err: err}
	}

	return &domain.GenerationResult{
		GenerationID: child.ID,
		ImageURL:     child.ImageURL,
		Prompt:       editPrompt,
		CanEdit:      true,
	}, nil
}

// persistRoot は最終成果物を保存します。保存失敗は創作上の失敗と区別して
// PersistenceError で返します。
func (p *Pipeline) persistRoot(ctx context.Context, gc *domain.GenerationContext, att *attempt) (*domain.Generation, error) {
	url, err := p.sink.Save(ctx, att.result.Data, att.result.MimeType)
	if err != nil {
		return nil, &domain.PersistenceError{Err: err}
	}

	gen, err := p.persister.CreateGeneration(ctx, store.NewGeneration{
		UserID:      gc.Input.UserID,
		Prompt:      att.prompt,
		ImageURL:    url,
		Model:       p.cfg.Model,
		AspectRatio: p.aspectRatio(gc),
		History:     att.result.History,
	})
	if err != nil {
		// 画像書き込み後のメタデータ保存失敗。孤児成果物はベストエフォートで追跡する
		slog.WarnContext(ctx, "生成行の保存に失敗しました。画像が孤児になっている可能性があります", "image_url", url, "error", err)
		return nil, &domain.PersistenceError{Err: err}
	}
	return gen, nil
}

func (p *Pipeline) aspectRatio(gc *domain.GenerationContext) string {
	if gc.Template != nil && gc.Template.AspectRatio != "" {
		return gc.Template.AspectRatio
	}
	return p.cfg.DefaultAspectRatio
}
