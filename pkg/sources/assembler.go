package sources

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/adgen-kit/pkg/assets"
	"github.com/shouni/adgen-kit/pkg/domain"
)

const (
	// DefaultSourceTimeout は個々のコンテキストソース呼び出しの既定タイムアウトです。
	// リクエスト全体のタイムアウトとは独立しています。
	DefaultSourceTimeout = 8 * time.Second

	// maxReferenceFetch はソースごとに取得する参照画像の上限枚数です。
	maxReferenceFetch = 3

	// fileOffloadThreshold を超える参照画像はインライン送信せず File API へ退避します。
	fileOffloadThreshold = 4 << 20
)

// ImageFetcher は参照URLから画像データを取得します。*assets.Fetcher が満たします。
type ImageFetcher interface {
	FetchImage(ctx context.Context, rawURL string) ([]byte, string, error)
}

// FileOffloader は参照URLの画像を File API へアップロードし、参照URIを返します。
// *assets.FileStore が満たします。
type FileOffloader interface {
	Upload(ctx context.Context, fileURL string) (string, error)
}

var (
	_ ImageFetcher  = (*assets.Fetcher)(nil)
	_ FileOffloader = (*assets.FileStore)(nil)
)

// Assembler はコンテキストソースへ並列にファンアウトし、結果を1つの
// GenerationContext にファンインします。ソースの失敗・タイムアウトは
// コンテキストの劣化として扱い、パイプライン全体を止めることはありません。
type Assembler struct {
	src     Sources
	fetcher ImageFetcher
	files   FileOffloader
	timeout time.Duration
}

// NewAssembler は Assembler を初期化します。fetcher は nil を許容し
// （参照画像の事前取得を行わない動作）、files も nil を許容します
// （すべての参照画像をインラインで送る動作）。
func NewAssembler(src Sources, fetcher ImageFetcher, files FileOffloader, sourceTimeout time.Duration) *Assembler {
	if sourceTimeout <= 0 {
		sourceTimeout = DefaultSourceTimeout
	}
	return &Assembler{src: src, fetcher: fetcher, files: files, timeout: sourceTimeout}
}

// Assemble は入力が許す限り多くの断片を埋めた GenerationContext を返します。
// 各ソースは入力のみに依存するため、順序制約なしに並列実行できます。
// マージはフィールド単位の代入であり、同一フィールドへ書くソースは存在しません。
func (a *Assembler) Assemble(ctx context.Context, in domain.GenerationInput) *domain.GenerationContext {
	gc := &domain.GenerationContext{Input: in}

	g, _ := errgroup.WithContext(ctx)

	if a.src.Product != nil && in.Recipe.PrimaryProductID() != "" {
		g.Go(func() error {
			frag, err := lookupWithTimeout(ctx, a.timeout, "product", func(sctx context.Context) (*domain.ProductContext, error) {
				return a.src.Product.Lookup(sctx, in.Recipe)
			})
			if frag != nil && err == nil {
				frag.ReferenceImages = a.prefetch(ctx, frag.ReferenceURLs)
				gc.Product = frag
			}
			return nil
		})
	}

	if a.src.Brand != nil && in.UserID != "" {
		g.Go(func() error {
			frag, err := lookupWithTimeout(ctx, a.timeout, "brand", func(sctx context.Context) (*domain.BrandContext, error) {
				return a.src.Brand.Lookup(sctx, in.UserID)
			})
			if frag != nil && err == nil {
				gc.Brand = frag
			}
			return nil
		})
	}

	if a.src.Style != nil && len(in.StyleReferenceIDs) > 0 {
		g.Go(func() error {
			frag, err := lookupWithTimeout(ctx, a.timeout, "style", func(sctx context.Context) (*domain.StyleContext, error) {
				return a.src.Style.Lookup(sctx, in.StyleReferenceIDs)
			})
			if frag != nil && err == nil {
				gc.Style = frag
			}
			return nil
		})
	}

	// exact_insert は入力画像を無加工で保持するため視覚解析は不要
	if a.src.Vision != nil && len(in.Images) > 0 && in.Mode != domain.ModeExactInsert {
		g.Go(func() error {
			frag, err := lookupWithTimeout(ctx, a.timeout, "vision", func(sctx context.Context) (*domain.VisionContext, error) {
				return a.src.Vision.Analyze(sctx, in.Images)
			})
			if frag != nil && err == nil {
				gc.Vision = frag
			}
			return nil
		})
	}

	if a.src.KB != nil && in.Recipe.PrimaryProductID() != "" {
		g.Go(func() error {
			frag, err := lookupWithTimeout(ctx, a.timeout, "kb", func(sctx context.Context) (*domain.KnowledgeContext, error) {
				return a.src.KB.Retrieve(sctx, in.Prompt, in.Recipe.PrimaryProductID())
			})
			if frag != nil && err == nil {
				gc.KB = frag
			}
			return nil
		})
	}

	if a.src.Patterns != nil {
		g.Go(func() error {
			frag, err := lookupWithTimeout(ctx, a.timeout, "patterns", func(sctx context.Context) (*domain.PatternContext, error) {
				return a.src.Patterns.Match(sctx, in)
			})
			if frag != nil && err == nil {
				gc.Patterns = frag
			}
			return nil
		})
	}

	if a.src.Template != nil && in.TemplateID != "" {
		g.Go(func() error {
			frag, err := lookupWithTimeout(ctx, a.timeout, "template", func(sctx context.Context) (*domain.TemplateContext, error) {
				return a.src.Template.Lookup(sctx, in.TemplateID)
			})
			if frag != nil && err == nil {
				urls := append(append([]string{}, frag.ReferenceURLs...), in.TemplateReferenceURLs...)
				frag.ReferenceImages = a.prefetch(ctx, urls)
				gc.Template = frag
			}
			return nil
		})
	}

	// 各タスクは常に nil を返すため Wait がエラーになることはない。
	// ファンイン順序は結果に影響しない（書き込み先フィールドが互いに素のため）。
	_ = g.Wait()

	gc.Stages = completedStages(gc)
	return gc
}

// prefetch は参照URLの画像を上限枚数まで取得します。失敗は警告のみで続行します。
// しきい値を超える画像は File API へ退避し、URI参照の素材として返します
// （退避に失敗した場合はインラインのまま使います）。
func (a *Assembler) prefetch(ctx context.Context, urls []string) []domain.SourceImage {
	if a.fetcher == nil {
		return nil
	}
	var imgs []domain.SourceImage
	for _, u := range urls {
		if u == "" {
			continue
		}
		if len(imgs) >= maxReferenceFetch {
			break
		}
		data, mime, err := a.fetcher.FetchImage(ctx, u)
		if err != nil {
			slog.WarnContext(ctx, "参照画像の取得に失敗しました。スキップして続行します", "url", u, "error", err)
			continue
		}

		if a.files != nil && len(data) > fileOffloadThreshold {
			// Fetcher と FileStore がキャッシュを共有していれば再取得は発生しない
			uri, err := a.files.Upload(ctx, u)
			if err == nil {
				imgs = append(imgs, domain.SourceImage{Name: u, MimeType: mime, FileURI: uri})
				continue
			}
			slog.WarnContext(ctx, "File APIへの退避に失敗しました。インラインで送信します", "url", u, "error", err)
		}

		imgs = append(imgs, domain.SourceImage{Name: u, MimeType: mime, Data: data})
	}
	return imgs
}

// lookupWithTimeout はソース呼び出しに個別タイムアウトを適用し、
// 失敗時は警告ログを残して (nil, err) を返します。
func lookupWithTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (*T, error)) (*T, error) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	frag, err := fn(sctx)
	if err != nil {
		slog.WarnContext(ctx, "コンテキストソースが失敗しました。断片を欠落のまま続行します",
			"source", name, "error", err)
		return nil, err
	}
	return frag, nil
}

// completedStages は寄与した断片の名前を固定順で列挙します。
func completedStages(gc *domain.GenerationContext) []string {
	var stages []string
	if gc.Product != nil {
		stages = append(stages, "product")
	}
	if gc.Brand != nil {
		stages = append(stages, "brand")
	}
	if gc.Style != nil {
		stages = append(stages, "style")
	}
	if gc.Vision != nil {
		stages = append(stages, "vision")
	}
	if gc.KB != nil {
		stages = append(stages, "kb")
	}
	if gc.Patterns != nil {
		stages = append(stages, "patterns")
	}
	if gc.Template != nil {
		stages = append(stages, "template")
	}
	return stages
}
