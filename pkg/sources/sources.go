// Package sources はコンテキストソースの契約と、その並列ファンアウトを担当します。
package sources

import (
	"context"

	"github.com/shouni/adgen-kit/pkg/domain"
)

// 各ソースは冪等な読み取りで、断片が無い場合は (nil, nil) を返します。
// エラーはアセンブラ側で警告ログに落とし、断片欠落として扱います。

// ProductKnowledgeSource は商品ナレッジ（主商品・関連エッジ・シナリオ）の検索窓口です。
type ProductKnowledgeSource interface {
	Lookup(ctx context.Context, recipe *domain.Recipe) (*domain.ProductContext, error)
}

// BrandProfileSource はユーザーのブランドプロファイルの検索窓口です。
type BrandProfileSource interface {
	Lookup(ctx context.Context, userID string) (*domain.BrandContext, error)
}

// VisionAnalyzer は入力画像からカテゴリ・素材・色・スタイルを推定します。
type VisionAnalyzer interface {
	Analyze(ctx context.Context, images []domain.SourceImage) (*domain.VisionContext, error)
}

// KnowledgeBase はナレッジベース検索の窓口です。
type KnowledgeBase interface {
	Retrieve(ctx context.Context, query string, productID string) (*domain.KnowledgeContext, error)
}

// PatternMatcher は学習済み広告パターンの照合窓口です。
type PatternMatcher interface {
	Match(ctx context.Context, in domain.GenerationInput) (*domain.PatternContext, error)
}

// TemplateSource はテンプレート定義の検索窓口です。
type TemplateSource interface {
	Lookup(ctx context.Context, templateID string) (*domain.TemplateContext, error)
}

// StyleSource はスタイル参照IDからスタイルディレクティブを導出します。
type StyleSource interface {
	Lookup(ctx context.Context, styleReferenceIDs []string) (*domain.StyleContext, error)
}

// Sources はアセンブラに注入するソース群です。不要なソースは nil のままで構いません。
type Sources struct {
	Product  ProductKnowledgeSource
	Brand    BrandProfileSource
	Vision   VisionAnalyzer
	KB       KnowledgeBase
	Patterns PatternMatcher
	Template TemplateSource
	Style    StyleSource
}
