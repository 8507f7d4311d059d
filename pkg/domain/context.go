package domain

import "encoding/json"

// GenerationContext は1回のパイプライン実行中にコンテキスト断片を蓄積する器です。
// 所有者は常にそのリクエストのゴルーチンであり、リクエスト間で共有されません。
// 各断片は独立してオプショナルで、欠落は「そのシグナルを使わない」ことを意味します。
type GenerationContext struct {
	Input GenerationInput

	Product  *ProductContext
	Brand    *BrandContext
	Style    *StyleContext
	Vision   *VisionContext
	KB       *KnowledgeContext
	Patterns *PatternContext
	Template *TemplateContext

	// Assembled はプロンプトコンパイラの出力です。
	Assembled *CompiledPrompt
	// Result は生成プロバイダ呼び出し後に添付される生の結果です。
	Result *RawResult

	// Stages は寄与したコンテキストソース名の記録です（観測・デバッグ用）。
	Stages []string
}

// ProductContext は商品ナレッジソースが提供する断片です。
type ProductContext struct {
	ID            string
	Name          string
	Category      string
	Description   string
	Related       []RelatedProduct
	Scenarios     []string
	ReferenceURLs []string
	// Block は事前整形済みのテキストブロックです。空ならコンパイラが組み立てます。
	Block string
	// ReferenceImages は参照URLから取得済みの画像素材です。
	ReferenceImages []SourceImage
}

// RelatedProduct は商品間の関連エッジです。
type RelatedProduct struct {
	ID       string
	Name     string
	Relation string
}

// BrandContext はブランドプロファイルソースが提供する断片です。
type BrandContext struct {
	Name   string
	Styles []string
	Values []string
	Colors []string
	Voice  []string
}

// StyleContext はスタイル参照から導出されたディレクティブです。
type StyleContext struct {
	Directive      string
	ReferenceCount int
}

// VisionContext は入力画像の視覚解析から推定された属性です。
type VisionContext struct {
	Category  string   `json:"category"`
	Materials []string `json:"materials"`
	Colors    []string `json:"colors"`
	Style     string   `json:"style"`
	Usage     string   `json:"usage"`
}

// KnowledgeContext はナレッジベース検索の結果です。
type KnowledgeContext struct {
	Text      string
	Citations []string
}

// PatternContext は学習済み広告パターンの要約ディレクティブです。
type PatternContext struct {
	Directive string
	Count     int
}

// TemplateContext はテンプレート参照の断片です。
type TemplateContext struct {
	ID              string
	Title           string
	Blueprint       string
	Mood            string
	Lighting        string
	Environment     string
	PlacementHints  []string
	ReferenceURLs   []string
	ReferenceImages []SourceImage
	AspectRatio     string
}

// ImageRole は生成プロバイダに対する画像パーツの役割指定です。
type ImageRole string

const (
	// RolePrimaryProduct は形状を保持すべき主商品画像です。
	RolePrimaryProduct ImageRole = "primary_product"
	// RoleStyleReference は雰囲気参照としてのみ扱う画像です。
	RoleStyleReference ImageRole = "style_reference"
	// RoleTemplateReference はテンプレート構図の参照画像です。
	RoleTemplateReference ImageRole = "template_reference"
)

// ImagePart は生成プロバイダへ渡す1枚の画像パーツです。
// FileURI が設定されたパーツはインラインデータの代わりに File API 参照で送信されます。
type ImagePart struct {
	Role     ImageRole
	Name     string
	MimeType string
	Data     []byte
	FileURI  string
}

// CompiledPrompt はプロンプトコンパイラの決定的な出力です。
// 同一のコンテキストとモードに対して常にバイト単位で同一になります。
type CompiledPrompt struct {
	Prompt string
	Parts  []ImagePart
}

// Turn はプロバイダ固有の会話ターンです。中身は不透明なブロブとして扱い、
// 保存と逐語的な再送のみを行います。解釈・並べ替え・編集は禁止です。
type Turn json.RawMessage

// MarshalJSON は保持しているJSONをそのまま返します。
func (t Turn) MarshalJSON() ([]byte, error) {
	if len(t) == 0 {
		return []byte("null"), nil
	}
	return t, nil
}

// UnmarshalJSON は受け取ったJSONを無加工で保持します。
func (t *Turn) UnmarshalJSON(data []byte) error {
	*t = append((*t)[0:0], data...)
	return nil
}

// UsageMetadata はプロバイダが報告したトークン消費量です。
type UsageMetadata struct {
	PromptTokens    int32
	CandidateTokens int32
	TotalTokens     int32
}

// RawResult は生成プロバイダ呼び出しの境界で型検証済みの生結果です。
type RawResult struct {
	Data     []byte
	MimeType string
	History  []Turn
	Usage    *UsageMetadata
}
