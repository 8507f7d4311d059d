// Package compiler はコンテキストと生成モードから最終プロンプトと
// 画像パーツ列を決定的に組み立てます。
package compiler

import (
	"fmt"
	"strings"

	"github.com/shouni/adgen-kit/pkg/domain"
)

// DefaultNegativePrompt は広告画像で避けたいアーティファクトの標準セットです。
const DefaultNegativePrompt = "low quality, blurry, distorted, washed out, incorrect anatomy, extra limbs, text artefacts, watermark"

// qualityClause は全モード共通で付加する品質指示です。
const qualityClause = "Render a single polished advertisement photograph with professional lighting and composition."

// Compiler はプロンプトコンパイラです。純粋関数として振る舞い、同一の
// コンテキストとモードに対して常にバイト単位で同一の出力を返します。
// この決定性は、リトライ時の差分が批評器の修正句のみに限定されるための前提です。
type Compiler struct {
	negative string
}

// New は既定のネガティブプロンプトを持つ Compiler を生成します。
func New() *Compiler {
	return &Compiler{negative: DefaultNegativePrompt}
}

// Compile はコンテキストとモードを1つのプロンプトと画像パーツ列に落とし込みます。
// リトライ時の修正版プロンプトはここを通らず、オーケストレータがテキストのみを
// 差し替えます（画像パーツ選択を不変に保つため）。
func (c *Compiler) Compile(gc *domain.GenerationContext, mode domain.Mode) *domain.CompiledPrompt {
	var lines []string
	lines = append(lines, "Create a marketing advertisement image. Request: "+strings.TrimSpace(gc.Input.Prompt))

	// 強調順は固定: 商品事実 → ブランドボイス → スタイル/パターン → テンプレート
	if block := productBlock(gc.Product); block != "" {
		lines = append(lines, block)
	}
	if block := brandBlock(gc.Brand); block != "" {
		lines = append(lines, block)
	}
	if gc.Vision != nil {
		lines = append(lines, visionBlock(gc.Vision))
	}
	if gc.KB != nil && gc.KB.Text != "" {
		lines = append(lines, "Product knowledge: "+gc.KB.Text)
	}
	if gc.Style != nil && gc.Style.Directive != "" {
		lines = append(lines, "Style direction: "+gc.Style.Directive)
	}
	if gc.Patterns != nil && gc.Patterns.Directive != "" {
		lines = append(lines, "Proven ad patterns to follow: "+gc.Patterns.Directive)
	}
	if block := templateBlock(gc.Template); block != "" {
		lines = append(lines, block)
	}

	lines = append(lines, modeDirective(mode))
	lines = append(lines, qualityClause)
	lines = append(lines, "Avoid: "+c.negative)

	return &domain.CompiledPrompt{
		Prompt: strings.Join(lines, "\n"),
		Parts:  imageParts(gc, mode),
	}
}

// modeDirective は入力画像の扱い方をモード別に指示します。
func modeDirective(mode domain.Mode) string {
	switch mode {
	case domain.ModeExactInsert:
		return "The first attached image is the exact product. Preserve its geometry, proportions, texture, and branding exactly; place it into the scene without redrawing or stylizing it."
	case domain.ModeInspiration:
		return "All attached images are style references only. Borrow their mood, palette, and composition, but do not reproduce any of them literally."
	default:
		return "The first attached image shows the product to feature; keep it clearly recognizable. Treat any remaining images as style references."
	}
}

func productBlock(p *domain.ProductContext) string {
	if p == nil {
		return ""
	}
	if p.Block != "" {
		return p.Block
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Featured product: %s", p.Name)
	if p.Category != "" {
		fmt.Fprintf(&sb, " (%s)", p.Category)
	}
	sb.WriteString(".")
	if p.Description != "" {
		sb.WriteString(" " + p.Description)
	}
	for _, rel := range p.Related {
		fmt.Fprintf(&sb, " Related product (%s): %s.", rel.Relation, rel.Name)
	}
	if len(p.Scenarios) > 0 {
		sb.WriteString(" Typical usage: " + strings.Join(p.Scenarios, "; ") + ".")
	}
	return sb.String()
}

func brandBlock(b *domain.BrandContext) string {
	if b == nil {
		return ""
	}
	var clauses []string
	if b.Name != "" {
		clauses = append(clauses, fmt.Sprintf("Brand: %s", b.Name))
	}
	if len(b.Styles) > 0 {
		clauses = append(clauses, "visual style: "+strings.Join(b.Styles, ", "))
	}
	if len(b.Colors) > 0 {
		clauses = append(clauses, "brand colors: "+strings.Join(b.Colors, ", "))
	}
	if len(b.Values) > 0 {
		clauses = append(clauses, "brand values: "+strings.Join(b.Values, ", "))
	}
	if len(b.Voice) > 0 {
		clauses = append(clauses, "voice: "+strings.Join(b.Voice, ", "))
	}
	if len(clauses) == 0 {
		return ""
	}
	return strings.Join(clauses, "; ") + "."
}

func visionBlock(v *domain.VisionContext) string {
	var clauses []string
	if v.Category != "" {
		clauses = append(clauses, "category "+v.Category)
	}
	if len(v.Materials) > 0 {
		clauses = append(clauses, "materials "+strings.Join(v.Materials, ", "))
	}
	if len(v.Colors) > 0 {
		clauses = append(clauses, "colors "+strings.Join(v.Colors, ", "))
	}
	if v.Style != "" {
		clauses = append(clauses, "style "+v.Style)
	}
	if v.Usage != "" {
		clauses = append(clauses, "usage "+v.Usage)
	}
	return "Observed from the uploaded photos: " + strings.Join(clauses, "; ") + "."
}

func templateBlock(tpl *domain.TemplateContext) string {
	if tpl == nil {
		return ""
	}
	var lines []string
	if tpl.Blueprint != "" {
		lines = append(lines, "Composition blueprint: "+tpl.Blueprint)
	}
	if tpl.Mood != "" {
		lines = append(lines, "Mood: "+tpl.Mood)
	}
	if tpl.Lighting != "" {
		lines = append(lines, "Lighting: "+tpl.Lighting)
	}
	if tpl.Environment != "" {
		lines = append(lines, "Environment: "+tpl.Environment)
	}
	if len(tpl.PlacementHints) > 0 {
		lines = append(lines, "Placement: "+strings.Join(tpl.PlacementHints, "; "))
	}
	return strings.Join(lines, " ")
}

// imageParts はモードに応じて画像パーツの役割と順序を決めます。
// 順序は常に 入力画像 → 商品参照 → テンプレート参照 で固定です。
func imageParts(gc *domain.GenerationContext, mode domain.Mode) []domain.ImagePart {
	var parts []domain.ImagePart

	for i, img := range gc.Input.Images {
		role := domain.RoleStyleReference
		if mode != domain.ModeInspiration && i == 0 {
			role = domain.RolePrimaryProduct
		}
		parts = append(parts, imagePart(role, img))
	}

	if gc.Product != nil {
		for _, img := range gc.Product.ReferenceImages {
			parts = append(parts, imagePart(domain.RoleStyleReference, img))
		}
	}

	if gc.Template != nil {
		for _, img := range gc.Template.ReferenceImages {
			parts = append(parts, imagePart(domain.RoleTemplateReference, img))
		}
	}

	return parts
}

// imagePart は取得済み素材を役割付きパーツへ変換します。File API 退避済みの
// 素材は URI 参照を、それ以外はインラインデータを引き継ぎます。
func imagePart(role domain.ImageRole, img domain.SourceImage) domain.ImagePart {
	return domain.ImagePart{
		Role:     role,
		Name:     img.Name,
		MimeType: img.MimeType,
		Data:     img.Data,
		FileURI:  img.FileURI,
	}
}
