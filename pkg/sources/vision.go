package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/shouni/adgen-kit/pkg/domain"
)

// visionPrompt は画像解析の指示文です。JSONのみを返すよう強制します。
const visionPrompt = `Analyze the attached product photo(s) and answer in JSON only, using this exact schema:
{"category": "", "materials": [], "colors": [], "style": "", "usage": ""}
- category: the product category (e.g. "ceramic tile", "pendant lamp")
- materials: visible materials
- colors: dominant colors
- style: the overall visual style in a few words
- usage: the most likely installation or usage context`

// maxVisionImages は1回の解析に添付する画像の上限枚数です。
const maxVisionImages = 3

// GeminiVisionAnalyzer は Gemini のマルチモーダル解析で VisionAnalyzer を実装します。
type GeminiVisionAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGeminiVisionAnalyzer は依存関係を注入して GeminiVisionAnalyzer を初期化します。
func NewGeminiVisionAnalyzer(client *genai.Client, model string) (*GeminiVisionAnalyzer, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &GeminiVisionAnalyzer{client: client, model: model}, nil
}

// Analyze は入力画像からカテゴリ・素材・色などの属性を推定します。
func (v *GeminiVisionAnalyzer) Analyze(ctx context.Context, images []domain.SourceImage) (*domain.VisionContext, error) {
	if len(images) == 0 {
		return nil, nil
	}

	parts := []*genai.Part{{Text: visionPrompt}}
	for i, img := range images {
		if i >= maxVisionImages {
			break
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: img.MimeType, Data: img.Data},
		})
	}

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	resp, err := v.client.Models.GenerateContent(ctx, v.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("sources: 視覚解析の呼び出しに失敗しました: %w", err)
	}

	text := firstText(resp)
	if text == "" {
		return nil, fmt.Errorf("sources: 視覚解析の応答にテキストが含まれていません")
	}

	var frag domain.VisionContext
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &frag); err != nil {
		return nil, fmt.Errorf("sources: 視覚解析のJSONパースに失敗しました: %w", err)
	}
	return &frag, nil
}

// firstText は最初の候補からテキストパーツを取り出します。
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			return part.Text
		}
	}
	return ""
}

// stripCodeFence はモデルが付けがちな ```json フェンスを剥がします。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
