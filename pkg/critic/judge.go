package critic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/shouni/adgen-kit/pkg/domain"
)

// judgePromptHeader は審査官への指示文です。JSONのみを返すよう強制します。
const judgePromptHeader = `You are a strict quality reviewer for marketing images. Inspect the attached generated image and answer in JSON only, using this exact schema:
{"product_visible": true, "brand_consistent": true, "prompt_faithful": true, "notes": []}
- product_visible: is the featured product clearly recognizable?
- brand_consistent: does the image avoid contradicting the brand colors/style listed below?
- prompt_faithful: does the image follow the explicit instructions of the prompt?
- notes: short remarks for any failed check`

// GeminiJudge は Gemini のマルチモーダル評価で Judge を実装します。
type GeminiJudge struct {
	client *genai.Client
	model  string
}

// NewGeminiJudge は依存関係を注入して GeminiJudge を初期化します。
func NewGeminiJudge(client *genai.Client, model string) (*GeminiJudge, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &GeminiJudge{client: client, model: model}, nil
}

// Judge は生成画像をコンテキストと突き合わせて判定します。
func (j *GeminiJudge) Judge(ctx context.Context, image []byte, mimeType string, prompt string, gc *domain.GenerationContext) (*Verdict, error) {
	parts := []*genai.Part{
		{Text: buildJudgePrompt(prompt, gc)},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := j.client.Models.GenerateContent(ctx, j.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("critic: 審査官の呼び出しに失敗しました: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return nil, fmt.Errorf("critic: 審査官の応答にテキストが含まれていません")
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(trimFence(text)), &verdict); err != nil {
		return nil, fmt.Errorf("critic: 審査結果のJSONパースに失敗しました: %w", err)
	}
	return &verdict, nil
}

// buildJudgePrompt は審査に必要な文脈（使用プロンプト・商品・ブランド）を連結します。
func buildJudgePrompt(prompt string, gc *domain.GenerationContext) string {
	var sb strings.Builder
	sb.WriteString(judgePromptHeader)
	sb.WriteString("\n\nPrompt used for generation:\n")
	sb.WriteString(prompt)
	if gc != nil && gc.Product != nil {
		fmt.Fprintf(&sb, "\n\nFeatured product: %s (%s)", gc.Product.Name, gc.Product.Category)
	}
	if gc != nil && gc.Brand != nil {
		fmt.Fprintf(&sb, "\nBrand colors: %s. Brand styles: %s.",
			strings.Join(gc.Brand.Colors, ", "), strings.Join(gc.Brand.Styles, ", "))
	}
	return sb.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
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

func trimFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
