package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/shouni/adgen-kit/pkg/domain"
)

// GeminiProvider は google.golang.org/genai 直結の Provider 実装です。
// 会話履歴（不透明ターン）を逐語的に復元して送ることで、プロバイダ側が
// ステートレスでも編集の連続性が保たれます。
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider は依存関係を注入して GeminiProvider を初期化します。
func NewGeminiProvider(client *genai.Client, model string) (*GeminiProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Generate はプロンプト・画像パーツ・会話履歴を Gemini へ送信し、
// 境界で型検証済みの RawResult に変換して返します。
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*domain.RawResult, error) {
	contents, err := replayHistory(req.History)
	if err != nil {
		return nil, err
	}

	userContent := buildUserContent(req)
	contents = append(contents, userContent)

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if req.AspectRatio != "" || req.Resolution != "" {
		cfg.ImageConfig = &genai.ImageConfig{
			AspectRatio: req.AspectRatio,
			ImageSize:   string(req.Resolution),
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, classifyError(err)
	}

	return parseResponse(resp, req.History, userContent)
}

// replayHistory は保存された不透明ターンを genai.Content に復元します。
// 中身の解釈・並べ替えは行わず、逐語的に再送するだけです。
func replayHistory(history []domain.Turn) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for i, turn := range history {
		var content genai.Content
		if err := json.Unmarshal([]byte(turn), &content); err != nil {
			return nil, &domain.ValidationError{
				Reason: fmt.Sprintf("会話履歴の復元に失敗しました (turn=%d): %v", i, err),
			}
		}
		contents = append(contents, &content)
	}
	return contents, nil
}

// buildUserContent は今回のユーザーターンを組み立てます。File API へ退避済みの
// パーツは URI 参照で、それ以外はインラインデータで送信します。
func buildUserContent(req Request) *genai.Content {
	parts := []*genai.Part{{Text: req.Prompt}}
	for _, img := range req.Parts {
		if img.FileURI != "" {
			parts = append(parts, &genai.Part{
				FileData: &genai.FileData{FileURI: img.FileURI, MIMEType: img.MimeType},
			})
			continue
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: img.MimeType, Data: img.Data},
		})
	}
	return &genai.Content{Role: genai.RoleUser, Parts: parts}
}

// parseResponse は応答を検証し、画像データと更新済み履歴を抽出します。
func parseResponse(resp *genai.GenerateContentResponse, history []domain.Turn, userContent *genai.Content) (*domain.RawResult, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &domain.ProviderError{Transient: false, Err: errors.New("Geminiからの有効な応答がありませんでした")}
	}

	candidate := resp.Candidates[0]

	var data []byte
	var mimeType string
	for _, part := range candidate.Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			data = part.InlineData.Data
			mimeType = part.InlineData.MIMEType
			break
		}
	}
	if data == nil {
		// 安全フィルター等によるブロックの確認
		if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
			return nil, &domain.ProviderError{
				Transient: false,
				Err:       fmt.Errorf("画像生成が異常終了しました (FinishReason: %s)", candidate.FinishReason),
			}
		}
		return nil, &domain.ProviderError{Transient: false, Err: errors.New("画像データが見つかりませんでした")}
	}

	// 履歴は 既存 + 今回のユーザーターン + モデル応答ターン の追記のみ
	newHistory := append([]domain.Turn{}, history...)
	userTurn, err := marshalTurn(userContent)
	if err != nil {
		return nil, err
	}
	modelTurn, err := marshalTurn(candidate.Content)
	if err != nil {
		return nil, err
	}
	newHistory = append(newHistory, userTurn, modelTurn)

	var usage *domain.UsageMetadata
	if resp.UsageMetadata != nil {
		usage = &domain.UsageMetadata{
			PromptTokens:    resp.UsageMetadata.PromptTokenCount,
			CandidateTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:     resp.UsageMetadata.TotalTokenCount,
		}
	}

	return &domain.RawResult{
		Data:     data,
		MimeType: mimeType,
		History:  newHistory,
		Usage:    usage,
	}, nil
}

func marshalTurn(content *genai.Content) (domain.Turn, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, &domain.ProviderError{Transient: false, Err: fmt.Errorf("会話ターンの保存形式化に失敗しました: %w", err)}
	}
	return domain.Turn(raw), nil
}

// classifyError は genai のエラーを domain のエラー分類へ写像します。
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &domain.RateLimitedError{Err: err}
		case apiErr.Code >= 500, apiErr.Code == 408:
			return &domain.ProviderError{Transient: true, Err: err}
		default:
			return &domain.ProviderError{Transient: false, Err: err}
		}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ProviderError{Transient: true, Err: err}
	}

	// HTTPコードが取れないネットワーク系の失敗は一時障害とみなす
	return &domain.ProviderError{Transient: true, Err: err}
}
