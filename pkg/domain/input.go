package domain

import (
	"fmt"
	"strings"
)

// Mode は生成モード（クリエイティブ戦略）のセレクタです。
// 入力画像をプロバイダへどう提示するかを切り替えます。
type Mode string

const (
	// ModeStandard は商品保持とスタイル参照をバランスさせる標準モードです。
	ModeStandard Mode = "standard"
	// ModeExactInsert は商品画像の形状・質感を厳密に保持して合成するモードです。
	ModeExactInsert Mode = "exact_insert"
	// ModeInspiration は入力画像を雰囲気参照としてのみ扱うモードです。
	ModeInspiration Mode = "inspiration"
)

// Valid はモード値が既知のものか検証します。
func (m Mode) Valid() bool {
	switch m {
	case ModeStandard, ModeExactInsert, ModeInspiration:
		return true
	}
	return false
}

// Resolution は出力解像度の指定です。
type Resolution string

const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"
)

// Valid は解像度指定が既知のものか検証します。
func (r Resolution) Valid() bool {
	switch r {
	case Resolution1K, Resolution2K, Resolution4K:
		return true
	}
	return false
}

// SourceImage はリクエストに添付された1枚の画像素材です。
// FileURI が設定されている場合、実体は File API 側にあり Data は空で構いません。
type SourceImage struct {
	Name     string
	MimeType string
	Data     []byte
	FileURI  string
}

// Recipe は生成に使用した商品・関連・シナリオの凍結スナップショットです。
// 再現性確保のためリクエスト時点の選択をそのまま保持します。
type Recipe struct {
	ProductIDs      []string `json:"product_ids"`
	RelationshipIDs []string `json:"relationship_ids"`
	ScenarioIDs     []string `json:"scenario_ids"`
}

// PrimaryProductID はレシピ先頭の商品IDを返します。未指定なら空文字です。
func (r *Recipe) PrimaryProductID() string {
	if r == nil || len(r.ProductIDs) == 0 {
		return ""
	}
	return r.ProductIDs[0]
}

// GenerationInput は1回の生成リクエストの不変な入力です。
// 生成パイプラインはこの値を一切書き換えません。
type GenerationInput struct {
	Prompt                string
	Mode                  Mode
	Images                []SourceImage
	TemplateID            string
	TemplateReferenceURLs []string
	Recipe                *Recipe
	StyleReferenceIDs     []string
	Resolution            Resolution
	UserID                string
}

// Validate は入力の事前検証です。失敗はリトライせず即時に呼び出し元へ返します。
func (in *GenerationInput) Validate() error {
	if strings.TrimSpace(in.Prompt) == "" {
		return &ValidationError{Reason: "プロンプトが空です"}
	}
	if !in.Mode.Valid() {
		return &ValidationError{Reason: "不明な生成モードです: " + string(in.Mode)}
	}
	if in.Resolution != "" && !in.Resolution.Valid() {
		return &ValidationError{Reason: "不明な解像度指定です: " + string(in.Resolution)}
	}
	for i, img := range in.Images {
		if len(img.Data) == 0 {
			return &ValidationError{Reason: fmt.Sprintf("画像データが空です (index=%d)", i)}
		}
		if !strings.HasPrefix(img.MimeType, "image/") {
			return &ValidationError{Reason: "サポート外のMIMEタイプです: " + img.MimeType}
		}
	}
	return nil
}
