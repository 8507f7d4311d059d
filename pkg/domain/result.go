package domain

import "time"

// GenerationResult はパイプラインの終端成果物です。
type GenerationResult struct {
	GenerationID string
	ImageURL     string
	// Prompt は実際に使用されたプロンプトです。修正版が採用された場合はそれを含みます。
	Prompt     string
	CanEdit    bool
	Mode       Mode
	TemplateID string
	// StagesCompleted は寄与したコンテキストソース名の順序付きリストです。
	StagesCompleted []string
	// Issues は品質基準を満たさないまま返却された場合の指摘事項です。
	// 空であれば批評を通過しています。
	Issues []string
	Score  int
}

// Generation は永続化された生成エンティティです。
// 編集は親行を書き換えず常に新しい行を作るため、ParentGenerationID を辿ると
// ルートまで遡れる追記専用の連結リストになります。
type Generation struct {
	ID                  string
	UserID              string
	Prompt              string
	ImageURL            string
	ConversationHistory []Turn
	Model               string
	AspectRatio         string
	// ParentGenerationID は編集の親です。ルート生成では nil です。
	ParentGenerationID *string
	// EditPrompt はこのターンを生んだ編集指示です。ルート生成では nil です。
	EditPrompt *string
	// EditCount は親の EditCount + 1 です。ルート生成では 0 です。
	EditCount int
	CreatedAt time.Time
}

// IsRoot は編集チェーンのルート（親を持たない生成）かどうかを返します。
func (g *Generation) IsRoot() bool {
	return g.ParentGenerationID == nil
}
