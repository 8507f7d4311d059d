package domain

// CheckSet は1回の試行に対する4つの独立した品質チェック結果です。
type CheckSet struct {
	ProductVisible  bool
	BrandConsistent bool
	CompositionOK   bool
	PromptFaithful  bool
}

// CritiqueResult は批評器（Critic）による1試行分の評価です。
// リトライループの外では、最終試行の Issues を除き保持されません。
type CritiqueResult struct {
	Passed bool
	// Score は 0〜100 の集計スコアです。
	Score  int
	Checks CheckSet
	Issues []string
	// RevisedPrompt は不合格時のみ設定される修正版プロンプトです。
	// 元プロンプトに失敗チェックを名指しした是正句を付加したものです。
	RevisedPrompt string
}
