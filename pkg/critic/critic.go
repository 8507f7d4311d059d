// Package critic は生成画像を固定ルーブリックで評価し、不合格時には
// 失敗チェックを名指しした修正版プロンプトを提案します。
package critic

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shouni/adgen-kit/pkg/domain"
	"github.com/shouni/adgen-kit/pkg/imgutil"
)

// Critic は1試行分の生成結果を評価する契約です。
type Critic interface {
	Review(ctx context.Context, result *domain.RawResult, gc *domain.GenerationContext, prompt string) (*domain.CritiqueResult, error)
}

// Verdict はモデルベースの審査官（Judge）が返す判定です。
type Verdict struct {
	ProductVisible  bool     `json:"product_visible"`
	BrandConsistent bool     `json:"brand_consistent"`
	PromptFaithful  bool     `json:"prompt_faithful"`
	Notes           []string `json:"notes"`
}

// Judge は画像とコンテキストを突き合わせて判定を下す審査官の契約です。
type Judge interface {
	Judge(ctx context.Context, image []byte, mimeType string, prompt string, gc *domain.GenerationContext) (*Verdict, error)
}

// Weights は各チェックのスコア配点です。合計が100になるように設定します。
type Weights struct {
	Product     int
	Faithful    int
	Brand       int
	Composition int
}

// Config は採点ポリシーの調整値です。
// しきい値と配点は確定値ではなく運用で調整される前提の設定値です。
type Config struct {
	// Threshold はこのスコア以上で合格とみなす下限です。
	Threshold int
	Weights   Weights
	// MinWidth / MinHeight を下回る画像は構図チェックで不合格になります。
	MinWidth  int
	MinHeight int
}

// DefaultConfig は既定の採点ポリシーを返します。
func DefaultConfig() Config {
	return Config{
		Threshold: 70,
		Weights:   Weights{Product: 40, Faithful: 25, Brand: 20, Composition: 15},
		MinWidth:  256,
		MinHeight: 256,
	}
}

// withDefaults はゼロ値のフィールドだけを既定値で補います。
// 配点は一体のポリシーなので、全項目ゼロの場合のみまとめて既定値にします。
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Weights == (Weights{}) {
		c.Weights = d.Weights
	}
	if c.MinWidth <= 0 {
		c.MinWidth = d.MinWidth
	}
	if c.MinHeight <= 0 {
		c.MinHeight = d.MinHeight
	}
	return c
}

// RubricCritic は4チェックの固定ルーブリックで採点する Critic 実装です。
//   - 商品が認識できるか（不可視は常にハード失敗）
//   - ブランドの色・スタイル指示に矛盾しないか
//   - 構図が最低限成立しているか（白紙・破損・被写体の見切れ）
//   - プロンプトの明示的指示に忠実か
type RubricCritic struct {
	judge Judge
	cfg   Config
}

// NewRubricCritic は RubricCritic を初期化します。
// judge は nil を許容します（ローカル検査のみの劣化動作）。
func NewRubricCritic(judge Judge, cfg Config) *RubricCritic {
	return &RubricCritic{judge: judge, cfg: cfg.withDefaults()}
}

// Review は1試行分の評価を行います。審査官の障害は評価の劣化として扱い、
// エラーにはしません（判定不能なチェックは合格扱い）。
func (c *RubricCritic) Review(ctx context.Context, result *domain.RawResult, gc *domain.GenerationContext, prompt string) (*domain.CritiqueResult, error) {
	checks := domain.CheckSet{
		ProductVisible:  true,
		BrandConsistent: true,
		CompositionOK:   true,
		PromptFaithful:  true,
	}
	var issues []string
	corrupted := false

	info, err := imgutil.Inspect(result.Data)
	switch {
	case err != nil:
		checks.CompositionOK = false
		corrupted = true
		issues = append(issues, "生成画像がデコードできません")
	case info.IsLikelyBlank():
		checks.CompositionOK = false
		issues = append(issues, "生成画像がほぼ単色です")
	case info.Width < c.cfg.MinWidth || info.Height < c.cfg.MinHeight:
		checks.CompositionOK = false
		issues = append(issues, "生成画像の解像度が不足しています")
	}

	if c.judge != nil && !corrupted {
		verdict, err := c.judge.Judge(ctx, result.Data, result.MimeType, prompt, gc)
		if err != nil {
			// 審査官の障害で生成全体を落とさない
			slog.WarnContext(ctx, "審査官の呼び出しに失敗しました。該当チェックは合格扱いにします", "error", err)
		} else {
			checks.ProductVisible = verdict.ProductVisible
			checks.BrandConsistent = verdict.BrandConsistent
			checks.PromptFaithful = verdict.PromptFaithful
			if !verdict.ProductVisible {
				issues = append(issues, "商品が出力内で認識できません")
			}
			if !verdict.BrandConsistent {
				issues = append(issues, "ブランドの色・スタイル指示と矛盾しています")
			}
			if !verdict.PromptFaithful {
				issues = append(issues, "プロンプトの明示的指示が反映されていません")
			}
			issues = append(issues, verdict.Notes...)
		}
	}

	score := c.score(checks)
	// 商品不可視と画像破損はスコアに関わらずハード失敗
	passed := score >= c.cfg.Threshold && checks.ProductVisible && !corrupted

	crit := &domain.CritiqueResult{
		Passed: passed,
		Score:  score,
		Checks: checks,
		Issues: issues,
	}
	if !passed {
		crit.RevisedPrompt = revisePrompt(prompt, checks)
	}
	return crit, nil
}

func (c *RubricCritic) score(checks domain.CheckSet) int {
	score := 0
	if checks.ProductVisible {
		score += c.cfg.Weights.Product
	}
	if checks.PromptFaithful {
		score += c.cfg.Weights.Faithful
	}
	if checks.BrandConsistent {
		score += c.cfg.Weights.Brand
	}
	if checks.CompositionOK {
		score += c.cfg.Weights.Composition
	}
	return score
}

// revisePrompt は失敗したチェックを名指しした是正句を元プロンプトに付加します。
// 次の試行が「やみくもな再生成」ではなく具体的な欠陥の修正になるようにします。
func revisePrompt(prompt string, checks domain.CheckSet) string {
	var fixes []string
	if !checks.ProductVisible {
		fixes = append(fixes, "make the featured product clearly visible and unobstructed in the frame")
	}
	if !checks.PromptFaithful {
		fixes = append(fixes, "follow the original instructions precisely")
	}
	if !checks.BrandConsistent {
		fixes = append(fixes, "stay consistent with the stated brand colors and style")
	}
	if !checks.CompositionOK {
		fixes = append(fixes, "produce a clean, well-framed composition with the subject fully in frame")
	}
	if len(fixes) == 0 {
		return prompt
	}
	return prompt + "\nCorrections for this retry: " + strings.Join(fixes, "; ") + "."
}
