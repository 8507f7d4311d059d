package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/adgen-kit/pkg/domain"
	"github.com/shouni/adgen-kit/pkg/invoker"
)

// attempt は1回の創作試行の記録です。
type attempt struct {
	number   int
	prompt   string
	result   *domain.RawResult
	critique *domain.CritiqueResult
}

// runAttempts は Compiling → Invoking → Critiquing の状態遷移を上限回数まで回します。
//
//	Critiquing → Passed    : 批評合格。その試行を返す
//	Critiquing → Retrying  : 不合格かつ試行残あり。修正版プロンプトで再試行する
//	Critiquing → Exhausted : 試行上限到達（ソフト）。最後ではなく最高スコアの試行を返す
//	Invoking  失敗         : インフラ障害（ハード）。品質失敗と区別してエラーを返す
//
// コンパイルは初回の1回だけです。批評器の修正版プロンプトは完成形のテキストなので、
// ブロック組み立てを通し直さずそのまま差し替えます（再ラップするとコンテキストブロックが
// 試行のたびに二重化する）。画像パーツ選択は初回のまま全試行で不変です。
func (p *Pipeline) runAttempts(ctx context.Context, gc *domain.GenerationContext) (*attempt, error) {
	var best *attempt
	var compiled *domain.CompiledPrompt

	for n := 1; n <= p.cfg.MaxAttempts; n++ {
		// リクエスト先頭だけでなく、新しい試行を始める前に必ずキャンセルを確認する
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Compiling: 初回のみ。以降の compiled は修正版テキストへの差し替えだけ
		if compiled == nil {
			compiled = p.compiler.Compile(gc, gc.Input.Mode)
			gc.Assembled = compiled
		}

		// Invoking: ここでの失敗はインボーカ内部の再送も尽きた状態
		res, err := p.invoker.Invoke(ctx, invoker.Request{
			Prompt:      compiled.Prompt,
			Parts:       compiled.Parts,
			AspectRatio: p.aspectRatio(gc),
			Resolution:  gc.Input.Resolution,
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: 生成呼び出しに失敗しました (attempt=%d): %w", n, err)
		}
		gc.Result = res

		// Critiquing
		crit, err := p.critic.Review(ctx, res, gc, compiled.Prompt)
		if err != nil {
			// 批評器の障害で成果物を捨てない。評価不能は合格扱いで返す
			slog.WarnContext(ctx, "批評器が失敗しました。評価なしで成果物を返します", "attempt", n, "error", err)
			crit = &domain.CritiqueResult{Passed: true, Score: 0}
		}

		att := &attempt{number: n, prompt: compiled.Prompt, result: res, critique: crit}
		if crit.Passed {
			return att, nil
		}

		// 「最後」ではなく「最高スコア」を保持する。後続の低スコア試行が上書きしないこと
		if best == nil || crit.Score > best.critique.Score {
			best = att
		}
		if crit.RevisedPrompt != "" {
			compiled = &domain.CompiledPrompt{Prompt: crit.RevisedPrompt, Parts: compiled.Parts}
		}

		slog.InfoContext(ctx, "批評不合格のため再試行します",
			"attempt", n, "score", crit.Score, "issues", len(crit.Issues))
	}

	// Exhausted（ソフト）: 劣化していても成果物がない状態より望ましい
	slog.WarnContext(ctx, "試行上限に達しました。最高スコアの試行を返します",
		"max_attempts", p.cfg.MaxAttempts, "best_attempt", best.number, "best_score", best.critique.Score)
	return best, nil
}
