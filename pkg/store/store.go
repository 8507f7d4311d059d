// Package store は生成エンティティの永続化契約と、その gorm 実装を提供します。
// 編集チェーンは追記専用で、親行を書き換える操作は存在しません。
package store

import (
	"context"

	"github.com/shouni/adgen-kit/pkg/domain"
)

// NewGeneration は永続化する1行分のメタデータです。
type NewGeneration struct {
	UserID      string
	Prompt      string
	ImageURL    string
	Model       string
	AspectRatio string
	History     []domain.Turn
}

// Persister は生成結果の永続化契約です。
type Persister interface {
	// CreateGeneration はルート生成（EditCount=0, 親なし）を作成します。
	CreateGeneration(ctx context.Context, rec NewGeneration) (*domain.Generation, error)
	// CreateEdit は親を参照する新しい行を作成します。親行は決して書き換えません。
	// 子の EditCount は親の EditCount + 1 になります。
	CreateEdit(ctx context.Context, parentID, editPrompt string, rec NewGeneration) (*domain.Generation, error)
	// GetGeneration は ID で1件取得します。存在しなければ domain.ErrNotFound です。
	GetGeneration(ctx context.Context, id string) (*domain.Generation, error)
}

// ImageSink は生成画像バイト列を永続URLへ変換する外部ホスティング層の契約です。
type ImageSink interface {
	Save(ctx context.Context, data []byte, mimeType string) (string, error)
}
