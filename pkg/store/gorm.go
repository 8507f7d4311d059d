package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/shouni/adgen-kit/pkg/domain"
)

// generationRow は generations テーブルの行です。
// 会話履歴はプロバイダ固有の不透明ブロブなので JSON カラムにそのまま保存します。
type generationRow struct {
	ID                  string `gorm:"primaryKey;size:36"`
	UserID              string `gorm:"index"`
	Prompt              string
	ImageURL            string
	ConversationHistory datatypes.JSON
	Model               string
	AspectRatio         string
	ParentGenerationID  *string `gorm:"index"`
	EditPrompt          *string
	EditCount           int
	CreatedAt           time.Time
}

func (generationRow) TableName() string { return "generations" }

// GormStore は gorm ベースの Persister 実装です。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore はマイグレーションを実行して GormStore を初期化します。
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if err := db.AutoMigrate(&generationRow{}); err != nil {
		return nil, fmt.Errorf("store: マイグレーションに失敗しました: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateGeneration はルート生成を作成します。
func (s *GormStore) CreateGeneration(ctx context.Context, rec NewGeneration) (*domain.Generation, error) {
	row, err := newRow(rec)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("store: 生成行の作成に失敗しました: %w", err)
	}
	return toDomain(row)
}

// CreateEdit は親を参照する子行を作成します。親行の更新は一切行いません。
func (s *GormStore) CreateEdit(ctx context.Context, parentID, editPrompt string, rec NewGeneration) (*domain.Generation, error) {
	row, err := newRow(rec)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent generationRow
		if err := tx.First(&parent, "id = ?", parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		row.ParentGenerationID = &parent.ID
		row.EditPrompt = &editPrompt
		row.EditCount = parent.EditCount + 1
		return tx.Create(row).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: 編集行の作成に失敗しました: %w", err)
	}
	return toDomain(row)
}

// GetGeneration は ID で1件取得します。
func (s *GormStore) GetGeneration(ctx context.Context, id string) (*domain.Generation, error) {
	var row generationRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: 生成行の取得に失敗しました: %w", err)
	}
	return toDomain(&row)
}

func newRow(rec NewGeneration) (*generationRow, error) {
	history, err := json.Marshal(rec.History)
	if err != nil {
		return nil, fmt.Errorf("store: 会話履歴の保存形式化に失敗しました: %w", err)
	}
	return &generationRow{
		ID:                  uuid.NewString(),
		UserID:              rec.UserID,
		Prompt:              rec.Prompt,
		ImageURL:            rec.ImageURL,
		ConversationHistory: datatypes.JSON(history),
		Model:               rec.Model,
		AspectRatio:         rec.AspectRatio,
	}, nil
}

func toDomain(row *generationRow) (*domain.Generation, error) {
	var history []domain.Turn
	if len(row.ConversationHistory) > 0 {
		if err := json.Unmarshal(row.ConversationHistory, &history); err != nil {
			return nil, fmt.Errorf("store: 会話履歴の復元に失敗しました: %w", err)
		}
	}
	return &domain.Generation{
		ID:                  row.ID,
		UserID:              row.UserID,
		Prompt:              row.Prompt,
		ImageURL:            row.ImageURL,
		ConversationHistory: history,
		Model:               row.Model,
		AspectRatio:         row.AspectRatio,
		ParentGenerationID:  row.ParentGenerationID,
		EditPrompt:          row.EditPrompt,
		EditCount:           row.EditCount,
		CreatedAt:           row.CreatedAt,
	}, nil
}
