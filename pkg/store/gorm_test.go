package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/shouni/adgen-kit/pkg/domain"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	store, err := NewGormStore(db)
	require.NoError(t, err)
	return store
}

func sampleRec() NewGeneration {
	return NewGeneration{
		UserID:      "user-1",
		Prompt:      "キッチンタイルの広告",
		ImageURL:    "https://cdn.example.com/gen/1.png",
		Model:       "gemini-3-pro-image-preview",
		AspectRatio: "1:1",
		History: []domain.Turn{
			domain.Turn(`{"role":"user","parts":[{"text":"ad"}]}`),
			domain.Turn(`{"role":"model","parts":[{"text":"done"}]}`),
		},
	}
}

func TestGormStore_CreateGeneration(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("ルート生成が作成され履歴が逐語的に往復すること", func(t *testing.T) {
		gen, err := s.CreateGeneration(ctx, sampleRec())
		require.NoError(t, err)

		assert.NotEmpty(t, gen.ID)
		assert.True(t, gen.IsRoot())
		assert.Equal(t, 0, gen.EditCount)

		loaded, err := s.GetGeneration(ctx, gen.ID)
		require.NoError(t, err)
		require.Len(t, loaded.ConversationHistory, 2)
		assert.JSONEq(t, `{"role":"user","parts":[{"text":"ad"}]}`, string(loaded.ConversationHistory[0]))
	})

	t.Run("存在しないIDはErrNotFoundになること", func(t *testing.T) {
		_, err := s.GetGeneration(ctx, "missing-id")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestGormStore_CreateEdit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("編集チェーンが追記専用で辿れること", func(t *testing.T) {
		root, err := s.CreateGeneration(ctx, sampleRec())
		require.NoError(t, err)

		child, err := s.CreateEdit(ctx, root.ID, "make it warmer", sampleRec())
		require.NoError(t, err)
		require.NotNil(t, child.ParentGenerationID)
		assert.Equal(t, root.ID, *child.ParentGenerationID)
		assert.Equal(t, 1, child.EditCount)
		require.NotNil(t, child.EditPrompt)
		assert.Equal(t, "make it warmer", *child.EditPrompt)

		grandchild, err := s.CreateEdit(ctx, child.ID, "add more light", sampleRec())
		require.NoError(t, err)
		assert.Equal(t, 2, grandchild.EditCount)

		// 親行が書き換えられていないこと
		reloaded, err := s.GetGeneration(ctx, root.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, reloaded.EditCount)
		assert.True(t, reloaded.IsRoot())

		// チェーンをルートまで遡れること
		cur := grandchild
		depth := 0
		for cur.ParentGenerationID != nil {
			cur, err = s.GetGeneration(ctx, *cur.ParentGenerationID)
			require.NoError(t, err)
			depth++
		}
		assert.Equal(t, 2, depth)
		assert.Equal(t, root.ID, cur.ID)
	})

	t.Run("親が存在しない編集はErrNotFoundになること", func(t *testing.T) {
		_, err := s.CreateEdit(ctx, "missing-parent", "edit", sampleRec())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
