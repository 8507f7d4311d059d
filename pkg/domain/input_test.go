package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() GenerationInput {
	return GenerationInput{
		Prompt: "浴室タイルの広告",
		Mode:   ModeStandard,
		UserID: "user-1",
		Images: []SourceImage{
			{Name: "tile.png", MimeType: "image/png", Data: []byte{0x01}},
		},
	}
}

func TestGenerationInput_Validate(t *testing.T) {
	t.Run("正常な入力が通ること", func(t *testing.T) {
		in := validInput()
		assert.NoError(t, in.Validate())
	})

	t.Run("空プロンプトは検証エラーになること", func(t *testing.T) {
		in := validInput()
		in.Prompt = " \t "
		var verr *ValidationError
		require.ErrorAs(t, in.Validate(), &verr)
	})

	t.Run("不明なモードは検証エラーになること", func(t *testing.T) {
		in := validInput()
		in.Mode = Mode("collage")
		var verr *ValidationError
		require.ErrorAs(t, in.Validate(), &verr)
	})

	t.Run("解像度は未指定を許容し不明値のみ拒否すること", func(t *testing.T) {
		in := validInput()
		in.Resolution = ""
		assert.NoError(t, in.Validate())

		in.Resolution = Resolution("8K")
		var verr *ValidationError
		require.ErrorAs(t, in.Validate(), &verr)
	})

	t.Run("空データや非画像MIMEの添付は拒否されること", func(t *testing.T) {
		in := validInput()
		in.Images = append(in.Images, SourceImage{Name: "empty.png", MimeType: "image/png"})
		var verr *ValidationError
		require.ErrorAs(t, in.Validate(), &verr)

		in = validInput()
		in.Images[0].MimeType = "application/pdf"
		require.ErrorAs(t, in.Validate(), &verr)
	})
}

func TestRecipe_PrimaryProductID(t *testing.T) {
	t.Run("nilレシピと空レシピは空文字を返すこと", func(t *testing.T) {
		var r *Recipe
		assert.Equal(t, "", r.PrimaryProductID())
		assert.Equal(t, "", (&Recipe{}).PrimaryProductID())
	})

	t.Run("先頭の商品IDが主商品になること", func(t *testing.T) {
		r := &Recipe{ProductIDs: []string{"prod-2", "prod-9"}}
		assert.Equal(t, "prod-2", r.PrimaryProductID())
	})
}
