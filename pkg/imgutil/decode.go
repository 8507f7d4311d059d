package imgutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// decode は対応フォーマット（PNG, GIF, JPEG）の画像データをデコードします。
// 圧縮と検査の両方がここを通ります。
func decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("imgutil: 画像のデコードに失敗しました: %w", err)
	}
	return img, format, nil
}
