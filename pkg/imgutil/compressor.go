package imgutil

import (
	"bytes"
	"image/jpeg"
)

// CompressToJPEG は参照画像をJPEG形式に再圧縮します。
// プロバイダへ送るペイロードを抑えるための前処理です。
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := decode(data)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
