package imgutil

import "fmt"

// Info は生成結果画像の基礎的な検査結果です。
type Info struct {
	Width  int
	Height int
	Format string
	// Luminance は等間隔サンプリングした画素の平均輝度 (0〜1) です。
	Luminance float64
	// Variance は輝度の分散です。ほぼ0なら単色（白紙・黒紙）とみなせます。
	Variance float64
}

// sampleGrid は検査時に縦横それぞれ何点サンプリングするかの定数です。
const sampleGrid = 16

// Inspect は画像データをデコードし、構図チェックに必要な統計を収集します。
// デコードできないデータは破損として扱い、エラーを返します。
func Inspect(data []byte) (*Info, error) {
	img, format, err := decode(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("imgutil: 画像サイズが不正です (%dx%d)", w, h)
	}

	// 全画素走査は不要なので、固定グリッドでサンプリングする
	var sum, sqSum float64
	var count int
	for gy := 0; gy < sampleGrid; gy++ {
		for gx := 0; gx < sampleGrid; gx++ {
			x := bounds.Min.X + gx*w/sampleGrid
			y := bounds.Min.Y + gy*h/sampleGrid
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 の輝度近似
			lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0
			sum += lum
			sqSum += lum * lum
			count++
		}
	}

	mean := sum / float64(count)
	variance := sqSum/float64(count) - mean*mean

	return &Info{
		Width:     w,
		Height:    h,
		Format:    format,
		Luminance: mean,
		Variance:  variance,
	}, nil
}

// IsLikelyBlank は画像がほぼ単色（白紙・黒紙・ベタ塗り）かどうかの目安を返します。
func (i *Info) IsLikelyBlank() bool {
	return i.Variance < 0.0005
}
