package pdfreader

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	RendererFitz     = "fitz"
	RendererEmbedded = "embedded"

	DefaultDPI = 300
)

// PageRenderer 把一页转成若干张供 OCR 使用的 PNG 图片；页号从 0 开始。
type PageRenderer interface {
	RenderPage(ctx context.Context, page int) ([][]byte, error)
}

// grayscalePNG 转灰度并编码为 PNG。
func grayscalePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Grayscale(img), imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
