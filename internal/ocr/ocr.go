// Package ocr 定义图片文字识别接口，具体引擎见子包。
package ocr

import (
	"context"
)

// Extractor 从一张编码后的图片（PNG/JPEG 等）中识别文字。
type Extractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
	Close() error
}
