package pdfreader

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer 用 MuPDF 按 DPI 整页光栅化。每次调用单独打开并关闭文档，可被多个 goroutine 同时使用。
type FitzRenderer struct {
	data []byte
	dpi  float64
}

func NewFitzRenderer(data []byte, dpi float64) *FitzRenderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FitzRenderer{data: data, dpi: dpi}
}

func (r *FitzRenderer) RenderPage(ctx context.Context, page int) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := fitz.NewFromMemory(r.data)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, fmt.Errorf("render page %d: %w", page+1, ErrPasswordRequired)
		}
		return nil, fmt.Errorf("open pdf with mupdf: %w", err)
	}
	defer doc.Close()

	if page < 0 || page >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1-%d)", page+1, doc.NumPage())
	}
	img, err := doc.ImageDPI(page, r.dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page+1, err)
	}
	png, err := grayscalePNG(img)
	if err != nil {
		return nil, err
	}
	return [][]byte{png}, nil
}
