package pdfreader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// EmbeddedImage 为页面中内嵌的一张原始图片。
type EmbeddedImage struct {
	// Page 从 1 开始
	Page     int
	Name     string
	FileType string
	Data     []byte
}

// FileName 形如 page_1_image_Im0.jpg。
func (img EmbeddedImage) FileName() string {
	ext := strings.ToLower(img.FileType)
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("page_%d_image_%s.%s", img.Page, strings.TrimLeft(img.Name, "/"), ext)
}

// EmbeddedRenderer 用 pdfcpu 取出页面内嵌图片作为 OCR 输入，不做整页光栅化。
type EmbeddedRenderer struct {
	data     []byte
	password string

	once sync.Once
	pctx *model.Context
	err  error

	// pdfcpu Context 不是并发安全的
	mu sync.Mutex
}

func NewEmbeddedRenderer(data []byte, password string) *EmbeddedRenderer {
	return &EmbeddedRenderer{data: data, password: password}
}

func (r *EmbeddedRenderer) load() (*model.Context, error) {
	r.once.Do(func() {
		conf := model.NewDefaultConfiguration()
		conf.Cmd = model.EXTRACTIMAGES
		if r.password != "" {
			conf.UserPW = r.password
			conf.OwnerPW = r.password
		}
		r.pctx, r.err = api.ReadValidateAndOptimize(bytes.NewReader(r.data), conf)
		if r.err != nil {
			r.err = fmt.Errorf("read pdf with pdfcpu: %w", r.err)
		}
	})
	return r.pctx, r.err
}

// PageImages 返回第 page 页（从 0 开始）的内嵌图片，按对象号排序。
func (r *EmbeddedRenderer) PageImages(ctx context.Context, page int) ([]EmbeddedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pctx, err := r.load()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	images, err := pdfcpu.ExtractPageImages(pctx, page+1, false)
	if err != nil {
		return nil, fmt.Errorf("extract images from page %d: %w", page+1, err)
	}

	objNrs := make([]int, 0, len(images))
	for nr := range images {
		objNrs = append(objNrs, nr)
	}
	sort.Ints(objNrs)

	out := make([]EmbeddedImage, 0, len(images))
	for _, nr := range objNrs {
		img := images[nr]
		if img.Reader == nil {
			continue
		}
		data, err := io.ReadAll(img.Reader)
		if err != nil {
			return nil, fmt.Errorf("read image %s on page %d: %w", img.Name, page+1, err)
		}
		out = append(out, EmbeddedImage{Page: page + 1, Name: img.Name, FileType: img.FileType, Data: data})
	}
	return out, nil
}

// RenderPage 把可解码的内嵌图片转为灰度 PNG；全部无法解码时返回第一个错误。
func (r *EmbeddedRenderer) RenderPage(ctx context.Context, page int) ([][]byte, error) {
	images, err := r.PageImages(ctx, page)
	if err != nil {
		return nil, err
	}

	var (
		out      [][]byte
		firstErr error
	)
	for _, img := range images {
		decoded, err := imaging.Decode(bytes.NewReader(img.Data))
		if err == nil {
			var png []byte
			if png, err = grayscalePNG(decoded); err == nil {
				out = append(out, png)
				continue
			}
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("decode %s: %w", img.FileName(), err)
		}
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
