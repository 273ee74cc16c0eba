// Package pdfreader 逐页提取 PDF 文字：原生文本层 + 页面图片 OCR，再把两者合并。
package pdfreader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wwwzy/DocAgent/internal/log"
	"github.com/wwwzy/DocAgent/internal/ocr"
)

type options struct {
	password string
	ocr      ocr.Extractor
	renderer string
	dpi      float64

	textSource   TextSource
	pageRenderer PageRenderer
}

type Option func(*options)

func WithPassword(password string) Option {
	return func(o *options) { o.password = password }
}

// WithOCR 设置 OCR 引擎；不设置时 OCR 结果恒为空。
func WithOCR(e ocr.Extractor) Option {
	return func(o *options) { o.ocr = e }
}

// WithRenderer 选择 OCR 图片来源：fitz（整页光栅化，默认）或 embedded（页面内嵌图片）。
func WithRenderer(kind string) Option {
	return func(o *options) { o.renderer = kind }
}

func WithDPI(dpi float64) Option {
	return func(o *options) { o.dpi = dpi }
}

// WithTextSource 替换原生文本来源。
func WithTextSource(src TextSource) Option {
	return func(o *options) { o.textSource = src }
}

// WithPageRenderer 直接指定页面渲染器，优先于 WithRenderer。
func WithPageRenderer(r PageRenderer) Option {
	return func(o *options) { o.pageRenderer = r }
}

// Reader 持有一份已解析的 PDF。
type Reader struct {
	data     []byte
	password string
	text     TextSource
	renderer PageRenderer
	ocr      ocr.Extractor
	embedded *EmbeddedRenderer
}

// Open 从 r 读取 size 字节并解析。
func Open(r io.ReaderAt, size int64, opts ...Option) (*Reader, error) {
	if r == nil || size <= 0 {
		return nil, ErrEmptyFile
	}
	data := make([]byte, size)
	n, err := r.ReadAt(data, 0)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == size) {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return OpenBytes(data, opts...)
}

func OpenFile(path string, opts ...Option) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", path, err)
	}
	return OpenBytes(data, opts...)
}

// OpenBytes 解析内存中的 PDF。空文件返回 ErrEmptyFile；加密文件未提供密码返回 ErrPasswordRequired，
// 密码错误返回 ErrDecryptFailed。
func OpenBytes(data []byte, opts ...Option) (*Reader, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	o := options{renderer: RendererFitz, dpi: DefaultDPI}
	for _, opt := range opts {
		opt(&o)
	}

	text := o.textSource
	if text == nil {
		plain, err := decryptPDF(data, o.password)
		if err != nil {
			return nil, err
		}
		native, err := openNativeText(plain)
		if err != nil {
			return nil, err
		}
		data, text = plain, native
	}

	r := &Reader{
		data:     data,
		password: o.password,
		text:     text,
		ocr:      o.ocr,
	}
	switch {
	case o.pageRenderer != nil:
		r.renderer = o.pageRenderer
	case o.ocr == nil:
		// 未启用 OCR
	case o.renderer == RendererEmbedded:
		r.renderer = r.embeddedRenderer()
	case o.renderer == RendererFitz, o.renderer == "":
		r.renderer = NewFitzRenderer(data, o.dpi)
	default:
		return nil, fmt.Errorf("unknown renderer: %s (supported: fitz, embedded)", o.renderer)
	}
	return r, nil
}

func (r *Reader) embeddedRenderer() *EmbeddedRenderer {
	if r.embedded == nil {
		r.embedded = NewEmbeddedRenderer(r.data, r.password)
	}
	return r.embedded
}

func (r *Reader) NumPages() int {
	return r.text.NumPages()
}

func (r *Reader) Metadata() map[string]string {
	return r.text.Metadata()
}

// ProcessPage 处理第 page 页（从 0 开始）。原生文本或 OCR 失败只记录在对应的 TextResult 中。
func (r *Reader) ProcessPage(ctx context.Context, page int) PageResult {
	native := newTextResult(r.text.PageText(ctx, page))
	if native.Err != nil {
		log.Warnf("extract native text from page %d: %v", page+1, native.Err)
	}

	ocrText := r.ocrPage(ctx, page)
	if ocrText.Err != nil {
		log.Warnf("ocr page %d: %v", page+1, ocrText.Err)
	}

	return PageResult{
		PageNumber: page + 1,
		Native:     native,
		OCR:        ocrText,
		Merged:     MergeTexts(native.Text, ocrText.Text),
	}
}

// ocrPage 识别该页全部图片并按行拼接；只要有一张识别成功就不算失败。
func (r *Reader) ocrPage(ctx context.Context, page int) TextResult {
	if r.ocr == nil || r.renderer == nil {
		return TextResult{}
	}
	images, err := r.renderer.RenderPage(ctx, page)
	if err != nil {
		return TextResult{Err: err}
	}

	var (
		sb       strings.Builder
		ok       int
		firstErr error
	)
	for i, img := range images {
		text, err := r.ocr.ExtractText(ctx, img)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("image %d: %w", i+1, err)
			}
			continue
		}
		ok++
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.TrimSpace(text))
	}
	if ok == 0 && firstErr != nil {
		return TextResult{Err: firstErr}
	}
	if firstErr != nil {
		log.Warnf("ocr page %d partially failed: %v", page+1, firstErr)
	}
	return newTextResult(sb.String(), nil)
}

// ProcessPDF 依次处理所有页，单页失败不会中断；只有 ctx 取消时返回错误。
func (r *Reader) ProcessPDF(ctx context.Context) ([]PageResult, error) {
	n := r.NumPages()
	results := make([]PageResult, 0, n)
	for page := 0; page < n; page++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, r.ProcessPage(ctx, page))
	}
	return results, nil
}

// CompleteText 返回元数据头加上每页的原生文本和（与原生不同的）OCR 文本。
func (r *Reader) CompleteText(ctx context.Context) (string, error) {
	results, err := r.ProcessPDF(ctx)
	if err != nil {
		return "", err
	}
	return formatCompleteText(r.Metadata(), results), nil
}

func formatCompleteText(meta map[string]string, pages []PageResult) string {
	var parts []string
	if len(meta) > 0 {
		parts = append(parts, "=== Document Metadata ===")
		for _, k := range sortedKeys(meta) {
			parts = append(parts, k+": "+meta[k])
		}
		parts = append(parts, strings.Repeat("=", 30)+"\n")
	}

	for _, p := range pages {
		var pageText []string
		if p.Native.Text != "" {
			pageText = append(pageText, p.Native.Text)
		}
		if p.OCR.Text != "" && p.OCR.Text != p.Native.Text {
			pageText = append(pageText, p.OCR.Text)
		}
		if len(pageText) > 0 {
			parts = append(parts, fmt.Sprintf("\n--- Page %d ---\n", p.PageNumber))
			parts = append(parts, pageText...)
		}
	}
	return strings.Join(parts, "\n")
}

// ExtractImages 返回所有页面的内嵌图片；单页失败记录日志后跳过。
func (r *Reader) ExtractImages(ctx context.Context) ([]EmbeddedImage, error) {
	er := r.embeddedRenderer()
	if _, err := er.load(); err != nil {
		return nil, err
	}
	var out []EmbeddedImage
	for page := 0; page < r.NumPages(); page++ {
		images, err := er.PageImages(ctx, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			log.Errorf("failed to extract images from page %d: %v", page+1, err)
			continue
		}
		out = append(out, images...)
	}
	return out, nil
}
