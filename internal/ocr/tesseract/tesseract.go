// Package tesseract 基于 gosseract 调用 Tesseract，需要系统安装 libtesseract 与语言数据。
package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/wwwzy/DocAgent/internal/ocr"
)

const (
	DefaultLanguage    = "eng"
	DefaultPageSegMode = int(gosseract.PSM_SINGLE_BLOCK)
)

var _ ocr.Extractor = (*Extractor)(nil)

type options struct {
	language    string
	pageSegMode int
}

type Option func(*options)

// WithLanguage 设置识别语言，多个语言用 "+" 连接，例如 "eng+chi_sim"。
func WithLanguage(lang string) Option {
	return func(o *options) {
		if lang != "" {
			o.language = lang
		}
	}
}

// WithPageSegMode 设置页面分割模式（0-13），越界值被忽略。
func WithPageSegMode(mode int) Option {
	return func(o *options) {
		if mode >= 0 && mode <= 13 {
			o.pageSegMode = mode
		}
	}
}

// Extractor 用 sync.Pool 复用 gosseract client，支持并发识别。
type Extractor struct {
	pool *sync.Pool
	opts options

	mu     sync.Mutex
	closed bool
}

func New(opts ...Option) (*Extractor, error) {
	o := options{language: DefaultLanguage, pageSegMode: DefaultPageSegMode}
	for _, opt := range opts {
		opt(&o)
	}

	// 先识别一张空白图，确认 libtesseract 与语言数据可用
	probe, err := newClient(o)
	if err != nil {
		return nil, err
	}
	defer probe.Close()
	if _, err := recognize(probe, blankImage()); err != nil {
		return nil, fmt.Errorf("init tesseract: %w", err)
	}

	return &Extractor{
		opts: o,
		pool: &sync.Pool{
			New: func() any {
				c, err := newClient(o)
				if err != nil {
					return nil
				}
				return c
			},
		},
	}, nil
}

func blankImage() []byte {
	var buf bytes.Buffer
	_ = imaging.Encode(&buf, imaging.New(16, 16, color.White), imaging.PNG)
	return buf.Bytes()
}

func newClient(o options) (*gosseract.Client, error) {
	c := gosseract.NewClient()
	if err := c.SetLanguage(o.language); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("set tesseract language %q: %w", o.language, err)
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(o.pageSegMode)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("set tesseract page seg mode %d: %w", o.pageSegMode, err)
	}
	return c, nil
}

// ExtractText 识别图片文字并去掉首尾空白。识别在独立 goroutine 中进行，ctx 取消时立即返回，
// client 在识别结束后才归还到池中。
func (e *Extractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	if e == nil || e.pool == nil {
		return "", errors.New("tesseract extractor not initialized")
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return "", errors.New("tesseract extractor closed")
	}
	if len(image) == 0 {
		return "", errors.New("empty image")
	}

	client, ok := e.pool.Get().(*gosseract.Client)
	if !ok || client == nil {
		return "", errors.New("create tesseract client")
	}

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer e.pool.Put(client)
		text, err := recognize(client, image)
		ch <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.text, r.err
	}
}

func recognize(client *gosseract.Client, image []byte) (string, error) {
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close 之后 ExtractText 返回错误；池中的 client 由 GC 回收。
func (e *Extractor) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}
