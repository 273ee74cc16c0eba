package pdfreader

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
)

// TextSource 提供原生文本层；页号从 0 开始。
type TextSource interface {
	NumPages() int
	PageText(ctx context.Context, page int) (string, error)
	Metadata() map[string]string
}

// nativeText 基于 ledongthuc/pdf 读取文本层与 Info 字典。
// ledongthuc/pdf 的 Reader 不是并发安全的，且遇到畸形文件可能 panic。
type nativeText struct {
	mu     sync.Mutex
	reader *pdf.Reader
}

// openNativeText 只接受明文 PDF；加密文件先经 decryptPDF 处理。
func openNativeText(data []byte) (src *nativeText, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			src, err = nil, fmt.Errorf("parse pdf: panic: %v", rec)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	return &nativeText{reader: r}, nil
}

func (n *nativeText) NumPages() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reader.NumPage()
}

func (n *nativeText) PageText(ctx context.Context, page int) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("extract text from page %d: panic: %v", page+1, rec)
		}
	}()

	p := n.reader.Page(page + 1)
	if p.V.IsNull() {
		return "", fmt.Errorf("page %d not found", page+1)
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract text from page %d: %w", page+1, err)
	}
	return strings.TrimSpace(text), nil
}

// Metadata 读取 Info 字典：去掉键的前导 "/"，保留非空字符串值，字符串数组以 ", " 连接，其余类型丢弃。
func (n *nativeText) Metadata() (out map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			out = map[string]string{}
		}
	}()

	out = make(map[string]string)
	info := n.reader.Trailer().Key("Info")
	if info.IsNull() {
		return out
	}
	for _, key := range info.Keys() {
		if s, ok := metadataValue(info.Key(key)); ok {
			out[strings.TrimLeft(key, "/")] = s
		}
	}
	return out
}

func metadataValue(v pdf.Value) (string, bool) {
	switch v.Kind() {
	case pdf.String:
		s := v.Text()
		return s, strings.TrimSpace(s) != ""
	case pdf.Array:
		items := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			item := v.Index(i)
			if item.Kind() != pdf.String {
				return "", false
			}
			items = append(items, item.Text())
		}
		return strings.Join(items, ", "), true
	default:
		return "", false
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
