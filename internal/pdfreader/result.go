package pdfreader

import (
	"sort"
	"strings"
)

// TextStatus 区分“没有文字”和“提取失败”。
type TextStatus int

const (
	TextEmpty TextStatus = iota
	TextPresent
	TextFailed
)

func (s TextStatus) String() string {
	switch s {
	case TextPresent:
		return "present"
	case TextFailed:
		return "failed"
	default:
		return "empty"
	}
}

// TextResult 为一种提取方式在某页上的结果；Err 非空时 Text 为空。
type TextResult struct {
	Text string
	Err  error
}

func newTextResult(text string, err error) TextResult {
	if err != nil {
		return TextResult{Err: err}
	}
	return TextResult{Text: strings.TrimSpace(text)}
}

func (r TextResult) Status() TextStatus {
	switch {
	case r.Err != nil:
		return TextFailed
	case strings.TrimSpace(r.Text) == "":
		return TextEmpty
	default:
		return TextPresent
	}
}

// PageResult 为单页处理结果，PageNumber 从 1 开始。
type PageResult struct {
	PageNumber int
	Native     TextResult
	OCR        TextResult
	Merged     string
}

// MergeTexts 合并原生文本与 OCR 文本：任一侧为空时原样返回另一侧；
// 否则取两侧按空白切分后的词集合的并集，按字典序排序后以单个空格连接。
// 结果不保留原文顺序，只适合做检索用的词袋。
func MergeTexts(a, b string) string {
	if strings.TrimSpace(a) == "" {
		return b
	}
	if strings.TrimSpace(b) == "" {
		return a
	}

	seen := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		seen[w] = struct{}{}
	}
	for _, w := range strings.Fields(b) {
		seen[w] = struct{}{}
	}
	words := make([]string, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Strings(words)
	return strings.Join(words, " ")
}
