package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wwwzy/DocAgent/internal/docindex"
)

// Call 是一次已解码的工具调用，只有本包内的五种实现。
type Call interface {
	Tool() ToolName
	isCall()
}

type SearchCall struct {
	Query      string
	SearchType docindex.SearchType
	Filters    docindex.IndexFilters
	Limit      int
}

type GetDocumentCall struct {
	DocumentID string
	ChunkIndex int
}

type GetRelatedDocumentsCall struct {
	DocumentID string
	Limit      int
}

type SummarizeDocumentsCall struct {
	DocumentIDs []string
}

type ExtractEntitiesCall struct {
	Text string
}

func (SearchCall) Tool() ToolName              { return ToolSearch }
func (GetDocumentCall) Tool() ToolName         { return ToolGetDocument }
func (GetRelatedDocumentsCall) Tool() ToolName { return ToolGetRelatedDocuments }
func (SummarizeDocumentsCall) Tool() ToolName  { return ToolSummarizeDocuments }
func (ExtractEntitiesCall) Tool() ToolName     { return ToolExtractEntities }

func (SearchCall) isCall()              {}
func (GetDocumentCall) isCall()         {}
func (GetRelatedDocumentsCall) isCall() {}
func (SummarizeDocumentsCall) isCall()  {}
func (ExtractEntitiesCall) isCall()     {}

// UnknownToolError 表示模型请求了不存在的工具。
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return "Unknown tool: " + e.Name
}

// MissingArgumentError 表示缺少必填参数。
type MissingArgumentError struct {
	Tool ToolName
	Arg  string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("%s: missing required argument %q", e.Tool, e.Arg)
}

// DecodeCall 将模型给出的工具名与 JSON 参数解码为具体的 Call，并补齐默认值。
func DecodeCall(name, argsJSON string) (Call, error) {
	raw := []byte(normalizeArgs(argsJSON))

	switch ToolName(name) {
	case ToolSearch:
		var args struct {
			Query      *string     `json:"query"`
			SearchType string      `json:"search_type"`
			Filters    *filterArgs `json:"filters"`
			Limit      *flexInt    `json:"limit"`
		}
		if err := decodeArgs(ToolSearch, raw, &args); err != nil {
			return nil, err
		}
		if args.Query == nil {
			return nil, &MissingArgumentError{Tool: ToolSearch, Arg: "query"}
		}
		filters, err := args.Filters.toIndexFilters()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ToolSearch, err)
		}
		return SearchCall{
			Query:      *args.Query,
			SearchType: docindex.ParseSearchType(args.SearchType),
			Filters:    filters,
			Limit:      args.Limit.or(defaultSearchLimit),
		}, nil

	case ToolGetDocument:
		var args struct {
			DocumentID *string  `json:"document_id"`
			ChunkIndex *flexInt `json:"chunk_index"`
		}
		if err := decodeArgs(ToolGetDocument, raw, &args); err != nil {
			return nil, err
		}
		if args.DocumentID == nil {
			return nil, &MissingArgumentError{Tool: ToolGetDocument, Arg: "document_id"}
		}
		return GetDocumentCall{DocumentID: *args.DocumentID, ChunkIndex: args.ChunkIndex.or(0)}, nil

	case ToolGetRelatedDocuments:
		var args struct {
			DocumentID *string  `json:"document_id"`
			Limit      *flexInt `json:"limit"`
		}
		if err := decodeArgs(ToolGetRelatedDocuments, raw, &args); err != nil {
			return nil, err
		}
		if args.DocumentID == nil {
			return nil, &MissingArgumentError{Tool: ToolGetRelatedDocuments, Arg: "document_id"}
		}
		return GetRelatedDocumentsCall{DocumentID: *args.DocumentID, Limit: args.Limit.or(defaultRelatedLimit)}, nil

	case ToolSummarizeDocuments:
		var args struct {
			DocumentIDs *stringList `json:"document_ids"`
		}
		if err := decodeArgs(ToolSummarizeDocuments, raw, &args); err != nil {
			return nil, err
		}
		if args.DocumentIDs == nil {
			return nil, &MissingArgumentError{Tool: ToolSummarizeDocuments, Arg: "document_ids"}
		}
		return SummarizeDocumentsCall{DocumentIDs: *args.DocumentIDs}, nil

	case ToolExtractEntities:
		var args struct {
			Text *string `json:"text"`
		}
		if err := decodeArgs(ToolExtractEntities, raw, &args); err != nil {
			return nil, err
		}
		if args.Text == nil {
			return nil, &MissingArgumentError{Tool: ToolExtractEntities, Arg: "text"}
		}
		return ExtractEntitiesCall{Text: *args.Text}, nil

	default:
		return nil, &UnknownToolError{Name: name}
	}
}

// normalizeArgs 把空参数或不完整的 "{" 视为 {}。
func normalizeArgs(args string) string {
	args = strings.TrimSpace(args)
	if args == "" || args == "{" || args == "null" {
		return "{}"
	}
	return args
}

func decodeArgs(tool ToolName, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: invalid arguments: %w", tool, err)
	}
	return nil
}

type filterArgs struct {
	SourceType  stringList `json:"source_type"`
	DocumentSet stringList `json:"document_set"`
	TimeCutoff  string     `json:"time_cutoff"`
	Tags        stringList `json:"tags"`
}

func (f *filterArgs) toIndexFilters() (docindex.IndexFilters, error) {
	var out docindex.IndexFilters
	if f == nil {
		return out, nil
	}
	out.SourceType = f.SourceType
	out.DocumentSet = f.DocumentSet
	for _, t := range f.Tags {
		out.Tags = append(out.Tags, docindex.ParseTag(t))
	}
	if strings.TrimSpace(f.TimeCutoff) != "" {
		cutoff, err := parseISOTime(f.TimeCutoff)
		if err != nil {
			return out, err
		}
		out.TimeCutoff = &cutoff
	}
	return out, nil
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseISOTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time_cutoff %q: expected ISO 8601", s)
}

// stringList 同时接受单个字符串与字符串数组。
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one != "" {
			*l = stringList{one}
		} else {
			*l = stringList{}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("expected a string or an array of strings")
	}
	*l = many
	return nil
}

// flexInt 接受整数、整数值的浮点数以及数字字符串。
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" || s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return fmt.Errorf("expected an integer, got %s", string(b))
	}
	*n = flexInt(f)
	return nil
}

func (n *flexInt) or(def int) int {
	if n == nil {
		return def
	}
	return int(*n)
}
