package agent

import (
	"github.com/cloudwego/eino/schema"
)

// ToolName 为暴露给模型的工具名，集合是封闭的。
type ToolName string

const (
	ToolSearch              ToolName = "search"
	ToolGetDocument         ToolName = "get_document"
	ToolGetRelatedDocuments ToolName = "get_related_documents"
	ToolSummarizeDocuments  ToolName = "summarize_documents"
	ToolExtractEntities     ToolName = "extract_entities"
)

const (
	defaultSearchLimit  = 5
	defaultRelatedLimit = 3
)

// ToolInfos 返回全部工具定义，顺序固定。
//
// ParameterInfo 无法表达 JSON Schema 的 default，默认值由 DecodeCall 补齐并写在描述里。
func ToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: string(ToolSearch),
			Desc: "Search for documents in the index",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Search query",
					Required: true,
				},
				"search_type": {
					Type: schema.String,
					Desc: "Type of search to perform",
					Enum: []string{"semantic", "keyword", "hybrid"},
				},
				"filters": {
					Type: schema.Object,
					Desc: "Optional filters to apply",
					SubParams: map[string]*schema.ParameterInfo{
						"source_type": {
							Type: schema.String,
							Desc: "Filter by source type",
						},
						"document_set": {
							Type: schema.String,
							Desc: "Filter by document set",
						},
						"time_cutoff": {
							Type: schema.String,
							Desc: "Filter by time cutoff (ISO format)",
						},
						"tags": {
							Type:     schema.Array,
							Desc:     "Filter by tags",
							ElemInfo: &schema.ParameterInfo{Type: schema.String},
						},
					},
				},
				"limit": {
					Type: schema.Integer,
					Desc: "Maximum number of results",
				},
			}),
		},
		{
			Name: string(ToolGetDocument),
			Desc: "Retrieve a specific document by ID",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"document_id": {
					Type:     schema.String,
					Desc:     "The ID of the document to retrieve",
					Required: true,
				},
				"chunk_index": {
					Type: schema.Integer,
					Desc: "Optional specific chunk index to retrieve",
				},
			}),
		},
		{
			Name: string(ToolGetRelatedDocuments),
			Desc: "Find documents related to a given document",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"document_id": {
					Type:     schema.String,
					Desc:     "The ID of the document to find related documents for",
					Required: true,
				},
				"limit": {
					Type: schema.Integer,
					Desc: "Maximum number of related documents",
				},
			}),
		},
		{
			Name: string(ToolSummarizeDocuments),
			Desc: "Generate a summary of specified documents",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"document_ids": {
					Type:     schema.Array,
					Desc:     "List of document IDs to summarize",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
			}),
		},
		{
			Name: string(ToolExtractEntities),
			Desc: "Extract entities from text",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"text": {
					Type:     schema.String,
					Desc:     "Text to extract entities from",
					Required: true,
				},
			}),
		},
	}
}
