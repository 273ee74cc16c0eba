package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/wwwzy/DocAgent/internal/log"
)

const entitySystemText = "You are an entity extraction assistant. " +
	"Extract entities from the text and categorize them. " +
	"Return the result as JSON with the following structure: " +
	"{'people': [], 'organizations': [], 'locations': [], 'dates': [], 'concepts': []}"

const entityParseError = "Failed to parse entities from LLM response"

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")
	braceSpan  = regexp.MustCompile(`(?s)\{.*\}`)
)

// parseEntities 尽力从模型回复中恢复 JSON 对象：整体解析，其次 ```json 代码块，最后首尾花括号之间的内容。
// 全部失败时返回五个空列表并带上 error 字段。
func parseEntities(content string) map[string]any {
	candidate := strings.TrimSpace(content)
	if !strings.HasPrefix(candidate, "{") {
		if m := fencedJSON.FindStringSubmatch(content); m != nil {
			candidate = m[1]
		} else if m := braceSpan.FindString(content); m != "" {
			candidate = m
		}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(candidate), &out); err != nil || out == nil {
		log.Warnf("parse entity extraction response: %v", err)
		return emptyEntities(entityParseError)
	}
	return out
}

func emptyEntities(errMsg string) map[string]any {
	return map[string]any{
		"people":        []string{},
		"organizations": []string{},
		"locations":     []string{},
		"dates":         []string{},
		"concepts":      []string{},
		"error":         errMsg,
	}
}
