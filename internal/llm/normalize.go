package llm

import (
	"encoding/json"
	"strings"
)

// NormalizeToolInput canonicalizes a tool-use input. Some providers deliver
// tool arguments as a JSON-encoded string rather than an object; tool
// dispatch expects the object form. If raw is a JSON string whose contents
// parse as a JSON object, the parsed object is returned. Anything else is
// returned unchanged.
func NormalizeToolInput(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) < 2 || trimmed[0] != '"' {
		return raw
	}
	var inner string
	if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
		return raw
	}
	innerTrimmed := strings.TrimSpace(inner)
	if len(innerTrimmed) == 0 || innerTrimmed[0] != '{' {
		return raw
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(innerTrimmed), &obj); err != nil {
		return raw
	}
	return json.RawMessage(innerTrimmed)
}

// NewToolResultBlock builds the tool-result content block answering the
// tool use with the given id.
func NewToolResultBlock(toolUseID, output string, isError bool) ContentBlock {
	return ContentBlock{
		Type: BlockToolResult,
		ToolResult: &ToolResult{
			ToolUseID: toolUseID,
			Content:   output,
			IsError:   isError,
		},
	}
}

// Fingerprint produces the canonical (name, input) identity of a tool call,
// used for loop detection. Object keys are sorted by re-marshalling through
// a map; inputs that fail to parse fall back to their raw text.
func Fingerprint(name string, input json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(input, &v); err != nil {
		return name + ":" + string(input)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return name + ":" + string(input)
	}
	return name + ":" + string(canonical)
}
