package protocol

import (
	"encoding/json"
	"time"
)

// --- Method Name Constants ---
// These align with the envelope 'method' field names.

const (
	MethodListTools   = "tools/list"
	MethodCallTool    = "tools/call"
	MethodFindTools   = "tools/find"
	MethodGetArtifact = "artifact/get"

	// Notifications
	MethodNotifyToolsListChanged = "notifications/tools/list_changed"
	MethodCancelled              = "$/cancelled"
	MethodFragment               = "$/fragment"
)

// ListFilter selects which descriptors an operation should see. Filters are
// applied as a conjunction, include-then-exclude; an empty include list means "all".
type ListFilter struct {
	Names             []string `json:"names,omitempty" yaml:"names,omitempty"`
	ExcludeNames      []string `json:"excludeNames,omitempty" yaml:"exclude_names,omitempty"`
	Categories        []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	ExcludeCategories []string `json:"excludeCategories,omitempty" yaml:"exclude_categories,omitempty"`
	Kinds             []string `json:"kinds,omitempty" yaml:"kinds,omitempty"`
	ExcludeKinds      []string `json:"excludeKinds,omitempty" yaml:"exclude_kinds,omitempty"`
}

// ListToolsParams defines the parameters for a 'tools/list' request.
type ListToolsParams struct {
	Filter *ListFilter `json:"filter,omitempty"`
}

// ToolSummary is the published form of one tool in a 'tools/list' response.
type ToolSummary struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	InputSchema *ParameterSchema `json:"inputSchema,omitempty"`
	Annotations Annotation       `json:"annotations"`
}

// ListToolsResult defines the result payload for a successful 'tools/list' response.
type ListToolsResult struct {
	Tools []ToolSummary `json:"tools"`
}

// CallToolParams defines the parameters for a 'tools/call' request.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Stream    bool                   `json:"stream,omitempty"`
}

// CallToolResult defines the result payload for a 'tools/call' response.
// Content is always a single well-formed JSON payload.
type CallToolResult struct {
	Content json.RawMessage `json:"content,omitempty"`
	IsError bool            `json:"isError"`
	Error   *BridgeError    `json:"error,omitempty"`
}

// FindToolsParams defines the parameters for a 'tools/find' request.
type FindToolsParams struct {
	Query      string   `json:"query"`
	Categories []string `json:"categories,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Method     string   `json:"method,omitempty"`
}

// FoundTool is one discovery match, tagged with the strategy that produced it.
type FoundTool struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
	Method      string  `json:"method"`
}

// FindMeta reports which strategy answered the query and how many tools
// matched before truncation.
type FindMeta struct {
	Method       string `json:"method"`
	TotalMatches int    `json:"totalMatches"`
}

// FindToolsResult defines the result payload for a 'tools/find' response.
type FindToolsResult struct {
	Tools []FoundTool `json:"tools"`
	Meta  FindMeta    `json:"meta"`
}

// GetArtifactParams defines the parameters for an 'artifact/get' request.
type GetArtifactParams struct {
	ID string `json:"id"`
}

// GetArtifactResult returns a stored artifact payload by ID.
type GetArtifactResult struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// CancelledParams contains parameters for a '$/cancelled' notification.
type CancelledParams struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

// FragmentParams carries one streamed output fragment for an in-flight call.
// Fragments for a single call preserve emission order.
type FragmentParams struct {
	RequestID string `json:"requestId"`
	Fragment  string `json:"fragment"`
}
