package protocol

import "encoding/json"

const (
	PathStatus   = "/status"
	PathGenerate = "/api/ai/generate"

	StatusSuccess = "success"
	StatusRunning = "running"
	StatusError   = "error"
)

// Target selects which application a command is routed to.
type Target string

const (
	TargetBlender Target = "blender"
	TargetUnreal  Target = "unreal"
)

func (t Target) Path() string {
	return "/api/" + string(t) + "/command"
}

func (t Target) Valid() bool {
	return t == TargetBlender || t == TargetUnreal
}

// Command is sent verbatim to the server.
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

func NewCommand(name string, params map[string]any) Command {
	if params == nil {
		params = map[string]any{}
	}
	return Command{Command: name, Params: params}
}

type Response struct {
	Status  string          `json:"status,omitempty"`
	Command string          `json:"command,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`

	// ExportInfo is set by Blender's export_asset.
	ExportInfo *ExportInfo `json:"export_info,omitempty"`
}

// OK reports whether the server accepted the command. A reply without a
// status counts as accepted unless it carries an error.
func (r *Response) OK() bool {
	if r.Error != "" {
		return false
	}
	return r.Status == "" || r.Status == StatusSuccess
}

// Failure returns the server's explanation, if any.
func (r *Response) Failure() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Message != "":
		return r.Message
	case r.Status != "":
		return "status " + r.Status
	default:
		return "no status in response"
	}
}

// ResultObject decodes Result when it is a JSON object.
func (r *Response) ResultObject() (*Result, bool) {
	if len(r.Result) == 0 || r.Result[0] != '{' {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return nil, false
	}
	return &res, true
}

// ResultText returns Result when the server sent a plain string.
func (r *Response) ResultText() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return ""
	}
	return s
}

type Result struct {
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	AssetInfo *AssetInfo     `json:"asset_info,omitempty"`
}

type AssetInfo struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

type ExportInfo struct {
	Path string `json:"path"`
}

type Status struct {
	Status  string    `json:"status"`
	Version string    `json:"version,omitempty"`
	AI      AIStatus  `json:"ai"`
	Blender AppStatus `json:"blender"`
	Unreal  AppStatus `json:"unreal"`
	Error   string    `json:"error,omitempty"`
}

func (s *Status) Running() bool {
	return s.Status == StatusRunning
}

type AIStatus struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Status   string `json:"status,omitempty"`
}

type AppStatus struct {
	Enabled bool   `json:"enabled"`
	Status  string `json:"status,omitempty"`
}

type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Type   string `json:"type,omitempty"`
	Model  string `json:"model,omitempty"`
}

type GenerateResponse struct {
	Status   string         `json:"status"`
	Type     string         `json:"type,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
	Result   any            `json:"result,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Message  string         `json:"message,omitempty"`
}
