package types

// ViewKind discriminates rendered tab output
type ViewKind string

const (
	ViewContent ViewKind = "content" // Local module output
	ViewFrame   ViewKind = "frame"   // Isolated network frame
	ViewPending ViewKind = "pending" // Resolution not settled yet
	ViewError   ViewKind = "error"   // Inline failure scoped to the tab
)

// Frame is a sandboxed embedded view of a network-hosted module
type Frame struct {
	URL     string   `json:"url"`
	Sandbox []string `json:"sandbox"`
	Allow   []string `json:"allow,omitempty"`
}

// View is the rendered output of one tab
type View struct {
	TabID  string                 `json:"tab_id"`
	Kind   ViewKind               `json:"kind"`
	Module string                 `json:"module,omitempty"`
	Title  string                 `json:"title,omitempty"`
	Body   string                 `json:"body,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
	Frame  *Frame                 `json:"frame,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// ErrorView builds the inline failure presentation for a tab
func ErrorView(tabID, module string, err error) *View {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &View{TabID: tabID, Kind: ViewError, Module: module, Error: msg}
}
