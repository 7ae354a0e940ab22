package relay

// --- Turn input ---

// InputType classifies the modality of a turn's raw input.
type InputType string

const (
	InputText  InputType = "text"
	InputAudio InputType = "audio"
	InputImage InputType = "image"
)

// Command is the routing directive the decision node leaves on the state.
// The runner follows it to exactly one node; nothing else writes it.
type Command string

const (
	CommandPreprocess  Command = "preprocess"
	CommandMemoryRead  Command = "memory_read"
	CommandCallModel   Command = "call_model"
	CommandExecuteTool Command = "execute_tool"
	CommandMemoryWrite Command = "memory_write"
	CommandFormat      Command = "format"
)

// PreprocessResult is the outcome of input normalization.
type PreprocessResult struct {
	Text      string    `json:"text"`
	InputType InputType `json:"input_type"`
	MediaURL  string    `json:"media_url,omitempty"`
}

// --- Model protocol types ---

// ToolCallPayload is a tool directive carried on a model response, either
// emitted natively by the backend or parsed from a [TOOL_CALL] marker.
type ToolCallPayload struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ModelResponse is the recorded outcome of one backend generate call.
// Status is "success" or "error"; backends never panic or return Go errors,
// they report failure here.
type ModelResponse struct {
	Output   string           `json:"output"`
	ToolCall *ToolCallPayload `json:"tool_call,omitempty"`
	Status   string           `json:"status"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// ModelOptions carries generation parameters to a backend.
type ModelOptions struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// ModelRequest is a single generation request. Prompt is the fully
// assembled user prompt; SystemPrompt travels on the backend's system
// channel and is never concatenated into Prompt.
type ModelRequest struct {
	Task         string            `json:"task"`
	Prompt       string            `json:"prompt"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
	Options      ModelOptions      `json:"options,omitempty"`
}

// --- Turn state ---

// TurnState is the complete record of one conversational turn. Nodes read
// the state and return a StateDelta; the runner merges deltas field-wise so
// the record only accumulates. Identifiers are caller-supplied and pass
// through verbatim.
type TurnState struct {
	ConversationID string `json:"conversation_id"`
	TraceID        string `json:"trace_id"`
	UserID         string `json:"user_id,omitempty"`
	CreatedAt      int64  `json:"created_at"`

	RawInput  string    `json:"raw_input"`
	InputType InputType `json:"input_type"`
	MediaURL  string    `json:"media_url,omitempty"`

	Preprocessed *PreprocessResult `json:"preprocessing_result,omitempty"`

	// Authorization latches. Only the decision node sets these; the node
	// that consumes one clears it after its single boundary call.
	MemoryReadAuthorized  bool `json:"memory_read_authorized"`
	MemoryWriteAuthorized bool `json:"memory_write_authorized"`

	MemoryReadAttempted bool        `json:"memory_read_attempted"`
	MemoryRead          *ReadResult `json:"memory_read_result,omitempty"`
	MemoryAvailable     bool        `json:"memory_available"`
	MemoryWriteStatus   WriteStatus `json:"memory_write_status,omitempty"`

	ModelResponse *ModelResponse `json:"model_response,omitempty"`
	ToolCallCount int            `json:"tool_call_count"`

	// ToolResults holds the sanitized result items only; raw tool payloads
	// never enter the state record.
	ToolResults   []ResultItem `json:"tool_results,omitempty"`
	ToolContext   string       `json:"tool_context,omitempty"`
	MemoryContext string       `json:"memory_context,omitempty"`

	Command           Command `json:"command,omitempty"`
	FinalOutput       string  `json:"final_output,omitempty"`
	FormattedResponse string  `json:"formatted_response,omitempty"`
	Done              bool    `json:"done"`
}

// StateDelta is a partial update produced by a node. Nil pointers and
// zero-valued directives leave the corresponding field unchanged. Merging
// never discards accumulated data; the only sanctioned removals are the
// two explicit clear flags below.
type StateDelta struct {
	Preprocessed  *PreprocessResult
	MemoryRead    *ReadResult
	ModelResponse *ModelResponse

	MemoryReadAuthorized  *bool
	MemoryWriteAuthorized *bool
	MemoryReadAttempted   *bool
	MemoryAvailable       *bool
	MemoryWriteStatus     WriteStatus

	MemoryContext *string
	ToolContext   *string

	AppendToolResults []ResultItem
	ToolCalls         int // added to the running tool call count

	// ClearToolCall retires an unexecutable directive while keeping the
	// response; ClearModelResponse retires the whole response after a tool
	// ran, so routing returns to the model with tool context in hand.
	ClearToolCall      bool
	ClearModelResponse bool

	Command     Command
	FinalOutput *string
	Formatted   *string
	Done        bool
}

// Apply merges the delta into a copy of the state and returns it.
func (d StateDelta) Apply(s TurnState) TurnState {
	if d.Preprocessed != nil {
		s.Preprocessed = d.Preprocessed
	}
	if d.MemoryRead != nil {
		s.MemoryRead = d.MemoryRead
	}
	if d.ModelResponse != nil {
		s.ModelResponse = d.ModelResponse
	}
	if d.MemoryReadAuthorized != nil {
		s.MemoryReadAuthorized = *d.MemoryReadAuthorized
	}
	if d.MemoryWriteAuthorized != nil {
		s.MemoryWriteAuthorized = *d.MemoryWriteAuthorized
	}
	if d.MemoryReadAttempted != nil {
		s.MemoryReadAttempted = *d.MemoryReadAttempted
	}
	if d.MemoryAvailable != nil {
		// availability never recovers within a turn
		s.MemoryAvailable = s.MemoryAvailable && *d.MemoryAvailable
	}
	if d.MemoryWriteStatus != "" {
		s.MemoryWriteStatus = d.MemoryWriteStatus
	}
	if d.MemoryContext != nil {
		s.MemoryContext = *d.MemoryContext
	}
	if d.ToolContext != nil {
		s.ToolContext = *d.ToolContext
	}
	if len(d.AppendToolResults) > 0 {
		s.ToolResults = append(s.ToolResults, d.AppendToolResults...)
	}
	s.ToolCallCount += d.ToolCalls
	if d.ClearToolCall && s.ModelResponse != nil && s.ModelResponse.ToolCall != nil {
		mr := *s.ModelResponse
		mr.ToolCall = nil
		s.ModelResponse = &mr
	}
	if d.ClearModelResponse {
		s.ModelResponse = nil
	}
	if d.Command != "" {
		s.Command = d.Command
	}
	if d.FinalOutput != nil {
		s.FinalOutput = *d.FinalOutput
	}
	if d.Formatted != nil {
		s.FormattedResponse = *d.Formatted
	}
	if d.Done {
		s.Done = true
	}
	return s
}

// ptr returns a pointer to v. Deltas use pointers to distinguish "set to
// zero value" from "leave unchanged".
func ptr[T any](v T) *T { return &v }
