// Package ucm implements UnifiedContextManager (C10): the sole entry
// point for every interaction, composing SceneClassifier, HybridRetriever,
// PromptAssembler, TierHandlers, WorkingMemory, and LifecycleManager into
// one process_interaction pipeline. Grounded in cmd/wasm/main.go's
// global-singleton wiring, turned into an explicit Runtime struct built
// once by cmd/memoryd instead of package-level state.
package ucm

// InteractionSource is where an interaction originated.
type InteractionSource string

const (
	SourceChatInput      InteractionSource = "CHAT_INPUT"
	SourcePassiveTrigger InteractionSource = "PASSIVE_TRIGGER"
	SourceSystemEvent    InteractionSource = "SYSTEM_EVENT"
	SourceToolResult     InteractionSource = "TOOL_RESULT"
	SourcePluginAction   InteractionSource = "PLUGIN_ACTION"
	SourceGameInteraction InteractionSource = "GAME_INTERACTION"
)

// InteractionRequest is UCM's inbound contract.
type InteractionRequest struct {
	RequestID string
	Source    InteractionSource
	EventType string
	Timestamp int64
	Payload   map[string]any
	TraceID   string // optional; generated if empty
}

// EmotionTag is the response's attached affect.
type EmotionTag struct {
	Tag       string
	Intensity float64
}

// InteractionResponse is UCM's outbound contract.
type InteractionResponse struct {
	RequestID    string
	Success      bool
	ResponseText string
	Emotion      EmotionTag
	StateChanges map[string]any
	TraceSpans   []string
	Err          error
}

// WriteLevel controls how much of an interaction gets persisted as a
// Memory during post-processing.
type WriteLevel string

const (
	WriteFull       WriteLevel = "FULL"
	WriteSummary    WriteLevel = "SUMMARY"
	WriteResultOnly WriteLevel = "RESULT_ONLY"
	WriteNone       WriteLevel = "NONE"
)

// writePolicy is the InteractionSource -> (write level, default
// importance) table from spec §4.10.
type writePolicyEntry struct {
	Level      WriteLevel
	Importance float64
}

var writePolicy = map[InteractionSource]writePolicyEntry{
	SourceChatInput:       {WriteFull, 0.6},
	SourceToolResult:      {WriteSummary, 0.5},
	SourcePluginAction:    {WriteSummary, 0.4},
	SourceSystemEvent:     {WriteSummary, 0.5},
	SourceGameInteraction: {WriteResultOnly, 0.3},
	SourcePassiveTrigger:  {WriteNone, 0},
}

// writePolicyFor looks up the policy for a source, defaulting to the
// most conservative (no write) for an unrecognized source rather than
// guessing at importance.
func writePolicyFor(src InteractionSource) writePolicyEntry {
	if p, ok := writePolicy[src]; ok {
		return p
	}
	return writePolicyEntry{WriteNone, 0}
}
