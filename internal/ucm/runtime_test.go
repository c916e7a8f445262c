package ucm_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aimate/memorycore/internal/config"
	"github.com/aimate/memorycore/internal/errs"
	"github.com/aimate/memorycore/internal/llm"
	"github.com/aimate/memorycore/internal/observability"
	"github.com/aimate/memorycore/internal/scene"
	"github.com/aimate/memorycore/internal/store"
	"github.com/aimate/memorycore/internal/tier"
	"github.com/aimate/memorycore/internal/ucm"
)

// recordingLLM captures the last prompt it was called with and returns a
// canned response, or failKind's error if set.
type recordingLLM struct {
	lastPrompt string
	response   llm.Response
	failKind   errs.LLMErrorKind
}

func (r *recordingLLM) Call(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (llm.Response, error) {
	r.lastPrompt = prompt
	if r.failKind != "" {
		return llm.Response{}, &errs.LLMError{Kind: r.failKind, Err: errors.New("sdk failure")}
	}
	return r.response, nil
}

type fakeStore struct {
	memories map[string]*store.Memory
}

func newFakeStore() *fakeStore { return &fakeStore{memories: make(map[string]*store.Memory)} }

func (s *fakeStore) Insert(m *store.Memory) (string, error) {
	if m.ID == "" {
		m.ID = "generated"
	}
	s.memories[m.ID] = m
	return m.ID, nil
}
func (s *fakeStore) Get(id string) (*store.Memory, error) { return s.memories[id], nil }
func (s *fakeStore) Touch(id string) error                 { return nil }
func (s *fakeStore) DecayTick(rate float64) error           { return nil }
func (s *fakeStore) Archive(id string) error                { return nil }
func (s *fakeStore) Restore(id string) error                { return nil }
func (s *fakeStore) MarkVectorized(id string) error         { return nil }
func (s *fakeStore) SetConflictFlag(id string, flag bool) error { return nil }
func (s *fakeStore) FTSSearch(query string, limit int, window store.TimeWindow) ([]store.FTSHit, error) {
	return nil, nil
}
func (s *fakeStore) ActiveMemories() ([]*store.Memory, error) { return nil, nil }
func (s *fakeStore) RecentMemories(since int64, limit int) ([]*store.Memory, error) {
	return nil, nil
}
func (s *fakeStore) SchemaVersion() (int, error) { return 1, nil }
func (s *fakeStore) Close() error                { return nil }

func newTestRuntime(t *testing.T, st store.Storer) *ucm.Runtime {
	t.Helper()
	tp := observability.NewTracerProvider(&bytes.Buffer{})
	tracer := observability.NewTracer(tp, observability.Logger(&bytes.Buffer{}))

	sc := scene.NewClassifier(&scene.Table{})
	chain := &tier.Chain{
		Template: tier.NewTemplateTier(tier.TemplateTable{
			"CHAT_INPUT": {{Text: "I hear you.", EmotionTag: "neutral", EmotionIntensity: 0.4}},
		}),
		EmergencyText: map[string]string{"CHAT_INPUT": "..."},
	}

	cfg := *config.Default()
	fixedNow := func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }

	return ucm.NewRuntime(st, nil, nil, nil, sc, chain, nil, nil, tracer, cfg, fixedNow)
}

func TestProcessInteractionChatInputWritesMemoryAndRespondsViaTemplate(t *testing.T) {
	st := newFakeStore()
	rt := newTestRuntime(t, st)

	resp := rt.ProcessInteraction(context.Background(), ucm.InteractionRequest{
		RequestID: "r1",
		Source:    ucm.SourceChatInput,
		EventType: "CHAT_INPUT",
		Payload:   map[string]any{"text": "hello there"},
	})

	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.ResponseText == "" {
		t.Fatal("expected non-empty response text")
	}
	if _, ok := resp.StateChanges["memory_id"]; !ok {
		t.Fatalf("expected a memory_id in state changes, got %+v", resp.StateChanges)
	}
	if len(st.memories) != 1 {
		t.Fatalf("expected one memory written, got %d", len(st.memories))
	}
}

func newTestRuntimeWithLLM(t *testing.T, st store.Storer, rec *recordingLLM) *ucm.Runtime {
	t.Helper()
	tp := observability.NewTracerProvider(&bytes.Buffer{})
	tracer := observability.NewTracer(tp, observability.Logger(&bytes.Buffer{}))

	sc := scene.NewClassifier(&scene.Table{})
	chain := &tier.Chain{
		LLM: tier.NewLLMTier(rec, tier.ValidEmotionTags, 256, 0.7, time.Second),
		Template: tier.NewTemplateTier(tier.TemplateTable{
			"CHAT_INPUT": {{Text: "I hear you.", EmotionTag: "neutral", EmotionIntensity: 0.4}},
		}),
		EmergencyText: map[string]string{"CHAT_INPUT": "..."},
	}

	cfg := *config.Default()
	cfg.Companion.Identity = "test-identity-marker"
	fixedNow := func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }

	return ucm.NewRuntime(st, nil, nil, nil, sc, chain, nil, nil, tracer, cfg, fixedNow)
}

func TestProcessInteractionPromptUsesConfiguredCompanionProfileNotPayload(t *testing.T) {
	st := newFakeStore()
	rec := &recordingLLM{response: llm.Response{Text: "hi there [EMOTION:happy:0.6]"}}
	rt := newTestRuntimeWithLLM(t, st, rec)

	// Deliberately omit identity/environment/long_term_summary from the
	// payload: they must come from the runtime's configured profile, not
	// from per-request payload keys that are never populated in practice.
	rt.ProcessInteraction(context.Background(), ucm.InteractionRequest{
		RequestID: "r3",
		Source:    ucm.SourceChatInput,
		EventType: "CHAT_INPUT",
		Payload:   map[string]any{"text": "你好"},
	})

	if strings.Contains(rec.lastPrompt, "<nil>") {
		t.Fatalf("prompt leaked an unset payload key as <nil>: %q", rec.lastPrompt)
	}
	if !strings.Contains(rec.lastPrompt, "test-identity-marker") {
		t.Fatalf("expected prompt to contain the configured identity, got %q", rec.lastPrompt)
	}
}

func TestProcessInteractionParsesEmotionTagFromLLMResponse(t *testing.T) {
	st := newFakeStore()
	rec := &recordingLLM{response: llm.Response{Text: "Glad to hear it! [EMOTION:happy:0.9]"}}
	rt := newTestRuntimeWithLLM(t, st, rec)

	resp := rt.ProcessInteraction(context.Background(), ucm.InteractionRequest{
		RequestID: "r4",
		Source:    ucm.SourceChatInput,
		EventType: "CHAT_INPUT",
		Payload:   map[string]any{"text": "good news"},
	})

	if resp.Emotion.Tag != "happy" || resp.Emotion.Intensity != 0.9 {
		t.Fatalf("expected parsed emotion happy/0.9, got %+v", resp.Emotion)
	}
	if strings.Contains(resp.ResponseText, "[EMOTION") {
		t.Fatalf("expected the emotion marker to be stripped, got %q", resp.ResponseText)
	}
	if !strings.Contains(rec.lastPrompt, "[EMOTION:tag:intensity]") {
		t.Fatalf("expected the prompt to instruct the model to emit an emotion marker, got %q", rec.lastPrompt)
	}
}

func TestProcessInteractionAuthErrorSkipsFallbackAndReportsFailure(t *testing.T) {
	st := newFakeStore()
	rec := &recordingLLM{failKind: errs.LLMAuthError}
	rt := newTestRuntimeWithLLM(t, st, rec)

	resp := rt.ProcessInteraction(context.Background(), ucm.InteractionRequest{
		RequestID: "r5",
		Source:    ucm.SourceChatInput,
		EventType: "CHAT_INPUT",
		Payload:   map[string]any{"text": "hello"},
	})

	if resp.Success {
		t.Fatal("expected success=false when tier 3 fails with a non-retryable error")
	}
	if resp.Err == nil {
		t.Fatal("expected a non-nil Err")
	}
	if resp.ResponseText == "" {
		t.Fatal("expected a non-empty emergency response text even on total failure")
	}
	foundTimeoutSpan := false
	for _, s := range resp.TraceSpans {
		if s == "LLM.auth_error" {
			foundTimeoutSpan = true
		}
	}
	if !foundTimeoutSpan {
		t.Fatalf("expected an LLM.auth_error span, got %v", resp.TraceSpans)
	}
}

func TestProcessInteractionWarningRuleEscalatesOverConsecutiveTurns(t *testing.T) {
	st := newFakeStore()
	tp := observability.NewTracerProvider(&bytes.Buffer{})
	tracer := observability.NewTracer(tp, observability.Logger(&bytes.Buffer{}))
	sc := scene.NewClassifier(&scene.Table{})
	chain := &tier.Chain{
		Rule: tier.NewRuleTier(map[string]tier.RuleFunc{"system_warning": tier.SystemWarningRule}),
	}
	cfg := *config.Default()
	now := func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }
	rt := ucm.NewRuntime(st, nil, nil, nil, sc, chain, nil, nil, tracer, cfg, now)

	req := ucm.InteractionRequest{RequestID: "w", Source: ucm.SourcePassiveTrigger, EventType: "system_warning", Payload: map[string]any{}}

	first := rt.ProcessInteraction(context.Background(), req)
	if first.Emotion.Intensity != 0.3 {
		t.Fatalf("expected the first warning to hit the base case (intensity 0.3), got %+v", first.Emotion)
	}
	rt.ProcessInteraction(context.Background(), req)
	rt.ProcessInteraction(context.Background(), req)
	fourth := rt.ProcessInteraction(context.Background(), req)
	if fourth.Emotion.Intensity != 0.7 {
		t.Fatalf("expected the 4th consecutive warning to escalate to intensity 0.7, got %+v", fourth.Emotion)
	}
}

func TestProcessInteractionPassiveTriggerWritesNoMemory(t *testing.T) {
	st := newFakeStore()
	rt := newTestRuntime(t, st)

	resp := rt.ProcessInteraction(context.Background(), ucm.InteractionRequest{
		RequestID: "r2",
		Source:    ucm.SourcePassiveTrigger,
		EventType: "hover",
		Payload:   map[string]any{},
	})

	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if len(st.memories) != 0 {
		t.Fatalf("expected no memory written for PASSIVE_TRIGGER, got %d", len(st.memories))
	}
}
