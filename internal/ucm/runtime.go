package ucm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aimate/memorycore/internal/config"
	"github.com/aimate/memorycore/internal/embedding"
	"github.com/aimate/memorycore/internal/errs"
	"github.com/aimate/memorycore/internal/lifecycle"
	"github.com/aimate/memorycore/internal/llm"
	"github.com/aimate/memorycore/internal/nlp"
	"github.com/aimate/memorycore/internal/observability"
	"github.com/aimate/memorycore/internal/promptasm"
	"github.com/aimate/memorycore/internal/retriever"
	"github.com/aimate/memorycore/internal/scene"
	"github.com/aimate/memorycore/internal/store"
	"github.com/aimate/memorycore/internal/tier"
	"github.com/aimate/memorycore/internal/vectorindex"
	"github.com/aimate/memorycore/internal/vectorqueue"
	"github.com/aimate/memorycore/internal/workingmemory"
)

// queryEmbedder adapts embedding.Client's batch Embed to
// retriever.Embedder's single-query contract.
type queryEmbedder struct {
	client embedding.Client
}

func (q queryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := q.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("ucm: embedder returned no vectors")
	}
	return vecs[0], nil
}

// Runtime is the composition root: every module wired by constructor
// injection, no package-level globals, matching cmd/memoryd's single
// build-once call site.
type Runtime struct {
	Store     store.Storer
	VecIndex  *vectorindex.Index
	VecQueue  *vectorqueue.Queue
	Lifecycle *lifecycle.Manager
	Scene     *scene.Classifier
	Tier      *tier.Chain
	Embedder  embedding.Client
	LLM       llm.Client
	Tracer    *observability.Tracer
	Cfg       config.Config

	mu            sync.Mutex
	sessions      map[string]*workingmemory.Buffer
	states        map[string]CompanionState
	warningCounts map[string]int
	now           func() time.Time
}

// NewRuntime wires the given collaborators into a Runtime. now is
// injectable for deterministic tests; nil defaults to time.Now.
func NewRuntime(st store.Storer, vecIndex *vectorindex.Index, vecQueue *vectorqueue.Queue,
	lc *lifecycle.Manager, sc *scene.Classifier, tc *tier.Chain, emb embedding.Client,
	llmClient llm.Client, tracer *observability.Tracer, cfg config.Config, now func() time.Time) *Runtime {
	if now == nil {
		now = time.Now
	}
	return &Runtime{
		Store: st, VecIndex: vecIndex, VecQueue: vecQueue, Lifecycle: lc,
		Scene: sc, Tier: tc, Embedder: emb, LLM: llmClient, Tracer: tracer, Cfg: cfg,
		sessions:      make(map[string]*workingmemory.Buffer),
		states:        make(map[string]CompanionState),
		warningCounts: make(map[string]int),
		now:           now,
	}
}

// sessionKey groups working memory and companion state per source;
// CHAT_INPUT interactions without an explicit session in the payload
// share one default buffer, matching a single-user desktop companion.
func sessionKey(req InteractionRequest) string {
	if sid, ok := req.Payload["session_id"].(string); ok && sid != "" {
		return sid
	}
	return "default"
}

func (r *Runtime) bufferFor(key string) *workingmemory.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.sessions[key]
	if !ok {
		b = workingmemory.New(r.Cfg.WorkingMemory.BufferSize, r.Cfg.WorkingMemory.SessionTimeoutMinutes, r.now)
		r.sessions[key] = b
	}
	return b
}

func (r *Runtime) stateFor(key string) CompanionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[key]
}

func (r *Runtime) setState(key string, s CompanionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[key] = s
}

// bumpWarningCount returns how many system_warning turns preceded this
// one (0 on the first), then records this turn for the next call. Any
// other scene resets the streak, so it only persists across consecutive
// system_warning turns.
func (r *Runtime) bumpWarningCount(sceneID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sceneID != "system_warning" {
		delete(r.warningCounts, "system_warning")
		return 0
	}
	prior := r.warningCounts["system_warning"]
	r.warningCounts["system_warning"] = prior + 1
	return prior
}

// isNight reports whether now falls in the configured night window,
// which may wrap past midnight (e.g. 22 -> 6).
func isNight(cfg config.CompanionConfig, now time.Time) bool {
	start, end := cfg.NightStartHour, cfg.NightEndHour
	if start == end {
		return false
	}
	hour := now.Hour()
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

var recallTokenPattern = regexp.MustCompile(`\[RECALL:#([^\]]+)\]`)

// ProcessInteraction runs the full UCM pipeline: classify, retrieve,
// generate, writeback, enqueue. It is the sole entry point; nothing
// else in the module is supposed to touch Store/VectorQueue/WorkingMemory
// directly on behalf of an interaction.
func (r *Runtime) ProcessInteraction(ctx context.Context, req InteractionRequest) InteractionResponse {
	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	var spans []string

	key := sessionKey(req)
	buf := r.bufferFor(key)
	now := r.now()

	spanCtx, classifySpan := r.Tracer.Start(ctx, "agent.loop.classify")
	classification := r.Scene.Classify(scene.Request{
		Source:    string(req.Source),
		EventType: req.EventType,
		Payload:   req.Payload,
	})
	classifySpan.End()
	spans = append(spans, "agent.loop.classify")

	var retrieval retriever.Result
	if classification.MemoryPolicy != scene.MemoryNone {
		_, retSpan := r.Tracer.Start(spanCtx, "memory.search")
		query, _ := req.Payload["text"].(string)
		var err error
		if query != "" && r.Store != nil {
			vec := vectorSearcherOrNil(r.VecIndex)
			var emb retriever.Embedder
			if r.Embedder != nil {
				emb = queryEmbedder{client: r.Embedder}
			} else {
				vec = nil // no embedder configured; fall back to FTS only
			}
			retrieval, err = retriever.Retrieve(spanCtx, query, r.Cfg.Retriever, nlp.DefaultDeixisRules,
				r.Store, vec, emb, now, false)
			if err != nil {
				retrieval = retriever.Result{NoRelevantMemory: true}
			}
		} else {
			retrieval = retriever.Result{NoRelevantMemory: true}
		}
		retSpan.End()
		spans = append(spans, "memory.search")
	} else {
		retrieval = retriever.Result{NoRelevantMemory: true}
	}

	text, _ := req.Payload["text"].(string)
	mode := promptMode(classification)
	prompt, _ := promptasm.Assemble(r.Cfg.Prompt, promptasm.Input{
		Mode:            mode,
		Identity:        r.Cfg.Companion.Identity,
		Environment:     r.Cfg.Companion.Environment,
		LongTermSummary: r.Cfg.Companion.LongTermSummary,
		Working:         buf.Recent(r.Cfg.WorkingMemory.BufferSize),
		Retrieval:       retrieval,
		Instructions:    text,
		OutputFormat:    r.Cfg.Companion.OutputFormat,
		Now:             now,
	})

	warningCount := r.bumpWarningCount(classification.SceneID)

	_, genSpan := r.Tracer.Start(spanCtx, "agent.loop.generate")
	outcome := r.Tier.Respond(spanCtx, classification.SceneID, prompt, tier.RuleContext{
		SceneID: classification.SceneID,
		Payload: req.Payload,
		State:   map[string]any{"warning_count": warningCount},
		Now:     now,
	})
	genSpan.End()
	spans = append(spans, "agent.loop.generate", fmt.Sprintf("feature.%s.handle", classification.SceneID))
	spans = append(spans, r.outcomeSpans(outcome)...)

	responseText := outcome.Response.Text
	if m := recallTokenPattern.FindStringSubmatch(responseText); m != nil && r.Store != nil {
		if mem, err := r.Store.Get(m[1]); err == nil && mem != nil {
			responseText = recallTokenPattern.ReplaceAllString(responseText, "")
			responseText = responseText + "\n" + mem.Content
		}
	}

	buf.Append(workingmemory.ConversationTurn{Role: "user", Content: text, Timestamp: now.UnixMilli()})
	buf.Append(workingmemory.ConversationTurn{Role: "assistant", Content: responseText, Timestamp: now.UnixMilli()})

	stateChanges := r.writeback(spanCtx, req, outcome, now)

	cur := r.stateFor(key)
	cur.IsNight = isNight(r.Cfg.Companion, now)
	next := DecideState(cur, transitionInput{
		EmotionTag:       outcome.Response.EmotionTag,
		EmotionIntensity: outcome.Response.EmotionIntensity,
		IsComfortAction:  req.EventType == "comfort",
	})
	if next.BaseState != cur.BaseState {
		_, stSpan := r.Tracer.Start(spanCtx, "state.transition")
		stSpan.End()
		spans = append(spans, "state.transition")
		stateChanges["base_state"] = next.BaseState
	}
	r.setState(key, next)

	resp := InteractionResponse{
		RequestID:    req.RequestID,
		Success:      outcome.Err == nil,
		ResponseText: responseText,
		Emotion:      EmotionTag{Tag: outcome.Response.EmotionTag, Intensity: outcome.Response.EmotionIntensity},
		StateChanges: stateChanges,
		TraceSpans:   spans,
	}
	resp.Err = outcome.Err
	return resp
}

// outcomeSpans names the fallback step(s) a Tier 3 call walked through,
// per the spec's scenario requiring spans like "LLM.timeout" and
// "fallback.tier2" rather than just the blanket agent.loop.generate span.
func (r *Runtime) outcomeSpans(outcome tier.Outcome) []string {
	var spans []string
	if outcome.LLMErr != nil {
		spans = append(spans, "LLM."+llmErrSpanSuffix(outcome.LLMErr))
	}
	switch outcome.Source {
	case tier.SourceCache:
		spans = append(spans, "fallback.cache")
	case tier.SourceLocalLLM:
		spans = append(spans, "fallback.local_llm")
	case tier.SourceRule:
		spans = append(spans, "fallback.tier2")
	case tier.SourceTemplate:
		spans = append(spans, "fallback.tier1")
	case tier.SourceEmergency:
		spans = append(spans, "fallback.emergency")
	}
	return spans
}

// llmErrSpanSuffix reduces a Tier 3 failure to its taxonomy kind
// ("timeout", "rate_limit", ...) for span naming; an error that isn't
// an *errs.LLMError is named generically.
func llmErrSpanSuffix(err error) string {
	var llmErr *errs.LLMError
	if errors.As(err, &llmErr) {
		return strings.ToLower(string(llmErr.Kind))
	}
	return "error"
}

// writeback applies the per-source write policy: construct a Memory (if
// the level isn't NONE), insert it, enqueue it for vectorization, and
// run lifecycle conflict detection on the new record.
func (r *Runtime) writeback(ctx context.Context, req InteractionRequest, outcome tier.Outcome, now time.Time) map[string]any {
	changes := map[string]any{}
	policy := writePolicyFor(req.Source)
	if policy.Level == WriteNone || r.Store == nil {
		return changes
	}

	content := contentForWrite(policy.Level, req, outcome)
	affinityChange, _ := req.Payload["affinity_change"].(int)
	milestone, _ := req.Payload["milestone"].(bool)

	importanceCfg := r.Cfg.Lifecycle
	importanceCfg.DefaultImportance = policy.Importance
	importance := lifecycle.ScoreImportance(lifecycle.ImportanceInput{
		Content:        content,
		Milestone:      milestone,
		AffinityChange: affinityChange,
	}, importanceCfg)

	mem := &store.Memory{
		ID:          uuid.NewString(),
		CreatedAt:   now.UnixMilli(),
		UpdatedAt:   now.UnixMilli(),
		Content:     content,
		Kind:        store.KindEpisode,
		Importance:  importance,
		DecayFactor: 1,
		EmotionTag:  outcome.Response.EmotionTag,
		Metadata: map[string]any{
			"affinity_change": float64(affinityChange),
		},
	}

	id, err := r.Store.Insert(mem)
	if err != nil {
		return changes
	}
	mem.ID = id
	changes["memory_id"] = id

	if r.VecQueue != nil {
		r.VecQueue.Enqueue(vectorqueue.PendingVectorize{
			MemoryID:   id,
			Content:    content,
			Importance: mem.Importance,
			EnqueuedAt: now.UnixMilli(),
		})
	}

	if r.Lifecycle != nil {
		_ = r.Lifecycle.OnWrite(mem)
	}

	return changes
}

func contentForWrite(level WriteLevel, req InteractionRequest, outcome tier.Outcome) string {
	text, _ := req.Payload["text"].(string)
	switch level {
	case WriteFull:
		return fmt.Sprintf("user: %s\nassistant: %s", text, outcome.Response.Text)
	case WriteResultOnly:
		return fmt.Sprintf("result: %s", outcome.Response.Text)
	default:
		return fmt.Sprintf("%s: %s -> %s", req.EventType, text, outcome.Response.Text)
	}
}

func promptMode(cl scene.Classification) string {
	switch cl.MemoryPolicy {
	case scene.MemoryFull:
		return "standard"
	case scene.MemoryFactsSummary:
		return "lite"
	default:
		return "lite"
	}
}

func vectorSearcherOrNil(idx *vectorindex.Index) retriever.VectorSearcher {
	if idx == nil {
		return nil
	}
	return idx
}
