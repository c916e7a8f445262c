package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aimate/memorycore/internal/config"
	"github.com/aimate/memorycore/internal/embedding"
	"github.com/aimate/memorycore/internal/lifecycle"
	"github.com/aimate/memorycore/internal/llm"
	"github.com/aimate/memorycore/internal/observability"
	"github.com/aimate/memorycore/internal/scene"
	"github.com/aimate/memorycore/internal/store"
	"github.com/aimate/memorycore/internal/tier"
	"github.com/aimate/memorycore/internal/ucm"
	"github.com/aimate/memorycore/internal/vectorindex"
	"github.com/aimate/memorycore/internal/vectorqueue"
)

// app bundles the wired Runtime with the collaborators main needs to shut
// down cleanly (the SQLite handle, the vector index snapshot, the trace log).
type app struct {
	Runtime   *ucm.Runtime
	Store     store.Storer
	VecIndex  *vectorindex.Index
	VecQueue  *vectorqueue.Queue
	Lifecycle *lifecycle.Manager
	Watcher   *config.Watcher
	traceLog  *os.File
}

// reflectionAdapter narrows llm.Client's (Response, error) contract down to
// lifecycle.ReflectionLLM's (string, error), the shape cmd/wasm's old daily
// reflection glue expected before it got an explicit Manager collaborator.
type reflectionAdapter struct {
	client llm.Client
}

func (a reflectionAdapter) Call(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (string, error) {
	resp, err := a.client.Call(ctx, prompt, maxTokens, temperature, timeout)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// buildApp wires every collaborator named in SPEC_FULL.md's composition
// section into one Runtime: config watcher, SQLite store, vector index and
// queue, lifecycle manager, scene classifier, tier fallback chain, an
// embedding client and an LLM client chosen by environment, and the otel/
// zerolog tracer, handing the result to ucm.NewRuntime.
func buildApp() (*app, error) {
	watcher, err := config.NewWatcher(cfgFile, func(err error) {
		fmt.Fprintf(os.Stderr, "config reload: %v\n", err)
	})
	if err != nil {
		return nil, fmt.Errorf("memoryd: config watcher: %w", err)
	}
	cfg := *watcher.Current()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("memoryd: data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "memory.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("memoryd: open store: %w", err)
	}

	vecPath := filepath.Join(cfg.DataDir, "vectors.bin")
	vecIndex, err := vectorindex.Load(vecPath, cfg.VectorDimension)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("memoryd: vector index: %w", err)
	}

	vecQueue := vectorqueue.New(vectorqueue.Config{
		BatchSize:              cfg.Vectorize.BatchSize,
		ProcessIntervalSeconds: cfg.Vectorize.ProcessIntervalSeconds,
		HighPriorityThreshold:  cfg.Vectorize.HighPriorityThreshold,
		MaxRetries:             cfg.Vectorize.MaxRetries,
		SnapshotPath:           filepath.Join(cfg.DataDir, "pending_vectorization.json"),
	}, func(h vectorqueue.Health) {
		fmt.Fprintf(os.Stderr, "vectorqueue health: pending=%d dead_letter=%d oldest=%s\n",
			h.PendingCount, h.DeadLetterCount, h.OldestEnqueuedAge)
	})
	_ = vecQueue.Load(filepath.Join(cfg.DataDir, "pending_vectorization.json"))

	llmClient := buildLLMClient()

	var lc *lifecycle.Manager
	if llmClient != nil {
		lc, err = lifecycle.NewManager(st, cfg.Lifecycle, reflectionAdapter{client: llmClient})
	} else {
		lc, err = lifecycle.NewManager(st, cfg.Lifecycle, nil)
	}
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("memoryd: lifecycle manager: %w", err)
	}

	table, err := scene.LoadTable(cfg.SceneTableFile)
	if err != nil {
		table = &scene.Table{}
	}
	classifier := scene.NewClassifier(table)

	embedder := buildEmbeddingClient(cfg)

	chain, err := buildTierChain(cfg, llmClient)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("memoryd: tier chain: %w", err)
	}

	traceLogPath := filepath.Join(cfg.DataDir, "trace.jsonl")
	traceLog, err := os.OpenFile(traceLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("memoryd: trace log: %w", err)
	}
	tp := observability.NewTracerProvider(traceLog)
	tracer := observability.NewTracer(tp, observability.Logger(os.Stderr))

	runtime := ucm.NewRuntime(st, vecIndex, vecQueue, lc, classifier, chain, embedder, llmClient, tracer, cfg, nil)

	return &app{
		Runtime:   runtime,
		Store:     st,
		VecIndex:  vecIndex,
		VecQueue:  vecQueue,
		Lifecycle: lc,
		Watcher:   watcher,
		traceLog:  traceLog,
	}, nil
}

func buildLLMClient() llm.Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model := os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-3-5-haiku-20241022"
		}
		return llm.NewAnthropicClient(key, model, httpClient)
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		model := os.Getenv("OPENROUTER_MODEL")
		if model == "" {
			model = "anthropic/claude-3.5-haiku"
		}
		return llm.NewOpenRouterClient(key, model, httpClient)
	}
	return nil
}

func buildEmbeddingClient(cfg config.Config) embedding.Client {
	httpClient := &http.Client{Timeout: time.Duration(cfg.Tier.EmbedTimeoutSeconds) * time.Second}
	key := os.Getenv("OPENROUTER_API_KEY")
	if key == "" {
		return nil
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "openai/text-embedding-3-small"
	}
	return embedding.NewRemoteClient(key, model, cfg.VectorDimension, httpClient)
}

func buildTierChain(cfg config.Config, llmClient llm.Client) (*tier.Chain, error) {
	cache, err := tier.NewResponseCache(cfg.Tier.ResponseCacheTTLDays)
	if err != nil {
		return nil, err
	}

	templates, err := loadTemplateTable(filepath.Join("configs", "templates.yaml"))
	if err != nil {
		templates = tier.TemplateTable{}
	}

	rules := tier.NewRuleTier(map[string]tier.RuleFunc{
		"hourly_chime":   tier.HourlyChimeRule,
		"system_warning": tier.SystemWarningRule,
	})

	chain := &tier.Chain{
		Cache:              cache,
		CacheMinSimilarity: 0.92,
		Rule:               rules,
		Template:           tier.NewTemplateTier(templates),
		EmergencyText: map[string]string{
			"default": "I'm having trouble finding the words right now.",
		},
	}

	if llmClient != nil {
		chain.LLM = tier.NewLLMTier(llmClient, cfg.Tier.ValidEmotionTags, 512, 0.9,
			time.Duration(cfg.Tier.LLMTimeoutSeconds)*time.Second)
	}

	return chain, nil
}

// Close releases every collaborator buildApp opened, snapshotting the
// vector index and vectorize queue before the store handle closes.
func (a *app) Close() {
	if a.VecIndex != nil {
		_ = a.VecIndex.Save(filepath.Join(a.Runtime.Cfg.DataDir, "vectors.bin"))
	}
	if a.VecQueue != nil {
		_ = a.VecQueue.Save(filepath.Join(a.Runtime.Cfg.DataDir, "pending_vectorization.json"))
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.traceLog != nil {
		_ = a.traceLog.Close()
	}
}
