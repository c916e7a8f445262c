// Package config loads and hot-reloads the memory core's tunables. File
// *loading* mechanics (where the file lives, how it's packaged) are out of
// the core's scope; this package only owns parsing the loaded bytes into a
// typed snapshot and swapping it in when the file changes, per a monotonic
// hash comparison so a malformed edit never displaces a known-good config.
package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RetrieverConfig tunes HybridRetriever (C4).
type RetrieverConfig struct {
	SmartSelection     bool    `mapstructure:"smart_selection"`
	FallbackStrategy   string  `mapstructure:"fallback_strategy"`
	FTSTopK            int     `mapstructure:"fts_top_k"`
	VectorTopK         int     `mapstructure:"vector_top_k"`
	MinVectorResults   int     `mapstructure:"min_vector_results"`
	SimilarityWeight   float64 `mapstructure:"w_sim"`
	RecencyWeight      float64 `mapstructure:"w_rec"`
	ImportanceWeight   float64 `mapstructure:"w_imp"`
	FrequencyWeight    float64 `mapstructure:"w_fre"`
	RecencyDecayDays   float64 `mapstructure:"recency_decay_days"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	FinalTopK          int     `mapstructure:"final_top_k"`
}

// LifecycleConfig tunes LifecycleManager (C5).
type LifecycleConfig struct {
	DefaultImportance     float64  `mapstructure:"default_importance"`
	KeywordBoostList      []string `mapstructure:"keyword_boost_list"`
	DecayRate             float64  `mapstructure:"decay_rate"`
	ArchivePercentile     float64  `mapstructure:"archive_percentile"`
	ArchiveFloor          float64  `mapstructure:"archive_floor"`
	ArchiveMinAgeDays     int      `mapstructure:"archive_min_age_days"`
	ArchiveMaxAccessCount int      `mapstructure:"archive_max_access_count"`
	AntonymPairs          [][2]string `mapstructure:"antonym_pairs"`
	ConflictWindowHours   int      `mapstructure:"conflict_window_hours"`
	ReflectionHour        int      `mapstructure:"reflection_hour"`
	IdleMinutesForReflect int      `mapstructure:"idle_minutes_for_reflection"`
}

// WorkingMemoryConfig tunes WorkingMemory (C6).
type WorkingMemoryConfig struct {
	BufferSize           int `mapstructure:"buffer_size"`
	SessionTimeoutMinutes int `mapstructure:"session_timeout_minutes"`
}

// PromptBudget is the per-layer token allocation for one mode.
type PromptBudget struct {
	Identity        int `mapstructure:"identity"`
	Working         int `mapstructure:"working"`
	Environment     int `mapstructure:"environment"`
	LongTermSummary int `mapstructure:"long_term_summary"`
	MemoryIndex     int `mapstructure:"memory_index"`
	MemoryFulltext  int `mapstructure:"memory_fulltext"`
	Instructions    int `mapstructure:"instructions"`
	ReservedOutput  int `mapstructure:"reserved_output"`
}

// Total returns the budget's full token ceiling.
func (b PromptBudget) Total() int {
	return b.Identity + b.Working + b.Environment + b.LongTermSummary +
		b.MemoryIndex + b.MemoryFulltext + b.Instructions + b.ReservedOutput
}

// PromptConfig tunes PromptAssembler (C7).
type PromptConfig struct {
	Budgets            map[string]PromptBudget `mapstructure:"budgets"`
	MemoryIndexCount   int    `mapstructure:"memory_index_count"`
	MemoryFulltextCount int   `mapstructure:"memory_fulltext_count"`
	NoFabricateText    string `mapstructure:"no_fabricate_text"`
	StarImportanceMin  float64 `mapstructure:"star_importance_min"`
}

// VectorizeConfig tunes VectorizeQueue (C3).
type VectorizeConfig struct {
	BatchSize              int `mapstructure:"batch_size"`
	ProcessIntervalSeconds int `mapstructure:"process_interval_seconds"`
	HighPriorityThreshold  float64 `mapstructure:"high_priority_threshold"`
	MaxRetries             int `mapstructure:"max_retries"`
}

// TierConfig tunes TierHandlers (C9).
type TierConfig struct {
	LLMTimeoutSeconds   int      `mapstructure:"llm_timeout_seconds"`
	EmbedTimeoutSeconds int      `mapstructure:"embed_timeout_seconds"`
	ValidEmotionTags    []string `mapstructure:"valid_emotion_tags"`
	ResponseCacheTTLDays int     `mapstructure:"response_cache_ttl_days"`
}

// CompanionConfig is the static persona fed into every prompt's
// Identity/Environment/LongTermSummary blocks, plus the wall-clock
// night window PromptAssembler's caller uses to set CompanionState.IsNight.
type CompanionConfig struct {
	Identity        string `mapstructure:"identity"`
	Environment     string `mapstructure:"environment"`
	LongTermSummary string `mapstructure:"long_term_summary"`
	OutputFormat    string `mapstructure:"output_format"`
	NightStartHour  int    `mapstructure:"night_start_hour"`
	NightEndHour    int    `mapstructure:"night_end_hour"`
}

// Config is the whole memory-core snapshot. Unmarshalled fresh on every
// successful (re)load; never mutated in place.
type Config struct {
	DataDir          string               `mapstructure:"data_dir"`
	SceneTableFile   string               `mapstructure:"scene_table_file"`
	Retriever        RetrieverConfig      `mapstructure:"retriever"`
	Lifecycle        LifecycleConfig      `mapstructure:"lifecycle"`
	WorkingMemory    WorkingMemoryConfig  `mapstructure:"working_memory"`
	Prompt           PromptConfig         `mapstructure:"prompt"`
	Vectorize        VectorizeConfig      `mapstructure:"vectorize"`
	Tier             TierConfig           `mapstructure:"tier"`
	Companion        CompanionConfig      `mapstructure:"companion"`
	VectorDimension  int                  `mapstructure:"vector_dimension"`
}

// Default returns a Config populated with every default value named in the
// spec, for tests and for first-run bootstrap before any file exists.
func Default() *Config {
	return &Config{
		DataDir:        "data",
		SceneTableFile: "configs/scene_tier_mapping.yaml",
		Retriever: RetrieverConfig{
			SmartSelection:      true,
			FallbackStrategy:    "PARALLEL",
			FTSTopK:             15,
			VectorTopK:          20,
			MinVectorResults:    3,
			SimilarityWeight:    0.4,
			RecencyWeight:       0.3,
			ImportanceWeight:    0.2,
			FrequencyWeight:     0.1,
			RecencyDecayDays:    7,
			SimilarityThreshold: 0.65,
			FinalTopK:           5,
		},
		Lifecycle: LifecycleConfig{
			DefaultImportance:     0.5,
			KeywordBoostList:      []string{"birthday", "important", "remember", "like", "dislike"},
			DecayRate:             0.98,
			ArchivePercentile:     20,
			ArchiveFloor:          0.1,
			ArchiveMinAgeDays:     30,
			ArchiveMaxAccessCount: 2,
			AntonymPairs: [][2]string{
				{"like", "dislike"}, {"love", "hate"}, {"always", "never"},
			},
			ConflictWindowHours:   168,
			ReflectionHour:        3,
			IdleMinutesForReflect: 30,
		},
		WorkingMemory: WorkingMemoryConfig{
			BufferSize:            20,
			SessionTimeoutMinutes: 120,
		},
		Prompt: PromptConfig{
			Budgets: map[string]PromptBudget{
				"lite":     {Identity: 1250, Working: 4000, Environment: 500, LongTermSummary: 1250, MemoryIndex: 1500, MemoryFulltext: 2500, Instructions: 500, ReservedOutput: 4500},
				"standard": {Identity: 2500, Working: 8000, Environment: 1000, LongTermSummary: 2500, MemoryIndex: 3000, MemoryFulltext: 5000, Instructions: 1000, ReservedOutput: 9000},
				"deep":     {Identity: 5000, Working: 16000, Environment: 2000, LongTermSummary: 5000, MemoryIndex: 6000, MemoryFulltext: 10000, Instructions: 2000, ReservedOutput: 18000},
				"extended": {Identity: 10000, Working: 32000, Environment: 4000, LongTermSummary: 10000, MemoryIndex: 12000, MemoryFulltext: 20000, Instructions: 4000, ReservedOutput: 36000},
			},
			MemoryIndexCount:    30,
			MemoryFulltextCount: 3,
			NoFabricateText:     "You have no relevant memory of this. Say so plainly; do not invent details.",
			StarImportanceMin:   0.8,
		},
		Vectorize: VectorizeConfig{
			BatchSize:              10,
			ProcessIntervalSeconds: 60,
			HighPriorityThreshold:  0.7,
			MaxRetries:             3,
		},
		Tier: TierConfig{
			LLMTimeoutSeconds:    3,
			EmbedTimeoutSeconds:  30,
			ValidEmotionTags:     []string{"happy", "excited", "sad", "angry", "shy", "surprised", "tired", "anxious", "neutral"},
			ResponseCacheTTLDays: 7,
		},
		Companion: CompanionConfig{
			Identity:        "You are a small desktop companion, warm and a little playful, who lives alongside the user while they work.",
			Environment:     "Desktop companion window, always-on-top, no browser or external tools available to the user right now.",
			LongTermSummary: "",
			OutputFormat:    "End your reply with a single [EMOTION:tag:intensity] marker (tag one of the valid emotion tags, intensity between 0 and 1). Do not explain the marker.",
			NightStartHour:  22,
			NightEndHour:    6,
		},
		VectorDimension: 768,
	}
}

// Watcher hot-reloads Config from disk on fsnotify write events, swapping in
// a new snapshot only when the file parses and its sha256 hash changed.
type Watcher struct {
	v        *viper.Viper
	path     string
	current  atomic.Pointer[Config]
	lastHash [32]byte
	mu       sync.Mutex
	onError  func(error)
}

// NewWatcher loads path once (falling back to Default if the file is
// missing) and returns a Watcher ready to Start.
func NewWatcher(path string, onError func(error)) (*Watcher, error) {
	v := viper.New()
	v.SetConfigFile(path)
	w := &Watcher{v: v, path: path, onError: onError}
	w.current.Store(Default())
	if err := w.reload(); err != nil {
		if onError != nil {
			onError(fmt.Errorf("initial config load, using defaults: %w", err))
		}
	}
	return w, nil
}

// Current returns the latest successfully parsed snapshot.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

func (w *Watcher) reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", w.path, err)
	}
	hash := sha256.Sum256(data)
	if hash == w.lastHash {
		return nil
	}

	if err := w.v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: parse %s: %w", w.path, err)
	}
	cfg := Default()
	if err := w.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("config: unmarshal %s: %w", w.path, err)
	}
	w.lastHash = hash
	w.current.Store(cfg)
	return nil
}

// Start watches the config file for writes via fsnotify and reloads on
// change, keeping the last-good config if the new version fails to parse.
func (w *Watcher) Start() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := w.reload(); err != nil && w.onError != nil {
						w.onError(err)
					}
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				if w.onError != nil {
					w.onError(err)
				}
			}
		}
	}()
	return fw, nil
}
