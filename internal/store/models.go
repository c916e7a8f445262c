// Package store provides SQLite-backed persistence for the memory core:
// memories, their full-text shadow, the archive, and per-user preference
// tables. Adapted from a note-graph Storer (temporal-versioned tables,
// boolToInt, RWMutex-guarded *sql.DB) into the Memory-centric schema.
package store

// Kind discriminates a Memory row. Treated as a tagged record: FactItem,
// EpisodeItem, RelationItem and ReflectionItem are thin typed projections
// over the same Memory's Metadata, not separate inheritance branches.
type Kind string

const (
	KindFact       Kind = "fact"
	KindEpisode    Kind = "episode"
	KindRelation   Kind = "relation"
	KindReflection Kind = "reflection"
)

// EmotionTag is one of the nine tags TierHandlers may attach to an Episode.
type EmotionTag string

const (
	EmotionHappy     EmotionTag = "happy"
	EmotionExcited   EmotionTag = "excited"
	EmotionSad       EmotionTag = "sad"
	EmotionAngry     EmotionTag = "angry"
	EmotionShy       EmotionTag = "shy"
	EmotionSurprised EmotionTag = "surprised"
	EmotionTired     EmotionTag = "tired"
	EmotionAnxious   EmotionTag = "anxious"
	EmotionNeutral   EmotionTag = "neutral"
)

// ValidEmotionTags is used to validate incoming tags before storing them.
var ValidEmotionTags = map[EmotionTag]bool{
	EmotionHappy: true, EmotionExcited: true, EmotionSad: true, EmotionAngry: true,
	EmotionShy: true, EmotionSurprised: true, EmotionTired: true, EmotionAnxious: true,
	EmotionNeutral: true,
}

// Memory is the core persisted record. All ids are opaque UUID strings.
type Memory struct {
	ID           string
	CreatedAt    int64 // unix millis
	UpdatedAt    int64
	Content      string
	Kind         Kind
	Importance   float64
	AccessCount  int
	LastAccessed int64
	DecayFactor  float64
	Tags         []string
	Metadata     map[string]any
	Archived     bool
	Vectorized   bool
	EmotionTag   string // optional, empty if unset
	ConflictFlag bool
	UserPinned   bool
}

// EffectiveImportance is the value LifecycleManager's archival rule reads:
// raw importance scaled by decay, the way "touch" resets decay to counter it.
func (m *Memory) EffectiveImportance() float64 {
	return m.Importance * m.DecayFactor
}

// Fact projects the (subject, predicate, object) triple out of Metadata.
type Fact struct {
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
}

// AsFact extracts a Fact projection from a Memory of KindFact. ok is false
// if the memory is not a fact or the triple is incomplete.
func (m *Memory) AsFact() (Fact, bool) {
	if m.Kind != KindFact {
		return Fact{}, false
	}
	subj, _ := m.Metadata["subject"].(string)
	pred, _ := m.Metadata["predicate"].(string)
	obj, _ := m.Metadata["object"].(string)
	conf, _ := m.Metadata["confidence"].(float64)
	if subj == "" || obj == "" {
		return Fact{}, false
	}
	return Fact{Subject: subj, Predicate: pred, Object: obj, Confidence: conf}, true
}

// Episode projects the emotion/affinity fields out of Metadata.
type Episode struct {
	EmotionTag     string
	AffinityChange int
}

// AsEpisode extracts an Episode projection from a Memory of KindEpisode.
func (m *Memory) AsEpisode() (Episode, bool) {
	if m.Kind != KindEpisode {
		return Episode{}, false
	}
	change, _ := m.Metadata["affinity_change"].(float64)
	return Episode{EmotionTag: m.EmotionTag, AffinityChange: int(change)}, true
}

// Relation projects the (source_entity, edge_label, target_entity) triple.
type Relation struct {
	SourceEntity string
	EdgeLabel    string
	TargetEntity string
}

// AsRelation extracts a Relation projection from a Memory of KindRelation.
func (m *Memory) AsRelation() (Relation, bool) {
	if m.Kind != KindRelation {
		return Relation{}, false
	}
	src, _ := m.Metadata["source_entity"].(string)
	edge, _ := m.Metadata["edge_label"].(string)
	tgt, _ := m.Metadata["target_entity"].(string)
	if src == "" || tgt == "" {
		return Relation{}, false
	}
	return Relation{SourceEntity: src, EdgeLabel: edge, TargetEntity: tgt}, true
}

// FTSHit is one row of an fts_search result: a memory id and its raw FTS
// rank score (not yet the rerank score HybridRetriever computes).
type FTSHit struct {
	ID    string
	Score float64
}

// TimeWindow bounds fts_search / retrieval by unix-millis range. A zero
// TimeWindow means "no filter."
type TimeWindow struct {
	Start, End int64
}

// IsZero reports whether the window is unset.
func (w TimeWindow) IsZero() bool { return w.Start == 0 && w.End == 0 }

// Storer is the persistence contract C1 exposes to the rest of the core.
// Implementations return plain errors; callers wrap them in a typed
// *errs.StorageError at the package boundary that needs the error kind.
type Storer interface {
	Insert(m *Memory) (string, error)
	Get(id string) (*Memory, error)
	Touch(id string) error
	DecayTick(rate float64) error
	Archive(id string) error
	Restore(id string) error
	MarkVectorized(id string) error
	SetConflictFlag(id string, flag bool) error
	FTSSearch(query string, limit int, window TimeWindow) ([]FTSHit, error)
	ActiveMemories() ([]*Memory, error)
	RecentMemories(since int64, limit int) ([]*Memory, error)
	SchemaVersion() (int, error)
	Close() error
}
