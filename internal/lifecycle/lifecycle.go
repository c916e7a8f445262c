// Package lifecycle implements LifecycleManager (C5): importance scoring
// on write, periodic decay and archival, attitude-conflict detection, and
// daily reflection generation.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/aimate/memorycore/internal/config"
	"github.com/aimate/memorycore/internal/nlp"
	"github.com/aimate/memorycore/internal/store"
)

// ImportanceInput carries the write-time facts ScoreImportance needs.
type ImportanceInput struct {
	Content        string
	Milestone      bool
	AffinityChange int
}

// ScoreImportance implements the write-time scoring rule: milestone beats
// affinity-change beats keyword-boost beats the configured default,
// keyword boosts are additive and capped at 0.95.
func ScoreImportance(in ImportanceInput, cfg config.LifecycleConfig) float64 {
	if in.Milestone {
		return 0.95
	}
	abs := in.AffinityChange
	if abs < 0 {
		abs = -abs
	}
	if abs >= 5 {
		return 0.8
	}

	score := cfg.DefaultImportance
	if score == 0 {
		score = 0.5
	}
	canon := nlp.CanonicalizeForMatch(in.Content)
	boosted := false
	for _, kw := range cfg.KeywordBoostList {
		if containsWord(canon, nlp.CanonicalizeForMatch(kw)) {
			boosted = true
			score += 0.1
		}
	}
	if boosted && score < 0.6 {
		score = 0.6
	}
	if score > 0.95 {
		score = 0.95
	}
	return score
}

func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// ArchiveThreshold computes the cfg.ArchivePercentile (default 20)
// percentile of effective importance across candidates as the sorted
// value at index int(pct/100*n)-1, clamped into the slice, floored at the
// configured minimum (default 0.1).
func ArchiveThreshold(effImportances []float64, cfg config.LifecycleConfig) float64 {
	floor := cfg.ArchiveFloor
	if floor == 0 {
		floor = 0.1
	}
	if len(effImportances) == 0 {
		return floor
	}
	sorted := append([]float64(nil), effImportances...)
	sort.Float64s(sorted)

	pct := cfg.ArchivePercentile
	if pct == 0 {
		pct = 20
	}
	idx := int(pct/100*float64(len(sorted))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	threshold := sorted[idx]
	if threshold < floor {
		return floor
	}
	return threshold
}

// ArchivalCandidates selects the ids of memories that satisfy all four
// archival conditions as of now.
func ArchivalCandidates(memories []*store.Memory, now time.Time, cfg config.LifecycleConfig) []string {
	minAge := cfg.ArchiveMinAgeDays
	if minAge == 0 {
		minAge = 30
	}
	maxAccess := cfg.ArchiveMaxAccessCount
	if maxAccess == 0 {
		maxAccess = 2
	}

	var active []*store.Memory
	var eff []float64
	for _, m := range memories {
		if m.Archived || m.UserPinned {
			continue
		}
		active = append(active, m)
		eff = append(eff, m.EffectiveImportance())
	}
	threshold := ArchiveThreshold(eff, cfg)

	var out []string
	for _, m := range active {
		ageDays := now.Sub(time.UnixMilli(m.CreatedAt)).Hours() / 24
		if m.EffectiveImportance() < threshold && m.AccessCount < maxAccess && ageDays > float64(minAge) {
			out = append(out, m.ID)
		}
	}
	return out
}

// ConflictDetector extracts a coarse (entity, stance, object) triple from
// memory content using the antonym-pair scanner, and flags opposing
// stances within a configured time window rather than merging or
// deleting either record. Grounded in pkg/scanner/narrative/narrative.go's
// verb-to-relation matching shape; see DESIGN.md for the FST grounding
// gap this rebuilds around.
type ConflictDetector struct {
	scanner *nlp.AntonymScanner
}

// NewConflictDetector compiles the configured antonym pairs.
func NewConflictDetector(pairs [][2]string) (*ConflictDetector, error) {
	ap := make([]nlp.AntonymPair, len(pairs))
	for i, p := range pairs {
		ap[i] = nlp.AntonymPair{A: p[0], B: p[1]}
	}
	scanner, err := nlp.NewAntonymScanner(ap)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: build antonym scanner: %w", err)
	}
	return &ConflictDetector{scanner: scanner}, nil
}

// Stance is one attitude triple extracted from a memory's content.
type Stance struct {
	Entity string
	Object string
	Match  nlp.Match
}

// ExtractStances pulls one stance per antonym match out of content. No
// dependency parse is done: the first entity word of the whole content
// (per ExtractEntityWords) is the entity and the last one is the object,
// whatever their position relative to the matched keyword.
func (d *ConflictDetector) ExtractStances(content string) []Stance {
	matches := d.scanner.Scan(content)
	if len(matches) == 0 {
		return nil
	}
	entities := nlp.ExtractEntityWords(content)
	var out []Stance
	for _, m := range matches {
		entity, object := "", ""
		if len(entities) > 0 {
			entity = entities[0]
		}
		if len(entities) > 1 {
			object = entities[len(entities)-1]
		}
		out = append(out, Stance{Entity: entity, Object: object, Match: m})
	}
	return out
}

// Conflict is a detected opposing-stance pair.
type Conflict struct {
	New, Old     Stance
	OldMemoryID  string
	NewMemoryID  string
}

// Detect compares the new memory's stances against each candidate's, and
// reports every pair sharing (entity, object) with opposing antonym
// sides. candidates should already be windowed by the caller (default
// 168 hours).
func (d *ConflictDetector) Detect(newMemory *store.Memory, candidates []*store.Memory) []Conflict {
	newStances := d.ExtractStances(newMemory.Content)
	if len(newStances) == 0 {
		return nil
	}
	var out []Conflict
	for _, cand := range candidates {
		if cand.ID == newMemory.ID {
			continue
		}
		for _, old := range d.ExtractStances(cand.Content) {
			for _, nw := range newStances {
				if nw.Entity == "" || old.Entity == "" || nw.Entity != old.Entity {
					continue
				}
				if nw.Object != old.Object {
					continue
				}
				if nw.Match.PairIndex == old.Match.PairIndex && nw.Match.IsA != old.Match.IsA {
					out = append(out, Conflict{New: nw, Old: old, OldMemoryID: cand.ID, NewMemoryID: newMemory.ID})
				}
			}
		}
	}
	return out
}

// ReflectionText renders the spec's fixed reflection sentence shape.
func ReflectionText(entity, oldStance, newStance, object string) string {
	return fmt.Sprintf("%s appears to have shifted from %s to %s regarding %s.", entity, oldStance, newStance, object)
}

// ReflectionLLM is the narrow collaborator daily-reflection generation
// calls: the spec's "call(prompt, max_tokens, temperature, timeout_seconds)"
// contract, satisfied by internal/llm's clients.
type ReflectionLLM interface {
	Call(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (text string, err error)
}

// Manager schedules and executes the three periodic duties on top of a
// Storer, plus per-write conflict detection.
type Manager struct {
	store    store.Storer
	cfg      config.LifecycleConfig
	detector *ConflictDetector
	llm      ReflectionLLM
	cron     *cron.Cron
	now      func() time.Time
}

// NewManager wires a Storer, the lifecycle config, and an optional LLM
// collaborator (nil disables daily reflections) into a Manager.
func NewManager(st store.Storer, cfg config.LifecycleConfig, llm ReflectionLLM) (*Manager, error) {
	detector, err := NewConflictDetector(cfg.AntonymPairs)
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:    st,
		cfg:      cfg,
		detector: detector,
		llm:      llm,
		cron:     cron.New(),
		now:      time.Now,
	}, nil
}

// OnWrite runs conflict detection for a newly written memory against the
// configured time window, flagging both records and creating a Reflection
// memory per match without deleting or merging either side. It does not
// score importance; that is done by ScoreImportance before the insert.
func (m *Manager) OnWrite(mem *store.Memory) error {
	windowHours := m.cfg.ConflictWindowHours
	if windowHours == 0 {
		windowHours = 168
	}
	since := m.now().Add(-time.Duration(windowHours) * time.Hour).UnixMilli()

	recent, err := m.store.RecentMemories(since, 500)
	if err != nil {
		return fmt.Errorf("lifecycle: load recent memories: %w", err)
	}

	conflicts := m.detector.Detect(mem, recent)
	for _, c := range conflicts {
		if err := m.store.SetConflictFlag(c.OldMemoryID, true); err != nil {
			return err
		}
		if err := m.store.SetConflictFlag(c.NewMemoryID, true); err != nil {
			return err
		}
		oldStance, newStance := c.Old.Match.Keyword, c.New.Match.Keyword
		reflection := &store.Memory{
			ID:         uuid.NewString(),
			Content:    ReflectionText(c.New.Entity, oldStance, newStance, c.New.Object),
			Kind:       store.KindReflection,
			Importance: 0.8,
		}
		if _, err := m.store.Insert(reflection); err != nil {
			return fmt.Errorf("lifecycle: insert reflection: %w", err)
		}
	}
	return nil
}

// RunDecayTick applies the configured multiplicative decay to every
// active memory's decay_factor.
func (m *Manager) RunDecayTick() error {
	rate := m.cfg.DecayRate
	if rate == 0 {
		rate = 0.98
	}
	return m.store.DecayTick(rate)
}

// RunArchival archives every memory meeting all four archival
// conditions.
func (m *Manager) RunArchival() error {
	active, err := m.store.ActiveMemories()
	if err != nil {
		return fmt.Errorf("lifecycle: load active memories: %w", err)
	}
	ids := ArchivalCandidates(active, m.now(), m.cfg)
	for _, id := range ids {
		if err := m.store.Archive(id); err != nil {
			return fmt.Errorf("lifecycle: archive %s: %w", id, err)
		}
	}
	return nil
}

// GenerateDailyReflection summarizes the day's turns via the LLM
// collaborator and stores the result as a Reflection with importance
// 0.8. No-op if no LLM collaborator was configured.
func (m *Manager) GenerateDailyReflection(ctx context.Context, dayTurnsText string) (*store.Memory, error) {
	if m.llm == nil {
		return nil, nil
	}
	prompt := "Summarize the following day's conversation turns and events as a concise reflection:\n\n" + dayTurnsText
	text, err := m.llm.Call(ctx, prompt, 512, 0.3, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: daily reflection call: %w", err)
	}
	reflection := &store.Memory{
		ID:         uuid.NewString(),
		Content:    text,
		Kind:       store.KindReflection,
		Importance: 0.8,
	}
	if _, err := m.store.Insert(reflection); err != nil {
		return nil, fmt.Errorf("lifecycle: insert daily reflection: %w", err)
	}
	return reflection, nil
}

// Start schedules daily decay, daily archival, and the daily reflection at
// cfg.ReflectionHour via robfig/cron, and starts the scheduler in its own
// goroutine. The reflection runs only at that hour; user idleness does
// not trigger it (cfg.IdleMinutesForReflect is not read).
func (m *Manager) Start(ctx context.Context, dayTurnsProvider func() string, onError func(error)) error {
	reflectHour := m.cfg.ReflectionHour
	_, err := m.cron.AddFunc("@daily", func() {
		if err := m.RunDecayTick(); err != nil && onError != nil {
			onError(err)
		}
	})
	if err != nil {
		return err
	}
	_, err = m.cron.AddFunc("@daily", func() {
		if err := m.RunArchival(); err != nil && onError != nil {
			onError(err)
		}
	})
	if err != nil {
		return err
	}
	spec := fmt.Sprintf("0 %d * * *", reflectHour)
	_, err = m.cron.AddFunc(spec, func() {
		if _, err := m.GenerateDailyReflection(ctx, dayTurnsProvider()); err != nil && onError != nil {
			onError(err)
		}
	})
	if err != nil {
		return err
	}
	m.cron.Start()
	go func() {
		<-ctx.Done()
		m.cron.Stop()
	}()
	return nil
}
