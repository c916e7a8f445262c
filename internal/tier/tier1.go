package tier

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// Template is one candidate response string for a scene, paired with
// the emotion it carries.
type Template struct {
	Text             string
	EmotionTag       string
	EmotionIntensity float64
}

// TemplateTable is the scene_id -> templates lookup Tier 1 reads.
type TemplateTable map[string][]Template

// recencyWindow is how many of the most-recently-picked variants are
// excluded from the next pick, per scene.
const recencyWindow = 2

// TemplateTier selects and substitutes template responses. Safe for
// concurrent use; recency tracking is guarded by a mutex since multiple
// interactions for the same scene may race.
type TemplateTier struct {
	table TemplateTable
	mu    sync.Mutex
	last  map[string][]int // scene_id -> recently used template indices, most recent last
	rng   *rand.Rand
}

// NewTemplateTier builds a Tier 1 handler over table.
func NewTemplateTier(table TemplateTable) *TemplateTier {
	return &TemplateTier{
		table: table,
		last:  make(map[string][]int),
		rng:   rand.New(rand.NewSource(1)),
	}
}

// Respond performs uniform random variant selection over the scene's
// templates, excluding the last recencyWindow picks when more than one
// variant exists, then substitutes payload fields into the text as
// `{key}` placeholders.
func (t *TemplateTier) Respond(sceneID string, payload map[string]any) (GeneratedResponse, bool) {
	templates, ok := t.table[sceneID]
	if !ok || len(templates) == 0 {
		return GeneratedResponse{}, false
	}

	t.mu.Lock()
	idx := t.pickIndex(sceneID, len(templates))
	t.mu.Unlock()

	tpl := templates[idx]
	return GeneratedResponse{
		Text:             substitute(tpl.Text, payload),
		EmotionTag:       tpl.EmotionTag,
		EmotionIntensity: tpl.EmotionIntensity,
	}, true
}

func (t *TemplateTier) pickIndex(sceneID string, n int) int {
	if n == 1 {
		return 0
	}
	recent := t.last[sceneID]
	excluded := make(map[int]bool, len(recent))
	for _, i := range recent {
		excluded[i] = true
	}

	candidates := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !excluded[i] {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		// every variant is in the exclusion window; fall back to the
		// full range rather than stalling.
		candidates = candidates[:0]
		for i := 0; i < n; i++ {
			candidates = append(candidates, i)
		}
	}

	chosen := candidates[t.rng.Intn(len(candidates))]
	recent = append(recent, chosen)
	if len(recent) > recencyWindow {
		recent = recent[len(recent)-recencyWindow:]
	}
	t.last[sceneID] = recent
	return chosen
}

// substitute replaces `{key}` placeholders with payload[key]'s string
// form, leaving unknown placeholders untouched.
func substitute(text string, payload map[string]any) string {
	for key, val := range payload {
		text = strings.ReplaceAll(text, "{"+key+"}", fmt.Sprint(val))
	}
	return text
}
