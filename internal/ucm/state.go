package ucm

// CompanionState is the mood/energy/hunger/affinity/coins snapshot the
// spec's SessionState names alongside the conversation ring buffer;
// WorkingMemory owns the turn history, UCM owns this companion-state
// side since it's driven by game/plugin events, not conversation
// bookkeeping.
type CompanionState struct {
	BaseState           string // Sleeping, Tired, Anxious, Sad, Normal
	Energy              int    // 0-100
	Hunger              int    // 0-100
	Affinity            int
	Coins               int
	IsNight             bool
	ConsecutivePositive int
}

const (
	baseSleeping = "Sleeping"
	baseTired    = "Tired"
	baseAnxious  = "Anxious"
	baseSad      = "Sad"
	baseNormal   = "Normal"
)

// lowEnergyThreshold is the non-overridable "energy < 20 -> Tired" rule.
const lowEnergyThreshold = 20

// transitionInput bundles what DecideState needs beyond the current
// CompanionState: the emotion this turn produced and whether the
// interaction was an explicit comfort action.
type transitionInput struct {
	EmotionTag       string
	EmotionIntensity float64
	IsComfortAction  bool
}

// DecideState applies the priority matrix
// Sleeping > Tired(low energy) > Anxious > Sad > Tired(night) > Normal.
// Base-state rules driven by mechanical values (energy < 20) are never
// overridden by an emotion event. Every other candidate state may only
// override the current one given a sufficiently strong signal: positive
// intensity >= 0.8, three consecutive positive interactions, or an
// explicit comfort action. Mechanical restoration (energy brought back
// above threshold) always re-evaluates and is not treated as an
// "override" requiring those conditions.
func DecideState(cur CompanionState, in transitionInput) CompanionState {
	next := cur

	// Track the positive-interaction streak unconditionally, regardless
	// of whether it ends up allowing an override this turn.
	if in.EmotionTag == "happy" || in.EmotionTag == "excited" {
		next.ConsecutivePositive = cur.ConsecutivePositive + 1
	} else {
		next.ConsecutivePositive = 0
	}

	// Non-overridable mechanical rules first.
	if cur.Energy < lowEnergyThreshold {
		next.BaseState = baseTired
		return next
	}

	candidate := candidateFromSignal(in)
	if candidate == "" {
		// No new signal; mechanical values already re-evaluated above,
		// so a prior low-energy Tired naturally lapses here.
		switch {
		case cur.BaseState == baseTired && cur.Energy >= lowEnergyThreshold && !cur.IsNight:
			next.BaseState = baseNormal
		case cur.BaseState == baseNormal && cur.IsNight:
			// Tired(night): lowest-priority candidate, only displaces Normal.
			next.BaseState = baseTired
		}
		return next
	}

	if !canOverride(cur.BaseState, candidate) {
		return next
	}

	allowed := in.EmotionIntensity >= 0.8 || next.ConsecutivePositive >= 3 || in.IsComfortAction
	if !allowed {
		return next
	}

	next.BaseState = candidate
	return next
}

// priority ranks base states high-to-low per the matrix; lower number
// wins when comparing whether a candidate can displace the current state.
var priority = map[string]int{
	baseSleeping: 0,
	baseTired:    1,
	baseAnxious:  2,
	baseSad:      3,
	baseNormal:   4,
}

// canOverride says whether candidate is allowed to replace current
// given only the priority matrix (the intensity/streak/comfort gate is
// applied separately). Recovering to Normal is always rank-eligible: it's
// the resting state the strong-signal gate exists to unlock, not a mood
// that has to out-rank whatever it's replacing.
func canOverride(current, candidate string) bool {
	if candidate == baseNormal {
		return true
	}
	curRank, ok := priority[current]
	if !ok {
		curRank = priority[baseNormal]
	}
	candRank, ok := priority[candidate]
	if !ok {
		candRank = priority[baseNormal]
	}
	return candRank <= curRank
}

// candidateFromSignal maps this turn's emotion into a candidate base
// state; returns "" if the emotion doesn't imply a base-state change.
func candidateFromSignal(in transitionInput) string {
	switch in.EmotionTag {
	case "anxious":
		return baseAnxious
	case "sad":
		return baseSad
	case "happy", "excited":
		return baseNormal
	default:
		return ""
	}
}
