// internal/room/damage.go
package room

// Damage tuning. The values are pacing constants inherited from live play
// balancing; do not re-derive them from a model.
const (
	maxHealth = 100.0

	// Per-update damage: wpm*rate scaled by accuracy and progress multipliers,
	// each ranging 0.5..0.9 over the 0-100 input range.
	incrementalWPMRate   = 0.01
	incrementalDamageCap = 3.0

	// One-shot completion bonus when a player finishes the full text.
	completionBase      = 5.0
	completionWPMRate   = 0.015
	completionDamageCap = 15.0

	multiplierFloor = 0.5
	multiplierScale = 250.0
)

// IncrementalDamage computes the health delta one throttled telemetry update
// deals to the opponent. progress is a 0-100 percentage of text consumed.
// The cap keeps a single high-WPM burst from deciding the match; the
// multiplicative terms penalize fast-but-inaccurate and fast-but-early typing.
func IncrementalDamage(wpm, accuracy, progress float64) float64 {
	damage := wpm * incrementalWPMRate *
		(multiplierFloor + accuracy/multiplierScale) *
		(multiplierFloor + progress/multiplierScale)
	return min(damage, incrementalDamageCap)
}

// CompletionDamage computes the one-time bonus dealt to the opponent when a
// player finishes typing the entire text.
func CompletionDamage(wpm, accuracy float64) float64 {
	damage := (completionBase + wpm*completionWPMRate) * (accuracy / 100.0)
	return min(damage, completionDamageCap)
}
