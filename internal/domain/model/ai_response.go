package model

// AIResponseMetadata is derived per AI call and travels with the outbound
// message it produced; it is never persisted on its own.
type AIResponseMetadata struct {
	Confidence                float64 // in [0,1]
	Intent                    string
	SuggestedActions          []string
	RequiresHumanIntervention bool
}

// FallbackMetadata is the conservative default used when the secondary
// classification call fails: assume mid confidence and ask for a human.
func FallbackMetadata() AIResponseMetadata {
	return AIResponseMetadata{
		Confidence:                0.5,
		Intent:                    "unknown",
		RequiresHumanIntervention: true,
	}
}
