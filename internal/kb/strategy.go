package kb

import "strings"

// Strategy selects the retriever's ranking algorithm.
type Strategy string

const (
	// StrategySemantic ranks by cosine similarity alone.
	StrategySemantic Strategy = "semantic"

	// StrategySimilarity ranks by cosine similarity and drops results below
	// a threshold.
	StrategySimilarity Strategy = "similarity"

	// StrategyHybrid blends cosine similarity with keyword overlap.
	StrategyHybrid Strategy = "hybrid"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{StrategySemantic, StrategySimilarity, StrategyHybrid}

// ParseStrategy resolves a strategy name case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Strategies {
		if s == known {
			return s, nil
		}
	}
	return "", Validationf("strategy", "unknown strategy %q (want semantic, similarity or hybrid)", name)
}
