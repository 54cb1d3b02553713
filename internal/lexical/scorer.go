package lexical

// Scorer rates how well text covers the keywords of query, in [0,1].
type Scorer interface {
	Score(query, text string) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(query, text string) float64

func (f ScorerFunc) Score(query, text string) float64 { return f(query, text) }

// Coverage scores the fraction of the query's terms that appear in the text.
type Coverage struct{}

func (Coverage) Score(query, text string) float64 {
	terms := Terms(query)
	if len(terms) == 0 {
		return 0
	}
	set := TermSet(text)
	hits := 0
	for _, t := range terms {
		if _, ok := set[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
