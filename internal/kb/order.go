package kb

import "sort"

// TieBreak orders chunks with equal scores: ascending chunk index, then
// document name, then id.
func TieBreak(a, b DocumentChunk) bool {
	if a.ChunkIndex != b.ChunkIndex {
		return a.ChunkIndex < b.ChunkIndex
	}
	if a.DocumentName != b.DocumentName {
		return a.DocumentName < b.DocumentName
	}
	return a.ID < b.ID
}

// SortHits orders hits by descending similarity, breaking ties with TieBreak.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return TieBreak(hits[i].Chunk, hits[j].Chunk)
	})
}

// TopHits sorts hits and keeps at most k. k <= 0 keeps all.
func TopHits(hits []Hit, k int) []Hit {
	SortHits(hits)
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
