// Package kb holds the knowledge-base types shared by ingestion, the vector
// index and the retriever.
package kb

// DefaultJobType is applied to documents ingested without a job type.
const DefaultJobType = "general"

// DocumentChunk is one embedded slice of a source document.
type DocumentChunk struct {
	ID           string    `json:"id"`
	Vector       []float32 `json:"vector,omitempty"`
	Text         string    `json:"text"`
	DocumentName string    `json:"document_name"`
	JobType      string    `json:"job_type"`
	Section      string    `json:"section"`
	ChunkIndex   int       `json:"chunk_index"`
}

// WithoutVector returns a copy of the chunk with the embedding dropped.
func (c DocumentChunk) WithoutVector() DocumentChunk {
	c.Vector = nil
	return c
}

// Filter is a conjunction of equality constraints. Empty fields match anything.
type Filter struct {
	JobType string
	Section string
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return f.JobType == "" && f.Section == ""
}

// Matches reports whether the chunk satisfies every set constraint.
func (f Filter) Matches(c DocumentChunk) bool {
	if f.JobType != "" && c.JobType != f.JobType {
		return false
	}
	if f.Section != "" && c.Section != f.Section {
		return false
	}
	return true
}

// Hit is a raw index match: the stored chunk and its cosine similarity to the
// query vector.
type Hit struct {
	Chunk      DocumentChunk
	Similarity float64
}

// RetrievalResult is a ranked retriever output. Chunk never carries a vector.
type RetrievalResult struct {
	Chunk         DocumentChunk `json:"chunk"`
	Score         float64       `json:"score"`
	Rank          int           `json:"rank"`
	SemanticScore float64       `json:"semantic_score"`
	KeywordScore  float64       `json:"keyword_score,omitempty"`
}

// IngestResult summarises one document ingestion.
type IngestResult struct {
	DocumentName  string `json:"document_name"`
	ChunksWritten int    `json:"chunks_written"`
	ChunksFailed  []int  `json:"chunks_failed,omitempty"`
	ChunksDeleted int    `json:"chunks_deleted"`
	// Skipped marks a file left alone because it had not changed.
	Skipped bool `json:"skipped,omitempty"`
}

// DocumentStats describes what the index holds for one document.
type DocumentStats struct {
	DocumentName string `json:"document_name"`
	JobType      string `json:"job_type"`
	Section      string `json:"section"`
	Chunks       int    `json:"chunks"`
}
