package chunker

import (
	"strconv"

	"github.com/google/uuid"
)

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("jobkb/document-chunk"))

// ChunkID derives a stable id from the document name and chunk position, so
// re-ingesting a document overwrites its chunks instead of duplicating them.
func ChunkID(documentName string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentName+"#"+strconv.Itoa(index))).String()
}

// Reassemble joins pieces back into text, dropping each piece's overlap with
// its predecessor.
func Reassemble(pieces []Piece) string {
	var out []rune
	pos := 0
	for _, p := range pieces {
		runes := []rune(p.Text)
		skip := pos - p.Start
		if skip < 0 {
			skip = 0
		}
		if skip < len(runes) {
			out = append(out, runes[skip:]...)
		}
		if p.End > pos {
			pos = p.End
		}
	}
	return string(out)
}
