package document

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"

	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
)

// Hash field names of one stored document.
const (
	fieldProject    = "project_id"
	fieldFilename   = "filename"
	fieldSource     = "source_type"
	fieldContent    = "content"
	fieldEmbedding  = "embedding"
	fieldEmbedError = "embed_error"
	fieldIndexed    = "indexed"
	fieldCreatedAt  = "created_at"
	fieldUpdatedAt  = "updated_at"
)

// buildHashFields renders every field, so one HSET replaces the whole record.
// An absent embedding is stored as an empty string.
func buildHashFields(doc *domdoc.Document) map[string]string {
	return map[string]string{
		fieldProject:    doc.ProjectID(),
		fieldFilename:   doc.Filename(),
		fieldSource:     string(doc.SourceType()),
		fieldContent:    doc.Content(),
		fieldEmbedding:  vectorToBytes(doc.Embedding()),
		fieldEmbedError: doc.EmbedError(),
		fieldIndexed:    strconv.FormatBool(doc.Indexed()),
		fieldCreatedAt:  doc.CreatedAt().UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:  doc.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}
}

// parseHashFields converts a hash back into a Document. ok is false for an
// empty hash (key missing or deleted concurrently).
func parseHashFields(id int64, m map[string]string) (domdoc.Document, bool) {
	if len(m) == 0 || m[fieldProject] == "" {
		return domdoc.Document{}, false
	}
	created, _ := time.Parse(time.RFC3339Nano, m[fieldCreatedAt])
	updated, _ := time.Parse(time.RFC3339Nano, m[fieldUpdatedAt])
	doc := domdoc.Reconstruct(
		id,
		m[fieldProject],
		m[fieldFilename],
		domdoc.SourceType(m[fieldSource]),
		m[fieldContent],
		bytesToVector(m[fieldEmbedding]),
		m[fieldEmbedError],
		created,
		updated,
	)
	indexed, _ := strconv.ParseBool(m[fieldIndexed])
	return doc.WithIndexed(indexed), true
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32. Empty or
// corrupt input yields nil, which the search layer treats as absent.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }
