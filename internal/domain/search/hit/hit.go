package hit

// Hit is a single ranked passage.
type Hit struct {
	documentID int64
	filename   string
	text       string
	score      float64
}

// New creates a search hit.
func New(documentID int64, filename, text string, score float64) Hit {
	return Hit{documentID: documentID, filename: filename, text: text, score: score}
}

// DocumentID returns the matched document identifier.
func (h Hit) DocumentID() int64 { return h.documentID }

// Filename returns the matched document filename.
func (h Hit) Filename() string { return h.filename }

// Text returns the matched document content.
func (h Hit) Text() string { return h.text }

// Score returns the cosine similarity.
func (h Hit) Score() float64 { return h.score }
