package document

import (
	"fmt"
	"regexp"
	"slices"
	"time"
)

var projectIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxFilenameLength caps the stored filename in bytes.
const MaxFilenameLength = 255

// MaxProjectIDLength caps the project identifier.
const MaxProjectIDLength = 64

// Document is a stored passage of one project (immutable value object).
// An empty embedding means "absent": the document is kept but never ranked.
type Document struct {
	id         int64
	projectID  string
	filename   string
	sourceType SourceType
	content    string
	embedding  []float32
	embedError string
	indexed    bool
	createdAt  time.Time
	updatedAt  time.Time
}

// ValidateProjectID checks the partition key used for every store call.
func ValidateProjectID(projectID string) error {
	if projectID == "" {
		return fmt.Errorf("project ID is required")
	}
	if len(projectID) > MaxProjectIDLength {
		return fmt.Errorf("project ID too long (max %d)", MaxProjectIDLength)
	}
	if !projectIDRegex.MatchString(projectID) {
		return fmt.Errorf("project ID must be alphanumeric with underscores and hyphens")
	}
	return nil
}

// New validates and creates a Document that has not been stored yet (id 0).
func New(projectID, filename string, sourceType SourceType, content string, now time.Time) (Document, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return Document{}, err
	}
	if filename == "" {
		return Document{}, fmt.Errorf("filename is required")
	}
	if len(filename) > MaxFilenameLength {
		return Document{}, fmt.Errorf("filename too long (max %d bytes)", MaxFilenameLength)
	}
	if _, err := ParseSourceType(string(sourceType)); err != nil {
		return Document{}, err
	}
	now = now.UTC()
	return Document{
		projectID:  projectID,
		filename:   filename,
		sourceType: sourceType,
		content:    content,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(
	id int64, projectID, filename string, sourceType SourceType, content string,
	embedding []float32, embedError string, createdAt, updatedAt time.Time,
) Document {
	return Document{
		id: id, projectID: projectID, filename: filename, sourceType: sourceType,
		content: content, embedding: embedding, embedError: embedError,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

// ID returns the store-assigned identifier (0 before insert).
func (d *Document) ID() int64 { return d.id }

// ProjectID returns the owning project.
func (d *Document) ProjectID() string { return d.projectID }

// Filename returns the display filename.
func (d *Document) Filename() string { return d.filename }

// SourceType returns how the document was ingested.
func (d *Document) SourceType() SourceType { return d.sourceType }

// Content returns the normalized text.
func (d *Document) Content() string { return d.content }

// Embedding returns the vector, nil when absent.
func (d *Document) Embedding() []float32 { return d.embedding }

// HasEmbedding reports whether the document can take part in similarity search.
func (d *Document) HasEmbedding() bool { return len(d.embedding) > 0 }

// Indexed reports whether the current embedding is mirrored in the
// candidate index. Any change to content or embedding clears it.
func (d *Document) Indexed() bool { return d.indexed }

// EmbedError returns why the embedding is absent, empty when embedded.
func (d *Document) EmbedError() string { return d.embedError }

// CreatedAt returns the insertion time.
func (d *Document) CreatedAt() time.Time { return d.createdAt }

// UpdatedAt returns the last re-ingestion time.
func (d *Document) UpdatedAt() time.Time { return d.updatedAt }

// WithID returns a copy carrying the store-assigned id.
func (d *Document) WithID(id int64) Document {
	c := *d
	c.id = id
	return c
}

// WithEmbedding returns a copy with the vector set and the failure reason cleared.
func (d *Document) WithEmbedding(v []float32) Document {
	c := *d
	c.embedding = slices.Clone(v)
	c.embedError = ""
	c.indexed = false
	return c
}

// WithoutEmbedding returns a degraded copy recording why embedding failed.
func (d *Document) WithoutEmbedding(reason string) Document {
	c := *d
	c.embedding = nil
	c.embedError = reason
	c.indexed = false
	return c
}

// WithIndexed returns a copy with the index flag set. A document without an
// embedding is never indexed.
func (d *Document) WithIndexed(indexed bool) Document {
	c := *d
	c.indexed = indexed && len(c.embedding) > 0
	return c
}

// WithContent returns the re-ingested copy: same id, project, source type and
// creation time. An empty filename keeps the current one.
func (d *Document) WithContent(filename, content string, now time.Time) (Document, error) {
	if filename == "" {
		filename = d.filename
	}
	if len(filename) > MaxFilenameLength {
		return Document{}, fmt.Errorf("filename too long (max %d bytes)", MaxFilenameLength)
	}
	c := *d
	c.filename = filename
	c.content = content
	c.embedding = nil
	c.embedError = ""
	c.indexed = false
	c.updatedAt = now.UTC()
	return c, nil
}
