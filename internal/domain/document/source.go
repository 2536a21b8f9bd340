package document

import "fmt"

// SourceType records how a document entered the knowledge base.
type SourceType string

// Source type values.
const (
	SourceUpload SourceType = "upload"
	SourceManual SourceType = "manual"
	SourceCrawl  SourceType = "crawl"
)

// ParseSourceType validates a stored or requested source type.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceUpload, SourceManual, SourceCrawl:
		return SourceType(s), nil
	default:
		return "", fmt.Errorf("unknown source type %q", s)
	}
}
