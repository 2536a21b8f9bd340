package ingest

import (
	domdoc "github.com/kailas-cloud/kbase/internal/domain/document"
)

// Source is raw material for one document. Kind selects which fields are read:
// upload uses Filename and Data, manual uses Data as text and an optional
// Filename, crawl uses URL.
type Source struct {
	Kind     domdoc.SourceType
	Filename string
	Data     []byte
	URL      string
}

// Upload describes an uploaded file.
func Upload(filename string, data []byte) Source {
	return Source{Kind: domdoc.SourceUpload, Filename: filename, Data: data}
}

// Manual describes text typed in by a user.
func Manual(filename, text string) Source {
	return Source{Kind: domdoc.SourceManual, Filename: filename, Data: []byte(text)}
}

// Crawl describes a web page to fetch.
func Crawl(url string) Source {
	return Source{Kind: domdoc.SourceCrawl, URL: url}
}

// ListFilter narrows List results.
type ListFilter struct {
	// DegradedOnly keeps documents without an embedding.
	DegradedOnly bool
}
