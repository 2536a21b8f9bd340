package crawl

import "regexp"

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

const maxFilenameStem = 200

// Filename derives a stable document filename from a URL: runs of characters
// outside [a-zA-Z0-9._-] become "_", the stem is capped at 200 characters.
func Filename(rawURL string) string {
	stem := unsafeFilenameChars.ReplaceAllString(rawURL, "_")
	if len(stem) > maxFilenameStem {
		stem = stem[:maxFilenameStem]
	}
	if stem == "" {
		stem = "page"
	}
	return "crawl_" + stem + ".md"
}
