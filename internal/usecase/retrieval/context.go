package retrieval

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/kbase/internal/domain/search/hit"
)

// BuildContext joins hit texts as numbered passages, "[1] text\n\n[2] text".
// No hits yield an empty string.
func BuildContext(hits []hit.Hit) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(h.Text())
	}
	return b.String()
}
