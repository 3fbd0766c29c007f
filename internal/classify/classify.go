// Package classify implements C3 Document Classifier: a pure, side-effect
// free function of (key, metadata, size) that decides whether a document is
// routed down the visual or text lane.
//
// The rule ordering in Decide is normative (spec §4.3): reimplementations
// must preserve it so downstream queues stay hot-sharded the same way.
package classify

import (
	"path/filepath"
	"strings"
)

type Lane string

const (
	LaneText   Lane = "text"
	LaneVisual Lane = "visual"
)

const tenMB = 10 * 1024 * 1024

var presentationExt = set("ppt", "pptx", "odp", "key")

var formLikeNames = []string{"form", "invoice", "receipt", "application", "claim", "tax"}

// sourceCodeExt is deliberately broad; additions here never change lane
// routing for anything already covered by an earlier rule.
var sourceCodeExt = set(
	"py", "js", "ts", "tsx", "jsx", "java", "cpp", "cc", "c", "h", "hpp",
	"go", "rs", "rb", "php", "cs", "kt", "swift", "scala", "sh", "pl",
	"lua", "r", "m", "sql",
)

var plainTextExt = set("txt", "md", "markdown", "csv", "tsv")

var spreadsheetExt = set("xlsx", "xls", "ods")

var presentationMIME = set(
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.oasis.opendocument.presentation",
)

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

func ext(key string) string {
	e := filepath.Ext(key)
	return strings.ToLower(strings.TrimPrefix(e, "."))
}

// Decide implements the spec §4.3 decision order, first match wins. On any
// panic recovered by the caller (there is none expected here — the function
// is total over its inputs) the default lane is text.
func Decide(key string, metadata map[string]string, size int64) (lane Lane) {
	defer func() {
		if r := recover(); r != nil {
			lane = LaneText
		}
	}()

	e := ext(key)
	lowerKey := strings.ToLower(key)
	mime := strings.ToLower(metadata["mime"])

	// 1. Presentations.
	if _, ok := presentationExt[e]; ok {
		return LaneVisual
	}
	if _, ok := presentationMIME[mime]; ok {
		return LaneVisual
	}

	// 2. Filenames that look like forms.
	for _, needle := range formLikeNames {
		if strings.Contains(lowerKey, needle) {
			return LaneVisual
		}
	}

	// 3. Explicit "scanned" hint.
	if strings.EqualFold(metadata["scanned"], "true") {
		return LaneVisual
	}

	// 4. Large PDFs are treated as visually dense.
	if e == "pdf" && size > tenMB {
		return LaneVisual
	}

	// 5. Source code.
	if _, ok := sourceCodeExt[e]; ok {
		return LaneText
	}

	// 6. Plain text / markdown / csv / tsv.
	if _, ok := plainTextExt[e]; ok {
		return LaneText
	}

	// 7. Spreadsheets.
	if _, ok := spreadsheetExt[e]; ok {
		return LaneText
	}

	// 8. Default.
	return LaneText
}
