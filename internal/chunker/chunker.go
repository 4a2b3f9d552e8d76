// Package chunker splits text files into overlapping passages sized for the
// embedding model. The watch-ingest path uses it to turn a changed file into
// a stream of uploadable documents.
package chunker

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SupportedExtensions is the set of file extensions the watch path ingests.
var SupportedExtensions = map[string]bool{
	".md": true, ".markdown": true, ".txt": true, ".text": true,
	".rst": true, ".adoc": true, ".org": true,
}

// Passage is one uploadable slice of a file.
type Passage struct {
	Text    string
	LineNum int // 1-indexed line the passage starts on
	Index   int // passage index within the file
}

// Options controls passage sizing.
type Options struct {
	// MaxBytes caps a single passage. The default suits a ~256-token
	// embedding window.
	MaxBytes int
	// OverlapBytes carries trailing context into the next passage.
	OverlapBytes int
}

// DefaultOptions returns the recommended passage parameters.
func DefaultOptions() Options {
	return Options{MaxBytes: 1200, OverlapBytes: 200}
}

// IsSupportedFile reports whether path looks like ingestable text: a known
// extension and no binary content in the header.
func IsSupportedFile(path string) bool {
	if !SupportedExtensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) == -1
}

// SplitFile reads path and returns its passages.
func SplitFile(path string, opts Options) ([]Passage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Split(string(data), opts), nil
}

// Split cuts text into overlapping passages, preferring paragraph breaks,
// then line breaks, then word breaks.
func Split(text string, opts Options) []Passage {
	if opts.MaxBytes <= 0 {
		opts = DefaultOptions()
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var passages []Passage
	idx := 0
	start := 0

	for start < len(text) {
		end := start + opts.MaxBytes
		if end >= len(text) {
			appendPassage(&passages, text, start, len(text), &idx)
			break
		}

		cut := splitPoint(text[start:end]) + start
		appendPassage(&passages, text, start, cut, &idx)

		next := cut - opts.OverlapBytes
		if next <= start {
			next = start + 1
		} else if nl := strings.IndexByte(text[next:cut], '\n'); nl != -1 {
			// Snap the overlap forward to a clean line boundary.
			next += nl + 1
		}
		start = next
	}
	return passages
}

// splitPoint finds the best cut inside window, searching backwards for a
// paragraph break, then a newline, then a space.
func splitPoint(window string) int {
	if i := strings.LastIndex(window, "\n\n"); i != -1 {
		return i + 2
	}
	if i := strings.LastIndexByte(window, '\n'); i != -1 {
		return i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i != -1 {
		return i + 1
	}
	return len(window)
}

// appendPassage trims the slice [start,end) and records it unless empty.
func appendPassage(passages *[]Passage, text string, start, end int, idx *int) {
	trimmed := strings.TrimSpace(text[start:end])
	if trimmed == "" {
		return
	}
	lead := len(text[start:end]) - len(strings.TrimLeft(text[start:end], " \t\n\r"))
	*passages = append(*passages, Passage{
		Text:    trimmed,
		LineNum: 1 + strings.Count(text[:start+lead], "\n"),
		Index:   *idx,
	})
	*idx++
}
