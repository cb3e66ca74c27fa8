package resource

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ParserFunc turns raw file content into a resource tree.
type ParserFunc func(data []byte) (Value, error)

// parsers maps a lower-case extension (without dot) to its parser.
var parsers = map[string]ParserFunc{
	"json": ParseJSON,
	"yaml": ParseYAML,
	"yml":  ParseYAML,
}

// ParserFor returns the parser registered for ext.
func ParserFor(ext string) (ParserFunc, bool) {
	p, ok := parsers[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return p, ok
}

// Extensions returns the extensions a parser exists for, sorted.
func Extensions() []string {
	out := make([]string, 0, len(parsers))
	for ext := range parsers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// ---------------------------------------------------------------------------
// Candidate file names
// ---------------------------------------------------------------------------

// Matcher selects resource candidates by file name.
type Matcher struct {
	exts map[string]bool
}

// NewMatcher accepts names ending in one of exts (case-insensitive, with or
// without leading dot) that have a parser.
func NewMatcher(exts []string) Matcher {
	m := Matcher{exts: make(map[string]bool, len(exts))}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if _, ok := parsers[ext]; ok {
			m.exts[ext] = true
		}
	}
	return m
}

// Match reports whether name is <name>.<locale>.<ext> with a configured
// extension, returning the locale segment and the lower-cased extension.
func (m Matcher) Match(name string) (locale, ext string, ok bool) {
	parts := strings.Split(name, ".")
	if len(parts) < 3 {
		return "", "", false
	}
	ext = strings.ToLower(parts[len(parts)-1])
	locale = parts[len(parts)-2]
	stem := strings.Join(parts[:len(parts)-2], ".")
	if stem == "" || locale == "" || !m.exts[ext] {
		return "", "", false
	}
	return locale, ext, true
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// File is a parsed and flattened resource file.
type File struct {
	Path   string
	Locale string
	Ext    string
	// Blank is set when the file had no content; Pairs is then empty.
	Blank   bool
	Pairs   []Pair
	Skipped []Skip
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseFile reads, parses and flattens the resource file at path. Locale and
// ext come from Matcher.Match.
func ParseFile(path, locale, ext string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(path, locale, ext, data)
}

// Parse parses and flattens already loaded content.
func Parse(path, locale, ext string, data []byte) (*File, error) {
	f := &File{Path: path, Locale: locale, Ext: ext}

	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		f.Blank = true
		return f, nil
	}

	parse, ok := ParserFor(ext)
	if !ok {
		return nil, fmt.Errorf("%s: no parser for extension %q", filepath.Base(path), ext)
	}
	root, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	f.Pairs, f.Skipped = Flatten(root)
	return f, nil
}
