// Package artifact extracts build steps from the pseudo-XML artifacts embedded
// in model responses.
//
// The grammar is deliberately loose: prose around containers is ignored,
// truncated output yields whatever entries completed, and nothing in here
// returns an error. Problems are reported as warnings on the Result.
package artifact

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/blitz/internal/step"
)

const (
	containerOpen  = "<boltArtifact"
	containerClose = "</boltArtifact>"
	entryOpen      = "<boltAction"
	entryClose     = "</boltAction>"
	payloadOpen    = "<boltActionText>"
	payloadClose   = "</boltActionText>"
)

var (
	// Matches "<boltArtifact" / "<boltAction" only as whole tag names, so
	// "<boltActionText>" is not mistaken for an entry.
	containerTag = regexp.MustCompile(`<boltArtifact(\s[^>]*)?>`)
	entryTag     = regexp.MustCompile(`<boltAction(\s[^>]*)?>`)
	attrPattern  = regexp.MustCompile(`([A-Za-z_:][-A-Za-z0-9_:.]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// Artifact describes one container found in the text.
type Artifact struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Title  string `json:"title,omitempty" yaml:"title,omitempty"`
	Closed bool   `json:"closed" yaml:"closed"`
}

// Warning records an entry that was skipped or a container that was cut short.
type Warning struct {
	Offset  int    `json:"offset" yaml:"offset"`
	Message string `json:"message" yaml:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("offset %d: %s", w.Offset, w.Message)
}

// Result is the outcome of parsing one response.
type Result struct {
	Steps     []step.Step `json:"steps" yaml:"steps"`
	Warnings  []Warning   `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Artifacts []Artifact  `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// Empty reports whether no steps were extracted.
func (r Result) Empty() bool {
	return len(r.Steps) == 0
}

// Steps parses text and returns only the extracted steps.
func Steps(text string) []step.Step {
	return Parse(text).Steps
}

// Parse extracts every complete entry of every container in text, in document
// order. Returned steps are pending and carry no id; ids are assigned by the store.
func Parse(text string) Result {
	p := &parser{text: text}
	p.run()
	return p.res
}

type parser struct {
	text string
	res  Result
}

func (p *parser) warn(offset int, format string, args ...any) {
	p.res.Warnings = append(p.res.Warnings, Warning{Offset: offset, Message: fmt.Sprintf(format, args...)})
}

func (p *parser) run() {
	pos := 0
	for pos < len(p.text) {
		loc := containerTag.FindStringSubmatchIndex(p.text[pos:])
		if loc == nil {
			return
		}
		start := pos + loc[0]
		bodyStart := pos + loc[1]
		attrs := parseAttrs(submatch(p.text[pos:], loc, 1))

		art := Artifact{ID: attrs["id"], Title: attrs["title"]}

		// The body runs to the closing tag, or to the next container when the
		// previous one was never closed.
		bodyEnd := len(p.text)
		next := bodyEnd
		if i := strings.Index(p.text[bodyStart:], containerClose); i >= 0 {
			bodyEnd = bodyStart + i
			next = bodyEnd + len(containerClose)
			art.Closed = true
		}
		if i := strings.Index(p.text[bodyStart:bodyEnd], containerOpen); i >= 0 {
			bodyEnd = bodyStart + i
			next = bodyEnd
			art.Closed = false
		}
		if !art.Closed {
			p.warn(start, "artifact %q is not closed; keeping complete entries only", art.ID)
		}

		p.res.Artifacts = append(p.res.Artifacts, art)
		p.entries(art, bodyStart, bodyEnd)
		pos = next
	}
}

// entries scans text[from:to] for entries of the given container.
func (p *parser) entries(art Artifact, from, to int) {
	pos := from
	for pos < to {
		body := p.text[pos:to]
		loc := entryTag.FindStringSubmatchIndex(body)
		if loc == nil {
			return
		}
		start := pos + loc[0]
		inner := pos + loc[1]
		attrs := parseAttrs(submatch(body, loc, 1))

		payload, end, ok := p.payload(inner, to)
		if !ok {
			p.warn(start, "entry payload is not closed; entry dropped")
			return
		}
		pos = end

		kind, known := kindOf(attrs["type"])
		if !known {
			p.warn(start, "unknown entry type %q; entry skipped", attrs["type"])
			continue
		}

		path := strings.TrimSpace(attrs["filePath"])
		if path == "" {
			path = strings.TrimSpace(attrs["path"])
		}
		if kind.NeedsPath() && path == "" {
			p.warn(start, "%s entry has no path; entry skipped", attrs["type"])
			continue
		}
		if !kind.NeedsPath() {
			path = ""
		}

		content := trimPayload(payload)

		p.res.Steps = append(p.res.Steps, step.Step{
			Kind:       kind,
			Title:      step.DefaultTitle(kind, path, content),
			Path:       path,
			Content:    content,
			Status:     step.StatusPending,
			ArtifactID: art.ID,
		})
	}
}

// payload locates the content of the entry whose opening tag ends at inner.
// It returns the raw payload, the offset scanning should resume from and
// whether the entry was complete.
func (p *parser) payload(inner, to int) (string, int, bool) {
	region := p.text[inner:to]

	closeAt := strings.Index(region, entryClose)
	nextAt := -1
	if loc := entryTag.FindStringIndex(region); loc != nil {
		nextAt = loc[0]
	}
	limit := len(region)
	if closeAt >= 0 {
		limit = closeAt
	}
	if nextAt >= 0 && nextAt < limit {
		limit = nextAt
	}

	if open := strings.Index(region[:limit], payloadOpen); open >= 0 {
		start := open + len(payloadOpen)
		end := strings.Index(region[start:], payloadClose)
		if end < 0 {
			return "", to, false
		}
		end += start
		resume := end + len(payloadClose)
		// Consume the entry's closing tag when it directly follows.
		rest := region[resume:]
		if trimmed := strings.TrimLeft(rest, " \t\r\n"); strings.HasPrefix(trimmed, entryClose) {
			resume += len(rest) - len(trimmed) + len(entryClose)
		}
		return region[start:end], inner + resume, true
	}

	// No payload wrapper: the raw inner text counts only if the entry closed.
	if closeAt >= 0 && (nextAt < 0 || closeAt < nextAt) {
		return region[:closeAt], inner + closeAt + len(entryClose), true
	}
	return "", to, false
}

// trimPayload removes exactly one leading newline and one trailing newline
// together with the indentation that precedes the closing tag.
func trimPayload(s string) string {
	if strings.HasPrefix(s, "\r\n") {
		s = s[2:]
	} else if strings.HasPrefix(s, "\n") {
		s = s[1:]
	}

	if i := strings.LastIndexByte(s, '\n'); i >= 0 && strings.Trim(s[i+1:], " \t") == "" {
		s = s[:i]
		s = strings.TrimSuffix(s, "\r")
	}
	return s
}

func kindOf(t string) (step.Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "file":
		return step.KindCreateFile, true
	case "edit":
		return step.KindEditFile, true
	case "folder", "directory":
		return step.KindCreateFolder, true
	case "shell", "run", "command":
		return step.KindRunCommand, true
	default:
		return "", false
	}
}

func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		v := m[2]
		if v == "" {
			v = m[3]
		}
		attrs[m[1]] = html.UnescapeString(v)
	}
	return attrs
}

func submatch(s string, loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return s[loc[2*n]:loc[2*n+1]]
}
