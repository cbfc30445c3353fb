// Package artifacts is the log-artifact provider. It walks a TestNG-style
// HTML report directory (html/overview.html plus per-suite result files)
// and extracts one Artifact per test: the execution log, stack trace, API
// trace lines and duration. A malformed suite file is skipped with a
// warning; only an unreadable report directory is fatal.
package artifacts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"verdict/internal/identity"
	"verdict/internal/logging"
)

// Artifact is one test's worth of log material pulled from the report.
type Artifact struct {
	// TestName is the fully qualified Class.method name as the report
	// states it, duplicate class segments already collapsed.
	TestName   string
	LogText    string
	StackTrace string
	APITrace   string
	DurationMs int64
}

// Report is the outcome of parsing a report directory.
type Report struct {
	Artifacts []Artifact
	// SkippedFiles counts suite files that could not be read or parsed.
	SkippedFiles int
}

// Suite is one row of the overview index.
type Suite struct {
	Name        string
	ResultsFile string
}

// Parser reads report directories. Zero value is not usable; use NewParser.
type Parser struct {
	log *slog.Logger
}

// NewParser returns a Parser. A nil logger falls back to the component default.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = logging.New("artifacts")
	}
	return &Parser{log: logger}
}

// ParseReportDir parses dir/html/overview.html and every suite result file
// it references. Returns an error only when the directory or the overview
// index itself is unreadable.
func (p *Parser) ParseReportDir(dir string) (*Report, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("report dir %s: %w", dir, err)
	}
	htmlDir := filepath.Join(dir, "html")
	overview := filepath.Join(htmlDir, "overview.html")
	suites, err := p.ParseOverview(overview)
	if err != nil {
		return nil, err
	}

	rep := &Report{}
	for _, s := range suites {
		path := filepath.Join(htmlDir, s.ResultsFile)
		arts, err := p.ParseResults(path)
		if err != nil {
			p.log.Warn("skipping suite result file", "file", s.ResultsFile, "error", err)
			rep.SkippedFiles++
			continue
		}
		rep.Artifacts = append(rep.Artifacts, arts...)
	}
	p.log.Info("parsed report dir",
		"suites", len(suites), "artifacts", len(rep.Artifacts), "skipped", rep.SkippedFiles)
	return rep, nil
}

// ParseOverview reads the suite index: every <tr class="test"> row whose
// first cell links to a per-suite result file.
func (p *Parser) ParseOverview(path string) ([]Suite, error) {
	doc, err := parseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse overview: %w", err)
	}
	var suites []Suite
	for _, row := range findAll(doc, func(n *html.Node) bool {
		return n.Data == "tr" && hasClass(n, "test")
	}) {
		link := findFirst(row, func(n *html.Node) bool { return n.Data == "a" })
		if link == nil {
			continue
		}
		href := attr(link, "href")
		if href == "" {
			continue
		}
		suites = append(suites, Suite{
			Name:        strings.TrimSpace(text(link)),
			ResultsFile: href,
		})
	}
	return suites, nil
}

// Section headers in the per-suite result tables.
var sectionStatus = map[string]string{
	"failed tests":  "FAIL",
	"passed tests":  "PASS",
	"skipped tests": "SKIP",
}

// ParseResults reads one per-suite result file. Rows alternate between
// class-name rows (td.group) and method rows (td.method + td.result).
func (p *Parser) ParseResults(path string) ([]Artifact, error) {
	doc, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	var arts []Artifact
	currentClass := ""
	inSection := false
	for _, n := range findAll(doc, func(n *html.Node) bool {
		return n.Data == "th" || n.Data == "tr"
	}) {
		if n.Data == "th" {
			if _, ok := sectionStatus[strings.ToLower(strings.TrimSpace(text(n)))]; ok {
				inSection = true
			}
			continue
		}
		if !inSection {
			continue
		}
		if group := findFirst(n, cellWithClass("group")); group != nil {
			currentClass = identity.CollapseSegments(strings.TrimSpace(text(group)))
			continue
		}
		methodCell := findFirst(n, cellWithClass("method"))
		if methodCell == nil || currentClass == "" {
			continue
		}
		method, class := extractMethod(methodCell, currentClass)
		if method == "" {
			continue
		}
		art := Artifact{TestName: class + "." + method}
		if durCell := findFirst(n, cellWithClass("duration")); durCell != nil {
			art.DurationMs = parseDurationMs(strings.TrimSpace(text(durCell)))
		}
		if resultCell := findFirst(n, cellWithClass("result")); resultCell != nil {
			art.LogText = extractLog(resultCell)
			art.StackTrace = extractStackTrace(art.LogText)
			art.APITrace = extractAPITrace(art.LogText)
		}
		arts = append(arts, art)
	}
	return arts, nil
}

// extractMethod pulls the Java method name out of a method cell. The anchor
// href carries the real name ("#Class.method" or "#pkg.Class.method"); the
// visible cell text is often an English description. A fully qualified href
// can also refine the class name.
func extractMethod(cell *html.Node, currentClass string) (method, class string) {
	class = currentClass
	if link := findFirst(cell, func(n *html.Node) bool { return n.Data == "a" }); link != nil {
		href := attr(link, "href")
		if i := strings.LastIndex(href, "#"); i >= 0 {
			href = href[i+1:]
		}
		if href != "" {
			parts := strings.Split(href, ".")
			method = parts[len(parts)-1]
			if len(parts) > 1 {
				candidate := identity.CollapseSegments(strings.Join(parts[:len(parts)-1], "."))
				if strings.Count(candidate, ".") > strings.Count(class, ".") {
					class = candidate
				}
			}
			return method, class
		}
	}
	// No usable anchor: take the cell text only if it looks like a method name.
	raw := strings.TrimSpace(text(cell))
	if raw != "" && !strings.ContainsAny(raw, " \t") && len(raw) < 100 {
		return raw, class
	}
	return "", class
}

// extractLog joins the testOutput block into newline-separated log lines.
// ReportNG wraps each line in a <font> tag; fall back to the whole div text.
func extractLog(resultCell *html.Node) string {
	out := findFirst(resultCell, func(n *html.Node) bool {
		return n.Data == "div" && hasClass(n, "testOutput")
	})
	if out == nil {
		return ""
	}
	var lines []string
	for _, f := range findAll(out, func(n *html.Node) bool { return n.Data == "font" }) {
		if t := strings.TrimSpace(text(f)); t != "" {
			lines = append(lines, t)
		}
	}
	if len(lines) == 0 {
		if t := strings.TrimSpace(text(out)); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

var stackStartRe = regexp.MustCompile(
	`(?m)^\s*(org\.openqa\.selenium\.\w+(Exception|Error):|java\.lang\.\w+(Exception|Error):|\w*AssertionError:|at [\w.$]+\([\w.]+\.java:\d+\))`)

// extractStackTrace returns everything from the first exception or stack
// frame line to the end of the log.
func extractStackTrace(logText string) string {
	loc := stackStartRe.FindStringIndex(logText)
	if loc == nil {
		return ""
	}
	return strings.TrimSpace(logText[loc[0]:])
}

var apiLineRe = regexp.MustCompile(`(?i)^(request|response)\b|\bapi (call|request|response)\b`)

// extractAPITrace keeps the request/response lines of the execution log.
func extractAPITrace(logText string) string {
	var lines []string
	for _, line := range strings.Split(logText, "\n") {
		if apiLineRe.MatchString(strings.TrimSpace(line)) {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// parseDurationMs converts report durations ("1.234s", "350ms", "12.5") to
// milliseconds. Unparsable input yields 0.
func parseDurationMs(s string) int64 {
	s = strings.TrimSpace(strings.ToLower(s))
	mult := 1000.0 // bare numbers are seconds
	switch {
	case strings.HasSuffix(s, "ms"):
		s, mult = strings.TrimSuffix(s, "ms"), 1.0
	case strings.HasSuffix(s, "s"):
		s = strings.TrimSuffix(s, "s")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(v * mult)
}

func parseFile(path string) (*html.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
