package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/token"
	"golang.org/x/term"
)

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

type Severity int

const (
	SevError Severity = iota
	SevWarning
	SevInfo
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "info"
	}
}

// Message is one reported diagnostic, already resolved to a row and column.
type Message struct {
	Severity Severity `json:"severity"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Text     string   `json:"text"`
	Warning  string   `json:"warning,omitempty"`

	tok token.Token
}

func (m Message) String() string {
	s := fmt.Sprintf("%s:%d:%d: %s: %s", m.File, m.Line, m.Column, m.Severity, m.Text)
	if m.Warning != "" {
		s += " [-W" + m.Warning + "]"
	}
	return s
}

// Reporter prints diagnostics in the usual file:line:col form and keeps a copy of each.
type Reporter struct {
	cfg      *config.Config
	out      io.Writer
	color    bool
	files    []SourceFileRecord
	Messages []Message
	errors   int
	warnings int
}

func NewReporter(cfg *config.Config, out io.Writer, files []SourceFileRecord) *Reporter {
	r := &Reporter{cfg: cfg, out: out, files: files}
	if f, ok := out.(*os.File); ok {
		r.color = term.IsTerminal(int(f.Fd()))
	}
	return r
}

// AddFile registers a source file and returns its index for token.FileIndex.
func (r *Reporter) AddFile(name string, content []rune) int {
	r.files = append(r.files, SourceFileRecord{Name: name, Content: content})
	return len(r.files) - 1
}

func (r *Reporter) File(index int) (SourceFileRecord, bool) {
	if index < 0 || index >= len(r.files) {
		return SourceFileRecord{}, false
	}
	return r.files[index], true
}

func (r *Reporter) HadErrors() bool { return r.errors > 0 }
func (r *Reporter) ErrorCount() int  { return r.errors }
func (r *Reporter) WarningCount() int { return r.warnings }

// Position resolves a token to a 1-based row and column.
func (r *Reporter) Position(tok token.Token) (filename string, line, col int) {
	f, ok := r.File(tok.FileIndex)
	if !ok {
		return "unknown", tok.Line, tok.Column
	}
	if tok.Line > 0 {
		return f.Name, tok.Line, tok.Column
	}
	line, col = 1, 1
	for i := 0; i < tok.Pos && i < len(f.Content); i++ {
		if f.Content[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return f.Name, line, col
}

func (r *Reporter) paint(code, s string) string {
	if !r.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// printErrorLine prints the source line and a caret indicating the position
func (r *Reporter) printErrorLine(tok token.Token, line, col int) {
	f, ok := r.File(tok.FileIndex)
	if !ok || line == 0 || r.out == nil {
		return
	}

	content := f.Content
	lineNum := line
	lineStart := 0
	for i, ch := range content {
		if lineNum <= 1 {
			break
		}
		if ch == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(r.out, "  %s\n", string(content[lineStart:lineEnd]))
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(r.out, "  %s%s\n", strings.Repeat(" ", max(col-1, 0)), r.paint("32", caret))
}

func (r *Reporter) emit(sev Severity, warning string, tok token.Token, text string) {
	filename, line, col := r.Position(tok)
	r.print(Message{Severity: sev, File: filename, Line: line, Column: col, Text: text, Warning: warning, tok: tok})
}

func (r *Reporter) print(msg Message) {
	r.Messages = append(r.Messages, msg)
	if r.out == nil {
		return
	}
	sev, filename, line, col, text, warning, tok := msg.Severity, msg.File, msg.Line, msg.Column, msg.Text, msg.Warning, msg.tok

	label := sev.String() + ":"
	switch sev {
	case SevError:
		label = r.paint("31", label)
	case SevWarning:
		label = r.paint("33", label)
	default:
		label = r.paint("36", label)
	}
	fmt.Fprintf(r.out, "%s:%d:%d: %s %s", filename, line, col, label, text)
	if warning != "" {
		fmt.Fprintf(r.out, " [-W%s]", warning)
	}
	fmt.Fprintln(r.out)
	r.printErrorLine(tok, line, col)
}

// Error records an error. It never stops the caller: compilation continues with a placeholder.
func (r *Reporter) Error(tok token.Token, format string, args ...any) {
	r.errors++
	r.emit(SevError, "", tok, fmt.Sprintf(format, args...))
}

// Warn records a warning if the corresponding warning is enabled
func (r *Reporter) Warn(wt config.Warning, tok token.Token, format string, args ...any) {
	if r.cfg != nil && !r.cfg.IsWarningEnabled(wt) {
		return
	}
	name := ""
	if r.cfg != nil {
		name = r.cfg.Warnings[wt].Name
	}
	r.warnings++
	r.emit(SevWarning, name, tok, fmt.Sprintf(format, args...))
}

func (r *Reporter) Info(tok token.Token, format string, args ...any) {
	r.emit(SevInfo, "", tok, fmt.Sprintf(format, args...))
}

// Buffer returns a silent reporter over the same files. Its messages reach r only through Merge.
func (r *Reporter) Buffer() *Reporter {
	return &Reporter{cfg: r.cfg, files: r.files, color: r.color}
}

// Merge replays everything b recorded into r.
func (r *Reporter) Merge(b *Reporter) {
	for _, m := range b.Messages {
		switch m.Severity {
		case SevError:
			r.errors++
		case SevWarning:
			r.warnings++
		}
		r.print(m)
	}
	b.Messages = nil
}

// Errors returns only the error messages, in report order.
func (r *Reporter) Errors() []Message {
	var errs []Message
	for _, m := range r.Messages {
		if m.Severity == SevError {
			errs = append(errs, m)
		}
	}
	return errs
}

// Warnings returns only the warning messages, in report order.
func (r *Reporter) Warnings() []Message {
	var ws []Message
	for _, m := range r.Messages {
		if m.Severity == SevWarning {
			ws = append(ws, m)
		}
	}
	return ws
}

// Fatal prints a driver-level error and exits the program
func Fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gasc: \033[31merror:\033[0m ")
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}
