package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/term"
)

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	Since       int
	FlagSet     *FlagSet
	Action      func(args []string) error
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name)}
}

// Run parses arguments and calls Action with the operands. -h/--help prints the full help
// page instead. Parse errors are printed with a short usage summary and returned.
func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(os.Stderr, err)
		a.WriteUsage(os.Stderr, terminalWidth(os.Stderr))
		return err
	}
	if help {
		a.WriteHelp(os.Stdout, terminalWidth(os.Stdout))
		return nil
	}
	if a.Action == nil {
		return nil
	}
	return a.Action(a.FlagSet.Args())
}

// page lays out two-column entries: a flag column padded to a common width and a usage
// column wrapped to the terminal.
type page struct {
	sb     strings.Builder
	width  int
	left   int
	usage  int
	indent string
}

func (p *page) heading(s string) {
	fmt.Fprintf(&p.sb, "\n  %s\n", s)
}

func (p *page) entry(left, usage, right string) {
	avail := max(p.width-len(p.indent)-p.left-1-len(right)-2, 10)
	lines := wrapText(usage, avail)
	first := ""
	if len(lines) > 0 {
		first = lines[0]
	}
	if right == "" {
		fmt.Fprintf(&p.sb, "%s%-*s %s\n", p.indent, p.left, left, first)
	} else {
		fmt.Fprintf(&p.sb, "%s%-*s %-*s  %s\n", p.indent, p.left, left, min(p.usage, avail), first, right)
	}
	pad := strings.Repeat(" ", p.left+1)
	for _, l := range lines[min(1, len(lines)):] {
		fmt.Fprintf(&p.sb, "%s%s%s\n", p.indent, pad, l)
	}
}

func (a *App) newPage(width int) *page {
	p := &page{width: width, indent: "    "}
	for _, f := range a.options() {
		p.left = max(p.left, len(flagLabel(f)))
		p.usage = max(p.usage, len(f.Usage))
	}
	for _, g := range a.FlagSet.groups {
		enable, disable := groupLabels(g)
		p.left = max(p.left, len(enable), len(disable))
		for _, e := range g.Entries {
			p.left = max(p.left, len(e.Name))
			p.usage = max(p.usage, len(e.Usage))
		}
	}
	return p
}

// options returns the flags outside any group, sorted by name.
func (a *App) options() []*Flag {
	var out []*Flag
	for _, f := range a.FlagSet.flags {
		if !a.FlagSet.inGroup(f.Name) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func flagLabel(f *Flag) string {
	arg := ""
	if !f.isBool() && f.ExpectedType != "" {
		arg = " <" + f.ExpectedType + ">"
	}
	if f.Shorthand != "" {
		return "-" + f.Shorthand + arg + ", --" + f.Name + arg
	}
	if arg != "" {
		return "--" + f.Name + "=" + f.ExpectedType
	}
	return "--" + f.Name
}

func groupLabels(g FlagGroup) (enable, disable string) {
	prefix := ""
	if len(g.Entries) > 0 {
		prefix = g.Entries[0].Prefix
	}
	return "-" + prefix + "<" + g.kind() + ">", "-" + prefix + "no-<" + g.kind() + ">"
}

func (g FlagGroup) kind() string {
	if g.Kind == "" {
		return "flag"
	}
	return g.Kind
}

func (p *page) options(flags []*Flag) {
	if len(flags) == 0 {
		return
	}
	p.heading("Options")
	for _, f := range flags {
		right := ""
		if !f.isBool() && f.DefValue != "" {
			right = "|" + f.DefValue + "|"
		}
		p.entry(flagLabel(f), f.Usage, right)
	}
}

func (p *page) group(g FlagGroup) {
	p.heading(g.Name)
	enable, disable := groupLabels(g)
	p.entry(enable, "Enable a specific "+g.kind(), "")
	p.entry(disable, "Disable a specific "+g.kind(), "")
	if g.Header != "" {
		fmt.Fprintf(&p.sb, "  %s\n", g.Header)
	}
	entries := append([]FlagGroupEntry(nil), g.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for _, e := range entries {
		state := "|-|"
		if e.Enabled != nil && *e.Enabled && (e.Disabled == nil || !*e.Disabled) {
			state = "|x|"
		}
		p.entry(e.Name, e.Usage, state)
	}
}

// WriteUsage writes the short summary shown after a command line error.
func (a *App) WriteUsage(w io.Writer, width int) {
	p := a.newPage(width)
	fmt.Fprintf(&p.sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	p.options(a.options())
	fmt.Fprintf(&p.sb, "\nRun '%s --help' for all available options and flags.\n", a.Name)
	io.WriteString(w, p.sb.String())
}

// WriteHelp writes the full help page, including every flag group.
func (a *App) WriteHelp(w io.Writer, width int) {
	p := a.newPage(width)
	years := fmt.Sprint(time.Now().Year())
	if a.Since != 0 && a.Since < time.Now().Year() {
		years = fmt.Sprintf("%d-%s", a.Since, years)
	}
	fmt.Fprintf(&p.sb, "\n  Copyright (c) %s: %s and contributors\n", years, strings.Join(a.Authors, ", "))
	if a.Repository != "" {
		fmt.Fprintf(&p.sb, "  For more details refer to %s\n", a.Repository)
	}
	if a.Synopsis != "" {
		p.heading("Synopsis")
		fmt.Fprintf(&p.sb, "%s%s %s\n", p.indent, a.Name, a.Synopsis)
	}
	if a.Description != "" {
		p.heading("Description")
		for _, l := range wrapText(a.Description, max(width-len(p.indent), 20)) {
			fmt.Fprintf(&p.sb, "%s%s\n", p.indent, l)
		}
	}
	p.options(a.options())

	groups := append([]FlagGroup(nil), a.FlagSet.groups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	for _, g := range groups {
		p.group(g)
	}
	io.WriteString(w, p.sb.String())
}

// terminalWidth is the width of w when it is a terminal, 80 otherwise.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
