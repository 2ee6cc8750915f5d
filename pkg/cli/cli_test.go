package cli

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type parsed struct {
	Out      string
	Dump     bool
	Stack    int
	Hosts    []string
	Extra    bool
	NoExtra  bool
	Operands []string
}

func newTestSet() (*FlagSet, *parsed) {
	p := &parsed{}
	fs := NewFlagSet("test")
	fs.String(&p.Out, "output", "o", "", "Write output to <file>.", "file")
	fs.Bool(&p.Dump, "dump", "d", false, "Dump.")
	fs.Int(&p.Stack, "stack", "", 64, "Stack size.", "cells")
	fs.List(&p.Hosts, "host", "", []string{}, "Host file.", "file")
	fs.AddFlagGroup("Warning Flags", "", "warning", "Available:", []FlagGroupEntry{
		{Name: "extra", Prefix: "W", Usage: "Extra warnings.", Enabled: &p.Extra, Disabled: &p.NoExtra},
	})
	return fs, p
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want parsed
	}{
		{"long with value", []string{"--output", "a.lst", "x.as"}, parsed{Out: "a.lst", Stack: 64, Operands: []string{"x.as"}}},
		{"long with equals", []string{"--output=a.lst"}, parsed{Out: "a.lst", Stack: 64}},
		{"short attached", []string{"-oa.lst", "-d"}, parsed{Out: "a.lst", Dump: true, Stack: 64}},
		{"short separate", []string{"-o", "a.lst"}, parsed{Out: "a.lst", Stack: 64}},
		{"int", []string{"--stack=128"}, parsed{Stack: 128}},
		{"list", []string{"--host", "a.yaml", "--host=b.yaml"}, parsed{Stack: 64, Hosts: []string{"a.yaml", "b.yaml"}}},
		{"group", []string{"-Wextra", "-Wno-extra"}, parsed{Stack: 64, Extra: true, NoExtra: true}},
		{"bool value", []string{"--dump=false", "-Wextra=true"}, parsed{Stack: 64, Extra: true}},
		{"terminator", []string{"a", "--", "-d", "b"}, parsed{Stack: 64, Operands: []string{"a", "-d", "b"}}},
		{"lone dash", []string{"-"}, parsed{Stack: 64, Operands: []string{"-"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, p := newTestSet()
			if err := fs.Parse(tt.args); err != nil {
				t.Fatal(err)
			}
			p.Operands = fs.Args()
			want := tt.want
			if want.Hosts == nil {
				want.Hosts = []string{}
			}
			if want.Operands == nil {
				want.Operands = []string{}
			}
			if diff := cmp.Diff(want, *p); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsSet(t *testing.T) {
	fs, _ := newTestSet()
	if err := fs.Parse([]string{"-Wno-extra", "--stack", "64"}); err != nil {
		t.Fatal(err)
	}
	if !fs.IsSet("Wno-extra") || !fs.IsSet("stack") || fs.IsSet("Wextra") || fs.IsSet("dump") {
		t.Errorf("set flags %v", fs.set)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--nope"}, "unknown flag: --nope"},
		{[]string{"-q"}, "unknown shorthand flag: -q"},
		{[]string{"--output"}, "flag needs an argument: --output"},
		{[]string{"-o"}, "flag needs an argument: -o"},
		{[]string{"--stack=big"}, "invalid value for --stack: invalid integer value 'big'"},
		{[]string{"--dump=maybe"}, "invalid value for --dump: invalid boolean value 'maybe'"},
		{[]string{"--=x"}, "empty flag name in '--=x'"},
	}
	for _, tt := range tests {
		fs, _ := newTestSet()
		err := fs.Parse(tt.args)
		if err == nil || err.Error() != tt.want {
			t.Errorf("Parse(%q) = %v, want %q", tt.args, err, tt.want)
		}
	}
}

func TestHelpPage(t *testing.T) {
	fs, _ := newTestSet()
	app := &App{Name: "test", Synopsis: "[options] <file>", Description: "Does things.", Authors: []string{"me"}, FlagSet: fs}
	var sb strings.Builder
	app.WriteHelp(&sb, 80)
	help := sb.String()
	for _, want := range []string{
		"test [options] <file>",
		"-o <file>, --output <file>",
		"--stack=cells",
		"|64|",
		"-W<warning>",
		"-Wno-<warning>",
		"Available:",
	} {
		if !strings.Contains(help, want) {
			t.Errorf("help page lacks %q:\n%s", want, help)
		}
	}
	if strings.Contains(help, "--Wextra") {
		t.Errorf("group switches belong in their group, not the options:\n%s", help)
	}

	sb.Reset()
	app.WriteUsage(&sb, 80)
	if !strings.HasPrefix(sb.String(), "Usage: test [options] <file>\n") {
		t.Errorf("usage starts %q", sb.String())
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	if diff := cmp.Diff([]string{"one two", "three", "four"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if wrapText("   ", 10) != nil {
		t.Error("blank text wraps to nothing")
	}
}
