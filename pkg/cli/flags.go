// Package cli parses gcc-style command lines: long and short options, plus groups of
// -X<name>/-Xno-<name> switches such as warnings and features.
package cli

import (
	"fmt"
	"strconv"
	"strings"
)

type Value interface {
	String() string
	Set(string) error
	Get() any
}

type stringValue struct{ p *string }

func (v stringValue) Set(s string) error { *v.p = s; return nil }
func (v stringValue) String() string     { return *v.p }
func (v stringValue) Get() any           { return *v.p }

// boolValue treats a bare flag as true.
type boolValue struct{ p *bool }

func (v boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s'", s)
	}
	*v.p = b
	return nil
}
func (v boolValue) String() string { return strconv.FormatBool(*v.p) }
func (v boolValue) Get() any       { return *v.p }

type intValue struct{ p *int }

func (v intValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer value '%s'", s)
	}
	*v.p = n
	return nil
}
func (v intValue) String() string { return strconv.Itoa(*v.p) }
func (v intValue) Get() any       { return *v.p }

// listValue appends every occurrence.
type listValue struct{ p *[]string }

func (v listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v listValue) String() string     { return strings.Join(*v.p, ", ") }
func (v listValue) Get() any           { return *v.p }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

func (f *Flag) isBool() bool {
	_, ok := f.Value.(boolValue)
	return ok
}

// FlagGroup is a family of on/off switches sharing a prefix, like -W or -F.
type FlagGroup struct {
	Name        string
	Description string
	Kind        string
	Header      string
	Entries     []FlagGroupEntry
}

// FlagGroupEntry is one switch of a group. Enabled is set by -<Prefix><Name> and Disabled
// by -<Prefix>no-<Name>.
type FlagGroupEntry struct {
	Name     string
	Prefix   string
	Usage    string
	Enabled  *bool
	Disabled *bool
}

type FlagSet struct {
	name   string
	flags  map[string]*Flag
	short  map[string]*Flag
	set    map[string]bool
	args   []string
	groups []FlagGroup
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:  name,
		flags: make(map[string]*Flag),
		short: make(map[string]*Flag),
		set:   make(map[string]bool),
	}
}

// Args returns the operands left after parsing.
func (f *FlagSet) Args() []string { return f.args }

// IsSet reports whether the named flag was given on the command line.
func (f *FlagSet) IsSet(name string) bool { return f.set[name] }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Int(p *int, name, shorthand string, value int, usage, expectedType string) {
	*p = value
	f.Var(intValue{p}, name, shorthand, usage, strconv.Itoa(value), expectedType)
}

func (f *FlagSet) List(p *[]string, name, shorthand string, value []string, usage, expectedType string) {
	*p = value
	f.Var(listValue{p}, name, shorthand, usage, "", expectedType)
}

// Var defines a flag. Redefining a name or shorthand is a programming error and panics.
func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("cli: flag name cannot be empty")
	}
	if _, dup := f.flags[name]; dup {
		panic("cli: flag redefined: " + name)
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	if shorthand == "" {
		return
	}
	if _, dup := f.short[shorthand]; dup {
		panic("cli: shorthand redefined: " + shorthand)
	}
	f.short[shorthand] = flag
}

// AddFlagGroup defines the -<prefix><name> and -<prefix>no-<name> switches of every entry.
func (f *FlagSet) AddFlagGroup(name, description, kind, header string, entries []FlagGroupEntry) {
	for _, e := range entries {
		if e.Enabled != nil {
			f.Bool(e.Enabled, e.Prefix+e.Name, "", *e.Enabled, e.Usage)
		}
		if e.Disabled != nil {
			f.Bool(e.Disabled, e.Prefix+"no-"+e.Name, "", *e.Disabled, "Disable '"+e.Name+"'")
		}
	}
	f.groups = append(f.groups, FlagGroup{Name: name, Description: description, Kind: kind, Header: header, Entries: entries})
}

func (f *FlagSet) inGroup(name string) bool {
	for _, g := range f.groups {
		for _, e := range g.Entries {
			if name == e.Prefix+e.Name || name == e.Prefix+"no-"+e.Name {
				return true
			}
		}
	}
	return false
}

// Parse consumes arguments. A single dash first tries the whole word as a long name, so
// group switches like -Wno-extra work, then falls back to a shorthand with its value attached.
func (f *FlagSet) Parse(arguments []string) error {
	f.args = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		}
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}

		dash := "-"
		body := arg[1:]
		if strings.HasPrefix(arg, "--") {
			dash, body = "--", arg[2:]
		}
		name, value, hasValue := strings.Cut(body, "=")
		if name == "" {
			return fmt.Errorf("empty flag name in '%s'", arg)
		}

		flag, ok := f.flags[name]
		if !ok && dash == "-" {
			if flag, ok = f.short[body[:1]]; ok {
				name = body[:1]
				value = strings.TrimPrefix(body[1:], "=")
				hasValue = value != ""
			}
		}
		if !ok {
			if dash == "-" {
				return fmt.Errorf("unknown shorthand flag: -%s", body[:1])
			}
			return fmt.Errorf("unknown flag: --%s", name)
		}

		if !hasValue && !flag.isBool() {
			if i+1 >= len(arguments) {
				return fmt.Errorf("flag needs an argument: %s%s", dash, name)
			}
			i++
			value = arguments[i]
		}
		if err := flag.Value.Set(value); err != nil {
			return fmt.Errorf("invalid value for %s%s: %w", dash, name, err)
		}
		f.set[flag.Name] = true
	}
	return nil
}
