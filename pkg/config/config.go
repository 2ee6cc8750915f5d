package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/xplshn/gasc/pkg/cli"
	"modernc.org/libqbe"
)

type Feature int

const (
	FeatUnsafeRefs Feature = iota
	FeatRequireEnumScope
	FeatLineCues
	FeatPODCopy
	FeatClasses
	FeatInitLists
	FeatCount
)

type Warning int

const (
	WarnUnreachableCode Warning = iota
	WarnUninitialized
	WarnNotExact
	WarnChangeSign
	WarnValueTooLarge
	WarnSignMismatch
	WarnHandleCompare
	WarnArgNotLValue
	WarnRawCopy
	WarnPedantic
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	StdName    string
	TargetArch string
	Target     string
	WordSize   int
	// PtrSize is the size of a pointer in stack dwords.
	PtrSize int
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		StdName:    "as",
		WordSize:   8,
		PtrSize:    2,
	}

	features := map[Feature]Info{
		FeatUnsafeRefs:       {"unsafe-refs", false, "Pass non-variable objects to &inout parameters without a guard handle."},
		FeatRequireEnumScope: {"require-enum-scope", false, "Require enum values to be written as 'Enum::Value'."},
		FeatLineCues:         {"line-cues", true, "Emit line markers into the bytecode for runtime positions."},
		FeatPODCopy:          {"pod-copy", true, "Allow raw memberwise copy of POD types without an assignment behaviour."},
		FeatClasses:          {"classes", true, "Allow script 'class' declarations."},
		FeatInitLists:        {"init-lists", true, "Allow '= {a, b, c}' initialization of array types."},
	}

	warnings := map[Warning]Info{
		WarnUnreachableCode: {"unreachable-code", true, "Warn about code that will never be executed."},
		WarnUninitialized:   {"uninitialized", true, "Warn when a variable is used before it is assigned."},
		WarnNotExact:        {"not-exact", true, "Warn when a constant conversion loses precision."},
		WarnChangeSign:      {"change-sign", true, "Warn when a constant conversion changes the sign of the value."},
		WarnValueTooLarge:   {"value-too-large", true, "Warn when a constant does not fit in the target type."},
		WarnSignMismatch:    {"sign-mismatch", true, "Warn when signed and unsigned values are compared."},
		WarnHandleCompare:   {"handle-compare", true, "Warn when '==' or '!=' compare handles without '@'."},
		WarnArgNotLValue:    {"arg-not-lvalue", true, "Warn when an &out argument cannot receive the value."},
		WarnRawCopy:         {"raw-copy", false, "Warn when an object is assigned by a raw memberwise copy."},
		WarnPedantic:        {"pedantic", false, "Issue all warnings demanded by the strict standard."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetTarget picks the target ABI and derives the pointer size used for stack accounting.
func (c *Config) SetTarget(goos, goarch, target string) {
	if target == "" {
		c.Target = libqbe.DefaultTarget(goos, goarch)
	} else {
		c.Target = target
	}
	c.TargetArch = goarch

	switch c.Target {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		c.WordSize, c.PtrSize = 8, 2
	case "arm", "rv32":
		c.WordSize, c.PtrSize = 4, 1
	default:
		fmt.Fprintf(os.Stderr, "gasc: warning: unrecognized target '%s', defaulting to 64-bit pointers\n", c.Target)
		c.WordSize, c.PtrSize = 8, 2
	}
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

func (c *Config) ApplyStd(stdName string) error {
	type stdSettings struct {
		feature     Feature
		asValue     bool
		strictValue bool
	}

	settings := []stdSettings{
		{FeatUnsafeRefs, c.IsFeatureEnabled(FeatUnsafeRefs), false},
		{FeatRequireEnumScope, c.IsFeatureEnabled(FeatRequireEnumScope), true},
		{FeatPODCopy, true, false},
	}

	switch stdName {
	case "as":
		for _, s := range settings {
			c.SetFeature(s.feature, s.asValue)
		}
	case "strict":
		for _, s := range settings {
			c.SetFeature(s.feature, s.strictValue)
		}
		c.SetWarning(WarnPedantic, true)
		c.SetWarning(WarnRawCopy, true)
	default:
		return fmt.Errorf("unsupported standard '%s'. Supported: 'as', 'strict'", stdName)
	}
	c.StdName = stdName
	return nil
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessFlags applies -W/-F style flags, "all" toggles first so specific ones win.
func (c *Config) ProcessFlags(flags []string) {
	for _, f := range flags {
		if f == "Wall" || f == "Wno-all" {
			c.applyFlag("-" + f)
		}
	}
	for _, f := range flags {
		if f != "Wall" && f != "Wno-all" {
			c.applyFlag("-" + strings.TrimPrefix(f, "-"))
		}
	}
}

// SetupFlagGroups registers -W<name>/-Wno-<name> and -F<name>/-Fno-<name> on fs.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) ([]cli.FlagGroupEntry, []cli.FlagGroupEntry) {
	var warningFlags, featureFlags []cli.FlagGroupEntry

	for i := Warning(0); i < WarnCount; i++ {
		pEnable, pDisable := new(bool), new(bool)
		info := c.Warnings[i]
		*pEnable = info.Enabled
		warningFlags = append(warningFlags, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description, Enabled: pEnable, Disabled: pDisable,
		})
	}

	for i := Feature(0); i < FeatCount; i++ {
		pEnable, pDisable := new(bool), new(bool)
		info := c.Features[i]
		*pEnable = info.Enabled
		featureFlags = append(featureFlags, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description, Enabled: pEnable, Disabled: pDisable,
		})
	}

	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning flag", "Available Warning Flags:", warningFlags)
	fs.AddFlagGroup("Feature Flags", "Enable or disable specific features", "feature flag", "Available feature flags:", featureFlags)

	return warningFlags, featureFlags
}

// ApplyFlagGroups copies the -W/-F group flags that were given on the command line into c.
func (c *Config) ApplyFlagGroups(fs *cli.FlagSet, warningFlags, featureFlags []cli.FlagGroupEntry) {
	for i, entry := range warningFlags {
		if fs.IsSet(entry.Prefix + entry.Name) {
			c.SetWarning(Warning(i), *entry.Enabled)
		}
		if fs.IsSet(entry.Prefix+"no-"+entry.Name) && *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, entry := range featureFlags {
		if fs.IsSet(entry.Prefix + entry.Name) {
			c.SetFeature(Feature(i), *entry.Enabled)
		}
		if fs.IsSet(entry.Prefix+"no-"+entry.Name) && *entry.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}
