package registry

import (
	"fmt"
	"io"
	"os"

	"github.com/xplshn/gasc/pkg/types"
	"gopkg.in/yaml.v3"
)

// HostInterface is the YAML description of what the host application exposes to scripts.
type HostInterface struct {
	StringFactory *HostFunc       `yaml:"stringFactory"`
	Types         []HostType      `yaml:"types"`
	Enums         []HostEnum      `yaml:"enums"`
	Functions     []HostFunc      `yaml:"functions"`
	Operators     []HostBehaviour `yaml:"operators"`
	Properties    []HostProperty  `yaml:"properties"`
}

type HostType struct {
	Name       string          `yaml:"name"`
	Flags      []string        `yaml:"flags"`
	Size       int             `yaml:"size"`
	Properties []string        `yaml:"properties"`
	Behaviours []HostBehaviour `yaml:"behaviours"`
	Methods    []HostFunc      `yaml:"methods"`
}

// HostFunc is a declaration plus the name of the executor function that implements it.
// An empty bind defaults to the declaration text.
type HostFunc struct {
	Decl string `yaml:"decl"`
	Bind string `yaml:"bind"`
}

type HostBehaviour struct {
	Beh  string `yaml:"beh"`
	Decl string `yaml:"decl"`
	Bind string `yaml:"bind"`
}

type HostEnum struct {
	Name   string `yaml:"name"`
	Values []struct {
		Name  string `yaml:"name"`
		Value int64  `yaml:"value"`
	} `yaml:"values"`
}

type HostProperty struct {
	Decl  string    `yaml:"decl"`
	Value yaml.Node `yaml:"value"`
}

func bindOr(bind, decl string) string {
	if bind == "" {
		return decl
	}
	return bind
}

// LoadHostInterfaceFile registers the host interface described by a YAML file.
func (e *Engine) LoadHostInterfaceFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := e.LoadHostInterface(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadHostInterface decodes a YAML host interface and registers everything it declares.
func (e *Engine) LoadHostInterface(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var hi HostInterface
	if err := dec.Decode(&hi); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decoding host interface: %w", err)
	}
	return e.Register(&hi)
}

// Register adds a decoded host interface. Type names are registered before any declaration
// is resolved so members may refer to types declared later in the document.
func (e *Engine) Register(hi *HostInterface) error {
	for _, ht := range hi.Types {
		var flags types.TypeFlags
		for _, name := range ht.Flags {
			f, ok := types.FlagByName(name)
			if !ok {
				return fmt.Errorf("type %s: unknown flag '%s'", ht.Name, name)
			}
			flags |= f
		}
		if _, err := e.RegisterObjectType(ht.Name, ht.Size, flags); err != nil {
			return err
		}
	}
	for _, en := range hi.Enums {
		if _, err := e.RegisterEnum(en.Name); err != nil {
			return err
		}
		for _, v := range en.Values {
			if err := e.RegisterEnumValue(en.Name, v.Name, v.Value); err != nil {
				return err
			}
		}
	}

	if hi.StringFactory != nil {
		if _, err := e.RegisterStringFactory(hi.StringFactory.Decl, bindOr(hi.StringFactory.Bind, hi.StringFactory.Decl)); err != nil {
			return fmt.Errorf("string factory: %w", err)
		}
	}

	for _, ht := range hi.Types {
		for _, decl := range ht.Properties {
			if _, err := e.RegisterObjectProperty(ht.Name, decl); err != nil {
				return fmt.Errorf("type %s: property %q: %w", ht.Name, decl, err)
			}
		}
		for _, b := range ht.Behaviours {
			if _, err := e.RegisterObjectBehaviour(ht.Name, b.Beh, b.Decl, bindOr(b.Bind, b.Decl)); err != nil {
				return fmt.Errorf("type %s: behaviour %s %q: %w", ht.Name, b.Beh, b.Decl, err)
			}
		}
		for _, m := range ht.Methods {
			if _, err := e.RegisterObjectMethod(ht.Name, m.Decl, bindOr(m.Bind, m.Decl)); err != nil {
				return fmt.Errorf("type %s: method %q: %w", ht.Name, m.Decl, err)
			}
		}
	}

	for _, fn := range hi.Functions {
		if _, err := e.RegisterGlobalFunction(fn.Decl, bindOr(fn.Bind, fn.Decl)); err != nil {
			return fmt.Errorf("function %q: %w", fn.Decl, err)
		}
	}
	for _, op := range hi.Operators {
		if _, err := e.RegisterGlobalBehaviour(op.Beh, op.Decl, bindOr(op.Bind, op.Decl)); err != nil {
			return fmt.Errorf("operator %s %q: %w", op.Beh, op.Decl, err)
		}
	}
	for _, hp := range hi.Properties {
		if err := e.registerHostProperty(hp); err != nil {
			return fmt.Errorf("property %q: %w", hp.Decl, err)
		}
	}
	return nil
}

func (e *Engine) registerHostProperty(hp HostProperty) error {
	prop, err := e.RegisterGlobalProperty(hp.Decl, nil)
	if err != nil || hp.Value.Kind == 0 {
		return err
	}
	dt := prop.Type
	if !dt.IsPrimitive() || !dt.IsReadOnly() {
		return fmt.Errorf("only const primitive globals can have a value")
	}
	var c types.Constant
	switch {
	case dt.IsBooleanType():
		var b bool
		err = hp.Value.Decode(&b)
		c = types.BoolConst(b)
	case dt.IsFloatType():
		var f float32
		err = hp.Value.Decode(&f)
		c = types.FloatConst(f)
	case dt.IsDoubleType():
		var f float64
		err = hp.Value.Decode(&f)
		c = types.DoubleConst(f)
	case dt.IsUnsignedType():
		var u uint64
		err = hp.Value.Decode(&u)
		c = types.UintConst(u)
	default:
		var i int64
		err = hp.Value.Decode(&i)
		c = types.IntConst(i)
	}
	if err != nil {
		return err
	}
	prop.IsPureConstant = true
	prop.Constant = c
	return nil
}
