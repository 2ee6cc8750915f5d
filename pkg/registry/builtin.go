package registry

import (
	"bytes"
	_ "embed"
)

//go:embed builtin.yaml
var builtinInterface []byte

func (e *Engine) loadBuiltins() error {
	return e.LoadHostInterface(bytes.NewReader(builtinInterface))
}
