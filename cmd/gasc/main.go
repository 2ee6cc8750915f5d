package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/builder"
	"github.com/xplshn/gasc/pkg/cli"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/registry"
	"github.com/xplshn/gasc/pkg/server"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/util"
	"github.com/xplshn/gasc/pkg/vm"
)

func main() {
	app := cli.NewApp("gasc")
	app.Synopsis = "[options] <input.as> ..."
	app.Description = "A compiler for an AngelScript dialect, with a bytecode executor to run what it builds."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/gasc>"
	app.Since = 2025

	var (
		outFile   string
		std       string
		target    string
		runDecl   string
		serveAddr string
		hostFiles []string
		stackSize int
		dump      bool
		pedantic  bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Write the bytecode listing to <file>.", "file")
	fs.Bool(&dump, "dump", "d", false, "Print the bytecode listing and exit.")
	fs.String(&runDecl, "run", "r", "", "Execute the function with this declaration, e.g. 'int main()', and print its result.", "decl")
	fs.Int(&stackSize, "stack", "", vm.DefaultStackSize, "Size in cells of the executor's stack for --run.", "cells")
	fs.List(&hostFiles, "host", "", []string{}, "Load an additional host interface from a YAML file.", "file")
	fs.String(&serveAddr, "serve", "", "", "Serve compile diagnostics over a websocket at <addr>/compile.", "addr")
	fs.String(&std, "std", "", "as", "Specify the language standard (as, strict).", "std")
	fs.String(&target, "target", "t", "", "Set the target ABI, which decides the pointer size.", "target")
	fs.Bool(&pedantic, "pedantic", "", false, "Issue all warnings demanded by the current standard.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		if err := cfg.ApplyStd(std); err != nil {
			util.Fatal("%v", err)
		}
		if pedantic {
			cfg.SetWarning(config.WarnPedantic, true)
		}
		// Explicit flags override the standard
		cfg.ApplyFlagGroups(fs, warningFlags, featureFlags)
		cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target)

		if serveAddr != "" {
			srv := server.New(cfg, hostFiles, os.Stdout)
			if err := srv.ListenAndServe(serveAddr); err != nil {
				util.Fatal("server: %v", err)
			}
			return nil
		}
		if len(inputFiles) == 0 {
			util.Fatal("no input files specified.")
		}

		eng, err := registry.NewEngine(cfg)
		if err != nil {
			util.Fatal("%v", err)
		}
		for _, path := range hostFiles {
			if err := eng.LoadHostInterfaceFile(path); err != nil {
				util.Fatal("loading host interface: %v", err)
			}
		}

		rep := util.NewReporter(cfg, os.Stderr, nil)
		fmt.Printf("Tokenizing and parsing %d source file(s)...\n", len(inputFiles))
		root := parseFiles(rep, inputFiles)

		fmt.Println("Compiling...")
		mod, err := builder.New(eng, rep).Build(inputFiles[0], root)
		if err != nil {
			fmt.Printf("%d error(s), %d warning(s)\n", rep.ErrorCount(), rep.WarningCount())
			os.Exit(1)
		}

		if dump {
			mod.Disassemble(os.Stdout)
			return nil
		}
		if outFile != "" {
			if err := os.WriteFile(outFile, []byte(mod.Listing()), 0o644); err != nil {
				util.Fatal("writing '%s': %v", outFile, err)
			}
			fmt.Printf("Wrote listing to '%s'\n", outFile)
		}

		if runDecl != "" {
			fmt.Printf("Running '%s'...\n", runDecl)
			m := vm.New(mod, os.Stdout)
			if err := m.SetStackSize(stackSize); err != nil {
				util.Fatal("%v", err)
			}
			if err := m.InitGlobals(); err != nil {
				util.Fatal("%v", err)
			}
			result, err := m.CallDecl(runDecl)
			if err != nil {
				util.Fatal("%v", err)
			}
			if !result.Type.IsVoid() {
				fmt.Printf("\nResult: %s\n", result)
			}
			if err := m.Close(); err != nil {
				util.Fatal("%v", err)
			}
		}
		fmt.Println("Done!")
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// parseFiles parses every file and joins their declarations into one script.
func parseFiles(rep *util.Reporter, paths []string) *ast.Node {
	var decls []*ast.Node
	failed := false
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			util.Fatal("could not read file '%s': %v", path, err)
		}
		root, err := builder.Parse(rep, path, string(content))
		if err != nil {
			failed = true
			continue
		}
		decls = append(decls, root.Data.(ast.ScriptNode).Decls...)
	}
	if failed {
		fmt.Printf("%d error(s)\n", rep.ErrorCount())
		os.Exit(1)
	}
	return ast.NewScript(token.Token{}, decls)
}
