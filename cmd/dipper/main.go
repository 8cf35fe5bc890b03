// Command dipper is Dipper's CLI entry point: `dipper [-pci] file.dip
// [args...]`. Three debug flags, a filename, and trailing argv passed
// through to the program's main.
//
// This module owns no parser, so the "file" named on the command line is
// resolved against the programs package's catalog of hand-built ASTs
// rather than lexed and parsed; see programs/programs.go.
package main

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/juddc/Dipper/compiler"
	"github.com/juddc/Dipper/errors"
	"github.com/juddc/Dipper/programs"
	"github.com/juddc/Dipper/version"
	"github.com/juddc/Dipper/vm"
)

func main() {
	exitCode := 0

	app := &cli.Command{
		Name:  "dipper",
		Usage: "run a Dipper (.dip) program",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "p", Usage: "dump the AST before compiling"},
			&cli.BoolFlag{Name: "c", Usage: "dump the compiled module (functions, bytecode, data template)"},
			&cli.BoolFlag{Name: "i", Usage: "trace every executed instruction"},
			&cli.BoolFlag{Name: "version", Aliases: []string{"v"}, Usage: "print the version and exit"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Println(version.Version())
				return nil
			}

			args := cmd.Args().Slice()
			if len(args) == 0 {
				fmt.Fprintln(os.Stderr, "Usage: dipper [-pci] file.dip [args...]")
				fmt.Fprintln(os.Stderr, "    -p: dump parser/ast")
				fmt.Fprintln(os.Stderr, "    -c: dump compiler/bytecode")
				fmt.Fprintln(os.Stderr, "    -i: trace interpreter/execution")
				exitCode = 1
				return nil
			}

			code, err := run(args[0], args, cmd.Bool("p"), cmd.Bool("c"), cmd.Bool("i"))
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			exitCode = code
			return nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}

// run reads filename (surfacing a real I/O error for a missing or
// unreadable path, and capturing source text for diagnostics), resolves
// it to a built-in program, compiles it, optionally dumps its AST and/or
// compiled module, then runs it. argv (filename plus any trailing
// positional args) is passed through to the program's main.
func run(filename string, argv []string, dumpAST, dumpModule, trace bool) (int, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return 1, fmt.Errorf("specified file %q does not exist or cannot be read: %w", filename, err)
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	prog, ok := programs.Lookup(base)
	if !ok {
		return 1, fmt.Errorf("no built-in program named %q (known programs: %s)", base, strings.Join(programs.Names(), ", "))
	}

	if dumpAST {
		fmt.Println("=============== ast ===================")
		fmt.Print(dumpProgram(prog.Structs, prog.Functions))
	}

	mod, err := compiler.CompileModule(filename, "main", prog.Structs, prog.Functions)
	if err != nil {
		return 1, rendered(err, content)
	}

	if dumpModule {
		fmt.Println("=============== module ================")
		fmt.Print(mod.String())
	}

	if trace {
		fmt.Println("=============== trace =================")
	}

	m := vm.New()
	m.Trace = trace
	exitCode, err := m.Run(mod, argv)
	if err != nil {
		return 1, rendered(err, content)
	}
	return exitCode, nil
}

// rendered upgrades a positioned diagnostic to its full three-line source
// window before it reaches stderr; other errors pass through untouched.
func rendered(err error, source []byte) error {
	var derr *errors.Error
	if goerrors.As(err, &derr) {
		return fmt.Errorf("%s", derr.WithSource(string(source)).Render())
	}
	return err
}
