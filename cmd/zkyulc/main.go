// Command zkyulc is the thin driver boundary spec.md §6 describes: it reads a .yul source file,
// runs the core lexer/parser/lowerer, and dumps either the token stream, the pretty-printed AST, or
// the resulting IR. Everything spec.md's Non-goals put out of scope — standard-json marshalling,
// invoking the external Solidity compiler, writing artifact bundles to disk — stays out of this
// file; it only exercises the boundary the core actually owns.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"zkyulc/internal/ast"
	"zkyulc/internal/build"
	"zkyulc/internal/build/evalbuilder"
	"zkyulc/internal/build/llvmbuilder"
	"zkyulc/internal/frontend"
	"zkyulc/internal/lower"
	"zkyulc/internal/util"
)

func main() {
	app := &cli.App{
		Name:    "zkyulc",
		Usage:   "lower Yul (solc --ir output) to LLVM IR targeted at a zkEVM",
		Version: util.AppVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "src", Aliases: []string{"s"}, Usage: "path to .yul source file; stdin if omitted"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output path; stdout if omitted"},
			&cli.IntFlag{Name: "threads", Aliases: []string{"j"}, Value: 1, Usage: "max goroutines for batched lowering"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "print the builtin-coverage table to stderr"},
			&cli.BoolFlag{Name: "dump-tokens", Aliases: []string{"ts"}, Usage: "print the token stream and exit"},
			&cli.BoolFlag{Name: "dump-yul", Usage: "pretty-print the parsed AST back to Yul and exit"},
			&cli.StringFlag{Name: "target", Value: "zkevm", Usage: "backend: zkevm or eval"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "zkyulc:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	opt := util.Options{
		Src:         c.String("src"),
		Out:         c.String("out"),
		Threads:     c.Int("threads"),
		Verbose:     c.Bool("verbose"),
		TokenStream: c.Bool("dump-tokens"),
	}
	if opt.Threads < 1 {
		opt.Threads = 1
	}
	if opt.Threads > util.MaxThreads {
		opt.Threads = util.MaxThreads
	}
	switch c.String("target") {
	case "eval":
		opt.Target = util.TargetEval
	default:
		opt.Target = util.TargetZkEVM
	}

	src, err := util.ReadSource(opt)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	if opt.TokenStream {
		return dumpTokens(src)
	}

	if opt.Verbose {
		printBuiltinCoverage(os.Stderr)
	}

	root, err := frontend.Parse(src)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}

	if c.Bool("dump-yul") {
		fmt.Print(ast.Print(root))
		return nil
	}

	var f *os.File
	if opt.Out != "" {
		f, err = os.Create(opt.Out)
		if err != nil {
			return fmt.Errorf("opening %q: %w", opt.Out, err)
		}
		defer f.Close()
	}

	var wg sync.WaitGroup
	util.ListenWrite(opt, f, &wg)
	w := util.NewWriter()

	out, err := lower.LowerObject(newBuilder(opt.Target, root.Name), root)
	if err != nil {
		w.Close()
		wg.Wait()
		util.Close()
		return fmt.Errorf("lowering object %q: %w", root.Name, err)
	}
	w.WriteString(fmt.Sprint(out))
	w.Close()
	wg.Wait()
	util.Close()
	util.CloseLabel()
	return nil
}

// newBuilder picks the concrete build.Builder for a single top-level object, matching
// util.Options.Target's two-way choice between the real zkEVM/LLVM path and the evaluating test
// backend spec §1 allows as a generic secondary target.
func newBuilder(target util.Target, moduleName string) build.Builder {
	switch target {
	case util.TargetEval:
		return evalbuilder.NewBuilder(nil)
	default:
		return llvmbuilder.New(moduleName)
	}
}

// dumpTokens lexes src and prints every lexeme, skipping the parser entirely, for the -ts flag.
func dumpTokens(src string) error {
	toks, err := frontend.LexAll(src)
	if err != nil {
		return fmt.Errorf("lexing: %w", err)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "line", "col", "kind", "text"})
	for i, t := range toks {
		table.Append([]string{
			fmt.Sprint(i),
			fmt.Sprint(t.Line),
			fmt.Sprint(t.Col),
			t.Kind,
			t.Text,
		})
	}
	table.Render()
	return nil
}

// printBuiltinCoverage prints, for every tag ast.AllBuiltins enumerates, its name and its argument
// and result counts as reported by Arity — a useful -v sanity dump when adding a new builtin during
// development.
func printBuiltinCoverage(w *os.File) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"builtin", "args", "rets"})
	for _, tag := range ast.AllBuiltins() {
		args, rets := tag.Arity()
		table.Append([]string{tag.String(), fmt.Sprint(args), fmt.Sprint(rets)})
	}
	table.Render()
}
