package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-funclets/funclet"
	"github.com/wippyai/wasm-funclets/lower"
	"github.com/wippyai/wasm-funclets/wasm"
)

func main() {
	var (
		bodyFile    = flag.String("body", "", "Path to a raw function body (binary)")
		params      = flag.String("params", "", "Function parameter types (i32,i64,f32,f64 comma-separated)")
		results     = flag.String("results", "", "Function result types (comma-separated)")
		locals      = flag.String("locals", "", "Function local types (comma-separated)")
		showSSA     = flag.Bool("ssa", false, "Print the constructed SSA form")
		showEdges   = flag.Bool("edges", false, "Print the funclet call graph edges")
		lowerOut    = flag.String("lower", "", "Write a lowered single-function module to this path")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *bodyFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: funclet-inspect -body <file.bin> [-params i32,i32] [-results i32] [-ssa] [-edges]")
		fmt.Fprintln(os.Stderr, "       funclet-inspect -body <file.bin> -lower out.wasm")
		fmt.Fprintln(os.Stderr, "       funclet-inspect -body <file.bin> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			funclet.SetLogger(logger)
			lower.SetLogger(logger)
		}
	}

	ctx, err := buildContext(*params, *results, *locals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*bodyFile, ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := inspect(*bodyFile, ctx, *showSSA, *showEdges, *lowerOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildContext(params, results, locals string) (*funclet.TypeContext, error) {
	p, err := parseTypes(params)
	if err != nil {
		return nil, fmt.Errorf("parse -params: %w", err)
	}
	r, err := parseTypes(results)
	if err != nil {
		return nil, fmt.Errorf("parse -results: %w", err)
	}
	l, err := parseTypes(locals)
	if err != nil {
		return nil, fmt.Errorf("parse -locals: %w", err)
	}
	return &funclet.TypeContext{Params: p, Results: r, Locals: l}, nil
}

func parseTypes(s string) ([]wasm.ValType, error) {
	if s == "" {
		return nil, nil
	}
	var out []wasm.ValType
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "i32":
			out = append(out, wasm.ValI32)
		case "i64":
			out = append(out, wasm.ValI64)
		case "f32":
			out = append(out, wasm.ValF32)
		case "f64":
			out = append(out, wasm.ValF64)
		default:
			return nil, fmt.Errorf("unknown value type %q", name)
		}
	}
	return out, nil
}

func inspect(bodyFile string, ctx *funclet.TypeContext, showSSA, showEdges bool, lowerOut string) error {
	body, err := os.ReadFile(bodyFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	vb, err := funclet.ValidateFunctionBody(body, ctx)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	fmt.Printf("Body: %s (%d bytes)\n", bodyFile, len(body))
	fmt.Printf("Regions: %d\n", len(vb.Regions))

	for ri, region := range vb.Regions {
		fmt.Printf("\nRegion %d at offset 0x%x: %s -> %s, %d funclets\n",
			ri, region.StartOffset, typeList(region.Params), typeList(region.Results),
			region.NumFunclets())

		reach := region.Graph.Reachable(region.NumFunclets())
		for _, f := range region.Funclets {
			sealed := "unsealed"
			if f.Sealed() {
				sealed = "sealed"
			}
			reachable := ""
			if !reach[f.Index] {
				reachable = " unreachable"
			}
			declared := "inferred"
			if f.Declared {
				declared = fmt.Sprintf("num_preds=%d", f.DeclaredPreds)
			}
			fmt.Printf("  funclet %d %s  %s, %s, %d backward in%s\n",
				f.Index, typeList(f.Sig), declared, sealed, f.ObservedBackward, reachable)
		}

		if showEdges {
			fmt.Printf("\n  Call edges:\n")
			for _, e := range region.Graph.Edges() {
				from := "entry"
				if e.From != funclet.RegionEntry {
					from = fmt.Sprintf("%d", e.From)
				}
				dir := "forward"
				if e.Backward {
					dir = "backward"
				}
				fmt.Printf("    %s -> %d %s at 0x%x (%s)\n", from, e.To, typeList(e.Args), e.Offset, dir)
			}
		}
	}

	if showSSA {
		fmt.Printf("\nSSA form:\n%s", vb.SSA.Format())
	}

	if lowerOut != "" {
		mod, err := lower.Module(body, ctx, "main")
		if err != nil {
			return fmt.Errorf("lower: %w", err)
		}
		if err := os.WriteFile(lowerOut, mod.Encode(), 0o644); err != nil {
			return fmt.Errorf("write module: %w", err)
		}
		fmt.Printf("\nLowered module written to %s\n", lowerOut)
	}

	return nil
}

func typeList(types []wasm.ValType) string {
	var names []string
	for _, t := range types {
		names = append(names, t.String())
	}
	return "(" + strings.Join(names, ", ") + ")"
}
