package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	app "github.com/hanpama/cardgraph/internal/app"
	config "github.com/hanpama/cardgraph/internal/config"
	directive "github.com/hanpama/cardgraph/internal/directive"
	schema "github.com/hanpama/cardgraph/internal/schema"
)

const rootUsage = `cardgraph: card service GraphQL schema with named directives

USAGE:
  cardgraph <command> [flags]

COMMANDS:
  run              Assemble the schema, register with discovery and wait for shutdown
  compile-sdl      Assemble the schema and print it as SDL
  directives       List the directives the configuration registers
  help             Show help for any command
`

const commonFlagsUsage = `  -config <file>          Configuration file (default: configs/cardgraph.yaml)
  -schema.dir <dir>       GraphQL schema directory (overrides schema.dir)
  -log.level <level>      debug, info, warn or error (overrides log.level)
`

const runUsage = `run FLAGS:
` + commonFlagsUsage + `  -metrics.addr <addr>    Serve Prometheus metrics on addr (overrides telemetry.metricsaddr)
  -otel.endpoint <addr>   OTLP collector endpoint (overrides telemetry.otlpendpoint)
  (Environment variables CARDGRAPH_<KEY> override the file, flags override both)
`

const compileSDLUsage = `compile-sdl FLAGS:
` + commonFlagsUsage + `  -out <file>             Write compiled SDL to file (default: stdout)
  (Assembly always runs; exits non-zero on unknown or misplaced directives)
`

const directivesUsage = `directives FLAGS:
` + commonFlagsUsage

const defaultConfigPath = "configs/cardgraph.yaml"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		logFatal(err)
		os.Exit(1)
	}
}

// logFatal reports err with the directive name and failure kind when err
// comes from the directive registry.
func logFatal(err error) {
	attrs := []any{"err", err}
	var (
		unknown   *directive.UnknownDirectiveError
		duplicate *directive.DuplicateDirectiveError
		closed    *directive.RegistryClosedError
	)
	switch {
	case errors.As(err, &unknown):
		attrs = append(attrs, "directive", unknown.Name, "kind", "unknown")
	case errors.As(err, &duplicate):
		attrs = append(attrs, "directive", duplicate.Name, "kind", "duplicate")
	case errors.As(err, &closed):
		attrs = append(attrs, "directive", closed.Name, "kind", "registry_closed")
	}
	slog.Error("cardgraph failed", attrs...)
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("cardgraph", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "run":
		return cmdRun(cmdArgs, stderr)
	case "compile-sdl":
		return cmdCompileSDL(cmdArgs, stdout, stderr)
	case "directives":
		return cmdDirectives(cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "run":
		fmt.Fprint(stdout, runUsage)
	case "compile-sdl":
		fmt.Fprint(stdout, compileSDLUsage)
	case "directives":
		fmt.Fprint(stdout, directivesUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// commonFlags are accepted by every command that loads configuration.
type commonFlags struct {
	configPath string
	overrides  []keyOverride
}

// keyOverride maps a flag onto a configuration key.
type keyOverride struct {
	flag  string
	key   string
	value *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", defaultConfigPath, "Configuration file")
	c.override(fs, "schema.dir", "schema.dir", "GraphQL schema directory")
	c.override(fs, "log.level", "log.level", "Log level")
	return c
}

func (c *commonFlags) override(fs *flag.FlagSet, flagName, key, usage string) {
	c.overrides = append(c.overrides, keyOverride{flag: flagName, key: key, value: fs.String(flagName, "", usage)})
}

// load reads the configuration, applying only the flags that were set.
func (c *commonFlags) load(fs *flag.FlagSet) (config.Config, error) {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var opts []config.Option
	for _, o := range c.overrides {
		if set[o.flag] {
			opts = append(opts, config.WithOverride(o.key, *o.value))
		}
	}
	cfg, err := config.Load(c.configPath, opts...)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func cmdRun(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common := addCommonFlags(fs)
	common.override(fs, "metrics.addr", "telemetry.metricsaddr", "Prometheus metrics address")
	common.override(fs, "otel.endpoint", "telemetry.otlpendpoint", "OTLP collector endpoint")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, runUsage)
		return err
	}
	cfg, err := common.load(fs)
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()
	return rt.Run(ctx)
}

func cmdCompileSDL(args []string, stdout, stderr io.Writer) error {
	outFile := ""
	fs := flag.NewFlagSet("compile-sdl", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common := addCommonFlags(fs)
	fs.StringVar(&outFile, "out", outFile, "Write compiled SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, compileSDLUsage)
		return err
	}
	cfg, err := common.load(fs)
	if err != nil {
		return err
	}

	rt, err := app.NewRuntime(context.Background(), cfg, app.WithLogOutput(stderr))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	sdl := schema.Render(rt.Schema())
	if outFile == "" {
		fmt.Fprint(stdout, sdl)
		return nil
	}
	if err := os.WriteFile(outFile, []byte(sdl), 0644); err != nil {
		return err
	}
	return nil
}

func cmdDirectives(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("directives", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, directivesUsage)
		return err
	}
	cfg, err := common.load(fs)
	if err != nil {
		return err
	}

	rt, err := app.NewRuntime(context.Background(), cfg, app.WithLogOutput(stderr))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDECLARATION")
	for b := range rt.Registry().All() {
		decl := "-"
		if d, ok := b.Wiring.(directive.Declarer); ok {
			decl = d.Declaration()
		}
		fmt.Fprintf(tw, "@%s\t%s\n", b.Name, decl)
	}
	return tw.Flush()
}
