// Command quantdl is the research CLI: point-in-time symbol resolution,
// wide-table field fetches, expression evaluation and cache administration
// against the configured data lake.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"quantdl/internal/app"
	"quantdl/internal/cache"
	"quantdl/internal/config"
	"quantdl/internal/dataaccess"
	"quantdl/internal/exporter"
	"quantdl/internal/infrastructure"
	"quantdl/internal/session"
	"quantdl/internal/table"
	"quantdl/pkg/contracts/domain"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "resolve":
		err = runResolve(args)
	case "fetch":
		err = runFetch(args)
	case "eval":
		err = runEval(args)
	case "universe":
		err = runUniverse(args)
	case "cache":
		err = runCache(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: quantdl <command> [flags]

commands:
  resolve   resolve symbols to security records as of a date
  fetch     fetch one field as a wide table
  eval      evaluate an expression over a session scope
  universe  list the symbols of a named universe
  cache     show cache statistics or clear the cache`)
}

// buildClient assembles a data access client from config. Logging goes to
// stderr so command output stays clean on stdout.
func buildClient(ctx context.Context, configPath string) (*dataaccess.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Output = "console"
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	gateway, err := app.BuildGateway(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	diskCache, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, cfg.Cache.MaxSizeBytes, logger)
	if err != nil {
		return nil, err
	}
	return dataaccess.New(gateway, diskCache, logger), nil
}

func runResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	symbolsFlag := fs.String("symbols", "", "comma-separated symbols (required)")
	asOfFlag := fs.String("as-of", time.Now().Format(table.DateLayout), "as-of date (YYYY-MM-DD)")
	fs.Parse(args)

	symbols := splitSymbols(*symbolsFlag)
	if len(symbols) == 0 {
		return fmt.Errorf("-symbols is required")
	}
	asOf, err := table.ParseDate(*asOfFlag)
	if err != nil {
		return fmt.Errorf("invalid -as-of date: %w", err)
	}

	ctx := context.Background()
	client, err := buildClient(ctx, *configPath)
	if err != nil {
		return err
	}
	records, err := client.Securities().ResolveBatch(ctx, symbols, asOf)
	if err != nil {
		return err
	}
	out := make([]domain.ResolvedSecurity, len(symbols))
	for i, rec := range records {
		out[i] = domain.ResolvedSecurity{Symbol: symbols[i], Resolved: rec != nil, Record: rec}
	}
	return printJSON(out)
}

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	symbolsFlag := fs.String("symbols", "", "comma-separated symbols (required)")
	source := fs.String("source", "ticks", "source category: ticks, fundamentals or metrics")
	field := fs.String("field", "close", "field name within the source")
	startFlag := fs.String("start", "", "range start (YYYY-MM-DD, required)")
	endFlag := fs.String("end", "", "range end (YYYY-MM-DD, required)")
	out := fs.String("out", "", "output file (.csv or .xlsx); stdout JSON when empty")
	fs.Parse(args)

	symbols := splitSymbols(*symbolsFlag)
	if len(symbols) == 0 {
		return fmt.Errorf("-symbols is required")
	}
	start, end, err := parseRange(*startFlag, *endFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := buildClient(ctx, *configPath)
	if err != nil {
		return err
	}
	spec := domain.DataSpec{Source: domain.SourceCategory(*source), Field: *field}
	t, err := client.Fetch(ctx, spec, symbols, start, end)
	if err != nil {
		return err
	}
	return writeTable(t, *out)
}

func runEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	symbolsFlag := fs.String("symbols", "", "comma-separated symbols (required)")
	exprFlag := fs.String("expr", "", "expression to evaluate (required)")
	startFlag := fs.String("start", "", "range start (YYYY-MM-DD, required)")
	endFlag := fs.String("end", "", "range end (YYYY-MM-DD, required)")
	chunkSize := fs.Int("chunk-size", 0, "symbols per storage request (0 = config default)")
	out := fs.String("out", "", "output file (.csv or .xlsx); stdout JSON when empty")
	fs.Parse(args)

	symbols := splitSymbols(*symbolsFlag)
	if len(symbols) == 0 {
		return fmt.Errorf("-symbols is required")
	}
	if *exprFlag == "" {
		return fmt.Errorf("-expr is required")
	}
	start, end, err := parseRange(*startFlag, *endFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := buildClient(ctx, *configPath)
	if err != nil {
		return err
	}
	var opts []session.Option
	if *chunkSize > 0 {
		opts = append(opts, session.WithChunkSize(*chunkSize))
	}
	sess, err := session.New(ctx, client, symbols, start, end, opts...)
	if err != nil {
		return err
	}
	defer sess.Close()

	result, err := sess.Eval(ctx, *exprFlag)
	if err != nil {
		return err
	}
	return writeTable(result.Table(), *out)
}

func runUniverse(args []string) error {
	fs := flag.NewFlagSet("universe", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	name := fs.String("name", "", "universe name (required)")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	ctx := context.Background()
	client, err := buildClient(ctx, *configPath)
	if err != nil {
		return err
	}
	symbols, err := client.Universe(ctx, *name)
	if err != nil {
		return err
	}
	for _, s := range symbols {
		fmt.Println(s)
	}
	return nil
}

func runCache(args []string) error {
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	clear := fs.Bool("clear", false, "clear the cache instead of printing stats")
	fs.Parse(args)

	ctx := context.Background()
	client, err := buildClient(ctx, *configPath)
	if err != nil {
		return err
	}
	if *clear {
		if err := client.ClearCache(); err != nil {
			return err
		}
		slog.Info("cache cleared")
		return nil
	}
	return printJSON(client.CacheStats())
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("-start and -end are required")
	}
	start, err := table.ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -start date: %w", err)
	}
	end, err := table.ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -end date: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("-end precedes -start")
	}
	return start, end, nil
}

// writeTable routes table output by file extension, defaulting to JSON on
// stdout.
func writeTable(t *table.WideTable, out string) error {
	switch {
	case out == "":
		return printJSON(tableJSON(t))
	case strings.HasSuffix(out, ".xlsx"):
		return exporter.NewWriter(".", slog.Default()).WriteXLSX(out, "data", t)
	default:
		return exporter.NewWriter(".", slog.Default()).WriteCSV(out, t, exporter.WriteOptions{})
	}
}

func tableJSON(t *table.WideTable) domain.TableResponse {
	resp := domain.TableResponse{
		Dates:   make([]string, t.NumRows()),
		Columns: t.Columns(),
		Values:  make([][]*float64, t.NumRows()),
	}
	for i, d := range t.Dates() {
		resp.Dates[i] = d.Format(table.DateLayout)
		row := make([]*float64, t.NumColumns())
		for j := 0; j < t.NumColumns(); j++ {
			v := t.Cell(i, j)
			if !math.IsNaN(v) {
				row[j] = &v
			}
		}
		resp.Values[i] = row
	}
	return resp
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
