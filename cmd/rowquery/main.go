// Command rowquery is a small CLI harness for the row-query engine: it
// loads a JSON table fixture, runs query_rows, and pretty-prints the
// resulting page. It stands in for "the desktop shell" named in spec §4.N,
// built the way the teacher's cmd/aretext main wires flags and logging.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/google/shlex"
	runewidth "github.com/mattn/go-runewidth"

	"github.com/rowtriage/rowquery/command"
	"github.com/rowtriage/rowquery/project"
	"github.com/rowtriage/rowquery/rowengine"
	"github.com/rowtriage/rowquery/table"
)

var (
	tablePath  = flag.String("table", "", "path to a JSON array-of-objects table fixture (required)")
	searchArgs = flag.String("search", "", "shell-quoted search query, e.g. \"host:WS01 -logout\"")
	flagFilter = flag.String("flag-filter", "", "one of: all, none, priority, safe, suspicious, critical")
	sortKey    = flag.String("sort", "", "column name to sort by")
	sortDesc   = flag.Bool("desc", false, "sort descending")
	offset     = flag.Int("offset", 0, "row offset")
	limit      = flag.Int("limit", 0, "page size (omit for the engine default; explicit 0 floors to 1)")
	logpath    = flag.String("log", "", "log to file instead of discarding")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	if *logpath != "" {
		logFile, err := os.Create(*logpath)
		if err != nil {
			exitWithError(err)
		}
		defer logFile.Close()
		log.SetOutput(logFile)
	} else {
		log.SetOutput(io.Discard)
	}

	if *tablePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	tbl, err := loadTableFixture(*tablePath)
	if err != nil {
		exitWithError(err)
	}

	registry := project.NewRegistry()
	const projectID = "cli"
	if _, err := registry.Register(projectID, tbl, nil, nil, nil, 0); err != nil {
		exitWithError(err)
	}

	dispatcher := command.NewDispatcher(registry, rowengine.New(nil))

	search, err := resolveSearch(*searchArgs)
	if err != nil {
		exitWithError(err)
	}

	resp, err := dispatcher.QueryRows(command.QueryRowsRequest{
		Project:    projectID,
		Search:     search,
		FlagFilter: *flagFilter,
		SortKey:    *sortKey,
		SortDesc:   *sortDesc,
		Offset:     *offset,
		Limit:      limitFlagValue(),
	})
	if err != nil {
		exitWithError(err)
	}

	printResponse(os.Stdout, tbl, resp)
}

// limitFlagValue returns nil if -limit was never passed on the command
// line, so an explicitly-passed "-limit 0" is distinguishable from
// omitting the flag entirely (spec.md §6).
func limitFlagValue() *int {
	var passed bool
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "limit" {
			passed = true
		}
	})
	if !passed {
		return nil
	}
	v := *limit
	return &v
}

// resolveSearch splits a shell-quoted -search argument (e.g. a caller
// passing an already-quoted phrase) into a single query string. This is
// argv handling for the CLI flag, not the query tokenizer itself.
func resolveSearch(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	fields, err := shlex.Split(raw)
	if err != nil {
		return "", fmt.Errorf("shlex.Split: %w", err)
	}
	return strings.Join(fields, " "), nil
}

func loadTableFixture(path string) (*table.InMemory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile: %w", err)
	}

	var rawRows []map[string]any
	if err := json.Unmarshal(data, &rawRows); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}

	columnSet := make(map[string]bool)
	for _, row := range rawRows {
		for col := range row {
			columnSet[col] = true
		}
	}
	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	data2 := make(map[string][]any, len(columns))
	for _, col := range columns {
		values := make([]any, len(rawRows))
		for i, row := range rawRows {
			values[i] = row[col]
		}
		data2[col] = values
	}

	return table.NewInMemory(columns, data2), nil
}

// printResponse renders a query_rows page as a fixed-width table, using
// go-runewidth so multi-byte columns still line up (grounded on the
// teacher's display package, which uses the same library for grapheme
// cluster width).
func printResponse(w io.Writer, tbl table.Table, resp rowengine.Response) {
	cols := tbl.ColumnNames()
	widths := make(map[string]int, len(cols))
	for _, col := range cols {
		widths[col] = runewidth.StringWidth(col)
	}
	cellText := make([]map[string]string, len(resp.Rows))
	for i, row := range resp.Rows {
		cellText[i] = make(map[string]string, len(cols))
		for _, col := range cols {
			text := fmt.Sprintf("%v", row.Data[col])
			cellText[i][col] = text
			if n := runewidth.StringWidth(text); n > widths[col] {
				widths[col] = n
			}
		}
	}

	flagWidth := runewidth.StringWidth("flag")
	for _, row := range resp.Rows {
		if n := runewidth.StringWidth(row.Flag); n > flagWidth {
			flagWidth = n
		}
	}

	writeCell(w, "flag", flagWidth)
	for _, col := range cols {
		fmt.Fprint(w, "  ")
		writeCell(w, col, widths[col])
	}
	fmt.Fprintln(w)

	for i, row := range resp.Rows {
		writeCell(w, row.Flag, flagWidth)
		for _, col := range cols {
			fmt.Fprint(w, "  ")
			writeCell(w, cellText[i][col], widths[col])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\n%d of %d rows (total %d)\n", len(resp.Rows), resp.TotalFilteredRows, resp.TotalRows)
}

func writeCell(w io.Writer, text string, width int) {
	fmt.Fprint(w, text)
	if pad := width - runewidth.StringWidth(text); pad > 0 {
		fmt.Fprint(w, strings.Repeat(" ", pad))
	}
}

func printUsage() {
	f := flag.CommandLine.Output()
	fmt.Fprintf(f, "Usage: %s -table fixture.json [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(1)
}
