package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Turnstyle/ria-hunter-sub007/internal/answer"
	"github.com/Turnstyle/ria-hunter-sub007/internal/app"
	"github.com/Turnstyle/ria-hunter-sub007/internal/llm"
	"github.com/Turnstyle/ria-hunter-sub007/internal/location"
	"github.com/Turnstyle/ria-hunter-sub007/internal/metrics"
	"github.com/Turnstyle/ria-hunter-sub007/internal/planner"
	"github.com/Turnstyle/ria-hunter-sub007/internal/retrieval"
	"github.com/Turnstyle/ria-hunter-sub007/internal/search"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

const commandTimeout = 2 * time.Minute

// overrideFlags are the structured filters shared by search and ask.
type overrideFlags struct {
	sortBy       string
	sortOrder    string
	minAUM       float64
	state        string
	city         string
	privateFunds bool
}

func (f *overrideFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sortBy, "sort-by", "", "sort field (aum, employees, funds)")
	cmd.Flags().StringVar(&f.sortOrder, "sort-order", "", "sort order (asc, desc)")
	cmd.Flags().Float64Var(&f.minAUM, "min-aum", 0, "minimum assets under management in dollars")
	cmd.Flags().StringVar(&f.state, "state", "", "two-letter state filter")
	cmd.Flags().StringVar(&f.city, "city", "", "city filter")
	cmd.Flags().BoolVar(&f.privateFunds, "private-funds", false, "only advisers that report private funds")
}

// overrides returns nil when no filter flag was given.
func (f *overrideFlags) overrides(cmd *cobra.Command) *planner.Overrides {
	o := &planner.Overrides{SortBy: f.sortBy, SortOrder: f.sortOrder, State: f.state, City: f.city}
	set := f.sortBy != "" || f.sortOrder != "" || f.state != "" || f.city != ""
	if cmd.Flags().Changed("min-aum") {
		v := f.minAUM
		o.MinAUM = &v
		set = true
	}
	if cmd.Flags().Changed("private-funds") {
		v := f.privateFunds
		o.RequirePrivateFunds = &v
		set = true
	}
	if !set {
		return nil
	}
	return o
}

func queryArg(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// newSearchCmd creates the search subcommand.
func (c *cli) newSearchCmd() *cobra.Command {
	var (
		limit   int
		offset  int
		filters overrideFlags
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search advisers with a natural-language query",
		Example: `  ria-hunter-cli search "largest RIAs in St. Louis"
  ria-hunter-cli search "advisers with private funds" --state MO --min-aum 100000000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Service.Search(ctx, search.Request{
				Query:     queryArg(args),
				Limit:     limit,
				Offset:    offset,
				Overrides: filters.overrides(cmd),
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if c.outputJSON {
				return c.printJSON(resp)
			}
			c.printResponse(resp, offset)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (default from config)")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	filters.register(cmd)
	return cmd
}

func (c *cli) printResponse(resp *search.Response, offset int) {
	for _, name := range resp.RejectedOverrides {
		c.ui.Warning("Ignored invalid filter %q", name)
	}
	if len(resp.Results) == 0 {
		c.ui.Warning("No advisers matched")
	} else {
		rows := make([][]string, 0, len(resp.Results))
		for i := range resp.Results {
			r := &resp.Results[i]
			rows = append(rows, []string{
				strconv.Itoa(offset + i + 1),
				r.CRDNumber,
				r.LegalName,
				strings.Trim(r.City+", "+r.State, ", "),
				answer.FormatMoney(r.ResolvedAUM()),
				r.Source,
			})
		}
		c.ui.Table([]string{"#", "CRD", "Name", "Location", "AUM", "Source"}, rows)
	}

	c.ui.KeyValue("Strategy", resp.Strategy)
	c.ui.KeyValue("Available", resp.AvailableResults)
	c.ui.KeyValue("Elapsed", FormatDuration(time.Duration(resp.ElapsedMS)*time.Millisecond))
}

// newAskCmd creates the ask subcommand.
func (c *cli) newAskCmd() *cobra.Command {
	var (
		limit   int
		stream  bool
		filters overrideFlags
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question about advisers",
		Example: `  ria-hunter-cli ask "who are the largest advisers in Kansas City?"
  ria-hunter-cli ask --stream "top 5 RIAs in Chicago with private funds"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			req := search.Request{Query: queryArg(args), Limit: limit, Overrides: filters.overrides(cmd)}
			if stream && !c.outputJSON {
				return c.askStream(ctx, a, req)
			}

			stop := c.ui.Spinner("Searching advisers...")
			resp, err := a.Service.Ask(ctx, req)
			stop()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if c.outputJSON {
				return c.printJSON(resp)
			}
			c.ui.Text(resp.Answer + "\n")
			if resp.Fallback {
				c.ui.Info("Answer composed without a language model")
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum advisers in the answer context")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")
	filters.register(cmd)
	return cmd
}

func (c *cli) askStream(ctx context.Context, a *app.App, req search.Request) error {
	stop := c.ui.Spinner("Searching advisers...")
	resp, chunks, err := a.Service.AskStream(ctx, req)
	if err != nil {
		stop()
		return fmt.Errorf("ask: %w", err)
	}

	first := true
	for chunk := range chunks {
		if first {
			stop()
			first = false
		}
		if chunk.Err != nil {
			fmt.Fprintln(c.stdout)
			return fmt.Errorf("stream answer: %w", chunk.Err)
		}
		fmt.Fprint(c.stdout, chunk.Text)
	}
	if first {
		stop()
	}
	fmt.Fprintln(c.stdout)

	if c.verbose {
		c.ui.KeyValue("Strategy", resp.Strategy)
		c.ui.KeyValue("Available", resp.AvailableResults)
	}
	return nil
}

// newNormalizeCmd creates the normalize subcommand.
func (c *cli) newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <location>",
		Short: "Show how a place name is normalized",
		Example: `  ria-hunter-cli normalize "saint louis, mo"
  ria-hunter-cli normalize NYC`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := location.Parse(queryArg(args))
			if c.outputJSON {
				return c.printJSON(loc)
			}
			if loc.IsZero() {
				c.ui.Warning("No known city or state in %q", queryArg(args))
				return nil
			}
			c.ui.KeyValue("City", loc.City)
			c.ui.KeyValue("State", loc.State)
			c.ui.KeyValue("Variants", strings.Join(loc.Variants, " | "))
			c.ui.KeyValue("Confidence", fmt.Sprintf("%.2f", loc.Confidence))
			return nil
		},
	}
}

type planOutput struct {
	Plan    *planner.QueryPlan        `json:"queryPlan"`
	Routing retrieval.RoutingDecision `json:"routing"`
}

// newPlanCmd creates the plan subcommand. It needs no database.
func (c *cli) newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <query>",
		Short: "Show the query plan and routing decision without searching",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			provider, err := llm.NewFromConfig(c.cfg.Generation, c.logger)
			if err != nil {
				return fmt.Errorf("generation provider: %w", err)
			}
			p, router := app.Planning(c.cfg, provider, nil, c.logger, metrics.New())

			query := queryArg(args)
			plan, err := p.Decompose(ctx, query)
			if err != nil {
				return fmt.Errorf("plan: %w", err)
			}
			out := planOutput{Plan: plan, Routing: router.Route(ctx, query, retrieval.HintFromPlan(plan))}

			if c.outputJSON {
				return c.printJSON(out)
			}
			c.ui.Section("Plan")
			c.ui.KeyValue("Intent", plan.Intent)
			c.ui.KeyValue("Source", plan.Source)
			c.ui.KeyValue("Semantic query", plan.SemanticQuery)
			if plan.NormalizedLocation != nil {
				c.ui.KeyValue("City", plan.City())
				c.ui.KeyValue("State", plan.State())
			}
			if plan.Constraints.SortBy != "" {
				c.ui.KeyValue("Sort", plan.Constraints.SortBy+" "+plan.Constraints.SortOrder)
			}
			if plan.Constraints.MinAUM != nil {
				c.ui.KeyValue("Minimum AUM", answer.FormatMoney(*plan.Constraints.MinAUM))
			}
			c.ui.KeyValue("Strategy hint", plan.SearchStrategy)
			c.ui.KeyValue("Confidence", fmt.Sprintf("%.2f", plan.Confidence))

			c.ui.Section("Routing")
			c.ui.KeyValue("Strategy", out.Routing.Strategy)
			c.ui.KeyValue("Superlative", out.Routing.IsSuperlativeQuery)
			if out.Routing.TopN > 0 {
				c.ui.KeyValue("Top N", out.Routing.TopN)
			}
			c.ui.KeyValue("Reason", out.Routing.Reason)
			return nil
		},
	}
}

// batchRecord is one JSONL output line.
type batchRecord struct {
	RunID            string                 `json:"runId"`
	Index            int                    `json:"index"`
	Query            string                 `json:"query"`
	Strategy         string                 `json:"strategy,omitempty"`
	AvailableResults int                    `json:"availableResults"`
	Results          []storage.SearchResult `json:"results,omitempty"`
	Answer           string                 `json:"answer,omitempty"`
	Error            string                 `json:"error,omitempty"`
	ElapsedMS        int64                  `json:"elapsedMs"`
}

// newBatchCmd creates the batch subcommand.
func (c *cli) newBatchCmd() *cobra.Command {
	var (
		file        string
		outPath     string
		concurrency int
		limit       int
		withAnswer  bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run a file of queries and write JSON lines",
		Long: `Batch reads one query per line (blank lines and lines starting with # are skipped),
runs them concurrently and writes one JSON object per query in input order.
A failing query is recorded in its line and does not stop the batch.`,
		Example: `  ria-hunter-cli batch --file queries.txt --out results.jsonl --concurrency 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := readQueries(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := c.stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			start := time.Now()
			records, failed := c.runBatch(ctx, a.Service, queries, concurrency, limit, withAnswer)
			if err := writeRecords(out, records); err != nil {
				return err
			}

			if outPath != "" {
				c.ui.Success("Processed %d queries (%d failed) in %s", len(records), failed, FormatDuration(time.Since(start)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one query per line (- for stdin)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default: stdout)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "queries in flight")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results per query")
	cmd.Flags().BoolVar(&withAnswer, "answer", false, "generate an answer for each query")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// batchService is the part of the search service a batch uses.
type batchService interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Ask(ctx context.Context, req search.Request) (*search.AskResponse, error)
}

func (c *cli) runBatch(ctx context.Context, svc batchService, queries []string, concurrency, limit int, withAnswer bool) ([]batchRecord, int) {
	if concurrency < 1 {
		concurrency = 1
	}
	runID := uuid.NewString()
	records := make([]batchRecord, len(queries))
	var failed atomic.Int32

	bar := c.ui.ProgressBar("queries", len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			defer bar.Increment()
			rec := batchRecord{RunID: runID, Index: i, Query: q}
			start := time.Now()

			req := search.Request{Query: q, Limit: limit}
			var (
				resp *search.Response
				err  error
			)
			if withAnswer {
				var ar *search.AskResponse
				if ar, err = svc.Ask(gctx, req); err == nil {
					rec.Answer = ar.Answer
					resp = ar.Response
				}
			} else {
				resp, err = svc.Search(gctx, req)
			}

			rec.ElapsedMS = time.Since(start).Milliseconds()
			if err != nil {
				failed.Add(1)
				rec.Error = err.Error()
				c.logger.Warn().Err(err).Int("index", i).Str("query", q).Msg("Batch query failed")
			} else {
				rec.Strategy = resp.Strategy
				rec.AvailableResults = resp.AvailableResults
				rec.Results = resp.Results
			}
			records[i] = rec
			return nil
		})
	}
	_ = g.Wait()
	bar.Wait()
	return records, int(failed.Load())
}

func readQueries(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open queries: %w", err)
		}
		defer f.Close()
		r = f
	}

	var queries []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries in %s", path)
	}
	return queries, nil
}

func writeRecords(w io.Writer, records []batchRecord) error {
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("write result %d: %w", i, err)
		}
	}
	return nil
}

// newVersionCmd creates the version subcommand.
func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.outputJSON {
				return c.printJSON(map[string]string{
					"version": version,
					"go":      runtime.Version(),
				})
			}
			fmt.Fprintf(c.stdout, "%s v%s\n", cliName, version)
			return nil
		},
	}
}
