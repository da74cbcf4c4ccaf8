package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/config"
	"github.com/lox/chinesepoker/internal/estimator"
	"github.com/lox/chinesepoker/internal/report"
	"github.com/lox/chinesepoker/poker"
)

type CLI struct {
	Hand      string `arg:"" help:"Thirteen cards, e.g. 'AS KS QS JS TS 9H 9D 9C 4H 4D 2C 3C 7D'"`
	Config    string `short:"c" default:"chinesepoker.hcl" help:"HCL configuration file"`
	LogLevel  string `help:"Override the configured log level"`
	Dominant  bool   `short:"d" help:"Only list arrangements no other arrangement dominates"`
	EV        bool   `short:"e" help:"Rank candidates by expected value against random opponents"`
	Samples   int    `short:"s" help:"Monte Carlo samples (defaults to the config)"`
	Opponents int    `short:"o" help:"Number of opponents, 1-3 (defaults to the config)"`
	Seed      *int64 `help:"Random seed for reproducible results"`
	Limit     int    `short:"n" default:"20" help:"Rows to print (0 for all)"`
	JSON      bool   `help:"Print JSON records instead of a table"`
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	handStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	evStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	categoryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))
)

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("arrange"),
		kong.Description("List the legal arrangements of a 13-card Chinese poker hand"),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	kctx.FatalIfErrorf(cli.Run(ctx, os.Stdout))
}

func (c *CLI) Run(ctx context.Context, w io.Writer) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	if c.Samples > 0 {
		cfg.Estimator.Samples = c.Samples
	}
	if c.Opponents > 0 {
		cfg.Estimator.Opponents = c.Opponents
	}
	if c.Seed != nil {
		cfg.Estimator.Seed = *c.Seed
	} else if c.EV {
		cfg.Estimator.Seed = time.Now().UnixNano()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	hand, err := poker.ParseHand(c.Hand, arrange.HandSize)
	if err != nil {
		return fmt.Errorf("parsing hand: %w", err)
	}
	enum, err := cfg.NewEnumerator(logger)
	if err != nil {
		return err
	}

	if !c.EV {
		arrs, err := enum.Enumerate(hand)
		if err != nil {
			return err
		}
		if c.Dominant {
			arrs = arrange.Dominant(arrs)
		}
		if c.JSON {
			return writeJSON(w, report.NewArrangementRecords(limit(arrs, c.Limit)))
		}
		renderArrangements(w, hand, arrs, c.Limit)
		return nil
	}

	est, err := cfg.NewEstimator(enum, logger)
	if err != nil {
		return err
	}
	opps, err := cfg.NewOpponents(enum)
	if err != nil {
		return err
	}
	start := time.Now()
	cands, err := est.ExpectedValues(ctx, hand, opps)
	if err != nil {
		return err
	}
	logger.Info("Estimated expected values",
		"candidates", len(cands),
		"samples", opps.Len(),
		"seed", cfg.Estimator.Seed,
		"duration", time.Since(start).Round(time.Millisecond))

	if c.JSON {
		return writeJSON(w, report.NewCandidateRecords(limit(cands, c.Limit)))
	}
	renderCandidates(w, hand, cands, c.Limit, cfg.Estimator.Opponents)
	return nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && n < len(items) {
		return items[:n]
	}
	return items
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedHand(hand []poker.Card) string {
	sorted := append([]poker.Card(nil), hand...)
	poker.SortCards(sorted)
	return poker.FormatCards(sorted)
}

func lineCells(a arrange.Arrangement) string {
	var out string
	for i, l := range arrange.Lines {
		if i > 0 {
			out += "\t"
		}
		out += poker.FormatCards(a.LineCards(l))
	}
	return out
}

func categoryCells(a arrange.Arrangement) string {
	return categoryStyle.Render(fmt.Sprintf("%s / %s / %s",
		a.Category(arrange.Front).Label(),
		a.Category(arrange.Middle).Label(),
		a.Category(arrange.Back).Label()))
}

func renderArrangements(w io.Writer, hand []poker.Card, arrs []arrange.Arrangement, n int) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Hand:"), handStyle.Render(sortedHand(hand)))
	fmt.Fprintf(w, "%s %d\n\n", headerStyle.Render("Arrangements:"), len(arrs))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFRONT\tMIDDLE\tBACK\tCATEGORIES")
	for i, a := range limit(arrs, n) {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, lineCells(a), categoryCells(a))
	}
	_ = tw.Flush()
}

func renderCandidates(w io.Writer, hand []poker.Card, cands []estimator.Candidate, n, opponents int) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Hand:"), handStyle.Render(sortedHand(hand)))
	fmt.Fprintf(w, "%s %d candidates against %d random opponents\n\n", headerStyle.Render("EV:"), len(cands), opponents)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tEV\tSTDERR\tFRONT\tMIDDLE\tBACK\tWIN F/M/B\tCATEGORIES")
	for i, c := range limit(cands, n) {
		lines := c.Breakdown.Lines
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%s\t%.0f/%.0f/%.0f%%\t%s\n",
			i+1,
			evStyle.Render(fmt.Sprintf("%+.3f", c.Mean)),
			c.StdErr,
			lineCells(c.Arrangement),
			lines[arrange.Front].WinRate*100,
			lines[arrange.Middle].WinRate*100,
			lines[arrange.Back].WinRate*100,
			categoryCells(c.Arrangement))
	}
	_ = tw.Flush()
}
