package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hypermedia-lab/labclient/logging"
	"github.com/hypermedia-lab/labclient/resource"
	"github.com/hypermedia-lab/labclient/stats"
	"github.com/hypermedia-lab/labclient/webapi"
)

const (
	defaultWait  = 10 * time.Minute
	closeTimeout = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		newConsolePrinter(os.Stderr, false).Error(err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	p := &commandParams{}
	root := &cobra.Command{
		Use:   "labctl",
		Short: "Command-line client for the lab server REST API",
		Long: color.CyanString(`labctl - lab server client

Reads and changes lab resources, drives sessions and test runs,
and streams live statistics from a running test.

Settings come from ./labctl.yaml (or --config), LABCTL_* environment
variables and flags, in increasing order of precedence.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	p.addFlags(root.PersistentFlags())

	root.AddCommand(newGetCommand(p))
	root.AddCommand(newDownloadCommand(p))
	root.AddCommand(newSessionsCommand(p))
	root.AddCommand(newSessionCommand(p))
	root.AddCommand(newStatsCommand(p))
	root.AddCommand(newDiagnosticsCommand(p))
	return root
}

// withLab connects, runs fn and releases the connection.
func (p *commandParams) withLab(cmd *cobra.Command, fn func(ctx context.Context, lc *labClient) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	lc, err := p.connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer lc.close()
	return fn(ctx, lc)
}

func (p *commandParams) printer(cmd *cobra.Command) *consolePrinter {
	return newConsolePrinter(cmd.OutOrStdout(), p.noColor)
}

func newGetCommand(p *commandParams) *cobra.Command {
	return &cobra.Command{
		Use:   "get PATH",
		Short: "Print a resource, relative to the versioned API URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return p.withLab(cmd, func(ctx context.Context, lc *labClient) error {
				v, err := lc.conn.Chain().Get(ctx, args[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), v, p.output)
			})
		},
	}
}

func newDownloadCommand(p *commandParams) *cobra.Command {
	return &cobra.Command{
		Use:   "download PATH FILE",
		Short: "Save a resource to FILE, or to standard output if FILE is -",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return p.withLab(cmd, func(ctx context.Context, lc *labClient) error {
				return writeTo(cmd, args[1], func(w io.Writer) (int64, error) {
					return lc.conn.Chain().Download(ctx, args[0], w)
				})
			})
		},
	}
}

func newSessionsCommand(p *commandParams) *cobra.Command {
	var types bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List session IDs, or the session types the lab supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return p.withLab(cmd, func(ctx context.Context, lc *labClient) error {
				var items []interface{}
				if types {
					names, err := lc.conn.SessionTypes(ctx)
					if err != nil {
						return err
					}
					for _, n := range names {
						items = append(items, n)
					}
				} else {
					ids, err := lc.conn.SessionIDs(ctx)
					if err != nil {
						return err
					}
					for _, id := range ids {
						items = append(items, id)
					}
				}
				if p.output == formatText {
					for _, it := range items {
						fmt.Fprintln(cmd.OutOrStdout(), resource.ValueText(it))
					}
					return nil
				}
				return render(cmd.OutOrStdout(), resource.NewList(items...), p.output)
			})
		},
	}
	cmd.Flags().BoolVar(&types, "types", false, "list session types instead of sessions")
	return cmd
}

func newSessionCommand(p *commandParams) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show or control a session",
	}
	cmd.PersistentFlags().DurationVar(&wait, "wait", defaultWait, "how long to wait for a state change")

	waitOptions := func(lc *labClient) resource.WaitOptions {
		return resource.WaitOptions{
			Timeout:  wait,
			Interval: lc.cfg.Site.PollInterval,
			Logger:   logging.FromZap(lc.log),
		}
	}
	sessionCommand := func(use, short string, fn func(ctx context.Context, lc *labClient, s *webapi.Session) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return p.withLab(cmd, func(ctx context.Context, lc *labClient) error {
					s, err := lc.conn.JoinSession(ctx, id)
					if err != nil {
						return err
					}
					return fn(ctx, lc, s)
				})
			},
		}
	}

	cmd.AddCommand(sessionCommand("show", "Print a session", func(ctx context.Context, lc *labClient, s *webapi.Session) error {
		return render(cmd.OutOrStdout(), s.Data(), p.output)
	}))
	cmd.AddCommand(sessionCommand("start", "Start a session and wait until it is active", func(ctx context.Context, lc *labClient, s *webapi.Session) error {
		if err := s.Start(ctx, waitOptions(lc)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %d is %s\n", s.ID(), s.State())
		return nil
	}))
	cmd.AddCommand(sessionCommand("stop", "Stop a session and wait until it has stopped", func(ctx context.Context, lc *labClient, s *webapi.Session) error {
		if err := s.Stop(ctx, waitOptions(lc)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %d is %s\n", s.ID(), s.State())
		return nil
	}))
	cmd.AddCommand(sessionCommand("run", "Run the session's test and wait for it to finish", func(ctx context.Context, lc *labClient, s *webapi.Session) error {
		run, err := s.RunTest(ctx, waitOptions(lc))
		var failed *webapi.TestFailedError
		if errors.As(err, &failed) {
			p.printer(cmd).Notifications(failed.Notifications)
		}
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), run, p.output)
	}))
	return cmd
}

func newStatsCommand(p *commandParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Read test statistics",
	}
	cmd.AddCommand(newStatsWatchCommand(p))
	cmd.AddCommand(&cobra.Command{
		Use:   "csv RESULT FILE",
		Short: "Save every stat of a test or result as zipped CSV files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return p.withLab(cmd, func(ctx context.Context, lc *labClient) error {
				return writeTo(cmd, args[1], func(w io.Writer) (int64, error) {
					return lc.conn.StatsCSVZip(ctx, id, w)
				})
			})
		},
	})
	return cmd
}

type watchParams struct {
	session     int64
	definitions []string
	aggregation string
	orderBy     string
	descending  bool
	limit       int
	count       int
	columns     columnFilter
}

func (w *watchParams) query() (*stats.Query, error) {
	if len(w.definitions) == 0 {
		return nil, errors.New("at least one --stat is required")
	}
	var ss []stats.Stat
	for _, d := range w.definitions {
		s, err := stats.NewStat(d, stats.Aggregation(w.aggregation))
		if err != nil {
			return nil, err
		}
		ss = append(ss, s)
	}
	var opts []stats.QueryOption
	if w.orderBy != "" {
		dir := stats.Ascending
		if w.descending {
			dir = stats.Descending
		}
		o, err := stats.OrderByDefinition(w.orderBy, dir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, stats.WithOrderBy(o))
	}
	if w.limit > 0 {
		opts = append(opts, stats.WithLimit(w.limit))
	}
	return stats.NewQuery(ss, opts...)
}

func newStatsWatchCommand(p *commandParams) *cobra.Command {
	w := &watchParams{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live stats of a running test until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := w.query()
			if err != nil {
				return err
			}
			printer := p.printer(cmd)
			return p.withLab(cmd, func(ctx context.Context, lc *labClient) error {
				s, err := lc.conn.JoinSession(ctx, w.session)
				if err != nil {
					return err
				}
				reader, err := s.RegisterStats(ctx, q,
					stats.WithInterval(lc.cfg.Stats.Interval),
					stats.WithReaderLogger(logging.LoggerWithPrefix(logging.FromZap(lc.log), "["+q.ID+"] ")))
				if err != nil {
					return err
				}
				printer.FilterDescription(w.columns)
				async := stats.NewAsyncReader(reader,
					func(_ *stats.AsyncReader, current, _ *stats.Snapshot) {
						printer.Snapshot(current, w.columns.Select(current.Columns()))
					},
					stats.WithPollLimit(w.count),
					stats.WithSnapshotTimeout(lc.cfg.Stats.Timeout))

				select {
				case <-async.Done():
				case <-ctx.Done():
				}
				closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				closeErr := async.Close(closeCtx)
				if err := async.Err(); err != nil {
					return err
				}
				return closeErr
			})
		},
	}
	fs := cmd.Flags()
	fs.Int64Var(&w.session, "session", 0, "session ID")
	fs.StringArrayVar(&w.definitions, "stat", nil, `stat to read, as "group:name" (repeatable)`)
	fs.StringVar(&w.aggregation, "aggregation", string(stats.AggregationNone), "aggregation applied to every stat")
	fs.StringVar(&w.orderBy, "order-by", "", `"group:name" definition to sort rows by`)
	fs.BoolVar(&w.descending, "desc", false, "sort rows in descending order")
	fs.IntVar(&w.limit, "limit", 0, "maximum number of rows per snapshot")
	fs.IntVar(&w.count, "count", 0, "stop after this many snapshots (0 means no limit)")
	fs.Var(&w.columns.MustMatch, "show", "regex pattern(s) of columns to show")
	fs.Var(&w.columns.MustNotMatch, "hide", "regex pattern(s) of columns to hide")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newDiagnosticsCommand(p *commandParams) *cobra.Command {
	var clientOnly bool
	cmd := &cobra.Command{
		Use:   "diagnostics SESSION FILE",
		Short: "Collect a session's diagnostics archive into FILE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return p.withLab(cmd, func(ctx context.Context, lc *labClient) error {
				return writeTo(cmd, args[1], func(w io.Writer) (int64, error) {
					return lc.conn.CollectSessionDiagnostics(ctx, id, clientOnly, w)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&clientOnly, "client-only", false, "collect only client-side diagnostics")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

// writeTo runs fn against the named file, or standard output for "-", and reports the size.
func writeTo(cmd *cobra.Command, path string, fn func(w io.Writer) (int64, error)) error {
	if path == "-" {
		_, err := fn(cmd.OutOrStdout())
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := fn(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", n, path)
	return nil
}
