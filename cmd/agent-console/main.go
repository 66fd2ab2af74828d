package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/field-attendance/internal/client"
	"github.com/example/field-attendance/internal/config"
	"github.com/example/field-attendance/internal/logging"
	"github.com/example/field-attendance/internal/poller"
	"github.com/example/field-attendance/internal/window"
)

type options struct {
	mark     bool
	location string
	sector   string
	once     bool
	history  bool
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	flags := flag.NewFlagSet("agent-console", flag.ContinueOnError)
	flags.SetOutput(out)
	flags.BoolVar(&opts.mark, "mark", false, "mark today's attendance and exit")
	flags.StringVar(&opts.location, "location", "", "where the agent is marking from")
	flags.StringVar(&opts.sector, "sector", "", "sales sector worked today")
	flags.BoolVar(&opts.once, "once", false, "print the current status and exit")
	flags.BoolVar(&opts.history, "history", false, "print the last 30 days and exit")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	if opts.mark && strings.TrimSpace(opts.location) == "" {
		return options{}, errors.New("-location is required with -mark")
	}
	return opts, nil
}

func main() {
	logger := logging.New(os.Stderr, slog.LevelInfo, "service", "agent-console")
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env file", "error", err)
	}

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.LoadAgent()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, explain(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AgentConfig, opts options, out io.Writer, logger *slog.Logger) error {
	api := client.New(cfg.ServerURL, client.Session{
		AgentID:   cfg.AgentID,
		Email:     cfg.Email,
		Role:      "agent",
		GroupName: cfg.GroupName,
		Token:     cfg.Token,
	})

	if opts.history {
		history, err := api.History(ctx, "", "")
		if err != nil {
			return err
		}
		printHistory(out, history)
		return nil
	}

	p := poller.New(api,
		poller.WithInterval(cfg.PollInterval),
		poller.WithLocation(cfg.Location),
		poller.WithLogger(logger),
		poller.OnChange(func(s poller.Snapshot) {
			fmt.Fprintln(out, describe(s, cfg.Location))
		}),
	)

	if opts.once || opts.mark {
		p.Refresh(ctx)
		if !opts.mark {
			return nil
		}
		record, err := p.Mark(ctx, client.MarkInput{Location: opts.location, Sector: opts.sector})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "marked %s at %s as %s\n", record.CalendarDate, record.MarkedAt.In(cfg.Location).Format("15:04"), record.Classification)
		return nil
	}

	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.Stop()
	return nil
}

// describe renders a snapshot as one status line.
func describe(s poller.Snapshot, loc *time.Location) string {
	var line string
	switch s.State {
	case window.StateAlreadyMarked:
		line = "attendance recorded"
		if s.Record != nil {
			line = fmt.Sprintf("attendance recorded at %s (%s)", s.Record.MarkedAt.In(loc).Format("15:04"), s.Record.Classification)
		}
	case window.StatePendingOpen:
		line = fmt.Sprintf("window opens at %s", s.Window.Window.Start)
	case window.StateOpen:
		line = fmt.Sprintf("window open until %s, on time until %s", s.Window.Window.End, s.Window.LateThreshold)
	case window.StateOpenWarning:
		line = fmt.Sprintf("window closing soon at %s", s.Window.Window.End)
	case window.StateClosedExpired:
		line = fmt.Sprintf("window closed at %s", s.Window.Window.End)
	default:
		line = "status unavailable, marking stays enabled"
	}
	if s.Marking {
		line += " [submitting]"
	}
	if s.FetchError != nil {
		line += " (last refresh failed: " + s.FetchError.Error() + ")"
	}
	return line
}

func printHistory(out io.Writer, h client.History) {
	fmt.Fprintf(out, "%s to %s: %d present, %d late, %d absent of %d days (%.0f%%)\n",
		h.From, h.To, h.PresentCount, h.LateCount, h.AbsentCount, h.ExpectedDays, h.AttendanceRate*100)
	for _, entry := range h.Entries {
		fmt.Fprintf(out, "  %s  %s\n", entry.CalendarDate, entry.Classification)
	}
}

// explain turns client errors into the messages agents see.
func explain(err error) string {
	var invalid *client.ValidationError
	switch {
	case errors.Is(err, client.ErrAlreadyMarked):
		return "attendance was already marked today"
	case errors.Is(err, client.ErrWindowClosed):
		return "the attendance window has closed for today"
	case errors.Is(err, client.ErrWindowNotOpen):
		return "the attendance window is not open yet"
	case errors.Is(err, client.ErrUnauthorized):
		return "the session token was rejected; sign in again"
	case errors.Is(err, client.ErrRateLimited):
		return "too many attempts; wait a moment and retry"
	case errors.As(err, &invalid):
		return "please check the form: " + invalid.Error()
	case client.IsNetworkError(err):
		return "the server could not be reached; try again shortly"
	}
	return err.Error()
}
