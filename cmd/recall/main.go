// Command recall is a spaced-repetition flashcard server and CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/conorfennell/recall/internal/config"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/queue"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/study"
	"github.com/conorfennell/recall/internal/sync"
	"github.com/conorfennell/recall/internal/web"
)

const usage = `Usage: recall <command> [flags]

Commands:
  serve                      Run the HTTP API
  sync                       Import cards from every source once
  add-source <deck> <path>   Register a directory or git URL as a source of a deck
  deck create <name>         Create a deck
  deck list                  List decks
  due <deck>                 Show the cards of the next study session

Run "recall <command> --help" for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("recall failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
}

// app is what every command needs once the configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *storage.DB
}

func setup(name string, args []string, extra func(*pflag.FlagSet)) (*app, *pflag.FlagSet, error) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	config.RegisterFlags(flags)
	if extra != nil {
		extra(flags)
	}
	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}

	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := config.Load(flags, bootstrap)
	if err != nil {
		return nil, nil, err
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("Database opened", "driver", cfg.DB.Driver)
	return &app{cfg: cfg, logger: logger, db: db}, flags, nil
}

func (a *app) studyService() *study.Service {
	return study.NewService(a.db, a.logger, study.Options{
		Defaults:     a.cfg.SRS.Config,
		Queue:        a.cfg.Queue.Options(queue.ModeSRS),
		DayStartHour: a.cfg.SRS.DayStartHour,
	})
}

func (a *app) syncer() *sync.Syncer {
	return sync.New(a.db, a.cfg.Sync.ReposDir, a.logger)
}

// resolveDeck accepts a deck ID or name.
func (a *app) resolveDeck(ctx context.Context, ref string) (domain.Deck, error) {
	deck, err := a.db.GetDeck(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return a.db.FindDeckByName(ctx, ref)
	}
	return deck, err
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "serve":
		return runServe(ctx, args)
	case "sync":
		return runSync(ctx, args, out)
	case "add-source":
		return runAddSource(ctx, args, out)
	case "deck":
		return runDeck(ctx, args, out)
	case "due":
		return runDue(ctx, args, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}

func runServe(ctx context.Context, args []string) error {
	a, _, err := setup("serve", args, nil)
	if err != nil {
		return err
	}
	defer a.db.Close()

	syncer := a.syncer()
	scheduler, err := syncer.Schedule(ctx, a.cfg.Sync.Interval)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           web.NewServer(a.db, a.studyService(), syncer, a.logger, a.cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("Starting server", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runSync(ctx context.Context, args []string, out io.Writer) error {
	a, _, err := setup("sync", args, nil)
	if err != nil {
		return err
	}
	defer a.db.Close()

	report, err := a.syncer().RunSync(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Synced %d sources: %d added, %d removed, %d errors.\n",
		report.Sources, report.Added, report.Removed, len(report.Errors))
	for _, e := range report.Errors {
		fmt.Fprintf(out, "- %s\n", e)
	}
	return nil
}

func runAddSource(ctx context.Context, args []string, out io.Writer) error {
	a, flags, err := setup("add-source", args, nil)
	if err != nil {
		return err
	}
	defer a.db.Close()

	if flags.NArg() != 2 {
		return fmt.Errorf("add-source needs a deck and a path")
	}
	deck, err := a.resolveDeck(ctx, flags.Arg(0))
	if err != nil {
		return err
	}
	src, err := a.syncer().AddSource(ctx, deck.ID, flags.Arg(1))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Added %s source %d for deck %s: %s\n", src.Type, src.ID, deck.Name, src.Path)
	return nil
}

func runDeck(ctx context.Context, args []string, out io.Writer) error {
	a, flags, err := setup("deck", args, nil)
	if err != nil {
		return err
	}
	defer a.db.Close()

	switch flags.Arg(0) {
	case "create":
		name := strings.TrimSpace(strings.Join(flags.Args()[1:], " "))
		if name == "" {
			return fmt.Errorf("deck create needs a name")
		}
		deck := domain.Deck{Name: name}
		if err := a.db.CreateDeck(ctx, &deck); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created deck %s (%s)\n", deck.Name, deck.ID)
		return nil
	case "list", "":
		decks, err := a.db.ListDecks(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tID\tCREATED")
		for _, d := range decks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.ID, humanize.Time(d.CreatedAt))
		}
		return w.Flush()
	}
	return fmt.Errorf("unknown deck command %q", flags.Arg(0))
}

func runDue(ctx context.Context, args []string, out io.Writer) error {
	var mode, filter *string
	a, flags, err := setup("due", args, func(f *pflag.FlagSet) {
		mode = f.String("mode", string(queue.ModeSRS), "Queue mode (srs, sequential, random, ordered, by_date, cramming)")
		filter = f.String("filter", string(queue.CramAll), "Cramming filter (all, weak, due_soon)")
	})
	if err != nil {
		return err
	}
	defer a.db.Close()

	if flags.NArg() != 1 {
		return fmt.Errorf("due needs a deck")
	}
	deck, err := a.resolveDeck(ctx, flags.Arg(0))
	if err != nil {
		return err
	}
	m, err := queue.ParseMode(*mode)
	if err != nil {
		return err
	}

	opts := a.cfg.Queue.Options(m)
	opts.Filter = queue.CramFilter(*filter)

	sess, err := a.studyService().Start(ctx, deck.ID, opts)
	if err != nil {
		return err
	}
	cards := sess.Upcoming()
	fmt.Fprintf(out, "%d cards in the next %s session of %s\n", len(cards), m, deck.Name)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tSTATUS\tDUE\tQUESTION")
	for _, c := range cards {
		due := "now"
		if c.DueAt != nil {
			due = humanize.Time(*c.DueAt)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.Position, c.Status, due, firstLine(c.Question, 60))
	}
	return w.Flush()
}

func firstLine(s string, limit int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > limit {
		s = string(r[:limit-1]) + "…"
	}
	return s
}
