package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cyp0633/librecur/server"
	"github.com/cyp0633/librecur/server/auth"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/cyp0633/librecur/server/storage/memory"
)

const (
	accountName = "example@localhost"
	dateLayout  = "2006-01-02"
)

type flagConfig struct {
	configPath string
	icsPath    string
	begin      string
	end        string
	search     string
	exportPath string
	verbose    bool
}

func main() {
	flags := parseFlags()

	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags, logger); err != nil {
		logger.Error("librecur example failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var f flagConfig
	flag.StringVar(&f.configPath, "config", "", "path to YAML config (defaults are used when empty)")
	flag.StringVar(&f.icsPath, "ics", "", "iCalendar file to import (required)")
	flag.StringVar(&f.begin, "begin", time.Now().Format(dateLayout), "first day to list, YYYY-MM-DD")
	flag.StringVar(&f.end, "end", "", "day after the last day to list, YYYY-MM-DD (default begin + 30 days)")
	flag.StringVar(&f.search, "search", "", "only list instances matching these words")
	flag.StringVar(&f.exportPath, "export", "", "write the listed instances as iCalendar to this file")
	flag.BoolVar(&f.verbose, "v", false, "debug logging")
	flag.Parse()
	return f
}

func run(ctx context.Context, flags flagConfig, logger *slog.Logger) error {
	if flags.icsPath == "" {
		flag.Usage()
		return fmt.Errorf("-ics is required")
	}

	cfg := server.DefaultConfig()
	if flags.configPath != "" {
		var err error
		if cfg, err = server.LoadConfig(flags.configPath); err != nil {
			return err
		}
	}
	p, err := server.NewFromConfig(memory.New(), cfg, server.WithLogger(logger))
	if err != nil {
		return err
	}
	defer p.Close()

	local, err := time.LoadLocation(cfg.LocalTimezone)
	if err != nil {
		return err
	}
	begin, err := time.ParseInLocation(dateLayout, flags.begin, local)
	if err != nil {
		return fmt.Errorf("bad -begin: %w", err)
	}
	end := begin.AddDate(0, 0, 30)
	if flags.end != "" {
		if end, err = time.ParseInLocation(dateLayout, flags.end, local); err != nil {
			return fmt.Errorf("bad -end: %w", err)
		}
	}

	adapter, account, err := adapterContext(ctx, p, cfg)
	if err != nil {
		return err
	}
	cal := &storage.Calendar{
		AccountName: account,
		AccountType: "LOCAL",
		Name:        "imported",
		TimeZone:    cfg.LocalTimezone,
		Visible:     true,
		SyncEvents:  true,
	}
	if err := p.CreateCalendar(ctx, cal); err != nil {
		return err
	}
	if err := importFile(adapter, p, cal.ID, flags.icsPath, logger); err != nil {
		return err
	}

	q := server.InstanceQuery{Begin: begin, End: end, CalendarIDs: []int64{cal.ID}}
	var rows []server.InstanceRow
	if flags.search != "" {
		rows, err = p.Search(ctx, q, flags.search)
	} else {
		rows, err = p.Instances(ctx, q)
	}
	if err != nil {
		return err
	}
	printInstances(rows, local)

	if flags.exportPath != "" {
		data, err := p.ExportInstances(ctx, q)
		if err != nil {
			return err
		}
		return os.WriteFile(flags.exportPath, []byte(data), 0o644)
	}
	return nil
}

// adapterContext logs in as the first configured adapter, or acts as an
// anonymous one when none is configured.
func adapterContext(ctx context.Context, p *server.Provider, cfg *server.Config) (context.Context, string, error) {
	if len(cfg.Adapters) == 0 {
		return auth.WithPrincipal(ctx, &auth.Principal{ID: "ics-import", Account: accountName, SyncAdapter: true}), accountName, nil
	}
	a := cfg.Adapters[0]
	adapter, err := p.Login(ctx, auth.Credentials{Username: a.Username, Password: a.Password})
	if err != nil {
		return nil, "", err
	}
	return adapter, auth.GetPrincipalFromContext(adapter).Account, nil
}

// importFile writes every VEVENT of path as a sync adapter, so that
// exceptions may arrive before their series.
func importFile(ctx context.Context, p *server.Provider, calendarID int64, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	parsed, err := storage.ICSToEvents(f, calendarID)
	if err != nil {
		return err
	}

	for _, pe := range parsed {
		id, err := p.InsertEvent(ctx, pe.Event)
		if err != nil {
			logger.Warn("skipping event", "uid", pe.Event.UID, "error", err)
			continue
		}
		for _, a := range pe.Attendees {
			a.EventID = id
			if err := p.AddAttendee(ctx, a); err != nil {
				return err
			}
		}
	}
	logger.Info("calendar imported", "path", path, "events", len(parsed))
	return nil
}

func printInstances(rows []server.InstanceRow, local *time.Location) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "BEGIN\tEND\tEVENT\tTITLE")
	for _, r := range rows {
		layout := "2006-01-02 15:04"
		begin, end := r.Begin.In(local), r.End.In(local)
		if r.Event.AllDay {
			layout = dateLayout
			begin, end = r.Begin.UTC(), r.End.UTC()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", begin.Format(layout), end.Format(layout), r.EventID, r.Event.Title)
	}
}
