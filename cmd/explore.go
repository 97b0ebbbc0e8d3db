package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
	"github.com/xkilldash9x/mrmurphy/internal/archive"
	"github.com/xkilldash9x/mrmurphy/internal/browser"
	"github.com/xkilldash9x/mrmurphy/internal/config"
	"github.com/xkilldash9x/mrmurphy/internal/engine"
	"github.com/xkilldash9x/mrmurphy/internal/equivalence"
	"github.com/xkilldash9x/mrmurphy/internal/events"
	"github.com/xkilldash9x/mrmurphy/internal/interpreter"
	"github.com/xkilldash9x/mrmurphy/internal/journal"
	"github.com/xkilldash9x/mrmurphy/internal/metrics"
	"github.com/xkilldash9x/mrmurphy/internal/observability"
	"github.com/xkilldash9x/mrmurphy/internal/scoring"
	"github.com/xkilldash9x/mrmurphy/internal/scraper"
	"github.com/xkilldash9x/mrmurphy/internal/statusserver"
	"github.com/xkilldash9x/mrmurphy/internal/store"
)

// device is everything a session needs from the machine under exploration.
type device interface {
	schemas.Controller
	schemas.Feedback
	schemas.WindowScraper
	Close()
}

// openDevice starts the device backend. Tests replace it.
var openDevice = func(ctx context.Context, cfg browser.Config, logger *zap.Logger) (device, error) {
	return browser.New(ctx, cfg, logger)
}

// flagBindings maps explore flags to configuration keys.
var flagBindings = map[string]string{
	"device":       "device.uri",
	"journal":      "journal.path",
	"policy":       "explore.policy",
	"timeout":      "explore.timeout",
	"frequency":    "explore.frequency",
	"max-depth":    "explore.max_depth",
	"render":       "explore.render_format",
	"edge-policy":  "explore.edge_policy",
	"seed":         "explore.seed",
	"scraper-host": "scraper.host",
	"listen":       "server.listen",
}

func newExploreCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Explores an application and records its screens in a journal",
		Long: `Explore repeatedly observes the device, places the observation in the
journal and performs the best scored action until every action has been
tried, the timeout expires or the process is interrupted. The device is
restored to its initial state when the session ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			return runExplore(cmd.Context(), cfg, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	flags := cmd.Flags()
	flags.String("device", "", "URL loaded in the browser device")
	flags.StringP("journal", "j", "journal", "directory the journal is written to")
	flags.StringP("policy", "p", engine.PolicyExplorer, "exploration policy: explorer, installer or link-follower")
	flags.Duration("timeout", 10*time.Minute, "overall session timeout")
	flags.Duration("frequency", 0, "delay between observations (0 uses the policy default)")
	flags.Int("max-depth", 0, "maximum distance from the initial screen (0 uses the policy default)")
	flags.String("render", "", "re-render the journal graph after every step: dot or mermaid")
	flags.String("edge-policy", string(journal.EdgeKeep), "how diverging transitions are recorded: keep or replace")
	flags.Int64("seed", 0, "random seed (0 seeds from the clock)")
	flags.String("scraper-host", "", "address of a remote scraping agent")
	flags.String("listen", "", "address of the status server, e.g. 127.0.0.1:9090")

	for flag, key := range flagBindings {
		// Lookup cannot fail for flags defined above.
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

// runExplore wires one exploration session from cfg and runs it.
func runExplore(ctx context.Context, cfg *config.Config, out io.Writer, logger *zap.Logger) (err error) {
	labels := scoring.DefaultLabels()
	if cfg.Scoring.LabelsFile != "" {
		if labels, err = scoring.LoadLabels(cfg.Scoring.LabelsFile); err != nil {
			return err
		}
	}
	policy, err := engine.PolicyByName(cfg.Explore.Policy, labels)
	if err != nil {
		return err
	}
	policy.Heuristic.Default = cfg.Scoring.DefaultScore

	judge := equivalence.New(cfg.EquivalenceTolerance(), logger)
	jr := journal.New(cfg.Journal.Path, judge, logger, journal.WithEdgePolicy(journal.EdgePolicy(cfg.Explore.EdgePolicy)))

	dev, err := openDevice(ctx, cfg.BrowserConfig(), logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	var windows schemas.WindowScraper = dev
	if cfg.Scraper.Host != "" {
		windows = scraper.New(cfg.ScraperConfig(), logger)
	}

	recorder := metrics.NewRecorder()
	publisher, err := openPublishers(ctx, cfg, recorder, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := publisher.Close(); cerr != nil {
			logger.Warn("Failed to close event publishers", zap.Error(cerr))
		}
	}()

	eng, err := engine.New(policy, cfg.EngineConfig(), engine.Dependencies{
		Journal:     jr,
		Interpreter: interpreter.New(dev, dev, windows, judge, logger),
		Controller:  dev,
		Publisher:   publisher,
	}, logger)
	if err != nil {
		return err
	}

	if cfg.Server.Listen != "" {
		srv, err := statusserver.Start(cfg.Server.Listen, statusserver.NewHandler(eng, recorder.Handler(), jr.Dir()), logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("Failed to stop status server", zap.Error(serr))
			}
		}()
	}

	result, runErr := eng.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("exploration failed: %w", runErr)
	}
	printResult(out, result, jr.Dir())

	if cfg.Archive.Bucket != "" {
		if err := archiveJournal(context.WithoutCancel(ctx), cfg, jr.Dir(), result.SessionID, out, logger); err != nil {
			return err
		}
	}
	return nil
}

// openPublishers fans events out to the metrics recorder and the optional
// Redis, NATS and Postgres sinks.
func openPublishers(ctx context.Context, cfg *config.Config, recorder *metrics.Recorder, logger *zap.Logger) (events.Publisher, error) {
	pubs := []events.Publisher{recorder}
	closeAll := func() { _ = events.NewMulti(pubs...).Close() }

	if cfg.Events.RedisAddr != "" {
		redisPub, err := events.NewRedisPublisher(ctx, cfg.Events.RedisAddr, events.WithStream(cfg.Events.Stream))
		if err != nil {
			closeAll()
			return nil, err
		}
		pubs = append(pubs, redisPub)
	}
	if cfg.Events.NATSURL != "" {
		natsPub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.NATSPrefix)
		if err != nil {
			closeAll()
			return nil, err
		}
		pubs = append(pubs, natsPub)
	}
	if cfg.Database.URL != "" {
		db, err := store.Connect(ctx, cfg.Database.URL, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		pubs = append(pubs, db)
		if err := db.Migrate(ctx); err != nil {
			closeAll()
			return nil, err
		}
	}
	return events.NewMulti(pubs...), nil
}

func archiveJournal(ctx context.Context, cfg *config.Config, dir, sessionID string, out io.Writer, logger *zap.Logger) error {
	a, err := archive.NewS3(ctx, cfg.ArchiveConfig(), logger)
	if err != nil {
		return err
	}
	key, err := a.Upload(ctx, dir, sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Archived:  s3://%s/%s\n", cfg.Archive.Bucket, key)
	return nil
}

func printResult(out io.Writer, r engine.Result, dir string) {
	fmt.Fprintf(out, "Session:   %s (%s)\n", r.SessionID, r.Policy)
	fmt.Fprintf(out, "Outcome:   %s after %s\n", r.Reason, r.Duration.Round(time.Second))
	fmt.Fprintf(out, "Explored:  %d nodes, %d edges, %d actions, %d resets\n", r.Nodes, r.Edges, r.Actions, r.Resets)
	fmt.Fprintf(out, "Journal:   %s\n", dir)
}
