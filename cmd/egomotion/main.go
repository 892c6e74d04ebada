// Command egomotion estimates camera self-motion from a directory of
// frames: it detects features, matches them across consecutive frames,
// fits a homography chain, optionally refines it jointly, and builds
// multi-frame tracks. Results can be exported as CSV, charts, and an
// analysis-run record in SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"

	"github.com/banshee-data/egomotion.report/internal/config"
	"github.com/banshee-data/egomotion.report/internal/db"
	"github.com/banshee-data/egomotion.report/internal/fsutil"
	"github.com/banshee-data/egomotion.report/internal/monitoring"
	"github.com/banshee-data/egomotion.report/internal/motion"
	"github.com/banshee-data/egomotion.report/internal/motion/monitor"
	"github.com/banshee-data/egomotion.report/internal/motion/storage/sqlite"
	"github.com/banshee-data/egomotion.report/internal/version"
)

func main() {
	var (
		framesDir   = flag.String("frames", "", "directory of frame images (png/jpeg), lexicographic order")
		maskPath    = flag.String("mask", "", "optional exclusion mask image (nonzero pixels excluded)")
		configPath  = flag.String("config", "", "optional tuning config JSON (partial configs allowed)")
		stepName    = flag.String("step", "all", "pipeline step to run: find-features, match-features, find-homographies, bundle-adjustment, build-tracks, all")
		dbPath      = flag.String("db", "", "optional SQLite database for analysis-run records")
		outDir      = flag.String("out", "", "optional output directory for CSV and chart exports")
		listRuns    = flag.Bool("list-runs", false, "list recent analysis runs from -db and exit")
		verbose     = flag.Bool("verbose", false, "enable diagnostic logging")
		trace       = flag.Bool("trace", false, "enable per-frame trace logging (implies -verbose)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("egomotion %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	level := slog.LevelInfo
	if *verbose || *trace {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	slog.SetDefault(logger)
	monitoring.SetLogger(func(format string, v ...interface{}) {
		slog.Info(fmt.Sprintf(format, v...))
	})

	writers := motion.LogWriters{Ops: os.Stderr}
	if *verbose || *trace {
		writers.Diag = os.Stderr
	}
	if *trace {
		writers.Trace = os.Stderr
	}
	motion.SetLogWriters(writers)

	if err := run(*framesDir, *maskPath, *configPath, *stepName, *dbPath, *outDir, *listRuns); err != nil {
		slog.Error("egomotion failed", "err", err)
		os.Exit(1)
	}
}

func run(framesDir, maskPath, configPath, stepName, dbPath, outDir string, listRuns bool) error {
	var database *db.DB
	if dbPath != "" {
		var err error
		database, err = db.NewDB(dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.MigrateUp(); err != nil {
			return err
		}
	}

	if listRuns {
		if database == nil {
			return fmt.Errorf("-list-runs requires -db")
		}
		return printRuns(database)
	}

	if framesDir == "" {
		return fmt.Errorf("-frames is required")
	}
	step, err := motion.ParseStep(stepName)
	if err != nil {
		return err
	}

	params := motion.DefaultParams()
	if configPath != "" {
		tuning, err := config.LoadTuningConfig(configPath)
		if err != nil {
			return err
		}
		params = motion.ParamsFromTuning(tuning)
	}

	source, err := motion.NewDirectorySource(framesDir, motion.DefaultFrameIntervalNanos)
	if err != nil {
		return err
	}
	slog.Info("loaded working zone", "dir", framesDir, "frames", source.FrameCount())

	var mask *motion.Mask
	if maskPath != "" {
		if mask, err = motion.LoadMask(maskPath); err != nil {
			return err
		}
	}

	var observer motion.RunObserver
	var manager *sqlite.RunManager
	if database != nil {
		manager = sqlite.NewRunManager(database.DB, framesDir)
		observer = manager
	}

	pipeline := motion.NewPipeline(motion.PipelineConfig{
		Source:   source,
		Params:   params,
		Mask:     mask,
		Observer: observer,
	})
	if manager != nil {
		manager.SetTrackSource(pipeline)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := pipeline.Run(ctx, step)
	if err != nil {
		return err
	}
	if err := handle.Wait(); err != nil {
		return err
	}
	if handle.State() == motion.StateCancelled {
		slog.Warn("run cancelled; exporting completed stages only")
	}

	stats := pipeline.Stats()
	slog.Info("run finished",
		"state", string(handle.State()),
		"frames", stats.Frames,
		"features", stats.Features,
		"inliers", stats.Inliers,
		"transforms", stats.Transforms,
		"holes", stats.Holes,
		"tracks", stats.Tracks,
	)

	if outDir != "" {
		if err := exportResults(fsutil.OSFileSystem{}, outDir, pipeline); err != nil {
			return err
		}
	}
	return nil
}

// exportResults writes whatever the completed stages produced. Stages the
// run never reached yield empty tables and are skipped for charts.
func exportResults(fs fsutil.FileSystem, outDir string, pipeline *motion.Pipeline) error {
	if err := fs.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	if chain := pipeline.TransformChain(); len(chain) > 0 {
		path := filepath.Join(outDir, "chain.csv")
		if err := writeFile(fs, path, pipeline.WriteChainCSV); err != nil {
			return err
		}
		if err := writeFile(fs, filepath.Join(outDir, "drift.png"), func(w io.Writer) error {
			return monitor.WriteDriftPlot(w, pipeline)
		}); err != nil {
			return err
		}
		slog.Info("exported transform chain", "path", path)
	}

	if tracks := pipeline.GetTracks(); len(tracks) > 0 {
		path := filepath.Join(outDir, "tracks.csv")
		if err := writeFile(fs, path, pipeline.WriteTracksCSV); err != nil {
			return err
		}
		if err := writeFile(fs, filepath.Join(outDir, "tracks.html"), func(w io.Writer) error {
			return monitor.WriteTrackPlot(w, pipeline)
		}); err != nil {
			return err
		}
		slog.Info("exported tracks", "path", path, "count", len(tracks))
	}
	return nil
}

func writeFile(fs fsutil.FileSystem, path string, write func(w io.Writer) error) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printRuns(database *db.DB) error {
	store := sqlite.NewAnalysisRunStore(database.DB)
	runs, err := store.ListRuns(20)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no analysis runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-9s  frames=%-4d  %s  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Status, r.FrameCount, r.RunID, r.SourcePath)
	}
	return nil
}
