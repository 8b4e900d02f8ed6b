// falldetect runs the threshold fall detector offline: on a single patient recording,
// on a labeled SisFall corpus, or as an exhaustive parameter search.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"falldetect/internal/auth"
	"falldetect/internal/corpus/infrastructure/patientcsv"
	sisfall "falldetect/internal/corpus/infrastructure/sisfall"
	detection "falldetect/internal/detection/domain"
	"falldetect/internal/evaluation/application"
	evaluation "falldetect/internal/evaluation/domain"
	"falldetect/internal/evaluation/infrastructure/cache"
	"falldetect/internal/evaluation/infrastructure/memory"
	evalrepo "falldetect/internal/evaluation/infrastructure/postgres"
	"falldetect/internal/evaluation/interfaces/export"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var version = "dev"

type detectorFlags struct {
	impact     float64
	motionless float64
	angle      float64
	postImpact float64
	motionMS   float64
}

func (f *detectorFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.impact, "impact", 0, "impact threshold in g")
	cmd.Flags().Float64Var(&f.motionless, "motionless", 0, "motionless tolerance in g")
	cmd.Flags().Float64Var(&f.angle, "angle", 0, "posture change threshold in degrees")
	cmd.Flags().Float64Var(&f.postImpact, "post-impact-ms", 0, "wait after impact in ms")
	cmd.Flags().Float64Var(&f.motionMS, "motionless-ms", 0, "required motionless duration in ms")
}

func (f detectorFlags) apply(cfg detection.DetectorConfig) detection.DetectorConfig {
	if f.impact > 0 {
		cfg.ImpactThresh = f.impact
	}
	if f.motionless > 0 {
		cfg.MotionlessThresh = f.motionless
	}
	if f.angle > 0 {
		cfg.AngleThreshDeg = f.angle
	}
	if f.postImpact > 0 {
		cfg.PostImpactMS = f.postImpact
	}
	if f.motionMS > 0 {
		cfg.MotionlessMS = f.motionMS
	}
	return cfg
}

func main() {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:           "falldetect",
		Short:         "Threshold fall detection, evaluation and parameter search",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FALLDETECT_CONFIG"), "yaml config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	env := func() (application.Config, *log.Logger, error) {
		logger := log.New(io.Discard, "", 0)
		if verbose {
			logger = log.New(os.Stderr, "", log.LstdFlags)
		}
		var data []byte
		if configPath != "" {
			raw, err := os.ReadFile(configPath)
			if err != nil {
				return application.Config{}, nil, err
			}
			data = raw
		}
		cfg, err := application.ParseConfig(data)
		return cfg, logger, err
	}

	root.AddCommand(
		newDetectCmd(env),
		newEvaluateCmd(env),
		newSearchCmd(env),
		newTokenCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "falldetect:", err)
		os.Exit(1)
	}
}

type envFunc func() (application.Config, *log.Logger, error)

func newDetectCmd(env envFunc) *cobra.Command {
	var (
		file  string
		freq  float64
		flags detectorFlags
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect falls in a patient recording (semicolon separated x;y;z in g)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := env()
			if err != nil {
				return err
			}
			series, err := patientcsv.ReadFile(file, freq)
			if err != nil {
				return err
			}
			detCfg := flags.apply(cfg.Detector)
			detCfg.SamplingFreq = series.SamplingFreq()
			detector, err := detection.NewDetector(detCfg)
			if err != nil {
				return err
			}
			events, err := detector.DetectContext(cmd.Context(), series, detection.Magnitude(series))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintf(out, "no fall detected in %d samples\n", series.Len())
				return nil
			}
			for i, ev := range events {
				end := "truncated"
				if ev.MotionlessEndIdx != nil {
					end = fmt.Sprintf("%d (%.2fs)", *ev.MotionlessEndIdx, float64(*ev.MotionlessEndIdx)/series.SamplingFreq())
				}
				fmt.Fprintf(out, "fall %d: impact %d-%d (%.2fs) wait_end %d motionless_end %s\n",
					i+1, ev.ImpactStartIdx, ev.ImpactEndIdx, float64(ev.ImpactStartIdx)/series.SamplingFreq(), ev.WaitEndIdx, end)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "patient csv file")
	cmd.Flags().Float64Var(&freq, "freq", patientcsv.DefaultSamplingFreq, "sampling frequency in Hz")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newEvaluateCmd(env envFunc) *cobra.Command {
	var (
		root    string
		workers int
		flags   detectorFlags
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one detector config on a SisFall corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			loader, err := newLoader(cfg, root, logger)
			if err != nil {
				return err
			}
			corpus, err := loader.Load(cmd.Context())
			if err != nil {
				return err
			}
			evaluator := evaluation.NewEvaluator(
				evaluation.WithWorkers(firstPositive(workers, cfg.Workers.Recordings)),
				evaluation.WithRecordingTimeout(cfg.RecordingTimeout),
				evaluation.WithLogger(logger),
			)
			detCfg := flags.apply(cfg.Detector)
			matrix, err := evaluator.Evaluate(cmd.Context(), corpus, detCfg)
			incomplete := errors.Is(err, evaluation.ErrRecordingTimeout)
			if err != nil && !incomplete {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), application.EvaluationResult{
				Config:     detCfg,
				CorpusRoot: loader.Root(),
				CorpusSize: len(corpus),
				Matrix:     matrix,
				Metrics:    matrix.Metrics(),
				Incomplete: incomplete,
			})
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "SisFall dataset root")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent recordings")
	flags.register(cmd)
	return cmd
}

func newSearchCmd(env envFunc) *cobra.Command {
	var (
		root        string
		workers     int
		cellWorkers int
		xlsxPath    string
		pdfPath     string
		dbURL       string
		redisURL    string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Grid search impact, motionless and angle thresholds on a SisFall corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			loader, err := newLoader(cfg, root, logger)
			if err != nil {
				return err
			}

			var repo evaluation.RunRepository = memory.NewRunRepository()
			if dbURL != "" {
				db, err := sql.Open("pgx", dbURL)
				if err != nil {
					return err
				}
				defer db.Close()
				repo = evalrepo.NewRunRepository(db)
			}

			opts := []application.ServiceOption{
				application.WithServiceLogger(logger),
				application.WithDetectorDefaults(cfg.Detector),
				application.WithGrid(cfg.Grid),
				application.WithSearchOptions(
					evaluation.WithSearchWorkers(firstPositive(cellWorkers, cfg.Workers.Cells)),
					evaluation.WithCellTimeout(cfg.CellTimeout),
					evaluation.WithSearchLogger(logger),
				),
			}
			if redisURL != "" {
				redisCache, err := cache.NewRedisCacheFromURL(cmd.Context(), redisURL, cfg.Cache.TTL)
				if err != nil {
					return err
				}
				defer redisCache.Close()
				opts = append(opts, application.WithResultCache(redisCache))
			}

			evaluator := evaluation.NewEvaluator(
				evaluation.WithWorkers(firstPositive(workers, cfg.Workers.Recordings)),
				evaluation.WithRecordingTimeout(cfg.RecordingTimeout),
				evaluation.WithLogger(logger),
			)
			service, err := application.NewSearchService(repo, loader, evaluator, opts...)
			if err != nil {
				return err
			}
			started := time.Now()
			run, err := service.Run(cmd.Context(), application.SearchRequest{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d recordings, %d cells (%d invalid) in %s\n",
				run.ID, run.CorpusSize, run.Result.Cells, run.Result.InvalidCells, time.Since(started).Round(time.Millisecond))
			for _, objective := range evaluation.Objectives {
				printBest(out, objective, run.Result.Best(objective))
			}
			if xlsxPath != "" {
				if err := writeReport(xlsxPath, run, export.BuildSearchXLSX); err != nil {
					return err
				}
			}
			if pdfPath != "" {
				if err := writeReport(pdfPath, run, export.BuildSearchPDF); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "SisFall dataset root")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent recordings per cell")
	cmd.Flags().IntVar(&cellWorkers, "cell-workers", 0, "concurrent grid cells")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write the xlsx report to this path")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "write the pdf report to this path")
	cmd.Flags().StringVar(&dbURL, "database-url", os.Getenv("DATABASE_URL"), "persist the run to Postgres")
	cmd.Flags().StringVar(&redisURL, "redis-url", os.Getenv("FALLDETECT_REDIS_URL"), "cache confusion matrices in Redis")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token signed with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.IssueJWT([]byte(os.Getenv("AUTH_JWT_SECRET")), subject, auth.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newLoader(cfg application.Config, root string, logger *log.Logger) (*sisfall.Loader, error) {
	if root == "" {
		root = cfg.Corpus.Root
	}
	return sisfall.NewLoader(root, sisfall.Options{
		SamplingFreq: cfg.Corpus.SamplingFreq,
		Range:        cfg.Corpus.Range,
		Resolution:   cfg.Corpus.Resolution,
	}, logger)
}

func printBest(w io.Writer, objective evaluation.Objective, point *evaluation.ParameterPoint) {
	if point == nil {
		fmt.Fprintf(w, "best %-11s undefined\n", objective)
		return
	}
	m := point.Matrix
	fmt.Fprintf(w, "best %-11s %.4f impact=%.2f motionless=%.2f angle=%.0f tp=%d tn=%d fp=%d fn=%d skipped=%d\n",
		objective, objective.Metric(m), point.ImpactThresh, point.MotionlessThresh, point.AngleThreshDeg,
		m.TP, m.TN, m.FP, m.FN, m.Skipped)
}

func writeReport(path string, run *evaluation.SearchRun, build func(*evaluation.SearchRun) ([]byte, error)) error {
	data, err := build(run)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
