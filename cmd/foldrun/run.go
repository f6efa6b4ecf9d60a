package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fold-orchestrator/config"
	"fold-orchestrator/core/models"
	"fold-orchestrator/core/pipeline"
	"fold-orchestrator/core/repository"
	"fold-orchestrator/core/scheduler"
	"fold-orchestrator/core/spec"
	"fold-orchestrator/logger"
	"fold-orchestrator/providers"
	"fold-orchestrator/providers/aws"
	"fold-orchestrator/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runJobIndex      int
	runModelsToRelax string
	runNumCycle      int
	runPredictions   int
	runOutputPath    string
	runDataDir       string
	runMode          string
	runRandomSeed    int64
)

var runCmd = &cobra.Command{
	Use:   "run <batch.yaml>",
	Short: "Run or resume the jobs of a batch spec",
	Example: `  # Run every job of a batch
  foldrun run batch.yaml

  # Run the third job only, as an array task would
  foldrun run --job-index 3 batch.yaml

  # Relax every model
  foldrun run --models-to-relax all batch.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runJobIndex, "job-index", 0, "1-based index of the single job to run (0 runs all)")
	runCmd.Flags().StringVar(&runModelsToRelax, "models-to-relax", "", "relaxation policy: none, best or all")
	runCmd.Flags().IntVar(&runNumCycle, "num-cycle", 0, "recycling iterations per model")
	runCmd.Flags().IntVar(&runPredictions, "num-predictions-per-model", 0, "predictions per model configuration")
	runCmd.Flags().StringVar(&runOutputPath, "output-path", "", "root directory for job outputs")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "model parameter directory")
	runCmd.Flags().StringVar(&runMode, "mode", "", "monomer or multimer")
	runCmd.Flags().Int64Var(&runRandomSeed, "random-seed", 0, "job random seed")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	log := logger.L()

	batch, err := spec.LoadBatchSpec(args[0])
	if err != nil {
		return err
	}
	overrides := spec.Overrides{
		Mode:                   runMode,
		NumCycle:               runNumCycle,
		NumPredictionsPerModel: runPredictions,
		OutputPath:             runOutputPath,
		DataDir:                runDataDir,
		ModelsToRelax:          runModelsToRelax,
	}
	if cmd.Flags().Changed("random-seed") {
		overrides.RandomSeed = &runRandomSeed
	}
	if batch.OutputPath == "" && overrides.OutputPath == "" {
		overrides.OutputPath = cfg.OutputPath
	}
	batch.Apply(overrides)

	jobs, err := batch.BuildJobs()
	if err != nil {
		return err
	}
	if runJobIndex > 0 {
		job, err := spec.SelectJob(jobs, runJobIndex)
		if err != nil {
			return err
		}
		jobs = []*models.Job{job}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, cleanup, err := buildPipelineOptions(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if ledger, ok := opts.Recorder.(*repository.Ledger); ok {
		for _, job := range jobs {
			ledger.Register(job, currentState(job, log))
		}
	}

	sched := scheduler.NewScheduler(pipeline.New(opts), cfg.Concurrency, log)
	outcomes, err := sched.Run(ctx, jobs)
	for _, outcome := range outcomes {
		if outcome.Final == nil {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: complete (resumed %d, predicted %d, relaxed %d), best %s\n",
			outcome.JobName, outcome.Resumed, outcome.Predicted, outcome.Relaxed, outcome.Final.Order[0])
	}
	return err
}

// currentState reads a job's state from its directory for the ledger. An
// unreadable directory is registered as not started.
func currentState(job *models.Job, log *zap.Logger) models.JobState {
	state, err := storage.NewCheckpointManager(storage.NewArtifactStore(job.OutputDir)).State()
	if err != nil {
		log.Warn("cannot read job directory, registering job as not started",
			zap.String("job", job.Name), zap.String("dir", job.OutputDir), zap.Error(err))
		return models.JobStateNotStarted
	}
	return state
}

// buildPipelineOptions wires the services, ledger and mirror named by cfg
func buildPipelineOptions(ctx context.Context, cfg *config.Config, log *zap.Logger) (pipeline.Options, func(), error) {
	cleanup := func() {}

	predictor, err := providers.NewPredictor(cfg.Predictor)
	if err != nil {
		return pipeline.Options{}, cleanup, err
	}
	relaxer, err := providers.NewRelaxer(cfg.Relaxer)
	if err != nil {
		return pipeline.Options{}, cleanup, err
	}
	opts := pipeline.Options{
		Predictor: predictor,
		Relaxer:   relaxer,
		Logger:    log,
	}

	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Warn("run ledger unavailable", zap.Error(err))
		} else if err := db.EnsureSchema(); err != nil {
			log.Warn("run ledger unavailable", zap.Error(err))
			db.Close()
		} else {
			opts.Recorder = repository.NewLedger(db, log)
			cleanup = func() { db.Close() }
		}
	}

	if cfg.Mirror.Enabled() {
		client, err := aws.NewClient(ctx, cfg.Mirror.Region, cfg.Mirror.Bucket, cfg.Mirror.Prefix)
		if err != nil {
			log.Warn("artifact mirror unavailable", zap.Error(err))
		} else {
			opts.Mirror = client
		}
	}

	return opts, cleanup, nil
}
