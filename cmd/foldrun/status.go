package main

import (
	"fmt"
	"io"

	"fold-orchestrator/core/models"
	"fold-orchestrator/core/monitoring"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [output_path]",
	Short: "Show the state of every job directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var root string
		if len(args) == 1 {
			root = args[0]
		} else {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			root = cfg.OutputPath
		}
		jobs, err := monitoring.NewJobMonitor(root).ListJobs()
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), jobs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(w io.Writer, jobs []monitoring.JobStatus) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "no jobs")
		return
	}
	for _, job := range jobs {
		switch {
		case job.Error != "":
			fmt.Fprintf(w, "%s\terror: %s\n", job.Name, job.Error)
		case job.State == models.JobStateComplete:
			fmt.Fprintf(w, "%s\tcomplete\tbest %s (%s %.4f)\n", job.Name, job.Best, job.Metric, job.BestScore)
		case job.State == models.JobStateInProgress:
			fmt.Fprintf(w, "%s\tin_progress\t%d slots done\n", job.Name, job.Completed)
		default:
			fmt.Fprintf(w, "%s\t%s\n", job.Name, job.State)
		}
	}
}
