/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/valpere/batchtran/internal/batch"
	"github.com/valpere/batchtran/internal/lang"
	"github.com/valpere/batchtran/internal/orchestrator"
	"github.com/valpere/batchtran/internal/reassembler"
	"github.com/valpere/batchtran/internal/store"
)

var (
	runInput      string
	runOutput     string
	runWorkDir    string
	runTargetLang string
	runModel      string
	runChunkSize  int
	runMaxActive  int
	runPollEvery  time.Duration
	runDBPath     string
	runNoJournal  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Translate a corpus end to end through the Batch API",
	Long: `Run the whole pipeline: pack the corpus into batch request files,
upload them, submit batch jobs under admission control, poll until every
job reaches a terminal state, download the results and reassemble them
into a single translated output with the original markup restored.

Quota failures (enqueued token limit) are retried automatically once the
active jobs have drained; other failures are terminal and journaled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runInput == runOutput {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := packCorpus(runInput, runWorkDir, runTargetLang, runModel, runChunkSize)
		if err != nil {
			return err
		}

		runID := uuid.New().String()

		var db *store.Store
		var recorder orchestrator.Recorder
		if !runNoJournal && runDBPath != "" {
			db, err = store.New(runDBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			recorder = db

			targetCode := runTargetLang
			if code, codeErr := lang.Code(runTargetLang); codeErr == nil {
				targetCode = code
			}
			if err := db.SaveRun(ctx, store.Run{
				ID:         runID,
				InputFile:  runInput,
				OutputFile: runOutput,
				SourceLang: result.SourceLang,
				TargetLang: targetCode,
				Model:      runModel,
				Excerpt:    result.Excerpt,
			}); err != nil {
				return fmt.Errorf("failed to journal run: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Run %s journaled to %s\n", runID, runDBPath)
		}

		orch := orchestrator.New(client, recorder, orchestrator.Config{
			RunID:        runID,
			OutputDir:    runWorkDir,
			MaxActive:    runMaxActive,
			PollInterval: runPollEvery,
		})

		summary, err := orch.Run(ctx, result.Files)
		if err != nil {
			setRunStatus(context.Background(), db, runID, "interrupted")
			return fmt.Errorf("batch processing aborted: %w", err)
		}

		if len(summary.Failed) > 0 {
			fmt.Fprintf(os.Stderr, "%d jobs failed terminally:\n", len(summary.Failed))
			for _, job := range summary.Failed {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", job.BatchID, job.Error)
			}
		}
		if summary.Retried > 0 {
			fmt.Fprintf(os.Stderr, "%d quota failures were retried\n", summary.Retried)
		}

		if len(summary.OutputFiles) == 0 {
			setRunStatus(ctx, db, runID, "failed")
			return fmt.Errorf("no batch job produced output")
		}

		if err := reassembler.MergeToFile(runWorkDir, runOutput, result.Dict); err != nil {
			setRunStatus(ctx, db, runID, "failed")
			return fmt.Errorf("failed to reassemble output: %w", err)
		}

		status := "completed"
		if len(summary.Failed) > 0 {
			status = "completed_with_failures"
		}
		setRunStatus(ctx, db, runID, status)

		fmt.Printf("Successfully translated %s to %s\n", runInput, runOutput)
		fmt.Printf("Jobs: %d completed, %d failed, %d retried\n",
			len(summary.Completed), len(summary.Failed), summary.Retried)
		return nil
	},
}

// setRunStatus journals the run's final status. A journal write failure is
// reported to the operator but never masks the pipeline's own result.
func setRunStatus(ctx context.Context, db *store.Store, runID, status string) {
	if db == nil {
		return
	}
	if err := db.UpdateRunStatus(ctx, runID, status); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update run status of %s: %v\n", runID, err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "Input file to translate (required)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output file for the translation (required)")
	runCmd.Flags().StringVar(&runWorkDir, "work-dir", "./batch", "Directory for batch request and result files")
	runCmd.Flags().StringVarP(&runTargetLang, "target", "t", "", "Target language code or name (required)")
	runCmd.Flags().StringVar(&runModel, "model", batch.DefaultModel, "Model to request")
	runCmd.Flags().IntVar(&runChunkSize, "chunk-tokens", 950, "Token budget per request, including system prompt and overhead")
	runCmd.Flags().IntVar(&runMaxActive, "max-active", 2, "Maximum concurrently active batch jobs")
	runCmd.Flags().DurationVar(&runPollEvery, "poll-interval", 5*time.Second, "Status poll interval")
	runCmd.Flags().StringVar(&runDBPath, "db", "./data/batchtran.db", "Database path for the run journal")
	runCmd.Flags().BoolVar(&runNoJournal, "no-journal", false, "Disable the run journal")

	runCmd.MarkFlagRequired("input")
	runCmd.MarkFlagRequired("output")
	runCmd.MarkFlagRequired("target")
}
