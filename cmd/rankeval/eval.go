package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rankeval/internal/trec"
	evaluc "github.com/kailas-cloud/rankeval/internal/usecase/evaluation"
)

func newEvalCommand() *cobra.Command {
	var (
		qrelsPath string
		runPath   string
		kValues   []int
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a TREC run file against qrels and print metrics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if qrelsPath == "" {
				return fmt.Errorf("--qrels is required")
			}
			if runPath == "" {
				return fmt.Errorf("--run is required")
			}

			qrelsFile, err := os.Open(qrelsPath)
			if err != nil {
				return fmt.Errorf("open qrels: %w", err)
			}
			defer qrelsFile.Close()

			qrels, err := trec.ParseQrels(qrelsFile)
			if err != nil {
				return fmt.Errorf("parse qrels: %w", err)
			}

			runFile, err := os.Open(runPath)
			if err != nil {
				return fmt.Errorf("open run: %w", err)
			}
			defer runFile.Close()

			run, err := trec.ParseRun(runFile)
			if err != nil {
				return fmt.Errorf("parse run: %w", err)
			}

			// No embedder, no report store: pure metric computation.
			svc := evaluc.New(nil, nil, evaluc.Options{KValues: kValues}, zap.NewNop())

			report, err := svc.ComputeMetrics(cmd.Context(), qrels, run, kValues)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&qrelsPath, "qrels", "", "Path to TREC qrels file")
	cmd.Flags().StringVar(&runPath, "run", "", "Path to TREC run file")
	cmd.Flags().IntSliceVar(&kValues, "k", nil, "Cutoff depths (default 1,3,5,10,100)")

	return cmd
}
