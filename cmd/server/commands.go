package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Skufu/pneumoscan/internal/config"
	"github.com/Skufu/pneumoscan/internal/diagnosis"
	"github.com/Skufu/pneumoscan/internal/diagnosis/tflite"
	"github.com/Skufu/pneumoscan/internal/store"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			if args[0] == "down" {
				err = store.MigrateDown(cfg.DatabaseURL)
			} else {
				err = store.MigrateUp(cfg.DatabaseURL)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: done\n", args[0])
			return nil
		},
	}
}

type predictOptions struct {
	ModelPath string
	Output    string
	Threads   int
	JSON      bool
}

func newPredictCommand() *cobra.Command {
	opts := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Diagnose a chest X-ray image on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if opts.ModelPath == "" {
				opts.ModelPath = cfg.ModelPath
			}
			if opts.Output == "" {
				opts.Output = cfg.ModelOutput
			}
			if opts.Threads == 0 {
				opts.Threads = cfg.ModelThreads
			}
			return runPredict(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.ModelPath, "model", "", "path to the .tflite model (default MODEL_PATH)")
	cmd.Flags().StringVar(&opts.Output, "output-kind", "", "model output kind: logits|probabilities (default MODEL_OUTPUT)")
	cmd.Flags().IntVar(&opts.Threads, "threads", 0, "interpreter threads (default MODEL_THREADS)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the result as JSON")
	return cmd
}

func runPredict(ctx context.Context, opts *predictOptions, path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	kind, err := diagnosis.ParseOutputKind(opts.Output)
	if err != nil {
		return err
	}

	predictor, err := tflite.Load(opts.ModelPath, opts.Threads, zap.NewNop())
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer predictor.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	result, err := diagnosis.NewService(predictor, kind, nil).Diagnose(ctx, data, http.DetectContentType(data))
	if err != nil {
		return err
	}
	return printResult(out, path, result, opts.JSON)
}

func printResult(out io.Writer, path string, result diagnosis.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err := fmt.Fprintf(out, "%s\n  diagnosis:  %s\n  confidence: %.2f%%\n  normal:     %.4f\n  pneumonia:  %.4f\n",
		path, result.Label, result.Confidence, result.Probabilities.Normal, result.Probabilities.Pneumonia)
	return err
}
