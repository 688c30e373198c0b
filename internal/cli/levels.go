package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"phonics-master/internal/app"
	"phonics-master/internal/config"
	"phonics-master/internal/domain"
	"phonics-master/internal/infra/ai"
)

// NewLevelsCmd groups the level editing commands.
func NewLevelsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Export, replace or extend the stored level list",
	}
	cmd.AddCommand(newLevelsExportCmd(opts), newLevelsImportCmd(opts), newLevelsGenerateCmd(opts))
	return cmd
}

func newLevelsExportCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current levels as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLevelService(cmd.Context(), opts, func(ctx context.Context, svc *app.LevelService) error {
				levels, err := svc.Levels(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return exportLevels(w, levels)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "file to write instead of stdout")
	return cmd
}

func newLevelsImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the stored levels with the JSON array in FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			levels, err := importLevels(f)
			if err != nil {
				return err
			}
			return withLevelService(cmd.Context(), opts, func(ctx context.Context, svc *app.LevelService) error {
				if err := svc.Save(ctx, levels); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %d levels\n", len(levels))
				return nil
			})
		},
	}
}

func newLevelsGenerateCmd(opts *rootOptions) *cobra.Command {
	var count int
	var apiKey string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draft new levels with an AI model and append them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			return withLevelService(cmd.Context(), opts, func(ctx context.Context, svc *app.LevelService) error {
				cfg, log, err := opts.load()
				if err != nil {
					return err
				}
				gen := newGenerator(cfg, apiKey, log)
				added, err := generateLevels(ctx, svc, gen, count)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %d of %d levels\n", added, count)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of levels to draft")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "model API key (env: PHONICS_API_KEY)")
	return cmd
}

func newGenerator(cfg config.Config, apiKey string, log *zap.Logger) *ai.Generator {
	return ai.NewGenerator(apiKey, cfg.AI.BaseURL, cfg.AI.Model, log)
}

// generateLevels appends up to count drafted levels after the current ones.
func generateLevels(ctx context.Context, svc *app.LevelService, gen *ai.Generator, count int) (int, error) {
	levels, err := svc.Levels(ctx)
	if err != nil {
		return 0, err
	}
	next := 1
	for _, q := range levels {
		next = max(next, q.ID+1)
	}
	drafted, err := gen.GenerateMany(ctx, count, next)
	if err != nil {
		return 0, err
	}
	if len(drafted) == 0 {
		return 0, nil
	}
	if err := svc.Save(ctx, append(levels, drafted...)); err != nil {
		return 0, err
	}
	return len(drafted), nil
}

func withLevelService(ctx context.Context, opts *rootOptions, fn func(context.Context, *app.LevelService) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	defer log.Sync()

	res, err := openResources(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()
	store, err := newLevelStore(cfg, res)
	if err != nil {
		return err
	}
	return fn(ctx, app.NewLevelService(store, log))
}

func exportLevels(w io.Writer, levels []domain.Question) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(levels)
}

func importLevels(r io.Reader) ([]domain.Question, error) {
	var levels []domain.Question
	if err := json.NewDecoder(r).Decode(&levels); err != nil {
		return nil, fmt.Errorf("decode levels: %w", err)
	}
	return levels, nil
}
