package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/classmgr/attendbot/internal/config"
	"github.com/classmgr/attendbot/internal/recognizer"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the face label index from stored samples",
	Long: `Rebuild the face label index from all face samples in the database and,
when FACE_INDEX_PATH is set, persist it to disk for fast startup.`,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	samples, err := st.ListFaceSamples(ctx)
	if err != nil {
		return fmt.Errorf("listing face samples: %w", err)
	}
	if len(samples) == 0 {
		fmt.Println("No face samples stored, nothing to index")
		return nil
	}

	bar := progressbar.NewOptions(len(samples),
		progressbar.OptionSetDescription("Indexing face samples"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("samples"),
		progressbar.OptionFullWidth(),
	)

	index := recognizer.NewLabelIndex()
	for _, s := range samples {
		index.Add(s.ID, s.Label, s.Embedding)
		_ = bar.Add(1)
	}
	fmt.Println()

	if cfg.Database.IndexPath == "" {
		fmt.Printf("Indexed %d samples (FACE_INDEX_PATH not set, index not persisted)\n", index.Count())
		return nil
	}

	index.SetPath(cfg.Database.IndexPath)
	if err := index.Save(); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	fmt.Printf("Indexed %d samples, saved to %s\n", index.Count(), cfg.Database.IndexPath)
	return nil
}
