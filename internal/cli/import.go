package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"trivia-service/internal/config"
)

// NewImportCmd creates a match from a YAML file.
func NewImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create a match from a YAML definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			deps, err := wire(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			match, err := deps.matches.ImportYAML(cmd.Context(), f)
			if err != nil {
				return err
			}
			log.Printf("imported match %q (id %d, slug %s) with %d questions", match.Name, match.ID, match.Slug, match.QuestionsCount())
			return nil
		},
	}
}
