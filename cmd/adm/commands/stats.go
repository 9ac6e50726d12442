package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"flashquiz/internal/observability"
	"flashquiz/internal/services"
)

// StatsCommand returns the catalog statistics command.
func StatsCommand(phraseService services.PhraseServiceInterface, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show phrase catalog statistics",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := cmdContext()

			stats, err := phraseService.GetStats(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to get catalog statistics", err, nil)
				return err
			}

			fmt.Printf("Phrases:            %d\n", stats.TotalPhrases)
			fmt.Printf("Similarity links:   %d\n", stats.TotalSimilarities)
			fmt.Printf("Average similarity: %.3f\n", stats.AverageSimilarity)
			fmt.Println("By language:")
			for language, count := range stats.LanguageBreakdown {
				fmt.Printf("  %-12s %d\n", language, count)
			}
			return nil
		},
	}
}
