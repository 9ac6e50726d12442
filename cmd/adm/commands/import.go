package commands

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"flashquiz/internal/models"
	"flashquiz/internal/observability"
	"flashquiz/internal/practice"
	"flashquiz/internal/services"
	contextutils "flashquiz/internal/utils"
)

// ImportCommand returns the bulk word-list import command.
//
// The input is a plain-text word list: one pair per line, tab or comma
// separated, with an optional third similarity column. Lines starting with
// '#' are comments. Degenerate pairs (an empty side, or both sides
// normalizing to the same text) are filtered before they reach the catalog.
func ImportCommand(phraseService services.PhraseServiceInterface, logger *observability.Logger) *cobra.Command {
	var (
		file       string
		url        string
		lang1      string
		lang2      string
		similarity float64
		category   string
		overwrite  bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk-import a word list into the phrase catalog",
		Long: `Bulk-import a word list into the phrase catalog.

Reads tab- or comma-separated phrase pairs from a local file (--file) or a
public URL (--url), filters degenerate pairs, and loads the rest through the
catalog's bulk loader. A third numeric column overrides --similarity for
that line.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := cmdContext()

			if (file == "") == (url == "") {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "exactly one of --file and --url is required")
			}

			reader, err := openWordList(file, url)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := reader.Close(); closeErr != nil {
					logger.Warn(ctx, "Failed to close word list source", map[string]interface{}{"error": closeErr.Error()})
				}
			}()

			pairs, filtered, err := parseWordList(reader, models.Language(lang1), models.Language(lang2), similarity, category)
			if err != nil {
				return err
			}
			if len(pairs) == 0 {
				fmt.Println("No usable pairs found in the word list")
				return nil
			}

			report, err := phraseService.ImportPairs(ctx, pairs, overwrite)
			if err != nil {
				return err
			}

			fmt.Printf("Imported %d pairs, skipped %d, filtered %d degenerate lines\n", report.Imported, report.Skipped, filtered)
			for _, e := range report.Errors {
				fmt.Printf("  skipped: %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to a local word list file")
	cmd.Flags().StringVar(&url, "url", "", "URL of a public word list")
	cmd.Flags().StringVar(&lang1, "lang1", string(models.LanguageEnglish), "Language of the first column")
	cmd.Flags().StringVar(&lang2, "lang2", string(models.LanguagePortuguese), "Language of the second column")
	cmd.Flags().Float64Var(&similarity, "similarity", 1.0, "Default similarity for lines without a third column")
	cmd.Flags().StringVar(&category, "category", "", "Category tag recorded with every imported pair")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Update similarity on already-linked pairs")

	return cmd
}

func openWordList(file, url string) (io.ReadCloser, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to open word list file")
		}
		return f, nil
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}
	resp, err := client.Get(url)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to fetch word list")
	}
	if resp.StatusCode != http.StatusOK {
		if closeErr := resp.Body.Close(); closeErr != nil {
			return nil, contextutils.WrapError(closeErr, "failed to close response body")
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "word list fetch returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// parseWordList reads phrase pairs from a word list. The second return value
// counts lines dropped client-side before the batch loader sees them.
func parseWordList(r io.Reader, lang1, lang2 models.Language, defaultSimilarity float64, category string) ([]models.ImportPair, int, error) {
	var pairs []models.ImportPair
	filtered := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := splitWordListLine(line)
		if len(fields) < 2 {
			filtered++
			continue
		}

		phrase1 := strings.TrimSpace(fields[0])
		phrase2 := strings.TrimSpace(fields[1])
		if phrase1 == "" || phrase2 == "" {
			filtered++
			continue
		}
		// Identical words in both columns carry no signal for a flashcard.
		if practice.Normalize(phrase1) == practice.Normalize(phrase2) {
			filtered++
			continue
		}

		pairSimilarity := defaultSimilarity
		if len(fields) >= 3 {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
			if err != nil {
				filtered++
				continue
			}
			pairSimilarity = parsed
		}

		pairs = append(pairs, models.ImportPair{
			Phrase1:    phrase1,
			Language1:  lang1,
			Phrase2:    phrase2,
			Language2:  lang2,
			Similarity: pairSimilarity,
			Category:   category,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to read word list")
	}

	return pairs, filtered, nil
}

// splitWordListLine splits on tabs when present, otherwise commas.
func splitWordListLine(line string) []string {
	if strings.Contains(line, "\t") {
		return strings.Split(line, "\t")
	}
	return strings.Split(line, ",")
}
