package toolexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/leozhang/finsight/internal/observability"
	"github.com/leozhang/finsight/internal/tracing"
)

// Batch configures one batch run: the wording of progress messages, fragment
// headings, and the message returned when no identifiers resolve.
type Batch struct {
	Label        string // progress message prefix, e.g. "Analyzing stock"
	SectionTitle string // fragment heading, e.g. "Stock Analysis"
	EmptyMessage string // returned verbatim when the identifier list is empty
}

// AnalyzeFunc produces the report body for a single identifier
type AnalyzeFunc func(ctx context.Context, id string) (string, error)

// RunBatch analyzes each identifier in order and joins the per-identifier
// fragments into one aggregate report. A failing identifier contributes a
// failure fragment in its slot and never aborts the batch. The progress
// callback, when supplied, fires synchronously before each identifier with a
// fraction that reaches 1.0 on the last one.
func RunBatch(ctx context.Context, ids []string, batch Batch, progress ProgressFunc, analyze AnalyzeFunc) string {
	if len(ids) == 0 {
		if batch.EmptyMessage != "" {
			return batch.EmptyMessage
		}
		return "no valid identifiers found"
	}

	observability.RecordBatchSize(batch.SectionTitle, len(ids))
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	total := len(ids)
	fragments := make([]string, 0, total)

	for i, id := range ids {
		if progress != nil {
			progress(fmt.Sprintf("%s %s (%d/%d)", batch.Label, id, i+1, total), float64(i+1)/float64(total))
		}

		body, err := analyzeOne(ctx, analyze, id)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("identifier", id).
				Str("section", batch.SectionTitle).
				Msg("Batch item failed")
			fragments = append(fragments, fmt.Sprintf("### %s: %s\nanalysis failed: %v", batch.SectionTitle, id, err))
			continue
		}

		if body == "" {
			body = "no analysis output"
		}
		logger.Debug().
			Str("identifier", id).
			Str("section", batch.SectionTitle).
			Msg("Batch item completed")
		fragments = append(fragments, fmt.Sprintf("### %s: %s\n%s", batch.SectionTitle, id, body))
	}

	return strings.Join(fragments, "\n\n")
}

// analyzeOne shields the batch loop from panics in the analysis function
func analyzeOne(ctx context.Context, analyze AnalyzeFunc, id string) (body string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return analyze(ctx, id)
}
