package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult_Compose(t *testing.T) {
	t.Run("all sections and decision in fixed order", func(t *testing.T) {
		r := &Result{
			Sections: Sections{
				Market:       "market body",
				Fundamentals: "fundamentals body",
				Sentiment:    "sentiment body",
				News:         "news body",
			},
			Decision: &Decision{Reasoning: "hold with a tight stop"},
		}

		want := "#### Market Report\nmarket body\n\n" +
			"#### Fundamentals Report\nfundamentals body\n\n" +
			"#### Sentiment Report\nsentiment body\n\n" +
			"#### News Report\nnews body\n\n" +
			"#### Decision Summary\nhold with a tight stop"
		assert.Equal(t, want, r.Compose())
	})

	t.Run("only produced sections appear", func(t *testing.T) {
		r := &Result{Sections: Sections{Fundamentals: "solid balance sheet"}}
		assert.Equal(t, "#### Fundamentals Report\nsolid balance sheet", r.Compose())
	})

	t.Run("decision only", func(t *testing.T) {
		r := &Result{Decision: &Decision{Reasoning: "reduce"}}
		assert.Equal(t, "#### Decision Summary\nreduce", r.Compose())
	})

	t.Run("order is fixed regardless of which sections exist", func(t *testing.T) {
		r := &Result{Sections: Sections{News: "news body", Market: "market body"}}
		want := "#### Market Report\nmarket body\n\n#### News Report\nnews body"
		assert.Equal(t, want, r.Compose())
	})

	t.Run("empty result yields placeholder", func(t *testing.T) {
		assert.Equal(t, "no analysis output", (&Result{}).Compose())
	})

	t.Run("whitespace-only content counts as absent", func(t *testing.T) {
		r := &Result{
			Sections: Sections{Market: "  \n\t"},
			Decision: &Decision{Reasoning: "   "},
		}
		assert.Equal(t, "no analysis output", r.Compose())
	})
}
