package toolexec

import (
	"regexp"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractIdentifiers_FromList(t *testing.T) {
	params := map[string]interface{}{
		"stock_codes": []interface{}{"600519", "000858"},
	}

	ids := ExtractIdentifiers(params, "", "stock_codes")
	assert.Equal(t, []string{"000858", "600519"}, ids)
}

func TestExtractIdentifiers_FromStringSlice(t *testing.T) {
	params := map[string]interface{}{
		"fund_codes": []string{"110022", "005827"},
	}

	ids := ExtractIdentifiers(params, "", "fund_codes")
	assert.Equal(t, []string{"005827", "110022"}, ids)
}

func TestExtractIdentifiers_FromScalarString(t *testing.T) {
	params := map[string]interface{}{
		"stock_codes": "600519,000858",
	}

	ids := ExtractIdentifiers(params, "", "stock_codes")
	assert.Equal(t, []string{"000858", "600519"}, ids)
}

func TestExtractIdentifiers_FromJSONNumber(t *testing.T) {
	// JSON decoding turns a bare code into a float64
	params := map[string]interface{}{
		"stock_codes": float64(600519),
	}

	ids := ExtractIdentifiers(params, "", "stock_codes")
	assert.Equal(t, []string{"600519"}, ids)
}

func TestExtractIdentifiers_ParameterPriority(t *testing.T) {
	// Parameter-supplied codes win; step content is never merged in
	params := map[string]interface{}{
		"stock_codes": "600519",
	}

	ids := ExtractIdentifiers(params, "please analyze 000001 today", "stock_codes")
	assert.Equal(t, []string{"600519"}, ids)
}

func TestExtractIdentifiers_FallbackToStepContent(t *testing.T) {
	ids := ExtractIdentifiers(nil, "analyze stocks 600519 and 000858", "stock_codes")
	assert.Equal(t, []string{"000858", "600519"}, ids)

	ids = ExtractIdentifiers(map[string]interface{}{"other": "x"}, "fund 110022", "fund_codes")
	assert.Equal(t, []string{"110022"}, ids)
}

func TestExtractIdentifiers_NoFallbackWhenParamYieldsNothing(t *testing.T) {
	// The parameter produced a candidate, so step content stays unused even
	// though the candidate contains no identifiers
	params := map[string]interface{}{
		"stock_codes": "the usual ones",
	}

	ids := ExtractIdentifiers(params, "fallback would find 600519", "stock_codes")
	assert.Empty(t, ids)
}

func TestExtractIdentifiers_EmptyListFallsBack(t *testing.T) {
	// An empty list yields no candidates at all, so the fallback applies
	params := map[string]interface{}{
		"stock_codes": []interface{}{},
	}

	ids := ExtractIdentifiers(params, "analyze 600519", "stock_codes")
	assert.Equal(t, []string{"600519"}, ids)
}

func TestExtractIdentifiers_Dedupe(t *testing.T) {
	ids := ExtractIdentifiers(nil, "600519 then 600519 again, plus 000858", "stock_codes")
	assert.Equal(t, []string{"000858", "600519"}, ids)
}

func TestExtractIdentifiers_BoundaryRule(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "exactly six digits", text: "600519", want: []string{"600519"}},
		{name: "five digits", text: "60051", want: nil},
		{name: "seven digits", text: "6005190", want: nil},
		{name: "embedded in longer number", text: "12345678", want: nil},
		{name: "surrounded by punctuation", text: "(600519)", want: []string{"600519"}},
		{name: "decimal cuts the run", text: "600519.5", want: []string{"600519"}},
		{name: "two codes comma separated", text: "600519,000858", want: []string{"000858", "600519"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFromText(tt.text))
		})
	}
}

func TestExtractIdentifiers_AlwaysSixDigitsSortedDistinct(t *testing.T) {
	inputs := []struct {
		params      map[string]interface{}
		stepContent string
	}{
		{map[string]interface{}{"stock_codes": "600519, 000858, 600036 and 600519"}, ""},
		{nil, "look at 000001 000002 12345 1234567 600000"},
		{map[string]interface{}{"stock_codes": []interface{}{"600036", float64(600000), "no code here"}}, ""},
	}

	sixDigits := regexp.MustCompile(`^\d{6}$`)
	for _, input := range inputs {
		ids := ExtractIdentifiers(input.params, input.stepContent, "stock_codes")

		assert.True(t, sort.StringsAreSorted(ids), "identifiers must be sorted ascending: %v", ids)
		seen := map[string]bool{}
		for _, id := range ids {
			assert.Regexp(t, sixDigits, id)
			assert.False(t, seen[id], "identifiers must be distinct: %v", ids)
			seen[id] = true
		}
	}
}

func TestExtractIdentifiers_NoMatches(t *testing.T) {
	assert.Empty(t, ExtractIdentifiers(nil, "", "stock_codes"))
	assert.Empty(t, ExtractIdentifiers(map[string]interface{}{}, "no codes at all", "stock_codes"))
	assert.Empty(t, ExtractFromText("nothing numeric"))
}
