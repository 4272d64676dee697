// Package prompt builds the completion requests for the two view modes. The
// full document text is forwarded verbatim on every turn.
package prompt

import (
	"fmt"
	"strings"

	"github.com/apresai/docchat/internal/chart"
	"github.com/apresai/docchat/internal/completion"
)

const conversationalTemplate = `Answer the user's question based on the document.

DOCUMENT CONTENT:
"""
%s
"""

USER QUESTION:
%s`

const analyticalTemplate = `Extract numerical data, trends, or comparisons from the following text and format it for a chart visualization.
Return ONLY a JSON object that matches this structure:
{
  "type": %s,
  "title": "A descriptive title",
  "labels": ["Label 1", "Label 2", ...],
  "datasets": [
    {
      "label": "Metric Name",
      "data": [10, 20, ...]
    }
  ],
  "explanation": "A short sentence explaining what this chart shows."
}
Every dataset must have exactly one number per label.

DOCUMENT CONTENT:
"""
%s
"""

USER ANALYSIS REQUEST:
%s`

// Conversational asks for a free-text answer grounded in the document.
func Conversational(docText, question string) completion.Request {
	return completion.Request{
		Prompt: fmt.Sprintf(conversationalTemplate, docText, strings.TrimSpace(question)),
	}
}

// Analytical asks for a single chart object and constrains the response to
// the chart schema on backends that support it.
func Analytical(docText, request string) completion.Request {
	return completion.Request{
		Prompt: fmt.Sprintf(analyticalTemplate, typeUnion(), docText, strings.TrimSpace(request)),
		Schema: chart.ResponseSchema(),
	}
}

// typeUnion renders the chart type enum as `"bar" | "line" | "pie"`.
func typeUnion() string {
	quoted := make([]string, len(chart.Types))
	for i, t := range chart.Types {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	return strings.Join(quoted, " | ")
}
