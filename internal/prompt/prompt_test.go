package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = "Q1 revenue: $0.9M\nQ2 revenue: $1.0M"

func TestConversational(t *testing.T) {
	req := Conversational(doc, "  What is the total revenue?\n")

	assert.Nil(t, req.Schema)
	assert.Contains(t, req.Prompt, "Answer the user's question based on the document.")
	assert.Contains(t, req.Prompt, "\"\"\"\n"+doc+"\n\"\"\"")
	assert.True(t, strings.HasSuffix(req.Prompt, "USER QUESTION:\nWhat is the total revenue?"))
}

func TestAnalytical(t *testing.T) {
	req := Analytical(doc, "Chart the revenue by quarter")

	require.NotNil(t, req.Schema)
	assert.Contains(t, req.Schema.Required, "datasets")
	assert.Contains(t, req.Prompt, `"type": "bar" | "line" | "pie",`)
	assert.Contains(t, req.Prompt, doc)
	assert.True(t, strings.HasSuffix(req.Prompt, "USER ANALYSIS REQUEST:\nChart the revenue by quarter"))
}

func TestDocumentForwardedVerbatim(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 50_000)
	assert.Contains(t, Conversational(long, "q").Prompt, long)
	assert.Contains(t, Analytical(long, "q").Prompt, long)
}
