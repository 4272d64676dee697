package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/docchat/internal/chart"
	"github.com/apresai/docchat/internal/ingest"
	"github.com/apresai/docchat/internal/session"
)

var tracer = otel.Tracer("docchat-mcp")

const defaultChartWidth = 72

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "upload_document",
			Description: "Load a PDF from the server's filesystem and extract its text. Replaces any previously loaded document and starts a new transcript.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the PDF file",
					},
				},
				Required: []string{"path"},
			},
		},
		{
			Name:        "ask_document",
			Description: "Ask a question about the loaded document. In insights mode the answer is a chart (bar, line or pie) when the document has numbers to plot.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"question": map[string]any{
						"type":        "string",
						"description": "Question or analysis request",
					},
					"mode": map[string]any{
						"type":        "string",
						"description": "chat for a text answer, insights for a chart",
						"enum":        []string{"chat", "insights"},
						"default":     "chat",
					},
					"width": map[string]any{
						"type":        "integer",
						"description": "Column width of the rendered chart",
						"default":     defaultChartWidth,
					},
				},
				Required: []string{"question"},
			},
		},
		{
			Name:        "get_transcript",
			Description: "Return the conversation so far. Chat mode hides chart entries; insights mode shows everything.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"mode": map[string]any{
						"type":        "string",
						"description": "chat or insights",
						"enum":        []string{"chat", "insights"},
						"default":     "insights",
					},
				},
			},
		},
		{
			Name:        "reset_session",
			Description: "Discard the loaded document and the transcript.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	ctrl *session.Controller
	log  *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(ctrl *session.Controller, logger *slog.Logger) *Handlers {
	return &Handlers{ctrl: ctrl, log: logger}
}

// HandleUploadDocument extracts a PDF into the session.
func (h *Handlers) HandleUploadDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.upload_document")
	defer span.End()

	path := mcp.ParseString(req, "path", "")
	span.SetAttributes(attribute.String("path", path))
	if path == "" {
		span.SetStatus(codes.Error, "missing path")
		return mcp.NewToolResultError("path is required"), nil
	}

	upload, err := ingest.ReadUpload(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := h.ctrl.Upload(ctx, upload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return mcp.NewToolResultError(toolMessage(err)), nil
	}

	h.log.InfoContext(ctx, "Document uploaded", "file", doc.Name, "pages", doc.Pages)
	return jsonResult(map[string]any{
		"name":     doc.Name,
		"size":     ingest.FormatSize(doc.Size),
		"bytes":    doc.Size,
		"pages":    doc.Pages,
		"chars":    len(doc.Text),
		"greeting": session.Greeting(doc.Name),
	})
}

// HandleAskDocument runs one turn and returns the model's entry.
func (h *Handlers) HandleAskDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.ask_document")
	defer span.End()

	question := mcp.ParseString(req, "question", "")
	mode, err := session.ParseMode(mcp.ParseString(req, "mode", "chat"))
	if err != nil {
		span.SetStatus(codes.Error, "invalid mode")
		return mcp.NewToolResultError(err.Error()), nil
	}
	width := parseIntParam(req, "width", defaultChartWidth)
	span.SetAttributes(
		attribute.String("mode", mode.String()),
		attribute.Int("question_chars", len(question)),
	)

	entry, err := h.ctrl.Ask(ctx, question, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ask failed")
		return mcp.NewToolResultError(toolMessage(err)), nil
	}

	span.SetAttributes(attribute.String("kind", string(entry.Kind)))
	return jsonResult(entryResult(entry, width))
}

// HandleGetTranscript returns the entries visible in a mode.
func (h *Handlers) HandleGetTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := tracer.Start(ctx, "tool.get_transcript")
	defer span.End()

	mode, err := session.ParseMode(mcp.ParseString(req, "mode", "insights"))
	if err != nil {
		span.SetStatus(codes.Error, "invalid mode")
		return mcp.NewToolResultError(err.Error()), nil
	}

	entries := h.ctrl.Transcript(mode)
	span.SetAttributes(attribute.Int("result_count", len(entries)))

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, entryResult(e, 0))
	}
	result := map[string]any{
		"mode":    mode.String(),
		"entries": items,
		"count":   len(items),
	}
	if doc := h.ctrl.Document(); doc != nil {
		result["document"] = doc.Name
	}
	return jsonResult(result)
}

// HandleResetSession clears the session.
func (h *Handlers) HandleResetSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.reset_session")
	defer span.End()

	h.ctrl.Reset()
	h.log.InfoContext(ctx, "Session reset")
	return jsonResult(map[string]any{"status": "reset"})
}

// entryResult flattens an entry for a tool response. A positive width adds
// the terminal rendering of chart entries.
func entryResult(e session.Entry, width int) map[string]any {
	r := map[string]any{
		"id":         e.ID,
		"role":       e.Role,
		"kind":       e.Kind,
		"content":    e.Content,
		"created_at": e.CreatedAt,
	}
	if e.Chart != nil {
		r["chart"] = e.Chart
		if width > 0 {
			r["rendered"] = chart.Render(e.Chart, width)
		}
	}
	return r
}

// toolMessage maps session and extraction errors to the text returned to the client.
func toolMessage(err error) string {
	if errors.Is(err, session.ErrBusy) || errors.Is(err, session.ErrNoDocument) || errors.Is(err, session.ErrEmptyInput) {
		return err.Error()
	}
	return ingest.UserMessage(err)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}
