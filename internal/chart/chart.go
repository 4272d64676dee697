// Package chart holds the typed chart description returned by the completion
// service in insights mode, its validation, and its terminal rendering.
package chart

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/apresai/docchat/internal/completion"
)

// Type is the rendering shape of a chart.
type Type string

const (
	TypeBar  Type = "bar"
	TypeLine Type = "line"
	TypePie  Type = "pie"
)

// Types lists the accepted chart shapes.
var Types = []Type{TypeBar, TypeLine, TypePie}

func (t Type) Valid() bool {
	switch t {
	case TypeBar, TypeLine, TypePie:
		return true
	}
	return false
}

// Series is one named run of values aligned to the payload's labels.
type Series struct {
	Name string    `json:"label"`
	Data []float64 `json:"data"`
}

// Payload describes one chart. Datasets must each carry exactly one value per label.
type Payload struct {
	Type        Type     `json:"type"`
	Title       string   `json:"title"`
	Labels      []string `json:"labels"`
	Datasets    []Series `json:"datasets"`
	Explanation string   `json:"explanation"`
}

var (
	ErrNoJSON  = errors.New("no JSON object in response")
	ErrInvalid = errors.New("invalid chart payload")
)

// Validate checks the shape the renderer relies on.
func (p *Payload) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalid, p.Type)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: missing title", ErrInvalid)
	}
	if len(p.Labels) == 0 {
		return fmt.Errorf("%w: no labels", ErrInvalid)
	}
	if len(p.Datasets) == 0 {
		return fmt.Errorf("%w: no datasets", ErrInvalid)
	}
	for i, ds := range p.Datasets {
		if len(ds.Data) != len(p.Labels) {
			return fmt.Errorf("%w: dataset %d has %d values for %d labels", ErrInvalid, i, len(ds.Data), len(p.Labels))
		}
	}
	return nil
}

// Decode parses a completion response as a chart. Markdown fences and text
// around the outermost JSON object are ignored. Any parse or validation
// failure is returned as an error; callers fall back to showing raw text.
func Decode(raw string) (*Payload, error) {
	text := extractJSON(stripMarkdownFences(raw))
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil, ErrNoJSON
	}

	var p Payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	p.Type = Type(strings.ToLower(strings.TrimSpace(string(p.Type))))
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")

func stripMarkdownFences(text string) string {
	if matches := fenceRe.FindStringSubmatch(text); len(matches) > 1 {
		return matches[1]
	}
	return text
}

// extractJSON keeps the span from the first { to the last }.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// ResponseSchema is the structured-output constraint sent with insights requests.
func ResponseSchema() *completion.Schema {
	enum := make([]string, len(Types))
	for i, t := range Types {
		enum[i] = string(t)
	}
	return &completion.Schema{
		Type: completion.TypeObject,
		Properties: map[string]*completion.Schema{
			"type":  {Type: completion.TypeString, Enum: enum},
			"title": {Type: completion.TypeString},
			"labels": {
				Type:  completion.TypeArray,
				Items: &completion.Schema{Type: completion.TypeString},
			},
			"datasets": {
				Type: completion.TypeArray,
				Items: &completion.Schema{
					Type: completion.TypeObject,
					Properties: map[string]*completion.Schema{
						"label": {Type: completion.TypeString},
						"data": {
							Type:  completion.TypeArray,
							Items: &completion.Schema{Type: completion.TypeNumber},
						},
					},
					Required: []string{"label", "data"},
				},
			},
			"explanation": {Type: completion.TypeString},
		},
		Required: []string{"type", "title", "labels", "datasets", "explanation"},
	}
}
