// Package session owns the conversation state for one loaded document: the
// extracted text, the shared transcript, the view mode and the pending flags
// that keep at most one external call outstanding.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/apresai/docchat/internal/chart"
	"github.com/apresai/docchat/internal/completion"
	"github.com/apresai/docchat/internal/ingest"
	"github.com/apresai/docchat/internal/prompt"
)

// Mode selects the prompt template and the transcript filter.
type Mode int

const (
	ModeChat Mode = iota
	ModeInsights
)

func (m Mode) String() string {
	if m == ModeInsights {
		return "insights"
	}
	return "chat"
}

// ParseMode accepts the mode names used by the CLI flags and MCP tools.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chat", "conversational":
		return ModeChat, nil
	case "insights", "analytical":
		return ModeInsights, nil
	default:
		return ModeChat, fmt.Errorf("invalid mode %q: must be chat or insights", s)
	}
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Kind string

const (
	KindText  Kind = "text"
	KindChart Kind = "chart"
)

// Entry is one transcript item. Entries are never modified once appended.
type Entry struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Kind      Kind           `json:"kind"`
	Chart     *chart.Payload `json:"chart,omitempty"`
}

var (
	ErrBusy       = errors.New("a request is already in progress")
	ErrNoDocument = errors.New("no document loaded")
	ErrEmptyInput = errors.New("message is empty")
)

const fallbackErrorMessage = "Failed to get a response."

// Greeting is the first transcript entry after a successful extraction.
func Greeting(name string) string {
	return fmt.Sprintf("Hi! I've analyzed **%s**. You can chat with it here, or switch to **Insights** to visualize data.", name)
}

// Session is not safe for concurrent use; Controller serialises access for
// callers that need it.
type Session struct {
	doc        *ingest.Document
	mode       Mode
	entries    []Entry
	draft      string
	errMsg     string
	extracting bool
	awaiting   bool

	// generation increments on Reset so late results are dropped.
	generation uint64

	now     func() time.Time
	entropy *ulid.MonotonicEntropy
}

type Option func(*Session)

// WithClock overrides the timestamp source for new entries.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func New(opts ...Option) *Session {
	s := &Session{
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extraction is a started upload awaiting its extraction result.
type Extraction struct {
	Upload     ingest.Upload
	generation uint64
}

// Turn is a submitted question awaiting its completion.
type Turn struct {
	Mode       Mode
	Input      string
	Request    completion.Request
	generation uint64
}

// BeginExtraction validates the upload and marks extraction as pending.
// A non-PDF upload surfaces an error and leaves the document untouched.
func (s *Session) BeginExtraction(u ingest.Upload) (Extraction, error) {
	if s.Pending() {
		return Extraction{}, ErrBusy
	}
	if !u.IsPDF() {
		err := &ingest.Error{File: u.Name, Err: ingest.ErrNotPDF}
		s.errMsg = ingest.UserMessage(err)
		return Extraction{}, err
	}
	s.errMsg = ""
	s.extracting = true
	return Extraction{Upload: u, generation: s.generation}, nil
}

// CompleteExtraction settles an extraction. On success the document replaces
// any previous one and the transcript restarts with the greeting; on failure
// the session returns to the empty state with the error surfaced.
func (s *Session) CompleteExtraction(x Extraction, doc *ingest.Document, err error) bool {
	if x.generation != s.generation {
		return false
	}
	s.extracting = false
	if err != nil {
		s.doc = nil
		s.entries = nil
		s.errMsg = ingest.UserMessage(err)
		return true
	}
	s.doc = doc
	s.entries = []Entry{s.newEntry(RoleModel, KindText, Greeting(doc.Name), nil)}
	return true
}

// BeginTurn appends the user's entry and returns the request to send. It is
// a no-op when the input is blank, no document is loaded, or a request is
// already pending.
func (s *Session) BeginTurn(input string) (Turn, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return Turn{}, ErrEmptyInput
	case s.doc == nil:
		return Turn{}, ErrNoDocument
	case s.Pending():
		return Turn{}, ErrBusy
	}

	s.entries = append(s.entries, s.newEntry(RoleUser, KindText, input, nil))
	s.draft = ""
	s.errMsg = ""
	s.awaiting = true

	req := prompt.Conversational(s.doc.Text, input)
	if s.mode == ModeInsights {
		req = prompt.Analytical(s.doc.Text, input)
	}
	return Turn{Mode: s.mode, Input: input, Request: req, generation: s.generation}, nil
}

// SettleTurn records the outcome of a turn. A failed call surfaces its error
// and appends nothing. An insights turn whose response decodes as a chart
// appends a chart entry; any other response is appended as text. It returns
// the appended entry, or false when nothing was appended.
func (s *Session) SettleTurn(t Turn, response string, err error) (Entry, bool) {
	if t.generation != s.generation {
		return Entry{}, false
	}
	s.awaiting = false
	if err != nil {
		s.errMsg = err.Error()
		if s.errMsg == "" {
			s.errMsg = fallbackErrorMessage
		}
		return Entry{}, false
	}

	entry := s.newEntry(RoleModel, KindText, response, nil)
	if t.Mode == ModeInsights {
		if payload, derr := chart.Decode(response); derr == nil {
			entry = s.newEntry(RoleModel, KindChart, payload.Explanation, payload)
		}
	}
	s.entries = append(s.entries, entry)
	return entry, true
}

// Reset discards the document, transcript, draft and error and returns to
// chat mode. Results of calls started before the reset are ignored.
func (s *Session) Reset() {
	s.generation++
	s.doc = nil
	s.entries = nil
	s.draft = ""
	s.errMsg = ""
	s.extracting = false
	s.awaiting = false
	s.mode = ModeChat
}

// Visible returns the entries shown in the current mode: chat hides chart
// entries, insights shows everything.
func (s *Session) Visible() []Entry {
	return filter(s.entries, s.mode)
}

// VisibleIn is Visible for an explicit mode.
func (s *Session) VisibleIn(m Mode) []Entry {
	return filter(s.entries, m)
}

func filter(entries []Entry, m Mode) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if m == ModeChat && e.Kind == KindChart {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Entries returns the whole transcript in arrival order.
func (s *Session) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

func (s *Session) Document() *ingest.Document { return s.doc }
func (s *Session) Mode() Mode                 { return s.mode }

// SetMode switches the view. The transcript is shared between modes.
func (s *Session) SetMode(m Mode) { s.mode = m }

func (s *Session) Draft() string       { return s.draft }
func (s *Session) SetDraft(d string)   { s.draft = d }
func (s *Session) Err() string         { return s.errMsg }
func (s *Session) DismissError()       { s.errMsg = "" }
func (s *Session) Extracting() bool    { return s.extracting }
func (s *Session) Awaiting() bool      { return s.awaiting }
func (s *Session) Pending() bool       { return s.extracting || s.awaiting }
func (s *Session) HasDocument() bool   { return s.doc != nil }
func (s *Session) SetError(msg string) { s.errMsg = msg }

func (s *Session) newEntry(role Role, kind Kind, content string, payload *chart.Payload) Entry {
	now := s.now()
	return Entry{
		ID:        ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
		Kind:      kind,
		Chart:     payload,
	}
}
