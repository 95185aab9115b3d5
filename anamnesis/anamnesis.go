// Package anamnesis runs the patient intake interview: a conversational loop
// that gathers the chief complaint, history, medications, and allergies, and
// terminates when the model emits a structured anamnesis report. The report is
// the input to the evaluation pipeline.
package anamnesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sweetpotato0/blackwell/llm"
	"github.com/sweetpotato0/blackwell/message"
	"github.com/sweetpotato0/blackwell/pkg/logging"
	"github.com/sweetpotato0/blackwell/prompt"
)

// ReportMarker prefixes the assistant turn that closes the interview. The
// text after the marker is the anamnesis report.
const ReportMarker = "[ANAMNESIS REPORT]:"

// Interview is a single intake conversation. It is safe for concurrent use.
type Interview struct {
	mu       sync.Mutex
	id       string
	client   llm.Client
	system   string
	messages []*message.Message
	report   string
	done     bool

	createdAt time.Time
	updatedAt time.Time
	log       *slog.Logger
}

// Option customizes an interview.
type Option func(*Interview)

// WithID sets the interview ID instead of generating one.
func WithID(id string) Option {
	return func(i *Interview) {
		if id != "" {
			i.id = id
		}
	}
}

// WithPrompts replaces the default intake prompt templates.
func WithPrompts(m *prompt.Manager) Option {
	return func(i *Interview) {
		if m == nil {
			return
		}
		if system, err := m.Render(prompt.Anamnesis, nil); err == nil {
			i.system = system
		}
	}
}

// New creates an interview backed by the given generator.
func New(client llm.Client, opts ...Option) (*Interview, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	system, err := prompt.DefaultManager().Render(prompt.Anamnesis, nil)
	if err != nil {
		return nil, fmt.Errorf("render intake prompt: %w", err)
	}

	i := &Interview{
		id:        uuid.NewString(),
		client:    client,
		system:    system,
		createdAt: time.Now(),
		updatedAt: time.Now(),
		log:       logging.WithComponent("anamnesis"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i, nil
}

// ID returns the interview ID, usable as the evaluation session ID.
func (i *Interview) ID() string { return i.id }

// Send delivers one patient turn and returns the interviewer's reply. After
// the closing turn, Done reports true and Report holds the intake summary;
// further calls fail.
func (i *Interview) Send(ctx context.Context, input string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.done {
		return "", fmt.Errorf("interview %s already complete", i.id)
	}
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("empty patient message")
	}

	i.messages = append(i.messages, message.NewMessage(message.RoleUser, input))
	i.updatedAt = time.Now()

	msgs := make([]*message.Message, 0, len(i.messages)+1)
	msgs = append(msgs, message.NewMessage(message.RoleSystem, i.system))
	msgs = append(msgs, i.messages...)

	reply, err := llm.Generate(ctx, i.client, msgs...)
	if err != nil {
		return "", fmt.Errorf("intake turn failed: %w", err)
	}
	i.messages = append(i.messages, message.NewMessage(message.RoleAssistant, reply))

	if report, ok := ExtractReport(reply); ok {
		i.report = report
		i.done = true
		i.log.Info("intake interview complete", "interview", i.id, "turns", len(i.messages))
	}
	return reply, nil
}

// Done reports whether the interview has produced its report.
func (i *Interview) Done() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.done
}

// Report returns the anamnesis report with the closing marker stripped, or
// the empty string while the interview is still open.
func (i *Interview) Report() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.report
}

// Messages returns a copy of the transcript, excluding the system prompt.
func (i *Interview) Messages() []*message.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*message.Message, len(i.messages))
	copy(out, i.messages)
	return out
}

// ExtractReport returns the report text following the closing marker. The
// marker may appear after a courtesy sentence, so the whole reply is scanned
// rather than just its prefix.
func ExtractReport(text string) (string, bool) {
	idx := strings.Index(text, ReportMarker)
	if idx < 0 {
		// Tolerate a missing colon after the bracket, seen in some models.
		alt := strings.TrimSuffix(ReportMarker, ":")
		if idx = strings.Index(text, alt); idx < 0 {
			return "", false
		}
		return strings.TrimSpace(text[idx+len(alt):]), true
	}
	return strings.TrimSpace(text[idx+len(ReportMarker):]), true
}
