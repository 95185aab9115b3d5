package evaluator

import (
	"encoding/json"
	"time"
)

// Report keys written by the pipeline stages.
const (
	ReportCertainty    = "certainty_report"
	ReportInvestigator = "investigator_report"
	ReportHypothesis   = "hypothesis_report"
	ReportResearch     = "research_report"
	ReportTreatment    = "treatment_report"
)

// ReferenceType tags the provenance of a reference record.
type ReferenceType string

const (
	ReferenceRAG        ReferenceType = "RAG"
	ReferenceLiterature ReferenceType = "Literature"
)

// Reference is one provenance record emitted by a research sub-agent.
type Reference struct {
	Type      ReferenceType `json:"type"`
	Reference string        `json:"reference"`
}

// ReportEntry is one stage artifact with its commit time.
type ReportEntry struct {
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportLog is an insertion-ordered map of stage name to report text.
type ReportLog struct {
	entries []ReportEntry
}

// Set writes a report, overwriting an existing entry in place and preserving
// its original position.
func (l *ReportLog) Set(name, text string) {
	for i := range l.entries {
		if l.entries[i].Name == name {
			l.entries[i].Text = text
			l.entries[i].CreatedAt = time.Now()
			return
		}
	}
	l.entries = append(l.entries, ReportEntry{Name: name, Text: text, CreatedAt: time.Now()})
}

// Append concatenates text onto an existing report with a blank-line
// separator, or creates the report if absent.
func (l *ReportLog) Append(name, text string) {
	for i := range l.entries {
		if l.entries[i].Name == name {
			l.entries[i].Text += "\n\n" + text
			l.entries[i].CreatedAt = time.Now()
			return
		}
	}
	l.Set(name, text)
}

// Get returns a report's text.
func (l *ReportLog) Get(name string) (string, bool) {
	for i := range l.entries {
		if l.entries[i].Name == name {
			return l.entries[i].Text, true
		}
	}
	return "", false
}

// Has reports whether a report has been written.
func (l *ReportLog) Has(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// CreatedAt returns when a report was last written.
func (l *ReportLog) CreatedAt(name string) (time.Time, bool) {
	for i := range l.entries {
		if l.entries[i].Name == name {
			return l.entries[i].CreatedAt, true
		}
	}
	return time.Time{}, false
}

// Entries returns the log in insertion order.
func (l *ReportLog) Entries() []ReportEntry {
	out := make([]ReportEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// MarshalJSON serializes the log as an ordered list.
func (l *ReportLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.entries)
}

// UnmarshalJSON restores the log from its ordered-list form.
func (l *ReportLog) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &l.entries)
}

// State is the mutable record threaded through one evaluation run. It is
// owned exclusively by the in-flight stage; stages run strictly sequentially.
type State struct {
	SessionID       string      `json:"session_id"`
	AnamnesisReport string      `json:"anamnesis_report"`
	Query           string      `json:"query"`
	Reports         *ReportLog  `json:"reports"`
	References      []Reference `json:"references"`
	FinalReport     string      `json:"final_report"`

	// NextRoute is the routing directive set by the research stage and read
	// by the dispatcher immediately after.
	NextRoute string `json:"next_node,omitempty"`

	// ResearchAttempts counts research tries within the current analysis
	// pass; it resets to zero after each successful research stage.
	ResearchAttempts int `json:"research_attempts"`
}

// NewState creates the state for a fresh evaluation run.
func NewState(sessionID, anamnesisReport string) *State {
	return &State{
		SessionID:       sessionID,
		AnamnesisReport: anamnesisReport,
		Reports:         &ReportLog{},
	}
}

// AddReferences appends extracted reference lines under one provenance type.
func (s *State) AddReferences(typ ReferenceType, refs []string) {
	for _, r := range refs {
		s.References = append(s.References, Reference{Type: typ, Reference: r})
	}
}

// InTreatmentPhase reports whether the hypothesis has been produced, which
// switches the analysis loop from diagnostic to therapeutic queries.
func (s *State) InTreatmentPhase() bool {
	return s.Reports.Has(ReportHypothesis)
}

// Snapshot serializes the state for checkpointing.
func (s *State) Snapshot() ([]byte, error) {
	return json.Marshal(s)
}

// RestoreState deserializes a checkpointed state.
func RestoreState(snapshot []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(snapshot, &s); err != nil {
		return nil, err
	}
	if s.Reports == nil {
		s.Reports = &ReportLog{}
	}
	return &s, nil
}
