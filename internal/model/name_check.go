package model

import (
	"time"
)

type Verdict string

const (
	Valid    Verdict = "VALID"
	NotValid Verdict = "NOT VALID"
)

type CheckType string

const (
	NameCheck     CheckType = "name"
	ConflictCheck CheckType = "conflict"
)

// TabKey names one of the result tabs shown after the name check.
type TabKey string

const (
	ErrorTab          TabKey = "error"
	NameSimilarityTab TabKey = "name_similarity"
	TrademarkTab      TabKey = "trademark"
)

var Tabs = []TabKey{ErrorTab, NameSimilarityTab, TrademarkTab}

// Table is the rows of a scraped table, each row being its cell texts.
// A nil Table marks a tab that could not be read.
type Table [][]string

// ScrapeRecord holds one table per result tab.
type ScrapeRecord map[TabKey]Table

// Present reports whether the tab was scraped successfully.
func (r ScrapeRecord) Present(key TabKey) bool {
	t, ok := r[key]
	return ok && t != nil
}

// Rows returns the rows for a tab, or an empty slice when the tab is absent.
func (r ScrapeRecord) Rows(key TabKey) Table {
	if t := r[key]; t != nil {
		return t
	}
	return Table{}
}

type Suggestion struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type Analysis struct {
	Verdict            Verdict      `json:"verdict"`
	BaseName           string       `json:"base_name,omitempty"`
	BlockingMessages   []string     `json:"blocking_messages,omitempty"`
	SummarizedConflict []string     `json:"summarized_conflicts,omitempty"`
	RecommendedNames   []Suggestion `json:"recommended_names,omitempty"`
	SimilarNames       []string     `json:"similar_names,omitempty"`
	TrademarkWords     []string     `json:"trademark_words,omitempty"`
}

// SuggestionRequest is what the suggestion service needs to propose alternatives for a rejected name.
type SuggestionRequest struct {
	BaseName       string
	CheckType      CheckType
	Messages       []string
	SimilarNames   []string
	TrademarkWords []string
}

type SuggestionResponse struct {
	SummarizedConflicts []string     `json:"summarized_conflicts"`
	RecommendedNames    []Suggestion `json:"recommended_names"`
}

type NameCheckTask struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NicCode   string    `json:"nic_code,omitempty"`
	CheckType CheckType `json:"check_type,omitempty"`

	// Reply receives the result when the task came from a synchronous caller.
	Reply chan *NameCheckResult `json:"-"`
}

type NameCheckResult struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	CheckType  CheckType     `json:"check_type"`
	Success    bool          `json:"success"`
	Analysis   *Analysis     `json:"analysis,omitempty"`
	Scrape     ScrapeRecord  `json:"scrape,omitempty"`
	Error      string        `json:"error,omitempty"`
	Cached     bool          `json:"cached"`
	Duration   time.Duration `json:"duration"`
	CheckedAt  time.Time     `json:"checked_at"`
	WorkerVers string        `json:"worker_version"`
}

// Envelope is the uniform response returned to callers.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
}

// Envelope converts the result into the uniform response shape.
func (r *NameCheckResult) Envelope() Envelope {
	if !r.Success {
		return Envelope{Success: false, Error: r.Error}
	}
	return Envelope{Success: true, Data: r}
}
