// Package analyser turns scraped result tables into a verdict.
package analyser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IliaW/name-check-worker/internal/model"
)

const unknownName = "Unknown"

var (
	ErrMalformedRow = errors.New("malformed conflict row")
	ErrNoResults    = errors.New("no result tables were scraped")
)

// ConflictRow is one row of the errors tab.
type ConflictRow struct {
	Severity string
	Subject  string
	Message  string
}

// Blocking reports whether the row prevents registration of the name.
func (r ConflictRow) Blocking() bool {
	switch strings.ToLower(strings.TrimSpace(r.Severity)) {
	case "info", "success":
		return false
	}
	return true
}

// Conflicts is the canonical form of a scrape.
type Conflicts struct {
	Rows           []ConflictRow
	SimilarNames   []string
	TrademarkWords []string
	BaseName       string
}

// Parse converts record into canonical rows. Empty rows are skipped, error rows with fewer than three
// cells fail with ErrMalformedRow.
func Parse(record model.ScrapeRecord) (*Conflicts, error) {
	if !record.Present(model.ErrorTab) && !record.Present(model.NameSimilarityTab) {
		return nil, ErrNoResults
	}

	c := &Conflicts{}
	for i, row := range record.Rows(model.ErrorTab) {
		if len(row) == 0 {
			continue
		}
		if len(row) < 3 {
			return nil, fmt.Errorf("%w: error row %d has %d cells", ErrMalformedRow, i, len(row))
		}
		c.Rows = append(c.Rows, ConflictRow{Severity: row[0], Subject: row[1], Message: row[2]})
	}
	c.SimilarNames = firstCells(record.Rows(model.NameSimilarityTab))
	c.TrademarkWords = firstCells(record.Rows(model.TrademarkTab))

	switch {
	case len(c.SimilarNames) > 0:
		c.BaseName = c.SimilarNames[0]
	case len(c.Rows) > 0 && c.Rows[0].Subject != "":
		c.BaseName = c.Rows[0].Subject
	default:
		c.BaseName = unknownName
	}
	return c, nil
}

func firstCells(table model.Table) []string {
	var cells []string
	for _, row := range table {
		if len(row) > 0 && row[0] != "" {
			cells = append(cells, row[0])
		}
	}
	return cells
}

func (c *Conflicts) Blocking() bool {
	for _, r := range c.Rows {
		if r.Blocking() {
			return true
		}
	}
	return false
}

// BlockingMessages returns the messages of every blocking row.
func (c *Conflicts) BlockingMessages() []string {
	var messages []string
	for _, r := range c.Rows {
		if r.Blocking() && r.Message != "" {
			messages = append(messages, r.Message)
		}
	}
	return messages
}

type Suggester interface {
	Suggest(ctx context.Context, req model.SuggestionRequest) *model.SuggestionResponse
}

type Analyser struct {
	suggester Suggester
	log       *slog.Logger
}

func New(suggester Suggester, log *slog.Logger) *Analyser {
	return &Analyser{suggester: suggester, log: log}
}

// Analyse returns VALID when nothing blocks the name. Otherwise the suggester summarises the conflicts
// and proposes alternatives.
func (a *Analyser) Analyse(ctx context.Context, record model.ScrapeRecord, checkType model.CheckType) (*model.Analysis, error) {
	c, err := Parse(record)
	if err != nil {
		return nil, err
	}
	analysis := &model.Analysis{
		BaseName:       c.BaseName,
		SimilarNames:   c.SimilarNames,
		TrademarkWords: c.TrademarkWords,
	}
	if !c.Blocking() {
		a.log.Info("no blocking conflicts.", slog.String("base_name", c.BaseName))
		analysis.Verdict = model.Valid
		return analysis, nil
	}

	analysis.Verdict = model.NotValid
	analysis.BlockingMessages = c.BlockingMessages()
	a.log.Info("blocking conflicts found.", slog.String("base_name", c.BaseName),
		slog.Int("messages", len(analysis.BlockingMessages)))
	resp := a.suggester.Suggest(ctx, model.SuggestionRequest{
		BaseName:       c.BaseName,
		CheckType:      checkType,
		Messages:       analysis.BlockingMessages,
		SimilarNames:   c.SimilarNames,
		TrademarkWords: c.TrademarkWords,
	})
	analysis.SummarizedConflict = resp.SummarizedConflicts
	analysis.RecommendedNames = resp.RecommendedNames
	return analysis, nil
}
