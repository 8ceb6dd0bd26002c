package portal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/PuerkitoBio/goquery"
)

// Scraper reads the result tables shown after the automatic name check.
type Scraper struct {
	it  *browser.Interactor
	log *slog.Logger
}

func NewScraper(it *browser.Interactor, log *slog.Logger) *Scraper {
	return &Scraper{it: it, log: log}
}

// ScrapeAll reads every result tab. A tab that cannot be read is recorded as nil and does not stop the others.
func (s *Scraper) ScrapeAll(ctx context.Context) model.ScrapeRecord {
	record := make(model.ScrapeRecord, len(ResultTabs))
	for _, tab := range ResultTabs {
		table, err := s.scrapeTab(ctx, tab)
		if err != nil {
			s.log.Warn("skipping result tab.", slog.String("tab", string(tab.Key)), slog.String("err", err.Error()))
			record[tab.Key] = nil
			continue
		}
		s.log.Info("result tab scraped.", slog.String("tab", string(tab.Key)), slog.Int("rows", len(table)))
		record[tab.Key] = table
	}
	return record
}

func (s *Scraper) scrapeTab(ctx context.Context, tab ResultTab) (model.Table, error) {
	step := "scrape_" + string(tab.Key)
	if err := s.it.Click(ctx, tab.Tab, browser.WithStep(step)); err != nil {
		return nil, err
	}
	if err := s.it.WaitFor(ctx, step, tab.Table, browser.Present, s.it.Timeout); err != nil {
		return nil, err
	}
	html, err := s.it.Driver.OuterHTML(ctx, tab.Table)
	if err != nil {
		return nil, err
	}
	return ParseTable(html)
}

// ParseTable returns the text of every td cell, one slice per tr. Header rows yield empty slices.
func ParseTable(html string) (model.Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse table: %w", err)
	}
	table := model.Table{}
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := []string{}
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		table = append(table, cells)
	})
	return table, nil
}
