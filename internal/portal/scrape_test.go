package portal_test

import (
	"context"
	"testing"

	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/IliaW/name-check-worker/internal/portal"
	"github.com/IliaW/name-check-worker/internal/portal/portaltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const errorTable = `<table id="errorTable">
<tr><th>Type</th><th>Field</th><th>Message</th></tr>
<tr><td> Error </td><td>Name</td><td>Name is too similar to an existing company</td></tr>
<tr><td>Info</td><td>Name</td><td>Check completed</td></tr>
</table>`

const similarityTable = `<table id="nameSimilarityAlertsTable">
<tr><th>Name</th><th>Score</th></tr>
<tr><td>ACME ROBOTICS PRIVATE LIMITED</td><td>98%</td></tr>
</table>`

func TestParseTable(t *testing.T) {
	table, err := portal.ParseTable(errorTable)

	require.NoError(t, err)
	assert.Equal(t, model.Table{
		{},
		{"Error", "Name", "Name is too similar to an existing company"},
		{"Info", "Name", "Check completed"},
	}, table)
}

func TestParseTableEmpty(t *testing.T) {
	table, err := portal.ParseTable(`<table></table>`)

	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestScrapeAllIsolatesTabs(t *testing.T) {
	cfg := testConfig(t)
	p := portaltest.New(cfg, true)
	p.Results = map[model.TabKey]string{
		model.ErrorTab:          errorTable,
		model.NameSimilarityTab: similarityTable,
	}
	require.NoError(t, p.Navigate(context.Background(), cfg.Meta.URL))
	require.NoError(t, p.Click(context.Background(), portal.AutoCheck))

	record := portal.NewScraper(interactor(cfg, p), discard).ScrapeAll(context.Background())

	require.Len(t, record, 3)
	assert.Len(t, record[model.ErrorTab], 3)
	assert.Equal(t, []string{"ACME ROBOTICS PRIVATE LIMITED", "98%"}, record[model.NameSimilarityTab][1])
	assert.Nil(t, record[model.TrademarkTab])
	assert.True(t, record.Present(model.ErrorTab))
}
