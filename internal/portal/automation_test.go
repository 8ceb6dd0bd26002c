package portal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/IliaW/name-check-worker/internal/portal"
	"github.com/IliaW/name-check-worker/internal/portal/portaltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	cfg := testConfig(t)
	cfg.Meta.NicCode = "62011,62013"
	p := portaltest.New(cfg, false)
	p.Codes = map[string]int{"62011": 10, "62013": 10}
	p.Results = map[model.TabKey]string{model.ErrorTab: errorTable, model.NameSimilarityTab: similarityTable}
	solver := &portaltest.Solver{}

	record, err := portal.NewAutomation(p.Factory(), solver, nil, discard).Check(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, 1, solver.Calls())
	assert.Len(t, record[model.ErrorTab], 3)
	assert.Len(t, record[model.NameSimilarityTab], 2)
	assert.Nil(t, record[model.TrademarkTab])
	assert.Equal(t, "ACME ROBOTICS PRIVATE LIMITED", p.Element(portal.CompanyName).Value)
	assert.True(t, p.Closed())
}

func TestOpenWithPersistedSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.Username, cfg.Password = "", ""
	p := portaltest.New(cfg, true)
	solver := &portaltest.Solver{}

	page, err := portal.NewAutomation(p.Factory(), solver, nil, discard).Open(context.Background(), cfg)

	require.NoError(t, err)
	defer page.Close()
	assert.Equal(t, portal.AlreadyAuthenticated, page.State)
	assert.Zero(t, solver.Calls())
	assert.False(t, p.Closed())
}

func TestOpenClosesSessionOnLoginFailure(t *testing.T) {
	cfg := testConfig(t)
	p := portaltest.New(cfg, false)
	p.StuckAfterLogin = true

	_, err := portal.NewAutomation(p.Factory(), &portaltest.Solver{}, nil, discard).Open(context.Background(), cfg)

	require.ErrorIs(t, err, browser.ErrAutomation)
	assert.True(t, p.Closed())
}

func TestOpenSessionFailure(t *testing.T) {
	cfg := testConfig(t)
	factory := func(context.Context, *config.Config) (browser.Driver, error) {
		return nil, errors.New("chrome not found")
	}

	_, err := portal.NewAutomation(factory, &portaltest.Solver{}, nil, discard).Open(context.Background(), cfg)

	var automation *browser.AutomationError
	require.ErrorAs(t, err, &automation)
	assert.Equal(t, "open_session", automation.Step)
}

func TestCheckClosesSessionOnFormFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Meta.NicCode = "99999"
	p := portaltest.New(cfg, true)

	_, err := portal.NewAutomation(p.Factory(), &portaltest.Solver{}, nil, discard).Check(context.Background(), cfg)

	require.Error(t, err)
	assert.True(t, p.Closed())
	assert.Positive(t, p.Count("Screenshot"))
}
