// Package portaltest scripts a fake portal on top of browsertest.Driver.
package portaltest

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/IliaW/name-check-worker/internal/browser/browsertest"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/IliaW/name-check-worker/internal/portal"
)

const CaptchaAnswer = "X7K2P"

// Portal reproduces the login, form and result pages of the portal.
type Portal struct {
	*browsertest.Driver
	cfg *config.Config

	mu       sync.Mutex
	loggedIn bool
	// HomeRedirect sends the login page to the home page, as the portal does for signed-in users.
	HomeRedirect bool
	// StuckAfterLogin keeps the browser on the login page after a correct CAPTCHA.
	StuckAfterLogin bool
	Codes           map[string]int
	// Results holds the table markup per tab. A missing key leaves the tab off the page.
	Results map[model.TabKey]string
}

// New returns a fake portal for cfg. Codes maps each activity code to the smallest page size that shows it.
func New(cfg *config.Config, loggedIn bool) *Portal {
	p := &Portal{
		Driver:   browsertest.New(),
		cfg:      cfg,
		loggedIn: loggedIn,
		Codes:    map[string]int{},
		Results:  map[model.TabKey]string{},
	}
	p.OnNavigate = p.navigate
	return p
}

func (p *Portal) LoggedIn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loggedIn
}

func (p *Portal) navigate(d *browsertest.Driver, url string) {
	p.mu.Lock()
	loggedIn := p.loggedIn
	p.mu.Unlock()

	switch {
	case url == p.cfg.Meta.URL && !loggedIn:
		d.SetURL(p.cfg.PortalSettings.LoginURL)
		p.showLogin()
	case url == p.cfg.Meta.URL:
		p.showForm()
	case url == p.cfg.PortalSettings.LoginURL && p.HomeRedirect:
		d.SetURL(p.cfg.PortalSettings.HomeURL)
		p.mu.Lock()
		p.loggedIn = true
		p.mu.Unlock()
	case url == p.cfg.PortalSettings.LoginURL:
		p.showLogin()
	}
}

func (p *Portal) showLogin() {
	p.Set(portal.PasswordField, browsertest.Live())
	img := p.Set(portal.CaptchaImage, browsertest.Live())
	img.Image = []byte("captcha-png")
	p.Set(portal.UsernameInput, browsertest.Live())
	p.Set(portal.PasswordInput, browsertest.Live())
	p.Set(portal.CaptchaInput, browsertest.Live())
	p.Set(portal.CaptchaError, &browsertest.Element{})

	refresh := p.Set(portal.CaptchaRefresh, browsertest.Live())
	refresh.OnClick = func(d *browsertest.Driver) {
		d.Update(portal.CaptchaError, func(el *browsertest.Element) { el.Visible = false })
	}

	submit := p.Set(portal.LoginSubmit, browsertest.Live())
	submit.OnClick = func(d *browsertest.Driver) {
		if d.Element(portal.CaptchaInput).Value != CaptchaAnswer {
			d.Update(portal.CaptchaError, func(el *browsertest.Element) {
				el.Present, el.Visible, el.Text = true, true, "The captcha entered is incorrect"
			})
			return
		}
		if p.StuckAfterLogin {
			return
		}
		p.mu.Lock()
		p.loggedIn = true
		p.mu.Unlock()
		d.SetURL(p.cfg.PortalSettings.ApplicationHistoryURL)
	}
}

func (p *Portal) showForm() {
	p.Set(portal.ModalBackdrop, browsertest.Live())
	ok := p.Set(portal.OkButton, browsertest.Live())
	ok.OnClick = func(d *browsertest.Driver) {
		d.Remove(portal.ModalBackdrop)
		d.Remove(portal.OkButton)
	}

	for _, loc := range []browser.Locator{portal.TypeDropdown, portal.ClassDropdown, portal.CategoryDropdown,
		portal.SubCategoryDropdown} {
		p.Set(loc, browsertest.Live())
	}
	p.Update(portal.TypeDropdown, withOptions(p.cfg.FormSettings.CompanyType))
	p.Update(portal.ClassDropdown, withOptions(p.cfg.FormSettings.CompanyClass))
	p.Update(portal.CategoryDropdown, withOptions(p.cfg.FormSettings.CompanyCategory))
	p.Update(portal.SubCategoryDropdown, withOptions(p.cfg.FormSettings.CompanySubCategory))

	codeButton := p.Set(portal.CodeButton, browsertest.Live())
	codeButton.OnClick = func(*browsertest.Driver) { p.showCodeDialog() }

	p.Set(portal.CompanyName, browsertest.Live())
	check := p.Set(portal.AutoCheck, browsertest.Live())
	check.OnClick = func(*browsertest.Driver) { p.showResults() }
}

func withOptions(texts ...string) func(el *browsertest.Element) {
	return func(el *browsertest.Element) {
		for i, t := range texts {
			el.Options = append(el.Options, browsertest.Option{Value: string(rune('1' + i)), Text: t})
		}
	}
}

func (p *Portal) showCodeDialog() {
	p.Set(portal.CodeFilter, browsertest.Live())
	p.Set(portal.CodeAddButton, browsertest.Live())
	size := p.Set(portal.CodePageSize, browsertest.Live())
	size.Options = []browsertest.Option{{Value: "10", Text: "10"}, {Value: "100", Text: "100"}}
	size.OnChange = func(*browsertest.Driver) { p.showCodeRows() }
}

// showCodeRows lists the checkbox of every code whose row fits in the selected page size.
func (p *Portal) showCodeRows() {
	selected, _ := strconv.Atoi(p.Element(portal.CodePageSize).Value)
	for code, minSize := range p.Codes {
		loc, err := portal.CodeCheckbox(code)
		if err != nil {
			continue
		}
		shown := selected >= minSize
		p.Update(loc, func(el *browsertest.Element) {
			el.Present, el.Visible, el.Enabled, el.Toggle = shown, shown, true, true
		})
	}
}

func (p *Portal) showResults() {
	for _, tab := range portal.ResultTabs {
		html, ok := p.Results[tab.Key]
		if !ok {
			continue
		}
		p.Set(tab.Tab, browsertest.Live())
		table := p.Set(tab.Table, browsertest.Live())
		table.HTML = html
	}
}

// Factory returns a SessionFactory handing out p once.
func (p *Portal) Factory() portal.SessionFactory {
	var used bool
	var mu sync.Mutex
	return func(context.Context, *config.Config) (browser.Driver, error) {
		mu.Lock()
		defer mu.Unlock()
		if used {
			return nil, errors.New("fake portal already in use")
		}
		used = true
		return p, nil
	}
}

// Solver answers CAPTCHAs from a fixed list, then repeats the last answer.
type Solver struct {
	mu      sync.Mutex
	Answers []string
	Err     error
	calls   int
}

func (s *Solver) Solve(_ context.Context, image string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return "", s.Err
	}
	if image == "" {
		return "", errors.New("empty image")
	}
	if len(s.Answers) == 0 {
		return CaptchaAnswer, nil
	}
	i := min(s.calls, len(s.Answers)) - 1
	return strings.TrimSpace(s.Answers[i]), nil
}

func (s *Solver) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
