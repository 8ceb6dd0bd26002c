package portal

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/browser"
)

const (
	PositionalPageSize = "positional"
	FitPageSize        = "fit"
)

// FormFiller drives the name reservation form up to the automatic name check.
type FormFiller struct {
	it  *browser.Interactor
	cfg *config.FormConfig
	log *slog.Logger
}

func NewFormFiller(it *browser.Interactor, cfg *config.FormConfig, log *slog.Logger) *FormFiller {
	return &FormFiller{it: it, cfg: cfg, log: log}
}

// Fill runs every form step in order and stops at the first failure. The form is never submitted.
func (f *FormFiller) Fill(ctx context.Context, name string, codes []string) error {
	f.log.Info("filling the name check form.", slog.String("name", name), slog.Any("codes", codes))
	steps := []func(context.Context) error{
		f.DismissDialog,
		f.SelectCompanyDetails,
		f.OpenCodeDialog,
		func(ctx context.Context) error { return f.SelectCodes(ctx, codes) },
		func(ctx context.Context) error { return f.EnterCompanyName(ctx, name) },
		f.TriggerNameCheck,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (f *FormFiller) DismissDialog(ctx context.Context) error {
	err := f.it.RunStep(ctx, browser.Step{
		Name: "dismiss_dialog",
		Action: func(ctx context.Context) error {
			return f.it.Click(ctx, OkButton, browser.WithStep("dismiss_dialog"))
		},
		Success: f.it.Is(ModalBackdrop, browser.Invisible),
		Failure: f.it.Is(OkButton, browser.Clickable),
	})
	if err != nil {
		return err
	}
	return browser.Sleep(ctx, 2*f.it.Settle)
}

func (f *FormFiller) SelectCompanyDetails(ctx context.Context) error {
	selections := []struct {
		step   string
		loc    browser.Locator
		option string
	}{
		{"select_company_type", TypeDropdown, f.cfg.CompanyType},
		{"select_company_class", ClassDropdown, f.cfg.CompanyClass},
		{"select_company_category", CategoryDropdown, f.cfg.CompanyCategory},
		{"select_company_sub_category", SubCategoryDropdown, f.cfg.CompanySubCategory},
	}
	for _, s := range selections {
		if err := f.it.Select(ctx, s.loc, s.option, browser.WithStep(s.step)); err != nil {
			return err
		}
		if err := browser.Sleep(ctx, f.it.Settle); err != nil {
			return err
		}
	}
	return nil
}

func (f *FormFiller) OpenCodeDialog(ctx context.Context) error {
	return f.it.RunStep(ctx, browser.Step{
		Name: "open_code_dialog",
		Action: func(ctx context.Context) error {
			return f.it.Click(ctx, CodeButton, browser.WithStep("open_code_dialog"))
		},
		Success: f.it.Is(CodeFilter, browser.Clickable),
		Failure: f.it.Is(CodeButton, browser.Clickable),
	})
}

// SelectCodes checks the row of every code in the dialog, then clicks Add once.
func (f *FormFiller) SelectCodes(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return &browser.AutomationError{Step: "select_codes", Msg: "no activity codes given", Err: ErrInvalidCode}
	}
	checkboxes := make([]browser.Locator, len(codes))
	for i, code := range codes {
		loc, err := CodeCheckbox(code)
		if err != nil {
			return &browser.AutomationError{Step: "select_codes", Msg: "bad activity code", Err: err}
		}
		checkboxes[i] = loc
	}

	for i, code := range codes {
		step := "select_code_" + code
		f.log.Info("selecting activity code.", slog.String("code", code))
		if err := f.it.SendText(ctx, CodeFilter, code, browser.WithStep(step)); err != nil {
			return err
		}
		if err := browser.Sleep(ctx, f.it.Settle); err != nil {
			return err
		}
		if err := f.choosePageSize(ctx, step, i, checkboxes[i]); err != nil {
			return err
		}
		if err := f.it.WaitFor(ctx, step, checkboxes[i], browser.Clickable, f.it.Timeout); err != nil {
			return err
		}
		checked, err := f.it.Driver.Checked(ctx, checkboxes[i])
		if err != nil {
			return err
		}
		if checked {
			f.log.Debug("activity code already checked.", slog.String("code", code))
		} else if err = f.it.Click(ctx, checkboxes[i], browser.WithStep(step)); err != nil {
			return err
		}
		if err = browser.Sleep(ctx, f.it.ScrollSettle); err != nil {
			return err
		}
	}

	if err := f.it.Click(ctx, CodeAddButton, browser.WithStep("add_codes")); err != nil {
		return err
	}
	return browser.Sleep(ctx, f.it.Settle)
}

func (f *FormFiller) choosePageSize(ctx context.Context, step string, index int, checkbox browser.Locator) error {
	sizes := f.pageSizes()
	if f.cfg.PageSizePolicy != FitPageSize {
		return f.selectPageSize(ctx, step, PositionalSize(sizes, index))
	}

	for _, size := range sizes {
		if err := f.selectPageSize(ctx, step, size); err != nil {
			return err
		}
		found, err := f.it.Observe(ctx, f.it.Settle, f.it.Is(checkbox, browser.Present))
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		f.log.Debug("activity code not on page.", slog.Int("page_size", size))
	}
	// the checkbox wait that follows reports the failure
	return nil
}

func (f *FormFiller) selectPageSize(ctx context.Context, step string, size int) error {
	if err := f.it.Select(ctx, CodePageSize, strconv.Itoa(size), browser.WithStep(step+"_page_size")); err != nil {
		return err
	}
	return browser.Sleep(ctx, f.it.ScrollSettle)
}

func (f *FormFiller) pageSizes() []int {
	sizes := slices.Clone(f.cfg.PageSizes)
	if len(sizes) == 0 {
		sizes = []int{10, 100}
	}
	slices.Sort(sizes)
	return sizes
}

// PositionalSize picks the page size for the code at index: the second code uses the smallest size,
// every other code the largest.
func PositionalSize(sizes []int, index int) int {
	if index == 1 {
		return sizes[0]
	}
	return sizes[len(sizes)-1]
}

func (f *FormFiller) EnterCompanyName(ctx context.Context, name string) error {
	normalized := NormalizeName(name, f.cfg.NameSuffix)
	f.log.Info("entering company name.", slog.String("name", normalized))
	if err := f.it.SendText(ctx, CompanyName, normalized, browser.WithStep("enter_company_name")); err != nil {
		return err
	}
	return browser.Sleep(ctx, f.it.Settle)
}

// TriggerNameCheck starts the portal's automatic name check.
func (f *FormFiller) TriggerNameCheck(ctx context.Context) error {
	if err := f.it.Click(ctx, AutoCheck, browser.WithStep("auto_check")); err != nil {
		return err
	}
	return browser.Sleep(ctx, 3*f.it.Settle)
}

// NormalizeName upper-cases the name and appends suffix when the name does not already carry it.
func NormalizeName(name, suffix string) string {
	name = strings.ToUpper(strings.Join(strings.Fields(name), " "))
	if name == "" {
		return ""
	}
	suffix = strings.ToUpper(strings.TrimSpace(suffix))
	if suffix == "" || strings.Contains(name, suffix) {
		return name
	}
	return name + " " + suffix
}
