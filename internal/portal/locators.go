package portal

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/IliaW/name-check-worker/internal/model"
)

var (
	OkButton            = browser.ID("ok_button", "guideContainer-rootPanel-modal_container_copy-panel-guidebutton_65123201___widget")
	ModalBackdrop       = browser.Class("modal_backdrop", "modal-backdrop")
	TypeDropdown        = browser.ID("company_type", "guideContainer-rootPanel-panel_2017717670_cop-panel-guidedropdownlist___widget")
	ClassDropdown       = browser.ID("company_class", "guideContainer-rootPanel-panel_2017717670_cop-panel-guidedropdownlist_co___widget")
	CategoryDropdown    = browser.ID("company_category", "guideContainer-rootPanel-panel_2017717670_cop-panel-guidedropdownlist_co_1813708729___widget")
	SubCategoryDropdown = browser.ID("company_sub_category", "guideContainer-rootPanel-panel_2017717670_cop-panel-guidedropdownlist_co_175619313___widget")
	CodeButton          = browser.ID("nic_button", "guideContainer-rootPanel-panel_2017717670_cop-panel-panel_1663114232_cop-panel_1119548299-panel-mca_button_v2___widget")
	CodeFilter          = browser.ID("nic_search", "guideContainer-rootPanel-modal_container_1602-panel-panel-guidetextbox___widget")
	CodePageSize        = browser.ID("nic_page_size", "guideContainer-rootPanel-modal_container_1602-panel-customdropdown___widget")
	CodeAddButton       = browser.ID("nic_add", "guideContainer-rootPanel-modal_container_1602-panel-panel-guidebutton___widget")
	CompanyName         = browser.ID("company_name", "guideContainer-rootPanel-panel_2017717670_cop-panel_copy-panel-panel-guidetextbox_1884163___widget")
	AutoCheck           = browser.ID("auto_check", "guideContainer-rootPanel-panel_copy_222446296-guidebutton_copy_748_1005506464___widget")
	PasswordField       = browser.CSS("password_field", "input[type='password']")
	CaptchaImage        = browser.CSS("captcha_image", "img[src*='captcha']")
	CaptchaInput        = browser.ID("captcha_input", "customCaptchaInput")
	CaptchaRefresh      = browser.ID("captcha_refresh", "refresh-img")
	LoginButton         = browser.XPath("login_button", "//button[contains(text(),'Login') or @type='submit']")
	LoginSubmit         = browser.ID("login_submit", "guideContainer-rootPanel-panel_1846244155-submit___widget")
	CaptchaError        = browser.ID("captcha_error", "showResult")
	UsernameInput       = browser.ID("username", "guideContainer-rootPanel-panel_1846244155-guidetextbox___widget")
	PasswordInput       = browser.ID("password", "guideContainer-rootPanel-panel_1846244155-guidepasswordbox___widget")
)

// ResultTab pairs a result tab with the table it reveals.
type ResultTab struct {
	Key   model.TabKey
	Tab   browser.Locator
	Table browser.Locator
}

var ResultTabs = []ResultTab{
	{
		Key:   model.ErrorTab,
		Tab:   browser.XPath("error_tab", "//a[.//span[text()='Errors/Info']]"),
		Table: browser.ID("error_table", "errorTable"),
	},
	{
		Key:   model.NameSimilarityTab,
		Tab:   browser.XPath("name_similarity_tab", "//a[.//span[text()='Name Similarity Alerts']]"),
		Table: browser.ID("name_similarity_table", "nameSimilarityAlertsTable"),
	},
	{
		Key:   model.TrademarkTab,
		Tab:   browser.ID("trademark_tab", "guideContainer-rootPanel-panel_2017717670_cop-panel_672096424-panel_copy-panel1629804157135___guide-item-nav"),
		Table: browser.ID("trademark_table", "guideContainer-rootPanel-panel_2017717670_cop-panel_672096424-panel_copy-panel1629804157135__"),
	},
}

var (
	ErrInvalidCode = errors.New("invalid activity code")
	codePattern    = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// CodeCheckbox locates the row checkbox of an activity code in the code dialog.
func CodeCheckbox(code string) (browser.Locator, error) {
	if !codePattern.MatchString(code) {
		return browser.Locator{}, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return browser.XPath("nic_checkbox_"+code, fmt.Sprintf("//input[@type='checkbox' and @value='%s']", code)), nil
}
