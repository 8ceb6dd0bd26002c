package browser

import (
	"fmt"
)

type Strategy string

const (
	ByID    Strategy = "id"
	ByCSS   Strategy = "css"
	ByXPath Strategy = "xpath"
	ByClass Strategy = "class"
)

// Locator identifies an element on the page. Name is used in logs and screenshot file names.
type Locator struct {
	By       Strategy
	Selector string
	Name     string
}

func ID(name, id string) Locator { return Locator{By: ByID, Selector: id, Name: name} }
func CSS(name, selector string) Locator { return Locator{By: ByCSS, Selector: selector, Name: name} }
func XPath(name, expr string) Locator { return Locator{By: ByXPath, Selector: expr, Name: name} }
func Class(name, class string) Locator { return Locator{By: ByClass, Selector: class, Name: name} }

func (l Locator) String() string {
	if l.Name != "" {
		return fmt.Sprintf("%s(%s=%s)", l.Name, l.By, l.Selector)
	}
	return fmt.Sprintf("%s=%s", l.By, l.Selector)
}

// Key identifies the element independent of its display name.
func (l Locator) Key() string {
	return string(l.By) + "=" + l.Selector
}

func (l Locator) step(prefix string) string {
	if l.Name != "" {
		return prefix + "_" + l.Name
	}
	return prefix
}

type Condition int

const (
	Present Condition = iota
	Clickable
	Invisible
)

func (c Condition) String() string {
	return [...]string{"present", "clickable", "invisible"}[c]
}

// ElementState is a snapshot of an element. An absent element has every field false.
type ElementState struct {
	Present bool
	Visible bool
	Enabled bool
}

func (s ElementState) satisfies(c Condition) bool {
	switch c {
	case Present:
		return s.Present
	case Clickable:
		return s.Present && s.Visible && s.Enabled
	case Invisible:
		return !s.Present || !s.Visible
	}
	return false
}
