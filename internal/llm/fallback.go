package llm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/IliaW/name-check-worker/internal/model"
)

var stopWords = map[string]bool{
	"private": true, "limited": true, "ltd": true, "pvt": true, "company": true, "services": true,
}

// Fallback returns five suggestions derived from the base name without calling a model.
func Fallback(baseName string) []model.Suggestion {
	if strings.TrimSpace(baseName) == "" {
		baseName = "Business"
	}
	lower := strings.ToLower(baseName)
	switch {
	case strings.Contains(lower, "digital") || strings.Contains(lower, "tech"):
		return []model.Suggestion{
			{Name: "Digital Innovation Solutions Private Limited", Reason: "Emphasizes innovation in digital technology"},
			{Name: "Advanced Digital Services Private Limited", Reason: "Highlights advanced digital capabilities"},
			{Name: "Digital Excellence Partners Private Limited", Reason: "Focuses on excellence and partnership"},
			{Name: "NextGen Digital Solutions Private Limited", Reason: "Suggests next-generation digital services"},
			{Name: "Digital Transformation Hub Private Limited", Reason: "Emphasizes digital transformation expertise"},
		}
	case strings.Contains(lower, "bharat") || strings.Contains(lower, "india"):
		return []model.Suggestion{
			{Name: "Bharat Innovation Technologies Private Limited", Reason: "Combines Indian identity with technology focus"},
			{Name: "Digital Bharat Solutions Private Limited", Reason: "Maintains Bharat identity with solution focus"},
			{Name: "Bharat Tech Ventures Private Limited", Reason: "Emphasizes technology and business ventures"},
			{Name: "New Bharat Digital Private Limited", Reason: "Suggests modern digital services for India"},
			{Name: "Bharat Excellence Services Private Limited", Reason: "Focuses on service excellence with Indian identity"},
		}
	}

	keyword := "Business"
	for _, w := range strings.Fields(lower) {
		if !stopWords[w] {
			r, size := utf8.DecodeRuneInString(w)
			keyword = string(unicode.ToUpper(r)) + w[size:]
			break
		}
	}
	return []model.Suggestion{
		{Name: keyword + " Solutions Private Limited", Reason: "Professional solution-focused approach"},
		{Name: "Advanced " + keyword + " Services Private Limited", Reason: "Emphasizes advanced service capabilities"},
		{Name: keyword + " Excellence Private Limited", Reason: "Focuses on excellence in the business domain"},
		{Name: "Professional " + keyword + " Partners Private Limited", Reason: "Highlights professional partnership approach"},
		{Name: keyword + " Innovation Hub Private Limited", Reason: "Suggests innovation and collaborative workspace"},
	}
}

// Validate drops suggestions equal to any of the original names, ignoring case and spacing, then tops
// the list up from the fallback set so that it holds between MinSuggestions and MaxSuggestions names.
func Validate(originals []string, suggestions []model.Suggestion, baseName string) []model.Suggestion {
	seen := make(map[string]bool, len(originals)+len(suggestions))
	for _, name := range originals {
		seen[fold(name)] = true
	}

	valid := make([]model.Suggestion, 0, MaxSuggestions)
	add := func(s model.Suggestion) {
		key := fold(s.Name)
		if key == "" || seen[key] || len(valid) == MaxSuggestions {
			return
		}
		seen[key] = true
		valid = append(valid, s)
	}
	for _, s := range suggestions {
		add(s)
	}
	if len(valid) < MinSuggestions {
		for _, s := range Fallback(baseName) {
			add(s)
		}
	}
	return valid
}

func fold(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
