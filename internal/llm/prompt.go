package llm

import (
	"strings"
	"text/template"

	"github.com/IliaW/name-check-worker/internal/model"
)

const systemPrompt = `You are a senior business naming consultant experienced with Indian company law and MCA registrations.

You will receive the raw conflict messages the MCA portal returned for a proposed name.

Your first task is to summarise the raw messages into a few crisp, user-friendly points that explain the core issue.
Your second task is to propose 5 alternative names that resolve the conflicts.

Every suggested name must:
- have a high chance of MCA approval
- avoid phonetic, visual and conceptual similarity to the conflicting names
- avoid protected trademark words
- keep the business focus of the original name

Respond with a single JSON object and nothing else:
{"summarized_conflicts": ["..."], "recommended_names": [{"name": "...", "reason": "..."}]}
recommended_names must hold between 3 and 7 entries.`

var userPrompt = template.Must(template.New("user").Parse(
	`A client wants to register a {{.CheckType}} with the name "{{.BaseName}}" but it has conflicts.

RAW CONFLICT MESSAGES FROM PORTAL:
{{range .Messages}}- {{.}}
{{end}}
{{- if .SimilarNames}}
SIMILAR EXISTING NAMES:
{{range .SimilarNames}}- {{.}}
{{end}}{{end}}
{{- if .TrademarkWords}}
TRADEMARKED WORDS:
{{range .TrademarkWords}}- {{.}}
{{end}}{{end}}
TASK:
1. Summarise the key issues from the raw messages above into a clear, concise list.
2. Suggest 5 alternative {{.CheckType}} names that resolve the conflicts.`))

// maxContextNames keeps the prompt small.
const maxContextNames = 20

func buildUserPrompt(req model.SuggestionRequest) (string, error) {
	data := req
	if data.CheckType == "" {
		data.CheckType = "company"
	}
	data.SimilarNames = truncate(data.SimilarNames, maxContextNames)
	data.TrademarkWords = truncate(data.TrademarkWords, maxContextNames)

	var sb strings.Builder
	if err := userPrompt.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func truncate(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
