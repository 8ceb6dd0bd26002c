package analyser

import (
	"fmt"

	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/tidwall/gjson"
)

// Decode reads conflict data posted by a caller. The errors tab may be given as "error" or "error_list",
// and its rows either as cell arrays or as objects with severity, subject and message fields.
func Decode(raw []byte) (model.ScrapeRecord, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformedRow)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedRow)
	}

	record := model.ScrapeRecord{}
	errs := doc.Get("error")
	if !errs.Exists() {
		errs = doc.Get("error_list")
	}
	if errs.Exists() {
		record[model.ErrorTab] = decodeTable(errs, func(row gjson.Result) []string {
			severity := row.Get("severity").String()
			if severity == "" {
				severity = "info"
			}
			return []string{
				severity,
				row.Get("subject").String(),
				row.Get("message").String(),
			}
		})
	}
	for _, key := range []model.TabKey{model.NameSimilarityTab, model.TrademarkTab} {
		if v := doc.Get(string(key)); v.Exists() {
			record[key] = decodeTable(v, func(row gjson.Result) []string {
				return []string{row.Get("name").String()}
			})
		}
	}
	return record, nil
}

func decodeTable(v gjson.Result, object func(gjson.Result) []string) model.Table {
	table := model.Table{}
	for _, row := range v.Array() {
		switch {
		case row.IsArray():
			cells := []string{}
			for _, cell := range row.Array() {
				cells = append(cells, cell.String())
			}
			table = append(table, cells)
		case row.IsObject():
			table = append(table, object(row))
		}
	}
	return table
}
