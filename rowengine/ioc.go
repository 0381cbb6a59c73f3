package rowengine

import (
	"strings"

	"github.com/rowtriage/rowquery/cellvalue"
	"github.com/rowtriage/rowquery/flagkind"
	"github.com/rowtriage/rowquery/flagstore"
	"github.com/rowtriage/rowquery/ioc"
	"github.com/rowtriage/rowquery/search"
	"github.com/rowtriage/rowquery/table"
)

// buildIocFlagVector rebuilds the project's IOC flag vector (spec §4.F step
// 7). rules must already be sorted by descending severity rank. A row gets
// a rule's flag only while its user flag and its IOC flag are both still
// None and the rule's mask is true for that row.
func buildIocFlagVector(rules []ioc.Rule, userFlags []flagkind.Kind, rowText []string, perColumn search.ColumnText) []flagkind.Kind {
	n := len(rowText)
	out := make([]flagkind.Kind, n)
	for _, rule := range rules {
		tokens := search.Tokenize(rule.Query)
		terms := search.CollectTerms(tokens)
		if len(terms) == 0 {
			continue
		}
		rpn := search.ToRPN(tokens)
		mask := search.EvaluateMask(rpn, terms, rowText, perColumn)
		flag := flagkind.Normalize(string(rule.Flag))
		for row := 0; row < n; row++ {
			if userFlags[row].IsSet() || out[row].IsSet() || !mask[row] {
				continue
			}
			out[row] = flag
		}
	}
	return out
}

// rowContainsQuery evaluates a single boolean query against one row of tbl,
// building the row's text and per-column text on the fly. It mirrors the
// vectorised evaluator in mask.go but is used where only one row's result
// is needed: composing memo tags for a page and recomputing
// ioc_applied_records.
func rowContainsQuery(tbl table.Table, row int, query string) bool {
	if strings.TrimSpace(query) == "" {
		return false
	}
	tokens := search.Tokenize(query)
	terms := search.CollectTerms(tokens)
	if len(terms) == 0 {
		return false
	}

	var rowText string
	perColumn := make(search.ColumnText)
	for _, col := range tbl.ColumnNames() {
		value, ok := tbl.CellValue(col, row)
		if !ok {
			continue
		}
		text, present := cellvalue.ToSearchString(value)
		if !present {
			continue
		}
		lower := strings.ToLower(text)
		if lower == "" {
			continue
		}
		if rowText != "" {
			rowText += " "
		}
		rowText += lower
		perColumn[strings.ToLower(col)] = []string{lower}
	}
	if rowText == "" {
		return false
	}

	rpn := search.ToRPN(tokens)
	mask := search.EvaluateMask(rpn, terms, []string{rowText}, perColumn)
	return len(mask) > 0 && mask[0]
}

// composeMemo builds the memo for one row (spec §4.F step 12). When the
// row has a user flag, the user memo is returned verbatim; IOC tags are
// only appended when the user flag is None, deduplicated by the
// already-bracketed tag text.
func composeMemo(tbl table.Table, row int, userEntry flagstore.Entry, rules []ioc.Rule) string {
	if userEntry.Flag.IsSet() {
		return userEntry.Memo
	}
	memo := userEntry.Memo
	for _, rule := range rules {
		if rule.Tag == "" {
			continue
		}
		if !rowContainsQuery(tbl, row, rule.Query) {
			continue
		}
		token := "[" + rule.Tag + "]"
		if strings.Contains(memo, token) {
			continue
		}
		if memo != "" && !strings.HasSuffix(memo, " ") {
			memo += " "
		}
		memo += token
	}
	return strings.TrimSpace(memo)
}

// countIocApplied is the full-scan recomputation of ioc_applied_records:
// the number of rows with a None user flag that match at least one IOC
// rule (spec §4.F, "Mutations").
func countIocApplied(tbl table.Table, rules []ioc.Rule, flags map[int]flagstore.Entry) int {
	if len(rules) == 0 {
		return 0
	}
	count := 0
	for row := 0; row < tbl.RowCount(); row++ {
		if flags[row].Flag.IsSet() {
			continue
		}
		for _, rule := range rules {
			if rowContainsQuery(tbl, row, rule.Query) {
				count++
				break
			}
		}
	}
	return count
}
