package rowengine

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rowtriage/rowquery/cellvalue"
	"github.com/rowtriage/rowquery/table"
)

// sortValue is one row's rendering of the sort column, resolved once
// before comparisons (spec §4.F step 9).
type sortValue struct {
	present bool
	text    string
	isNum   bool
	num     float64
}

func buildSortValues(tbl table.Table, col string, n int) []sortValue {
	values := make([]sortValue, n)
	for row := 0; row < n; row++ {
		cell, ok := tbl.CellValue(col, row)
		if !ok {
			continue
		}
		text, present := cellvalue.ToSearchString(cell)
		if !present {
			continue
		}
		values[row].present = true
		values[row].text = text
		stripped := stripThousandsSeparators(text)
		if f, err := strconv.ParseFloat(stripped, 64); err == nil {
			values[row].isNum = true
			values[row].num = f
		}
	}
	return values
}

// stripThousandsSeparators removes the separators spec §4.F step 9 names:
// comma and non-breaking space.
func stripThousandsSeparators(s string) string {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// lessSortValue compares two sort values. If either side parses as a
// number, the comparison is numeric with the non-numeric side treated as
// +Inf; otherwise it is a case-insensitive string compare where presence
// sorts greater than absence. This intentional asymmetry (numeric missing
// sorts last, string missing sorts first) is carried as specified.
func lessSortValue(a, b sortValue) bool {
	if a.isNum || b.isNum {
		av, bv := math.Inf(1), math.Inf(1)
		if a.isNum {
			av = a.num
		}
		if b.isNum {
			bv = b.num
		}
		return av < bv
	}
	if a.present != b.present {
		return !a.present
	}
	if !a.present {
		return false
	}
	return strings.ToLower(a.text) < strings.ToLower(b.text)
}

// sortIndices returns a permutation of 0..n-1 ordered by sortKey (a column
// name; empty means "no sort"), stable with respect to insertion order
// whenever two rows compare equal.
func sortIndices(tbl table.Table, n int, sortKey string, desc bool) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if sortKey == "" {
		return indices
	}
	values := buildSortValues(tbl, sortKey, n)
	sort.SliceStable(indices, func(i, j int) bool {
		vi, vj := values[indices[i]], values[indices[j]]
		if desc {
			return lessSortValue(vj, vi)
		}
		return lessSortValue(vi, vj)
	})
	return indices
}
