package ioc

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/rowtriage/rowquery/apperror"
	"github.com/rowtriage/rowquery/flagkind"
)

var csvHeader = []string{"flag", "tag", "query"}

// ReadCSV parses the IOC CSV format (header "flag,tag,query") from r. Rows
// with an empty query are dropped, matching read_ioc_csv. Rows shorter than
// 3 fields are padded with empty strings rather than erroring.
func ReadCSV(r io.Reader) ([]Rule, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ParseError, "reading IOC CSV header")
	}
	_ = header

	var rules []Rule
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperror.Wrap(err, apperror.ParseError, "reading IOC CSV row")
		}
		rule := Rule{
			Flag:  flagkind.Normalize(field(record, 0)),
			Tag:   strings.TrimSpace(field(record, 1)),
			Query: strings.TrimSpace(field(record, 2)),
		}
		if rule.Query == "" {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

// WriteCSV emits rules in the IOC CSV format, header first. It does not
// normalise rules; callers pass an already-normalised set.
func WriteCSV(w io.Writer, rules []Rule) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return errors.Wrap(err, "writing IOC CSV header")
	}
	for _, r := range rules {
		record := []string{string(r.Flag), r.Tag, r.Query}
		if err := writer.Write(record); err != nil {
			return errors.Wrap(err, "writing IOC CSV row")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "flushing IOC CSV writer")
	}
	return nil
}
