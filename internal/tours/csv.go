package tours

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
)

// ParseCSVBatch reads a semicolon-separated delivery sheet export into an
// import batch. Expected columns: name;street;postal;city;phone;items;cash;notes.
// A header row is skipped when the first cell reads "name". Missing trailing
// columns are tolerated; the import pipeline's completeness test catches the rest.
func ParseCSVBatch(r io.Reader) (model.ImportBatch, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var batch model.ImportBatch
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.ImportBatch{}, fmt.Errorf("parse csv: %w", err)
		}
		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
				continue
			}
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		cand := model.ImportCandidate{CustomerName: strings.TrimSpace(rec[0])}
		if len(rec) > 1 {
			cand.Street = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 {
			cand.PostalCode = strings.TrimSpace(rec[2])
		}
		if len(rec) > 3 {
			cand.City = strings.TrimSpace(rec[3])
		}
		if len(rec) > 4 {
			cand.Phone = strings.TrimSpace(rec[4])
		}
		if len(rec) > 5 {
			if n, err := strconv.Atoi(strings.TrimSpace(rec[5])); err == nil {
				cand.Items = n
			}
		}
		if len(rec) > 6 {
			amount := strings.ReplaceAll(strings.TrimSpace(rec[6]), ",", ".")
			if f, err := strconv.ParseFloat(amount, 64); err == nil {
				cand.CashAmount = f
			}
		}
		if len(rec) > 7 {
			cand.Notes = strings.TrimSpace(rec[7])
		}
		batch.Candidates = append(batch.Candidates, cand)
	}
	return batch, nil
}
