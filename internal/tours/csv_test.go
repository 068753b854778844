package tours

import (
	"strings"
	"testing"
)

func TestParseCSVBatch(t *testing.T) {
	in := strings.Join([]string{
		"name;street;postal;city;phone;items;cash;notes",
		"Anna Adler;Ahornweg 1;10115;Berlin;+49 30 123;2;12,50;klingeln",
		"Bernd Busch;Birkenweg 2;10117;Berlin",
		"",
	}, "\n")
	batch, err := ParseCSVBatch(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(batch.Candidates) != 2 {
		t.Fatalf("candidates = %d", len(batch.Candidates))
	}
	a := batch.Candidates[0]
	if a.CustomerName != "Anna Adler" || a.PostalCode != "10115" || a.Items != 2 {
		t.Fatalf("first candidate = %+v", a)
	}
	if a.CashAmount != 12.5 {
		t.Fatalf("comma decimal not handled: %v", a.CashAmount)
	}
	b := batch.Candidates[1]
	if b.Phone != "" || b.City != "Berlin" {
		t.Fatalf("short row = %+v", b)
	}
}

func TestParseCSVBatchWithoutHeader(t *testing.T) {
	batch, err := ParseCSVBatch(strings.NewReader("Clara Cramer;Cranachstr. 3;10119;Berlin\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(batch.Candidates) != 1 || batch.Candidates[0].CustomerName != "Clara Cramer" {
		t.Fatalf("candidates = %+v", batch.Candidates)
	}
}
