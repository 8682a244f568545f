package lookup

import (
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"

	"icdlookup/internal"
	"icdlookup/internal/schema"
)

func rec(code, short, long string) internal.CanonicalRecord {
	return internal.CanonicalRecord{
		Code:             code,
		ShortDescription: short,
		LongDescription:  long,
		Category:         schema.CategoryFor(code),
		Chapter:          schema.ChapterFor(code),
	}
}

func diabetesTable() internal.CanonicalTable {
	return internal.CanonicalTable{Records: []internal.CanonicalRecord{
		rec("E119", "Type 2 diabetes mellitus without complications", "Type 2 diabetes mellitus without complications"),
		rec("E11", "Type 2 diabetes mellitus", "Type 2 diabetes mellitus"),
	}}
}

func codes(records []internal.CanonicalRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Code)
	}
	return out
}

func TestSearchExactCodeRanksFirst(t *testing.T) {
	page := Search(diabetesTable(), Query{Text: "E11", Page: 1, PageSize: 10})
	if page.TotalMatches != 2 {
		t.Fatalf("total=%d", page.TotalMatches)
	}
	if got := codes(page.Records); !reflect.DeepEqual(got, []string{"E11", "E119"}) {
		t.Fatalf("order=%v", got)
	}
}

func TestSearchNoMatches(t *testing.T) {
	page := Search(diabetesTable(), Query{Text: "asthma", Page: 1, PageSize: 10})
	if page.TotalMatches != 0 || len(page.Records) != 0 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Records == nil {
		t.Fatal("records should be an empty slice")
	}
}

func TestScoreRules(t *testing.T) {
	r := internal.CanonicalRecord{Code: "J45", ShortDescription: "Asthma, mild", LongDescription: "Mild intermittent asthma", Category: "J45"}
	cases := []struct {
		text string
		want int
	}{
		{text: "j45", want: 120 + 80 + 15},
		{text: "J4", want: 80 + 15},
		{text: "asthma", want: 70 + 50 + 25},
		{text: "asth", want: 50 + 25},
		{text: "intermittent", want: 25},
		{text: "pneumonia", want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			if got := Score(r, tc.text); got != tc.want {
				t.Fatalf("Score(%q)=%d want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestScoreExactCodeBeatsLongOnly(t *testing.T) {
	a := internal.CanonicalRecord{Code: "R05", ShortDescription: "Cough", Category: "R05"}
	b := internal.CanonicalRecord{Code: "J20", ShortDescription: "Acute bronchitis", LongDescription: "bronchitis with r05 listed", Category: "J20"}
	if Score(a, "r05") <= Score(b, "r05") {
		t.Fatalf("exact code should outrank long description hit: %d vs %d", Score(a, "r05"), Score(b, "r05"))
	}
}

func TestSearchTieBreakByCode(t *testing.T) {
	table := internal.CanonicalTable{Records: []internal.CanonicalRecord{
		rec("k21", "Reflux disease", ""),
		rec("B20", "HIV disease", ""),
		rec("a08", "Viral intestinal disease", ""),
	}}
	page := Search(table, Query{Text: "disease", Page: 1, PageSize: 10})
	if got := codes(page.Records); !reflect.DeepEqual(got, []string{"a08", "B20", "k21"}) {
		t.Fatalf("order=%v", got)
	}
}

func TestSearchBrowseAndPagination(t *testing.T) {
	var table internal.CanonicalTable
	for i := 0; i < 25; i++ {
		table.Records = append(table.Records, rec(fmt.Sprintf("Z%02d", 24-i), "record", ""))
	}

	first := Search(table, Query{Page: 1, PageSize: 10})
	if first.TotalMatches != 25 || len(first.Records) != 10 {
		t.Fatalf("page1 total=%d len=%d", first.TotalMatches, len(first.Records))
	}
	if first.Records[0].Code != "Z24" {
		t.Fatalf("browse mode must keep table order, got %s", first.Records[0].Code)
	}

	third := Search(table, Query{Page: 3, PageSize: 10})
	if len(third.Records) != 5 || third.Records[4].Code != "Z00" {
		t.Fatalf("page3=%v", codes(third.Records))
	}

	beyond := Search(table, Query{Page: 7, PageSize: 10})
	if beyond.TotalMatches != 25 || len(beyond.Records) != 0 || beyond.Page != 7 {
		t.Fatalf("out of range page should be empty and unclamped: %+v", beyond)
	}
}

func TestSearchHugePageValues(t *testing.T) {
	table := diabetesTable()
	cases := []Query{
		{Page: 2, PageSize: math.MaxInt},
		{Page: math.MaxInt, PageSize: 30},
		{Page: math.MaxInt, PageSize: math.MaxInt},
	}
	for _, q := range cases {
		page := Search(table, q)
		if page.TotalMatches != 2 || len(page.Records) != 0 {
			t.Fatalf("query=%+v page=%+v", q, page)
		}
	}
	all := Search(table, Query{Page: 1, PageSize: math.MaxInt})
	if len(all.Records) != 2 {
		t.Fatalf("len=%d", len(all.Records))
	}
}

func TestSearchPageDefaults(t *testing.T) {
	page := Search(diabetesTable(), Query{Page: 0, PageSize: 0})
	if page.Page != 1 || page.PageSize != DefaultPageSize || len(page.Records) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestSearchExactPrefixKeepsTableOrder(t *testing.T) {
	table := internal.CanonicalTable{Records: []internal.CanonicalRecord{
		rec("E119", "Type 2 diabetes", ""),
		rec("I10", "Essential hypertension", ""),
		rec("E11", "Type 2 diabetes mellitus", ""),
		rec("XE11", "code containing e11 later", ""),
	}}
	page := Search(table, Query{Text: "e11", ExactPrefix: true, Page: 1, PageSize: 10})
	if got := codes(page.Records); !reflect.DeepEqual(got, []string{"E119", "E11"}) {
		t.Fatalf("order=%v", got)
	}
}

func TestSearchFacetThenText(t *testing.T) {
	table := internal.CanonicalTable{Records: []internal.CanonicalRecord{
		rec("E119", "Type 2 diabetes mellitus without complications", ""),
		rec("E109", "Type 1 diabetes mellitus without complications", ""),
		rec("O2412", "Pre-existing type 2 diabetes mellitus, in childbirth", ""),
		rec("E1165", "Type 2 diabetes mellitus with hyperglycemia", ""),
	}}
	page := Search(table, Query{Text: "type 2", CategoryFilter: "e11", Page: 1, PageSize: 10})
	if got := codes(page.Records); !reflect.DeepEqual(got, []string{"E1165", "E119"}) {
		t.Fatalf("codes=%v", got)
	}
	for _, r := range page.Records {
		if Score(r, "type 2") <= 0 {
			t.Fatalf("%s returned with zero score", r.Code)
		}
	}
}

func TestSearchChapterFilter(t *testing.T) {
	table := internal.CanonicalTable{Records: []internal.CanonicalRecord{
		rec("E119", "Type 2 diabetes", ""),
		rec("J45", "Asthma", ""),
	}}
	page := Search(table, Query{ChapterFilter: "Respiratory System", Page: 1, PageSize: 10})
	if got := codes(page.Records); !reflect.DeepEqual(got, []string{"J45"}) {
		t.Fatalf("codes=%v", got)
	}
	lower := Search(table, Query{ChapterFilter: "respiratory system", Page: 1, PageSize: 10})
	if lower.TotalMatches != 0 {
		t.Fatal("chapter filter is case-sensitive")
	}
	for _, sentinel := range []string{"all", "All", "All Chapters"} {
		all := Search(table, Query{ChapterFilter: sentinel, Page: 1, PageSize: 10})
		if all.TotalMatches != 2 {
			t.Fatalf("sentinel %q filtered records", sentinel)
		}
	}
}

func TestSearchEmptyTable(t *testing.T) {
	page := Search(internal.CanonicalTable{}, Query{Text: "anything", Page: 3, PageSize: 5})
	if page.TotalMatches != 0 || len(page.Records) != 0 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestSearchConcurrentReaders(t *testing.T) {
	table := diabetesTable()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page := Search(table, Query{Text: "diabetes", Page: 1, PageSize: 10})
			if page.TotalMatches != 2 {
				t.Errorf("total=%d", page.TotalMatches)
			}
		}()
	}
	wg.Wait()
}
