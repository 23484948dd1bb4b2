package classify

import (
	"context"
	"errors"
	"testing"

	"clinicsync/crm"
)

func TestClassify_ProntuarioWinsOverTaxID(t *testing.T) {
	t.Parallel()

	index := BuildIndex([]Existing{
		{ID: 10, Prontuario: "P1"},
		{ID: 20, TaxID: "12345678900"},
	})

	got := index.Classify(crm.Persona{
		Prontuario: crm.StringPtr("P1"),
		TaxID:      crm.StringPtr("123.456.789-00"),
	})
	if got.Status != StatusExisting || got.ID != 10 {
		t.Fatalf("expected existing id 10 via prontuario, got %+v", got)
	}
	if got.MatchedBy != "prontuario" {
		t.Fatalf("expected match by prontuario, got %q", got.MatchedBy)
	}
}

func TestClassify_FallsBackToTaxID(t *testing.T) {
	t.Parallel()

	index := BuildIndex([]Existing{{ID: 20, TaxID: "012.345.678-90"}})

	got := index.Classify(crm.Persona{
		Prontuario: crm.StringPtr("unknown"),
		TaxID:      crm.StringPtr("1234567890"),
	})
	if got.Status != StatusExisting || got.ID != 20 {
		t.Fatalf("expected existing id 20 via cpf, got %+v", got)
	}
}

func TestClassify_NewWithoutKeys(t *testing.T) {
	t.Parallel()

	index := BuildIndex([]Existing{{ID: 1, Prontuario: "P1", TaxID: "11111111111"}})

	got := index.Classify(crm.Persona{Name: crm.StringPtr("Ana")})
	if got.Status != StatusNew {
		t.Fatalf("expected new, got %s", got.Status)
	}
}

func TestIndexAdd_KeepsFirstID(t *testing.T) {
	t.Parallel()

	index := NewIndex()
	index.Add(1, " P9 ", "")
	index.Add(2, "P9", "")

	got := index.Classify(crm.Persona{Prontuario: crm.StringPtr("P9")})
	if got.ID != 1 {
		t.Fatalf("expected first id to win, got %d", got.ID)
	}
}

type pagedSource struct {
	records []Existing
	calls   []int
	failAt  int
}

func (s *pagedSource) FetchExistingIdentities(_ context.Context, pageSize, offset int) ([]Existing, error) {
	s.calls = append(s.calls, offset)
	if s.failAt > 0 && offset >= s.failAt {
		return nil, errors.New("connection reset")
	}
	if offset >= len(s.records) {
		return nil, nil
	}
	end := offset + pageSize
	if end > len(s.records) {
		end = len(s.records)
	}
	return s.records[offset:end], nil
}

func TestLoadIndex_PagesUntilShortPage(t *testing.T) {
	t.Parallel()

	source := &pagedSource{}
	for i := 1; i <= 5; i++ {
		source.records = append(source.records, Existing{ID: int64(i), Prontuario: "P" + string(rune('0'+i))})
	}

	index, err := LoadIndex(context.Background(), source, 2)
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if len(source.calls) != 3 {
		t.Fatalf("expected 3 page reads, got %v", source.calls)
	}
	if got := index.Classify(crm.Persona{Prontuario: crm.StringPtr("P5")}); got.ID != 5 {
		t.Fatalf("expected P5 to resolve to id 5, got %+v", got)
	}
}

func TestLoadIndex_PropagatesSourceError(t *testing.T) {
	t.Parallel()

	source := &pagedSource{records: make([]Existing, 4), failAt: 2}
	if _, err := LoadIndex(context.Background(), source, 2); err == nil {
		t.Fatalf("expected error from failing source")
	}
}

func TestTaxIDKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"123.456.789-00": "12345678900",
		"1234":           "00000001234",
		"abc":            "",
		"":               "",
	}
	for input, want := range tests {
		if got := TaxIDKey(input); got != want {
			t.Fatalf("TaxIDKey(%q): want %q, got %q", input, want, got)
		}
	}
}
