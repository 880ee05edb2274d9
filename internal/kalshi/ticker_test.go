package kalshi

import "testing"

func f(v float64) *float64 { return &v }

func TestParseBracket_Middle(t *testing.T) {
	raw := rawMarket{Ticker: "NYCHIGH-26FEB18-B55", FloorStrike: f(54), CapStrike: f(56), YesBid: 40, YesAsk: 45}
	b, err := parseBracket(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Label != "54-56" {
		t.Errorf("expected label '54-56', got %q", b.Label)
	}
	if *b.LowerBoundF != 54 || *b.UpperBoundF != 56 {
		t.Errorf("unexpected bounds: %v %v", *b.LowerBoundF, *b.UpperBoundF)
	}
}

func TestParseBracket_BottomEdge(t *testing.T) {
	raw := rawMarket{Ticker: "NYCHIGH-26FEB18-B50", CapStrike: f(50)}
	b, err := parseBracket(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Label != "Below 51" {
		t.Errorf("expected label 'Below 51', got %q", b.Label)
	}
	if b.LowerBoundF != nil {
		t.Errorf("expected nil lower bound, got %v", *b.LowerBoundF)
	}
}

func TestParseBracket_TopEdge(t *testing.T) {
	raw := rawMarket{Ticker: "NYCHIGH-26FEB18-B90", FloorStrike: f(90)}
	b, err := parseBracket(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Label != "90 or above" {
		t.Errorf("expected label '90 or above', got %q", b.Label)
	}
	if b.UpperBoundF != nil {
		t.Errorf("expected nil upper bound, got %v", *b.UpperBoundF)
	}
}

func TestParseBracket_NeitherBoundIsError(t *testing.T) {
	raw := rawMarket{Ticker: "BROKEN"}
	_, err := parseBracket(raw)
	if err == nil {
		t.Error("expected error for bracket with neither floor nor cap strike")
	}
}

func TestParseEvent_SkipsUnparseableBracketsButKeepsRest(t *testing.T) {
	raw := rawEvent{
		EventTicker: "NYCHIGH-26FEB18",
		Markets: []rawMarket{
			{Ticker: "good-1", FloorStrike: f(50), CapStrike: f(52)},
			{Ticker: "bad"},
			{Ticker: "good-2", FloorStrike: f(52), CapStrike: f(54)},
		},
	}
	event, errs := parseEvent(raw, "NYC", "2026-02-18")
	if len(errs) != 1 {
		t.Fatalf("expected 1 parse error, got %d", len(errs))
	}
	if len(event.Brackets) != 2 {
		t.Fatalf("expected 2 parsed brackets, got %d", len(event.Brackets))
	}
}
