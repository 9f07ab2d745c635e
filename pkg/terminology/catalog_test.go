package terminology

import "testing"

func TestDefaultCatalogNormalizesFlags(t *testing.T) {
	cat := DefaultCatalog()

	cases := map[string]string{
		"high":     "H",
		"H":        "H",
		" low ":    "L",
		"panic":    "critical",
		"CRIT":     "critical",
		"borderline": "borderline", // unknown kept as-is
	}
	for raw, want := range cases {
		if got := cat.NormalizeFlag(raw); got != want {
			t.Fatalf("NormalizeFlag(%q) = %q, want %q", raw, got, want)
		}
	}

	if got := cat.NormalizeFlag("   "); got != "" {
		t.Fatalf("expected blank flag to normalize to empty, got %q", got)
	}
}

func TestDefaultCatalogNormalizesUnits(t *testing.T) {
	cat := DefaultCatalog()

	if got := cat.NormalizeUnit("MG/DL"); got != "mg/dL" {
		t.Fatalf("NormalizeUnit = %q, want mg/dL", got)
	}
	if got := cat.NormalizeUnit("widgets"); got != "widgets" {
		t.Fatalf("unknown unit should pass through, got %q", got)
	}
}
