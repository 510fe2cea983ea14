package phone

import "testing"

func TestCanonicalizeLocalWithTrunkZero(t *testing.T) {
	n, err := Canonicalize("0554526287", "SA")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if n.CallingCode != "966" {
		t.Fatalf("expected calling code 966, got %s", n.CallingCode)
	}
	if n.NationalNumber != "554526287" {
		t.Fatalf("expected national 554526287, got %s", n.NationalNumber)
	}
	if n.LowConfidence {
		t.Fatalf("expected confident match")
	}
}

func TestCanonicalizeInternationalFormsAgree(t *testing.T) {
	inputs := []string{"+966554526287", "966554526287", "966 55 452 6287", "0554526287", "055-452-6287"}
	for _, raw := range inputs {
		n, err := Canonicalize(raw, "SA")
		if err != nil {
			t.Fatalf("canonicalize %q: %v", raw, err)
		}
		if got := n.E164(); got != "966554526287" {
			t.Fatalf("canonicalize %q: expected 966554526287, got %s", raw, got)
		}
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{"0554526287", "+966554526287", "0501234567", "96650 123 4567", "07712345678", "01012345678"}
	for _, raw := range inputs {
		first, err := Canonicalize(raw, "SA")
		if err != nil {
			t.Fatalf("canonicalize %q: %v", raw, err)
		}
		second, err := Canonicalize(first.E164(), "SA")
		if err != nil {
			t.Fatalf("re-canonicalize %q: %v", first.E164(), err)
		}
		if second != first {
			t.Fatalf("canonicalize not idempotent for %q: %+v vs %+v", raw, first, second)
		}
	}
}

func TestCanonicalizeForeignCallingCode(t *testing.T) {
	n, err := Canonicalize("+971501234567", "SA")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if n.CountryID != "AE" || n.NationalNumber != "501234567" {
		t.Fatalf("expected AE/501234567, got %s/%s", n.CountryID, n.NationalNumber)
	}
}

func TestCanonicalizeCrossCountryPatternFallback(t *testing.T) {
	// An Egyptian national number entered locally while SA is the default:
	// no calling code, doesn't fit the SA pattern, first table match wins.
	n, err := Canonicalize("01012345678", "SA")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if n.CountryID != "EG" {
		t.Fatalf("expected EG, got %s", n.CountryID)
	}
	if n.NationalNumber != "1012345678" {
		t.Fatalf("expected national 1012345678, got %s", n.NationalNumber)
	}
}

func TestCanonicalizeEightDigitRepair(t *testing.T) {
	// Eight digits matching no country pattern: repaired with the mobile
	// prefix under the default country and flagged low confidence.
	n, err := Canonicalize("44526287", "SA")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if !n.LowConfidence {
		t.Fatalf("expected low-confidence result")
	}
	if n.E164() != "966544526287" {
		t.Fatalf("expected repaired 966544526287, got %s", n.E164())
	}
	if n.CountryID != "SA" {
		t.Fatalf("expected fallback to default country, got %s", n.CountryID)
	}
}

func TestCanonicalizeTableOrderWins(t *testing.T) {
	// An eight-digit number starting with 5 fits Kuwait's pattern, the
	// first eight-digit profile in the table.
	n, err := Canonicalize("54526287", "SA")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if n.CountryID != "KW" {
		t.Fatalf("expected KW by declaration order, got %s", n.CountryID)
	}
	if n.LowConfidence {
		t.Fatalf("expected confident match")
	}
}

func TestCanonicalizeRejectsEmptyInput(t *testing.T) {
	if _, err := Canonicalize("call me maybe", "SA"); err == nil {
		t.Fatalf("expected error for digitless input")
	}
}

func TestCanonicalizeUnknownDefaultCountry(t *testing.T) {
	if _, err := Canonicalize("0554526287", "ZZ"); err == nil {
		t.Fatalf("expected error for unknown default country")
	}
}
