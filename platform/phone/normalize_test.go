package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	got, err := NormalizeE164("(415) 555-2671")
	if err != nil {
		t.Fatalf("NormalizeE164: %v", err)
	}
	if got != "+14155552671" {
		t.Fatalf("normalized = %q, want +14155552671", got)
	}

	got, err = NormalizeE164("+44 20 7946 0958")
	if err != nil {
		t.Fatalf("NormalizeE164 international: %v", err)
	}
	if got != "+442079460958" {
		t.Fatalf("normalized = %q, want +442079460958", got)
	}

	for _, bad := range []string{"", "not a number", "123"} {
		if _, err := NormalizeE164(bad); err == nil {
			t.Fatalf("NormalizeE164(%q) accepted invalid input", bad)
		}
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid("415-555-2671") {
		t.Fatal("valid US number rejected")
	}
	if IsValid("12") {
		t.Fatal("truncated number accepted")
	}
}
