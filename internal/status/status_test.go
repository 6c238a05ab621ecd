package status

import "testing"

func TestStringKnownValues(t *testing.T) {
	cases := map[Status]string{
		Unknown:      "unknown",
		Unsupported:  "unsupported",
		Unconfigured: "unconfigured",
		Configuring:  "configuring",
		Configured:   "configured",
		Encrypting:   "encrypting",
		Encrypted:    "encrypted",
		Failed:       "failed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestStringUnknownValue(t *testing.T) {
	if got := Status(99).String(); got != "invalid" {
		t.Errorf("Status(99).String() = %q, want %q", got, "invalid")
	}
}

func TestInt32RoundTrip(t *testing.T) {
	for s := Unknown; s <= Failed; s++ {
		if Status(s.Int32()) != s {
			t.Errorf("Int32 round trip failed for %v", s)
		}
	}
}
