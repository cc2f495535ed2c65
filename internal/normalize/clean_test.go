package normalize

import "testing"

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"jane@example.com",
		"  jane@example.com  ",
		"j.doe+tag@sub.example.co",
	}
	for _, s := range valid {
		if !ValidateEmail(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	invalid := []string{
		"",
		"   ",
		"nodomain@",
		"@nolocal.com",
		"no-at-sign.com",
		"jane@example",
	}
	for _, s := range invalid {
		if ValidateEmail(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}

func TestExtractDomain(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://www.Example.com/path?q=1", "example.com"},
		{"http://example.com", "example.com"},
		{"example.com", "example.com"},
		{"www.example.com", "example.com"},
		{"", ""},
		{"   ", ""},
		{"not a url", ""},
	}
	for _, tc := range cases {
		if got := ExtractDomain(tc.in); got != tc.want {
			t.Fatalf("ExtractDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeCompanyName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"acme   widgets", "Acme Widgets"},
		{"  acme widgets  ", "Acme Widgets"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeCompanyName(tc.in); got != tc.want {
			t.Fatalf("NormalizeCompanyName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanPhoneNumber(t *testing.T) {
	if got := CleanPhoneNumber("+1 (555) 123-4567"); got != "+15551234567" {
		t.Fatalf("got %q", got)
	}
	if got := CleanPhoneNumber("555.123.4567 ext"); got != "5551234567" {
		t.Fatalf("got %q", got)
	}
}
