package logger

import (
	"strings"
	"testing"
)

func TestMaskPIIEmail(t *testing.T) {
	got := MaskPII("upserted jane.doe@example.com ok")
	if strings.Contains(got, "jane.doe@example.com") {
		t.Fatalf("email leaked: %q", got)
	}
	if !strings.Contains(got, "j***@e***.com") {
		t.Fatalf("expected masked email, got %q", got)
	}
}

func TestMaskPIIPhone(t *testing.T) {
	got := MaskPII("call +1 (555) 123-4567 today")
	if strings.Contains(got, "555") || strings.Contains(got, "123") {
		t.Fatalf("phone digits leaked: %q", got)
	}
	if !strings.Contains(got, "67") {
		t.Fatalf("expected last two digits kept, got %q", got)
	}
}

func TestMaskPIILeavesPlainText(t *testing.T) {
	in := "Batch upsert complete"
	if got := MaskPII(in); got != in {
		t.Fatalf("got %q, want unchanged", got)
	}
	if got := MaskPII(""); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
