package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"a@b@c", "***@***"},
	}
	for _, tc := range cases {
		if got := RedactEmail(tc.in); got != tc.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRedactPIIValue_EmbeddedEmail(t *testing.T) {
	got := redactPIIValue("detail", "delivery failed for jane.smith@example.org today")
	want := "delivery failed for ja***@example.org today"
	if got != want {
		t.Errorf("redactPIIValue = %q, want %q", got, want)
	}
}
