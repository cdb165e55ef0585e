package sql

import "testing"

func TestScreenStatementLiterals(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantFlagged int
	}{
		{
			name:  "plain filter literal",
			input: "SELECT * FROM orders WHERE status = 'pending'",
		},
		{
			name:  "date literal",
			input: "SELECT * FROM orders WHERE created_at >= '2024-01-01'",
		},
		{
			name:  "no literals at all",
			input: "SELECT id, total FROM orders",
		},
		{
			name:        "union payload in literal",
			input:       "SELECT * FROM orders WHERE status = '1 OR 1=1 UNION SELECT username, password FROM users --'",
			wantFlagged: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := ScreenStatementLiterals(tt.input)
			if len(findings) != tt.wantFlagged {
				t.Fatalf("ScreenStatementLiterals(%q) flagged %d literals, want %d: %+v",
					tt.input, len(findings), tt.wantFlagged, findings)
			}
		})
	}
}

func TestScreenStatementLiteralsReportsContent(t *testing.T) {
	payload := "1 OR 1=1 UNION SELECT username, password FROM users --"
	findings := ScreenStatementLiterals("SELECT * FROM orders WHERE note = '" + payload + "' AND status = 'pending'")

	if len(findings) != 1 {
		t.Fatalf("flagged %d literals, want 1: %+v", len(findings), findings)
	}
	if findings[0].Literal != payload {
		t.Errorf("Literal = %q, want %q", findings[0].Literal, payload)
	}
	if findings[0].Fingerprint == "" {
		t.Error("Fingerprint is empty")
	}
}

func TestScreenStatementLiteralsUntokenizable(t *testing.T) {
	if findings := ScreenStatementLiterals("SELECT 'unterminated"); findings != nil {
		t.Errorf("untokenizable input produced findings: %+v", findings)
	}
}
