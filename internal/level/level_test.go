package level

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Level
		wantErr  bool
	}{
		{"Trace", "trace", Trace, false},
		{"Debug", "debug", Debug, false},
		{"Info", "info", Info, false},
		{"Warning alias", "WARNING", Warn, false},
		{"Error", "error", Error, false},
		{"Critical alias", "critical", Fatal, false},
		{"Whitespace", "  info ", Info, false},
		{"Unknown", "loud", 0, true},
		{"Empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFromValue(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected Level
	}{
		{"Int", 50, Error},
		{"Float from JSON", 40.0, Warn},
		{"Name", "debug", Debug},
		{"Unknown name", "unknown", Default},
		{"Nil", nil, Default},
		{"Bool", true, Default},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromValue(tt.input); got != tt.expected {
				t.Errorf("FromValue(%v) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSyslog(t *testing.T) {
	tests := []struct {
		level    Level
		expected int32
	}{
		{Trace, 7},
		{Debug, 7},
		{Info, 6},
		{Warn, 4},
		{Error, 3},
		{Fatal, 2},
	}

	for _, tt := range tests {
		if got := tt.level.Syslog(); got != tt.expected {
			t.Errorf("%v.Syslog() = %d, want %d", tt.level, got, tt.expected)
		}
	}
}

func TestLogDNA(t *testing.T) {
	if got := Warn.LogDNA(); got != "Warn" {
		t.Errorf("Warn.LogDNA() = %q, want %q", got, "Warn")
	}
	if got := Fatal.LogDNA(); got != "Fatal" {
		t.Errorf("Fatal.LogDNA() = %q, want %q", got, "Fatal")
	}
	if got := Level(15).LogDNA(); got != "Debug" {
		t.Errorf("Level(15).LogDNA() = %q, want %q", got, "Debug")
	}
}

func TestString(t *testing.T) {
	if got := Level(45).String(); got != "error" {
		t.Errorf("Level(45).String() = %q, want %q", got, "error")
	}
	if got := Level(70).String(); got != "fatal" {
		t.Errorf("Level(70).String() = %q, want %q", got, "fatal")
	}
}
