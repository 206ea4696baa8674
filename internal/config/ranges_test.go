package config

import "testing"

func TestParseTestRange(t *testing.T) {
	tests := []struct {
		in      string
		want    TestRange
		wantErr bool
	}{
		{in: "", want: TestRange{Start: 0, Unbounded: true}},
		{in: "5", want: TestRange{Start: 5, End: 5}},
		{in: "5:", want: TestRange{Start: 5, Unbounded: true}},
		{in: "5:infinite", want: TestRange{Start: 5, Unbounded: true}},
		{in: "5:9", want: TestRange{Start: 5, End: 9}},
		{in: "5:5:5", wantErr: true},
		{in: "x:9", wantErr: true},
		{in: "9:5", wantErr: true},
		{in: "-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTestRange(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseTestRange(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTestRangeContains(t *testing.T) {
	bounded := TestRange{Start: 5, End: 9}
	if bounded.Contains(4) || !bounded.Contains(5) || !bounded.Contains(9) || bounded.Contains(10) {
		t.Error("bounded range membership wrong")
	}
	open := TestRange{Start: 5, Unbounded: true}
	if !open.Contains(1 << 40) {
		t.Error("unbounded range should contain large index")
	}
	if open.String() != "5:infinite" || bounded.String() != "5:9" {
		t.Errorf("String() = %q / %q", open.String(), bounded.String())
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		in      string
		want    RatioRange
		wantErr bool
	}{
		{in: "0.01:0.05", want: RatioRange{Min: 0.01, Max: 0.05}},
		{in: "0.5", want: RatioRange{Min: 0.5, Max: 0.5}},
		{in: "0:0", want: RatioRange{}},
		{in: "1:1", want: RatioRange{Min: 1, Max: 1}},
		{in: "0.1:0.2:0.3", wantErr: true},
		{in: "0.5:0.1", wantErr: true},
		{in: "-0.1", wantErr: true},
		{in: "2", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRatio(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseRatio(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseIgnoredBytes(t *testing.T) {
	got, err := ParseIgnoredBytes([]string{"0d", "0x0A", " ff "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0] != 0x0d || got[1] != 0x0a || got[2] != 0xff {
		t.Fatalf("got %x", got)
	}
	if _, err := ParseIgnoredBytes([]string{"0d0a"}); err == nil {
		t.Error("expected error for two-byte value")
	}
}
