package executor

import "testing"

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantOK  bool
		wantPct float64
		wantETA int64
	}{
		{
			name:    "progress with ETA",
			line:    "[download]  42.5% of 210.45MiB at 1.22MiB/s ETA 02:42",
			wantOK:  true,
			wantPct: 42.5,
			wantETA: 162,
		},
		{
			name:    "progress with hour-long ETA",
			line:    "[download]   3.0% of 1.20GiB at 512.00KiB/s ETA 1:05:30",
			wantOK:  true,
			wantPct: 3.0,
			wantETA: 3930,
		},
		{
			name:    "completed line without ETA",
			line:    "[download] 100% of 210.45MiB in 02:40",
			wantOK:  true,
			wantPct: 100,
			wantETA: 0,
		},
		{
			name:    "integer percent",
			line:    "[download]  7% of 12.00MiB at 900.00KiB/s ETA 00:14",
			wantOK:  true,
			wantPct: 7,
			wantETA: 14,
		},
		{
			name:   "destination line carries no progress",
			line:   "[download] Destination: /media/youtube/video/clip-abc123.mp4",
			wantOK: false,
		},
		{
			name:   "postprocess chatter",
			line:   "[Merger] Merging formats into \"clip-abc123.mp4\"",
			wantOK: false,
		},
		{
			name:   "empty line",
			line:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseProgressLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParseProgressLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}

			if !ok {
				return
			}

			if ev.Percent != tt.wantPct {
				t.Errorf("Percent = %v, want %v", ev.Percent, tt.wantPct)
			}

			if ev.ETASeconds != tt.wantETA {
				t.Errorf("ETASeconds = %d, want %d", ev.ETASeconds, tt.wantETA)
			}
		})
	}
}
