package executor

import (
	"regexp"
	"strconv"
	"strings"
)

// yt-dlp with --newline emits one progress line per update:
//
//	[download]  42.5% of 210.45MiB at 1.22MiB/s ETA 02:42
//	[download] 100% of 210.45MiB in 02:40
var (
	percentRe = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)
	etaRe     = regexp.MustCompile(`ETA (?:(\d+):)?(\d+):(\d+)`)
)

// ProgressEvent is one parsed progress update from the fetch tool.
type ProgressEvent struct {
	Percent    float64
	ETASeconds int64
	RawLine    string
}

// ParseProgressLine extracts a progress event from one line of tool
// output. The second return value is false for lines that carry no
// percentage (mux/postprocess chatter, info lines).
func ParseProgressLine(line string) (ProgressEvent, bool) {
	line = strings.TrimSpace(line)

	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return ProgressEvent{}, false
	}

	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return ProgressEvent{}, false
	}

	ev := ProgressEvent{Percent: percent, RawLine: line}

	if em := etaRe.FindStringSubmatch(line); em != nil {
		var hours int64
		if em[1] != "" {
			hours, _ = strconv.ParseInt(em[1], 10, 64)
		}

		minutes, _ := strconv.ParseInt(em[2], 10, 64)
		seconds, _ := strconv.ParseInt(em[3], 10, 64)
		ev.ETASeconds = hours*3600 + minutes*60 + seconds
	}

	return ev, true
}
