package worker

import (
	"regexp"
	"strconv"
)

var processRe = regexp.MustCompile(`PROCESS:\s*(\d+)/(\d+)`)

// ParseProgress extracts current/total from a worker stdout line matching the
// PROCESS: n/total protocol. ok is false for any other line.
func ParseProgress(line string) (current, total int, ok bool) {
	m := processRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	current, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.Atoi(m[2])
	if err != nil || total == 0 {
		return 0, 0, false
	}
	return current, total, true
}
