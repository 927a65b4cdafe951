package gitengine

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Progress is one progress report from a transfer. Total is nil until the
// remote announces it.
type Progress struct {
	Phase string
	Done  int64
	Total *int64
}

// ProgressFunc receives progress reports in order.
type ProgressFunc func(Progress)

var (
	progressRatio = regexp.MustCompile(`^([A-Za-z][A-Za-z ]*?):\s+\d+%\s+\((\d+)/(\d+)\)`)
	progressCount = regexp.MustCompile(`^([A-Za-z][A-Za-z ]*?):\s+(\d+)`)
)

// progressWriter parses sideband progress text ("Receiving objects:  45% (9/20)")
// into Progress values. Counters never go backwards within a phase.
type progressWriter struct {
	mu   sync.Mutex
	fn   ProgressFunc
	buf  []byte
	last map[string]int64
}

func newProgressWriter(fn ProgressFunc) *progressWriter {
	return &progressWriter{fn: fn, last: make(map[string]int64)}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		w.parse(line)
	}
	return len(p), nil
}

func (w *progressWriter) parse(line string) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "remote:"))
	if line == "" || w.fn == nil {
		return
	}

	var (
		phase string
		done  int64
		total *int64
	)

	if m := progressRatio.FindStringSubmatch(line); m != nil {
		phase = m[1]
		done, _ = strconv.ParseInt(m[2], 10, 64)
		t, _ := strconv.ParseInt(m[3], 10, 64)
		total = &t
	} else if m := progressCount.FindStringSubmatch(line); m != nil {
		phase = m[1]
		done, _ = strconv.ParseInt(m[2], 10, 64)
	} else {
		return
	}

	if prev, ok := w.last[phase]; ok && done < prev {
		return
	}
	w.last[phase] = done

	w.fn(Progress{Phase: phase, Done: done, Total: total})
}
