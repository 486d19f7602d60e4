package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"inputsentry/internal/event"
	"inputsentry/internal/schema"
	"inputsentry/internal/verdict"
)

// maxLineSize bounds a single NDJSON event line.
const maxLineSize = 1 << 20

// ingester is the part of the engine the input loop drives.
type ingester interface {
	Ingest(rec event.Record) (*verdict.Verdict, error)
}

// lineStats counts what happened to each input line.
type lineStats struct {
	Lines    int `json:"lines"`
	Accepted int `json:"accepted"`
	Invalid  int `json:"invalid"`
	Rejected int `json:"rejected"`
	Verdicts int `json:"verdicts"`
}

// consume reads NDJSON events from r until EOF. Lines failing the schema or
// normalization are counted and skipped; only read errors abort.
func consume(r io.Reader, in ingester, norm event.Normalizer, validator *schema.Validator, logger *slog.Logger) (lineStats, error) {
	var st lineStats

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		st.Lines++

		if validator != nil {
			if err := validator.Validate(line); err != nil {
				st.Invalid++
				logger.Debug("event failed schema", "line", st.Lines, "error", err)
				continue
			}
		}

		rec, err := norm.Normalize(line)
		if err != nil {
			st.Invalid++
			logger.Debug("event not normalized", "line", st.Lines, "error", err)
			continue
		}

		v, err := in.Ingest(rec)
		if err != nil {
			st.Rejected++
			continue
		}
		st.Accepted++
		if v != nil {
			st.Verdicts++
		}
	}

	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return st, fmt.Errorf("line %d exceeds %d bytes: %w", st.Lines+1, maxLineSize, err)
		}
		return st, fmt.Errorf("read input: %w", err)
	}
	return st, nil
}
