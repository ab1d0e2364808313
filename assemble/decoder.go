package assemble

import (
	"encoding/json"
	"fmt"

	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/types"
)

// Decoder incrementally extracts complete element records from a growing
// JSON prefix. The fully-accumulated stream is either a top-level array of
// element records or an envelope object {"root": "...", "elements": [...]};
// the decoder needs neither form to finish before emitting records.
// Malformed or incomplete trailing data is buffered, never rejected - only a
// completed value that fails to parse is an error.
type Decoder struct {
	buf     []byte
	mode    decodeMode
	inArray bool
	rootKey string
	done    bool
}

type decodeMode int

const (
	modeUnknown decodeMode = iota
	modeArray
	modeEnvelope
)

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// RootKey returns the root key declared by an envelope stream, or "" if none
// has been seen.
func (d *Decoder) RootKey() string { return d.rootKey }

// Done reports whether the stream's record sequence closed cleanly.
func (d *Decoder) Done() bool { return d.done }

// Buffered returns the number of bytes held waiting for more data.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Feed appends a chunk and returns every element record that completed.
// Insufficient data is not an error: the partial tail stays buffered and the
// next Feed continues from it.
func (d *Decoder) Feed(chunk []byte) ([]types.Element, error) {
	if d.done {
		// Trailing bytes after a closed record sequence are ignored.
		return nil, nil
	}
	d.buf = append(d.buf, chunk...)

	var records []types.Element
	pos := 0
	for {
		recs, next, err := d.step(pos)
		records = append(records, recs...)
		pos = next
		if err != nil {
			d.buf = d.buf[pos:]
			if errors.IsDeferred(err) {
				return records, nil
			}
			return records, err
		}
		if d.done {
			d.buf = d.buf[pos:]
			return records, nil
		}
	}
}

// Finish signals end-of-stream from the transport. Leftover buffered data
// that never completed is reported as a parse failure; clean terminations
// (or streams that simply stopped between records) are fine.
func (d *Decoder) Finish() error {
	pos := skipSpace(d.buf, 0)
	if pos < len(d.buf) && !d.done {
		return errors.WrapInvalid(
			fmt.Errorf("%d bytes of unterminated data at end of stream: %w", len(d.buf)-pos, errors.ErrParsingFailed),
			"assemble", "Finish", "stream termination check")
	}
	return nil
}

// step makes one parsing transition starting at pos and returns any records
// it produced plus the new position. A deferred error means "need more
// bytes"; the caller buffers from the returned position.
func (d *Decoder) step(pos int) ([]types.Element, int, error) {
	pos = skipSpace(d.buf, pos)
	if pos >= len(d.buf) {
		return nil, pos, errors.StreamParseDeferred
	}

	switch d.mode {
	case modeUnknown:
		switch d.buf[pos] {
		case '[':
			d.mode = modeArray
			d.inArray = true
			return nil, pos + 1, nil
		case '{':
			d.mode = modeEnvelope
			return nil, pos + 1, nil
		default:
			return nil, pos, errors.WrapInvalid(
				fmt.Errorf("stream must begin with '[' or '{': %w", errors.ErrParsingFailed),
				"assemble", "Feed", "stream prefix check")
		}

	case modeEnvelope:
		if !d.inArray {
			return d.stepEnvelopeKey(pos)
		}
		fallthrough

	case modeArray:
		return d.stepRecord(pos)
	}
	return nil, pos, errors.StreamParseDeferred
}

// stepRecord consumes one record (or the array terminator) inside the
// elements array.
func (d *Decoder) stepRecord(pos int) ([]types.Element, int, error) {
	switch d.buf[pos] {
	case ',':
		return nil, pos + 1, nil
	case ']':
		d.inArray = false
		if d.mode == modeArray {
			d.done = true
			return nil, pos + 1, nil
		}
		// Envelope: trailing keys (or the closing brace) may follow.
		return nil, pos + 1, nil
	}

	end, err := scanValue(d.buf, pos)
	if err != nil {
		return nil, pos, err
	}

	var rec types.Element
	if err := json.Unmarshal(d.buf[pos:end], &rec); err != nil {
		return nil, end, errors.WrapInvalid(
			fmt.Errorf("element record: %v: %w", err, errors.ErrParsingFailed),
			"assemble", "Feed", "record decode")
	}
	return []types.Element{rec}, end, nil
}

// stepEnvelopeKey consumes one "key": value pair (or the closing brace) of
// the envelope object. The "root" value names the tree root; "elements"
// opens the record array; unknown keys are skipped whole.
func (d *Decoder) stepEnvelopeKey(pos int) ([]types.Element, int, error) {
	switch d.buf[pos] {
	case ',':
		return nil, pos + 1, nil
	case '}':
		d.done = true
		return nil, pos + 1, nil
	}
	if d.buf[pos] != '"' {
		return nil, pos, errors.WrapInvalid(
			fmt.Errorf("expected envelope key at offset %d: %w", pos, errors.ErrParsingFailed),
			"assemble", "Feed", "envelope key check")
	}

	keyEnd, err := scanValue(d.buf, pos)
	if err != nil {
		return nil, pos, err
	}
	var key string
	if err := json.Unmarshal(d.buf[pos:keyEnd], &key); err != nil {
		return nil, pos, errors.WrapInvalid(
			fmt.Errorf("envelope key: %v: %w", err, errors.ErrParsingFailed),
			"assemble", "Feed", "envelope key decode")
	}

	colon := skipSpace(d.buf, keyEnd)
	if colon >= len(d.buf) {
		return nil, pos, errors.StreamParseDeferred
	}
	if d.buf[colon] != ':' {
		return nil, pos, errors.WrapInvalid(
			fmt.Errorf("expected ':' after envelope key %q: %w", key, errors.ErrParsingFailed),
			"assemble", "Feed", "envelope separator check")
	}

	valueStart := skipSpace(d.buf, colon+1)
	if valueStart >= len(d.buf) {
		return nil, pos, errors.StreamParseDeferred
	}

	if key == "elements" {
		if d.buf[valueStart] != '[' {
			return nil, pos, errors.WrapInvalid(
				fmt.Errorf("envelope %q must be an array: %w", key, errors.ErrParsingFailed),
				"assemble", "Feed", "elements array check")
		}
		d.inArray = true
		return nil, valueStart + 1, nil
	}

	valueEnd, err := scanValue(d.buf, valueStart)
	if err != nil {
		return nil, pos, err
	}
	if key == "root" {
		var root string
		if err := json.Unmarshal(d.buf[valueStart:valueEnd], &root); err == nil {
			d.rootKey = root
		}
	}
	return nil, valueEnd, nil
}

// skipSpace advances past JSON whitespace.
func skipSpace(data []byte, pos int) int {
	for pos < len(data) {
		switch data[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
		default:
			return pos
		}
	}
	return pos
}

// scanValue finds the end of the complete JSON value starting at pos, or
// reports StreamParseDeferred if the buffer ends first. Numbers and bare
// literals at the buffer edge are deferred too, since more digits may still
// arrive.
func scanValue(data []byte, pos int) (int, error) {
	switch data[pos] {
	case '{', '[':
		return scanContainer(data, pos)
	case '"':
		return scanString(data, pos)
	default:
		for i := pos; i < len(data); i++ {
			switch data[i] {
			case ',', '}', ']', ' ', '\t', '\n', '\r':
				return i, nil
			}
		}
		return 0, errors.StreamParseDeferred
	}
}

func scanContainer(data []byte, pos int) (int, error) {
	depth := 0
	inString := false
	escaped := false
	for i := pos; i < len(data); i++ {
		c := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, errors.StreamParseDeferred
}

func scanString(data []byte, pos int) (int, error) {
	escaped := false
	for i := pos + 1; i < len(data); i++ {
		switch {
		case escaped:
			escaped = false
		case data[i] == '\\':
			escaped = true
		case data[i] == '"':
			return i + 1, nil
		}
	}
	return 0, errors.StreamParseDeferred
}
