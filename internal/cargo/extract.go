package cargo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"fortio.org/safecast"

	"snafu-upgrade/internal/diag"
	"snafu-upgrade/internal/source"
)

// jsonLine mirrors one NDJSON record of `cargo check --message-format json`.
type jsonLine struct {
	Reason  string       `json:"reason"`
	Message *jsonMessage `json:"message"`
	Success *bool        `json:"success"`
}

type jsonMessage struct {
	Code     *jsonCode  `json:"code"`
	Level    string     `json:"level"`
	Message  string     `json:"message"`
	Spans    []jsonSpan `json:"spans"`
	Rendered string     `json:"rendered"`
}

type jsonCode struct {
	Code string `json:"code"`
}

type jsonSpan struct {
	FileName    string `json:"file_name"`
	ByteStart   int64  `json:"byte_start"`
	ByteEnd     int64  `json:"byte_end"`
	LineStart   int64  `json:"line_start"`
	ColumnStart int64  `json:"column_start"`
	IsPrimary   bool   `json:"is_primary"`
}

// Extraction is the structured result of parsing one check's output.
type Extraction struct {
	// Bag holds every coded error with a primary span, one diagnostic
	// per span. Deciding which of them are fixable is the rename rule's
	// job, not the extractor's.
	Bag *diag.Bag
	// Succeeded is the build-finished flag; false means errors remain.
	Succeeded bool
	// TotalMessages counts every compiler message seen, relevant or not.
	TotalMessages int
}

// Extract parses the NDJSON stream strictly. Records with an unknown
// reason are skipped; a line that is not valid JSON, or a
// compiler-message without its message object, is ErrMalformedOutput.
// File paths are trusted verbatim and loaded into fs (relative to its
// base directory) so spans can be resolved against current content.
func Extract(raw []byte, fs *source.FileSet) (*Extraction, error) {
	ext := &Extraction{Bag: diag.NewBag(), Succeeded: true}
	sawFinished := false

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec jsonLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedOutput, lineNo, err)
		}

		switch rec.Reason {
		case "compiler-message":
			if rec.Message == nil {
				return nil, fmt.Errorf("%w: line %d: compiler-message without message object", ErrMalformedOutput, lineNo)
			}
			ext.TotalMessages++
			if err := collectMessage(ext.Bag, fs, rec.Message); err != nil {
				return nil, err
			}
		case "build-finished":
			sawFinished = true
			if rec.Success != nil {
				ext.Succeeded = *rec.Success
			}
		default:
			// compiler-artifact, build-script-executed, etc.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	// A stream that never reported completion and produced no messages
	// has no locatable structure at all.
	if !sawFinished && ext.TotalMessages == 0 {
		return nil, fmt.Errorf("%w: no build-finished record and no messages", ErrMalformedOutput)
	}

	// Likewise a stream that claims failure without a single structured
	// message: there is nothing to act on and nothing to report.
	if sawFinished && !ext.Succeeded && ext.TotalMessages == 0 {
		return nil, fmt.Errorf("%w: check failed but no compiler messages were emitted", ErrMalformedOutput)
	}

	return ext, nil
}

func collectMessage(bag *diag.Bag, fs *source.FileSet, msg *jsonMessage) error {
	// Summary records ("aborting due to N previous errors") carry no
	// code; warnings are not actionable and not worth echoing.
	if msg.Code == nil || diag.FromLevel(msg.Level) < diag.SevError {
		return nil
	}

	for _, sp := range msg.Spans {
		if !sp.IsPrimary {
			continue
		}

		// The reported file and byte range are trusted verbatim, macro
		// expansions included. A file that cannot be read makes the span
		// unresolvable; the rename rule will decline it.
		fileID, err := fs.Load(sp.FileName)
		if err != nil {
			continue
		}

		start, convErr := safecast.Conv[uint32](sp.ByteStart)
		if convErr != nil {
			continue
		}
		end, convErr := safecast.Conv[uint32](sp.ByteEnd)
		if convErr != nil {
			continue
		}
		lineStart, convErr := safecast.Conv[uint32](sp.LineStart)
		if convErr != nil {
			lineStart = 0
		}
		colStart, convErr := safecast.Conv[uint32](sp.ColumnStart)
		if convErr != nil {
			colStart = 0
		}

		bag.Add(diag.Diagnostic{
			Severity: diag.FromLevel(msg.Level),
			Code:     msg.Code.Code,
			Message:  msg.Message,
			Path:     sp.FileName,
			Primary:  source.Span{File: fileID, Start: start, End: end},
			Line:     lineStart,
			Col:      colStart,
		})
	}
	return nil
}
