package stream

import (
	"encoding/json"
	"strings"

	"nimbuschat/backend/internal/uimsg"
)

// Parse turns the raw stream text accumulated so far into structured UI
// parts. The wire format is line-oriented: a line that is a JSON part record
// becomes a structured part, everything else folds into text parts. A
// partial trailing line that could still become a JSON record is held back
// until more text arrives (or final is set), so re-parsing a longer prefix
// of the same stream only ever extends or refines the result; committed
// parts are never retracted.
func Parse(raw string, final bool) []uimsg.Part {
	if raw == "" {
		return nil
	}

	parts := make([]uimsg.Part, 0, 4)
	appendText := func(text string) {
		if text == "" {
			return
		}
		if n := len(parts); n > 0 && parts[n-1].Type == uimsg.PartTypeText {
			parts[n-1].Text += text
			return
		}
		parts = append(parts, uimsg.Part{Type: uimsg.PartTypeText, Text: text})
	}

	rest := raw
	for {
		line, remainder, complete := nextLine(rest)
		if !complete {
			// Trailing segment without a newline. Plain text renders
			// immediately; a would-be JSON record stays pending unless the
			// stream is finished.
			if looksLikeRecord(line) && !final {
				break
			}
			if part, ok := decodePart(line); ok && final {
				parts = append(parts, part)
			} else {
				appendText(line)
			}
			break
		}

		if part, ok := decodePart(line); ok {
			parts = append(parts, part)
		} else {
			appendText(line + "\n")
		}

		if remainder == "" {
			break
		}
		rest = remainder
	}

	return parts
}

func nextLine(raw string) (line, remainder string, complete bool) {
	index := strings.IndexByte(raw, '\n')
	if index < 0 {
		return raw, "", false
	}
	return raw[:index], raw[index+1:], true
}

func looksLikeRecord(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "{")
}

func decodePart(line string) (uimsg.Part, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return uimsg.Part{}, false
	}

	var part uimsg.Part
	if err := json.Unmarshal([]byte(trimmed), &part); err != nil {
		return uimsg.Part{}, false
	}
	switch part.Type {
	case uimsg.PartTypeText, uimsg.PartTypeTool, uimsg.PartTypeCitation:
		return part, true
	}
	return uimsg.Part{}, false
}

// EncodeRecord serializes a structured part as one stream line. The
// generation worker writes tool and citation parts this way; plain text is
// appended to the stream as-is.
func EncodeRecord(part uimsg.Part) string {
	encoded, err := json.Marshal(part)
	if err != nil {
		return ""
	}
	return "\n" + string(encoded) + "\n"
}
