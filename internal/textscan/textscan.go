// Package textscan holds the line and field tokenizers shared by the
// calendar export decoders.
package textscan

import "strings"

// Lines splits text on LF and drops a trailing CR from every line, so CRLF
// exports (the iCalendar norm) and LF exports read the same.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// UnfoldICS joins iCalendar continuation lines (those starting with a space
// or a tab) onto the line before them, dropping the single leading
// whitespace character.
func UnfoldICS(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if len(out) > 0 && out[len(out)-1] != "" && l != "" && (l[0] == ' ' || l[0] == '\t') {
			out[len(out)-1] += l[1:]
			continue
		}
		out = append(out, l)
	}
	return out
}

// SplitCSVLine splits one CSV line into fields.
//
// A double quote toggles quoted mode, except that two consecutive quotes
// inside a quoted section produce one literal quote. Commas outside quotes
// separate fields. The final field is always returned, even when empty, so
// "a," yields ["a", ""].
func SplitCSVLine(line string) []string {
	var (
		fields   []string
		field    strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			field.WriteByte('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteByte(c)
		}
	}
	return append(fields, field.String())
}
