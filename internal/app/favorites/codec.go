package favorites

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// Codec stores a favorites list inside a free-text profile field.
type Codec interface {
	// Extract splits text into the user's own text and the embedded ids. It never fails:
	// text without a readable block yields no ids.
	Extract(text string) (clean string, ids []string)

	// Combine embeds ids into clean. With no ids, clean is returned unchanged.
	Combine(clean string, ids []string) string
}

// MarkerCodec appends the ids as a JSON array between two marker strings at the end of the text.
// Only a block that terminates the text (trailing whitespace aside) is recognised, so marker
// strings quoted earlier in a bio are left alone. Inside the payload the first rune of each
// marker is written as a \u escape, so ids can never contain a marker.
type MarkerCodec struct {
	Start string
	End   string
}

// DefaultCodec is the marker scheme used on the booking API's bio field.
var DefaultCodec = MarkerCodec{Start: "[FAVORITES]", End: "[/FAVORITES]"}

func (c MarkerCodec) Extract(text string) (string, []string) {
	none := []string{}

	body := strings.TrimRightFunc(text, unicode.IsSpace)
	if !strings.HasSuffix(body, c.End) {
		return text, none
	}
	body = strings.TrimSuffix(body, c.End)

	i := strings.LastIndex(body, c.Start)
	if i < 0 {
		return text, none
	}

	clean := strings.TrimSuffix(body[:i], " ")
	payload := body[i+len(c.Start):]

	var ids []string
	if err := json.Unmarshal([]byte(payload), &ids); err != nil {
		return clean, none
	}
	return clean, normalize(ids)
}

func (c MarkerCodec) Combine(clean string, ids []string) string {
	ids = normalize(ids)
	if len(ids) == 0 {
		return clean
	}

	payload, err := json.Marshal(ids)
	if err != nil {
		return clean
	}

	block := c.Start + c.escapeMarkers(string(payload)) + c.End
	if clean == "" {
		return block
	}
	return clean + " " + block
}

// escapeMarkers rewrites the first rune of Start and End as \u escapes inside the string
// values of a marshalled id array. Existing escape sequences are copied untouched.
func (c MarkerCodec) escapeMarkers(payload string) string {
	var runes []rune
	for _, marker := range []string{c.Start, c.End} {
		r, _ := utf8.DecodeRuneInString(marker)
		if r == utf8.RuneError || r == '"' || r == '\\' {
			continue
		}
		runes = append(runes, r)
	}
	if len(runes) == 0 {
		return payload
	}

	var b strings.Builder
	b.Grow(len(payload))
	inString := false
	for i := 0; i < len(payload); {
		r, size := utf8.DecodeRuneInString(payload[i:])
		switch {
		case inString && r == '\\':
			n := 2
			if i+1 < len(payload) && payload[i+1] == 'u' {
				n = 6
			}
			b.WriteString(payload[i:min(i+n, len(payload))])
			i += n
			continue
		case r == '"':
			inString = !inString
		case inString && slices.Contains(runes, r):
			b.WriteString(jsonEscape(r))
			i += size
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

func jsonEscape(r rune) string {
	if r <= 0xFFFF {
		return fmt.Sprintf(`\u%04x`, r)
	}
	r1, r2 := utf16.EncodeRune(r)
	return fmt.Sprintf(`\u%04x\u%04x`, r1, r2)
}

// normalize drops empty and repeated ids, keeping first-seen order.
func normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
