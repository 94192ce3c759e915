// Package canonical renders values as canonical JSON: object keys sorted
// lexicographically at every level, minimal separators, and non-ASCII
// characters preserved unescaped. The same serialization feeds memory dedup
// fingerprints, embedding input, and volatile-field flattening in the
// indexed event log, so all three agree on what "the same payload" means.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) (string, error) {
	var b strings.Builder
	if err := encode(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

// MustMarshal is Marshal for values known to be JSON-encodable (maps, slices,
// strings, numbers built from decoded JSON). It panics on encoding failure.
func MustMarshal(v any) string {
	s, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("canonical: %v", err))
	}
	return s
}

// Fingerprint returns the canonical JSON of a payload map, used as the memory
// dedup identity. Two payloads are duplicates iff their fingerprints match.
func Fingerprint(payload map[string]any) string {
	return MustMarshal(payload)
}

func encode(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		return encodeString(b, val)
	case json.Number:
		b.WriteString(val.String())
	case float64:
		return encodeFloat(b, val)
	case float32:
		return encodeFloat(b, float64(val))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int32:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case map[string]any:
		return encodeObject(b, val)
	case []any:
		return encodeArray(b, val)
	default:
		// Fall back through encoding/json for structs and typed maps/slices,
		// then re-canonicalize the generic form.
		raw, err := json.Marshal(val)
		if err != nil {
			return err
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return err
		}
		return encode(b, generic)
	}
	return nil
}

func encodeObject(b *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := encodeString(b, k); err != nil {
			return err
		}
		b.WriteByte(':')
		if err := encode(b, m[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func encodeArray(b *strings.Builder, items []any) error {
	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := encode(b, item); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

// encodeString writes a JSON string without escaping non-ASCII characters.
func encodeString(b *strings.Builder, s string) error {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return nil
}

// encodeFloat preserves integral floats without a trailing ".0", matching the
// minimal-number form produced when the value round-trips through JSON.
func encodeFloat(b *strings.Builder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: unsupported float value %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		b.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
