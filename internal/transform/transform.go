// Package transform converts between the wire shapes produced by the
// protocol client (two-word integers, binary blobs, nullable fields) and
// the scalar forms the storage layer and the HTTP responses use.
//
// Both directions walk the top level of a document only; nested
// collections are carried whole (serialized for storage, structured for
// the wire).
package transform

import (
	"encoding/base64"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// MaxSafeInteger is the largest integer the wire format can carry without
// precision loss on 53-bit-safe consumers.
const MaxSafeInteger = 1<<53 - 1

// Long is a 64-bit integer split into two 32-bit words, the form the wire
// protocol uses for large values.
type Long struct {
	Low      uint32 `json:"low"`
	High     uint32 `json:"high"`
	Unsigned bool   `json:"unsigned"`
}

// Int64 reassembles the two words.
func (l Long) Int64() int64 {
	return int64(l.High)<<32 | int64(l.Low)
}

// ToNumber collapses any of the wire's numeric representations into an
// int64. The second return reports whether v was numeric at all.
func ToNumber(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case Long:
		return n.Int64(), true
	case *Long:
		if n == nil {
			return 0, false
		}
		return n.Int64(), true
	case map[string]any:
		return longFromMap(n)
	}
	return 0, false
}

func longFromMap(m map[string]any) (int64, bool) {
	low, okLow := m["low"]
	high, okHigh := m["high"]
	if !okLow || !okHigh {
		return 0, false
	}
	l, ok := ToNumber(low)
	if !ok {
		return 0, false
	}
	h, ok := ToNumber(high)
	if !ok {
		return 0, false
	}
	return h<<32 | (l & 0xffffffff), true
}

// ToStorage converts a wire document (struct or map) into a flat column
// map of storage-native scalars: numbers as int64/float64, blobs as
// []byte, collections as serialized JSON text. Nil fields are dropped
// when stripNullable is set.
func ToStorage(v any, stripNullable bool) map[string]any {
	doc := toDoc(v, stripNullable)
	out := make(map[string]any, len(doc))
	for key, val := range doc {
		if val == nil {
			if !stripNullable {
				out[key] = nil
			}
			continue
		}
		out[key] = storageValue(val)
	}
	return out
}

func storageValue(val any) any {
	switch t := val.(type) {
	case bool, string, int64, float64:
		return t
	case json.RawMessage:
		return string(t)
	case []byte:
		return t
	case map[string]any:
		if buf, ok := bufferEnvelope(t); ok {
			return buf
		}
		if n, ok := longFromMap(t); ok {
			return n
		}
		return jsonText(t)
	default:
		if n, ok := ToNumber(val); ok {
			return n
		}
		return jsonText(val)
	}
}

// ToWire converts a storage document (struct or map) into its response
// shape: integers beyond MaxSafeInteger as decimal strings, blobs as
// {type:"Buffer",data:[...]} envelopes. Nil fields are dropped when
// stripNullable is set.
func ToWire(v any, stripNullable bool) map[string]any {
	doc := toDoc(v, stripNullable)
	out := make(map[string]any, len(doc))
	for key, val := range doc {
		if val == nil {
			if !stripNullable {
				out[key] = nil
			}
			continue
		}
		out[key] = wireValue(val)
	}
	return out
}

func wireValue(val any) any {
	switch t := val.(type) {
	case int64:
		if t > MaxSafeInteger || t < -MaxSafeInteger {
			return strconv.FormatInt(t, 10)
		}
		return t
	case uint64:
		if t > MaxSafeInteger {
			return strconv.FormatUint(t, 10)
		}
		return t
	case json.RawMessage:
		return t
	case []byte:
		return toBufferEnvelope(t)
	default:
		return val
	}
}

// toBufferEnvelope wraps raw bytes the way the wire format represents
// binary payloads in JSON.
func toBufferEnvelope(data []byte) map[string]any {
	ints := make([]int, len(data))
	for i, b := range data {
		ints[i] = int(b)
	}
	return map[string]any{"type": "Buffer", "data": ints}
}

// bufferEnvelope recognizes {type:"Buffer",data:...} maps, with data as
// either a byte list or a base64 string.
func bufferEnvelope(m map[string]any) ([]byte, bool) {
	if typ, _ := m["type"].(string); typ != "Buffer" {
		return nil, false
	}
	switch data := m["data"].(type) {
	case string:
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, false
		}
		return raw, true
	case []any:
		raw := make([]byte, len(data))
		for i, item := range data {
			n, ok := ToNumber(item)
			if !ok {
				return nil, false
			}
			raw[i] = byte(n)
		}
		return raw, true
	}
	return nil, false
}

// toDoc flattens a struct (or passes a map through) into field-name keyed
// values. Struct field names come from json tags; nil pointers are
// dropped when strip is set, reported as nil otherwise.
func toDoc(v any, strip bool) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	doc := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		if name == "-" {
			continue
		}

		fv := rv.Field(i)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				if !strip {
					doc[name] = nil
				}
				continue
			}
			fv = fv.Elem()
		}
		if (fv.Kind() == reflect.Slice || fv.Kind() == reflect.Map) && fv.IsNil() {
			if !strip {
				doc[name] = nil
			}
			continue
		}
		doc[name] = fv.Interface()
	}
	return doc
}

func fieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
