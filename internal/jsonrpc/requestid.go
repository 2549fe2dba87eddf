package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a JSON-RPC id: a string or a number. Numbers keep their
// original text so large integers round-trip exactly.
type RequestID struct {
	value any
}

// NewRequestID wraps a string, integer or json.Number id. Other types
// produce a nil id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string, json.Number:
		return &RequestID{value: v}
	case int:
		return &RequestID{value: json.Number(strconv.Itoa(v))}
	case int32:
		return &RequestID{value: json.Number(strconv.FormatInt(int64(v), 10))}
	case int64:
		return &RequestID{value: json.Number(strconv.FormatInt(v, 10))}
	default:
		return &RequestID{}
	}
}

func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	switch v := id.value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Key identifies the id for in-flight bookkeeping. Unlike String it keeps
// the string "1" and the number 1 apart.
func (id *RequestID) Key() string {
	if id.IsNil() {
		return ""
	}
	if _, ok := id.value.(string); ok {
		return "s:" + id.String()
	}
	return "n:" + id.String()
}

// Value returns the underlying string or json.Number.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// IsNil reports whether the id is absent or null.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		id.value = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		id.value = str
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil {
		if num, ok := v.(json.Number); ok {
			id.value = num
			return nil
		}
	}
	return fmt.Errorf("id must be a string or number, got %s", data)
}
