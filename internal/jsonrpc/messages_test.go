package jsonrpc

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantErr error
		kind    Kind
	}{
		{name: "request", in: `{"jsonrpc":"2.0","id":1,"method":"ping"}`, kind: KindRequest},
		{name: "string id", in: `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, kind: KindRequest},
		{name: "notification", in: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, kind: KindNotification},
		{name: "null id is notification", in: `{"jsonrpc":"2.0","id":null,"method":"x"}`, kind: KindNotification},
		{name: "response", in: `{"jsonrpc":"2.0","id":1,"result":{}}`, kind: KindResponse},
		{name: "not json", in: `{"jsonrpc":`, wantErr: ErrParse},
		{name: "empty", in: ``, wantErr: ErrParse},
		{name: "batch", in: `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, wantErr: ErrInvalidMessage},
		{name: "scalar", in: `42`, wantErr: ErrInvalidMessage},
		{name: "wrong version", in: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, wantErr: ErrInvalidMessage},
		{name: "request with result", in: `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`, wantErr: ErrInvalidMessage},
		{name: "response without payload", in: `{"jsonrpc":"2.0","id":1}`, wantErr: ErrInvalidMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Decode([]byte(tc.in))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.Kind() != tc.kind {
				t.Fatalf("kind = %s, want %s", m.Kind(), tc.kind)
			}
		})
	}
}

func TestCode(t *testing.T) {
	_, err := Decode([]byte("nope"))
	if Code(err) != ErrorCodeParseError {
		t.Fatalf("code = %d", Code(err))
	}
	_, err = Decode([]byte("[]"))
	if Code(err) != ErrorCodeInvalidRequest {
		t.Fatalf("code = %d", Code(err))
	}
}

func TestErrorResponseNullID(t *testing.T) {
	b, err := json.Marshal(NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"id":null`) {
		t.Fatalf("expected null id, got %s", b)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	for _, raw := range []string{`7`, `"seven"`, `1.5`, `9007199254740993`} {
		var id RequestID
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		out, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != raw {
			t.Fatalf("got %s want %s", out, raw)
		}
	}
	if NewRequestID(3).String() != "3" {
		t.Fatalf("int id string")
	}
}

func TestRequestIDKeyDistinguishesTypes(t *testing.T) {
	var num, str RequestID
	if err := json.Unmarshal([]byte(`1`), &num); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal([]byte(`"1"`), &str); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if num.String() != str.String() {
		t.Fatalf("expected equal display strings, got %q and %q", num.String(), str.String())
	}
	if num.Key() == str.Key() {
		t.Fatalf("numeric and string ids share key %q", num.Key())
	}
	if NewRequestID(1).Key() != num.Key() {
		t.Fatalf("constructed id key %q, want %q", NewRequestID(1).Key(), num.Key())
	}
}
