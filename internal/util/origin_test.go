package util

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestOriginFromRequest(t *testing.T) {
	cases := []struct {
		name        string
		headers     map[string]string
		remote      string
		allowDirect bool
		want        string
	}{
		{name: "cloudflare first", headers: map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Real-IP": "2.2.2.2"}, want: "1.1.1.1"},
		{name: "true client ip", headers: map[string]string{"True-Client-IP": "3.3.3.3"}, want: "3.3.3.3"},
		{name: "x-real-ip", headers: map[string]string{"X-Real-IP": "4.4.4.4"}, want: "4.4.4.4"},
		{name: "literal undefined ignored", headers: map[string]string{"X-Real-IP": "undefined"}, want: ""},
		{name: "no headers fails closed", remote: "9.9.9.9:1234", want: ""},
		{name: "direct access allowed", remote: "9.9.9.9:1234", allowDirect: true, want: "9.9.9.9"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tc.remote != "" {
				r.RemoteAddr = tc.remote
			}
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := OriginFromRequest(r, nil, tc.allowDirect); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestOriginFromRequestCustomHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("CF-Connecting-IP", "1.1.1.1")
	r.Header.Set("X-Forwarded-For", "5.5.5.5")
	if got := OriginFromRequest(r, []string{"X-Forwarded-For"}, false); got != "5.5.5.5" {
		t.Fatalf("got %q", got)
	}
}

func TestNewAtEncodesTimestamp(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	id, err := ulid.Parse(NewAt(at))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Time() != uint64(at.UnixMilli()) {
		t.Fatalf("ulid time = %d", id.Time())
	}
}
