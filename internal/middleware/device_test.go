package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const testDeviceID = "3f1c2a9e-5b7d-4e8f-9a0b-1c2d3e4f5a6b"

func TestDeviceMiddleware_WithValidCookie(t *testing.T) {
	m := NewDeviceMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetDeviceIDFromContext(r.Context())
		if !ok {
			t.Fatalf("device id not in context")
		}
		if id != testDeviceID {
			t.Fatalf("device id from context = %q, want %q", id, testDeviceID)
		}
	})

	w := httptest.NewRecorder()
	m.SetDeviceToken(w, testDeviceID)
	resCookies := w.Result().Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetDeviceToken")
	}

	r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	r.AddCookie(resCookies[0])

	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("known device must not get a new cookie")
	}
}

func TestDeviceMiddleware_WithHeader(t *testing.T) {
	m := NewDeviceMiddleware("test-secret")

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetDeviceIDFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	r.Header.Set(DeviceHeader, m.sign(testDeviceID))
	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if got != testDeviceID {
		t.Fatalf("device id = %q, want %q", got, testDeviceID)
	}
}

func TestDeviceMiddleware_MintsNewDevice(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "no cookie"},
		{name: "bad signature", cookie: &http.Cookie{Name: deviceCookieName, Value: testDeviceID + ".deadbeef"}},
		{name: "not a uuid", cookie: &http.Cookie{Name: deviceCookieName, Value: NewDeviceMiddleware("test-secret").sign("42")}},
		{name: "garbage", cookie: &http.Cookie{Name: deviceCookieName, Value: "garbage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewDeviceMiddleware("test-secret")
			m.newID = func() string { return testDeviceID }

			var got string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = GetDeviceIDFromContext(r.Context())
			})

			r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.cookie != nil {
				r.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			m.Middleware(next).ServeHTTP(w, r)

			if got != testDeviceID {
				t.Fatalf("device id = %q, want minted %q", got, testDeviceID)
			}
			res := w.Result()
			if len(res.Cookies()) != 1 {
				t.Fatalf("expected a fresh device cookie")
			}
			if res.Header.Get(DeviceHeader) != m.sign(testDeviceID) {
				t.Fatalf("expected device token header")
			}
		})
	}
}

func TestDeviceMiddleware_ForeignSecret(t *testing.T) {
	issuer := NewDeviceMiddleware("other-secret")
	m := NewDeviceMiddleware("test-secret")

	if _, ok := m.parseToken(issuer.sign(testDeviceID)); ok {
		t.Fatalf("token signed with another secret must be rejected")
	}
}
