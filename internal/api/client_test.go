package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	return c
}

func TestNewClient_RejectsBadScheme(t *testing.T) {
	if _, err := NewClient("ftp://example.com", time.Second, nil); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestCollection_List(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bare array", `[{"id":1,"merchant":"Coop","amount":12.5},{"id":2,"merchant":"Esselunga","amount":"3,20"}]`, 2},
		{"wrapped", `{"success":true,"data":[{"id":7,"amount":1}]}`, 1},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/api/tickets/user" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer tok" {
					t.Errorf("Authorization = %q", got)
				}
				if r.Header.Get("X-Request-ID") == "" {
					t.Error("missing X-Request-ID")
				}
				io.WriteString(w, tt.body)
			})

			got, err := NewCollection[core.Ticket](c, DefaultEndpoints()[Tickets]).List(context.Background(), "tok")
			if err != nil {
				t.Fatalf("List() failed: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("List() returned %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestCollection_ListPreservesServerOrderAndAmounts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":3,"amount":"3,20"},{"id":1,"amount":12.345}]`)
	})
	got, err := NewCollection[core.Ticket](c, DefaultEndpoints()[Tickets]).List(context.Background(), "tok")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if got[0].ID != 3 || got[1].ID != 1 {
		t.Errorf("order not preserved: %+v", got)
	}
	if got[0].Amount.Cents != 320 || got[1].Amount.Cents != 1235 {
		t.Errorf("amounts = %d, %d", got[0].Amount.Cents, got[1].Amount.Cents)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind string
		wantMsg  string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"expired"}`, core.KindAuth, "session expired"},
		{"not found with message", http.StatusNotFound, `{"success":false,"message":"not found"}`, core.KindServer, "not found"},
		{"error field", http.StatusBadRequest, `{"error":"bad id"}`, core.KindServer, "bad id"},
		{"no body", http.StatusBadGateway, ``, core.KindServer, "server error: HTTP 502 Bad Gateway"},
		{"success false on 200", http.StatusOK, `{"success":false,"message":"cannot delete"}`, core.KindServer, "cannot delete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			err := NewCollection[core.Ticket](c, DefaultEndpoints()[Tickets]).Delete(context.Background(), "tok", 42)
			if core.ErrorKind(err) != tt.wantKind {
				t.Fatalf("ErrorKind(%v) = %s, want %s", err, core.ErrorKind(err), tt.wantKind)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, time.Second, nil)
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	_, err = NewCollection[core.Ticket](c, DefaultEndpoints()[Tickets]).List(context.Background(), "tok")
	var netErr *core.NetworkError
	if !errors.As(err, &netErr) || netErr.Op != "list" {
		t.Fatalf("expected NetworkError for list, got %v", err)
	}
}

func TestCollection_InvalidBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>oops</html>`)
	})
	_, err := NewCollection[core.Ticket](c, DefaultEndpoints()[Tickets]).List(context.Background(), "tok")
	if core.ErrorKind(err) != core.KindServer {
		t.Fatalf("expected server error for undecodable body, got %v", err)
	}
}

func TestCollection_Upload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tickets/upload" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() failed: %v", err)
			return
		}
		if got := r.FormValue("token"); got != "tok" {
			t.Errorf("token field = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() failed: %v", err)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		if string(content) != "fake-jpeg" || header.Filename != "receipt.jpg" {
			t.Errorf("file = %q (%s)", content, header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part content type = %q", ct)
		}
		io.WriteString(w, `{"success":true,"extractedData":{"merchant":"Coop","total":12.30,"date":"2024-03-01"},"text":"COOP 12,30"}`)
	})

	upload := core.Upload{Name: "receipt.jpg", Type: "image/jpeg", Size: 9, Body: strings.NewReader("fake-jpeg")}
	res, err := NewCollection[core.Ticket](c, DefaultEndpoints()[Tickets]).Upload(context.Background(), "tok", upload)
	if err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}
	if !res.Success || res.ExtractedData == nil || res.ExtractedData.Merchant != "Coop" || res.ExtractedData.Total.Cents != 1230 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.ExtractedData.Date.String() != "2024-03-01" {
		t.Errorf("date = %s", res.ExtractedData.Date)
	}
}

func TestCollection_DeleteAndStatsBodies(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if body["token"] != "tok" {
			t.Errorf("token = %v", body["token"])
		}
		switch r.URL.Path {
		case "/api/expenses/delete":
			if body["id"] != float64(9) {
				t.Errorf("id = %v", body["id"])
			}
			io.WriteString(w, `{"success":true}`)
		case "/api/expenses/stats":
			io.WriteString(w, `{"success":true,"stats":{"total":2,"totalAmount":10.5,"monthAmount":4,"averageAmount":5.25}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	coll := NewCollection[core.Expense](c, DefaultEndpoints()[Expenses])
	if err := coll.Delete(context.Background(), "tok", 9); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	stats, err := coll.Stats(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.Total != 2 || stats.TotalAmount.Cents != 1050 || stats.AverageAmount.Cents != 525 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCollection_Unsupported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL.Path)
	})
	coll := NewCollection[core.Category](c, DefaultEndpoints()[Categories])

	if _, err := coll.Stats(context.Background(), "tok"); !IsUnsupported(err) {
		t.Errorf("Stats() = %v, want unsupported", err)
	}
	if _, err := coll.Upload(context.Background(), "tok", core.Upload{}); !IsUnsupported(err) {
		t.Errorf("Upload() = %v, want unsupported", err)
	}
}

func TestLoadEndpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.yaml")
	os.WriteFile(path, []byte("tickets:\n  list: /v2/tickets\ncategories:\n  stats: /api/categories/stats\n"), 0o600)

	got, err := LoadEndpoints(path)
	if err != nil {
		t.Fatalf("LoadEndpoints() failed: %v", err)
	}
	if got[Tickets].List != "/v2/tickets" || got[Tickets].Upload != "/api/tickets/upload" {
		t.Errorf("tickets = %+v", got[Tickets])
	}
	if got[Categories].Stats != "/api/categories/stats" {
		t.Errorf("categories = %+v", got[Categories])
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("invoices:\n  list: /x\n"), 0o600)
	if _, err := LoadEndpoints(bad); err == nil {
		t.Error("expected error for unknown collection")
	}

	if d, err := LoadEndpoints(""); err != nil || d[Expenses].Upload != "" {
		t.Errorf("LoadEndpoints(\"\") = %+v, %v", d[Expenses], err)
	}
}

func TestFileDisposition(t *testing.T) {
	tests := []struct {
		filename string
	}{
		{"receipt.jpg"},
		{`my "best" receipt.png`},
		{`C:\scans\receipt.pdf`},
	}
	for _, tt := range tests {
		_, params, err := mime.ParseMediaType(fileDisposition("file", tt.filename))
		if err != nil {
			t.Fatalf("ParseMediaType(%q) failed: %v", tt.filename, err)
		}
		if params["name"] != "file" || params["filename"] != tt.filename {
			t.Errorf("params = %v, want filename %q", params, tt.filename)
		}
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestWithHTTPClient(t *testing.T) {
	var seen string
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.URL.Path
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`[]`)),
			Request:    r,
		}, nil
	})}

	c, err := NewClient("http://backend.invalid", 5*time.Second, nil, WithHTTPClient(hc))
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	records, err := NewCollection[core.Category](c, DefaultEndpoints()[Categories]).List(context.Background(), "tok")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(records) != 0 || seen != "/api/categories/user" {
		t.Errorf("records = %v, path = %q", records, seen)
	}

	if _, err := NewClient("http://backend.invalid", 5*time.Second, nil, WithHTTPClient(nil)); err != nil {
		t.Errorf("NewClient() with nil http client failed: %v", err)
	}
}
