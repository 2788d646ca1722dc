package fakeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"fintrack/internal/clock"
	"fintrack/internal/core"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer() *Server {
	return NewServer(nil, clock.Fake(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)))
}

func makeRequest(s *Server, method, url, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

// createReceiptFile builds a multipart body with a token field and a file part.
func createReceiptFile(token, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if token != "" {
		writer.WriteField("token", token)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		panic(err)
	}
	part.Write(content)
	writer.Close()
	return &buf, writer.FormDataContentType()
}

func upload(s *Server, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestListTickets(t *testing.T) {
	s := newTestServer()
	s.SeedTickets("tok", core.Ticket{Merchant: "Coop", Amount: core.Money{Cents: 1230}}, core.Ticket{Merchant: "Conad", Amount: core.Money{Cents: 500}})
	s.SeedTickets("other", core.Ticket{Merchant: "Lidl", Amount: core.Money{Cents: 100}})

	t.Run("should list only the token's tickets in insertion order", func(t *testing.T) {
		w := makeRequest(s, http.MethodGet, "/api/tickets/user", "tok", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var tickets []core.Ticket
		decode(t, w, &tickets)
		if len(tickets) != 2 || tickets[0].Merchant != "Coop" || tickets[1].Merchant != "Conad" {
			t.Errorf("unexpected tickets %+v", tickets)
		}
		if tickets[0].Amount.Cents != 1230 {
			t.Errorf("amount = %d", tickets[0].Amount.Cents)
		}
	})

	t.Run("should reject unknown tokens", func(t *testing.T) {
		w := makeRequest(s, http.MethodGet, "/api/tickets/user", "nope", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("should propagate the request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tickets/user", nil)
		req.Header.Set("Authorization", "Bearer tok")
		req.Header.Set("X-Request-ID", "abc")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		if got := w.Header().Get("X-Request-ID"); got != "abc" {
			t.Errorf("X-Request-ID = %q", got)
		}
	})
}

func TestUploadTicket(t *testing.T) {
	t.Run("should create a ticket from a text receipt", func(t *testing.T) {
		s := newTestServer()
		s.AddToken("tok")

		body, ct := createReceiptFile("tok", "coop_centro.pdf", "application/pdf", []byte("COOP\nTOTAL EUR 12,30\n"))
		w := upload(s, body, ct)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
		}

		var res core.ImportResult
		decode(t, w, &res)
		if !res.Success || res.ExtractedData == nil {
			t.Fatalf("unexpected result %+v", res)
		}
		if res.ExtractedData.Merchant != "coop centro" || res.ExtractedData.Total.Cents != 1230 {
			t.Errorf("extraction = %+v", res.ExtractedData)
		}
		if res.ExtractedData.Date.String() != "2024-03-15" {
			t.Errorf("date = %s", res.ExtractedData.Date)
		}

		tickets := s.Tickets("tok")
		if len(tickets) != 1 || tickets[0].ID == 0 || tickets[0].Amount.Cents != 1230 {
			t.Errorf("stored tickets = %+v", tickets)
		}
	})

	t.Run("should sniff the type when the part has none", func(t *testing.T) {
		s := newTestServer()
		s.AddToken("tok")
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
		body, ct := createReceiptFile("tok", "scan.png", "application/octet-stream", png)
		if w := upload(s, body, ct); w.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
		}
	})

	t.Run("should reject unsupported formats", func(t *testing.T) {
		s := newTestServer()
		s.AddToken("tok")
		body, ct := createReceiptFile("tok", "r.gif", "image/gif", []byte("GIF89a"))
		w := upload(s, body, ct)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
		var res core.ImportResult
		decode(t, w, &res)
		if res.Success || res.Message != "unsupported format" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("should require a valid token", func(t *testing.T) {
		s := newTestServer()
		body, ct := createReceiptFile("stale", "r.jpg", "image/jpeg", []byte("x"))
		if w := upload(s, body, ct); w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestDelete(t *testing.T) {
	s := newTestServer()
	seeded := s.SeedTickets("tok", core.Ticket{Merchant: "Coop", Amount: core.Money{Cents: 100}})

	t.Run("should report unknown ids as not found", func(t *testing.T) {
		w := makeRequest(s, http.MethodPost, "/api/tickets/delete", "", jsonBody(map[string]any{"token": "tok", "id": 42}))
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d", w.Code)
		}
		var res map[string]any
		decode(t, w, &res)
		if res["success"] != false || res["message"] != "not found" {
			t.Errorf("unexpected body %v", res)
		}
	})

	t.Run("should delete existing tickets", func(t *testing.T) {
		w := makeRequest(s, http.MethodPost, "/api/tickets/delete", "", jsonBody(map[string]any{"token": "tok", "id": seeded[0].ID}))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
		}
		if n := len(s.Tickets("tok")); n != 0 {
			t.Errorf("%d tickets left", n)
		}
	})

	t.Run("should reject revoked tokens", func(t *testing.T) {
		s.RevokeToken("tok")
		w := makeRequest(s, http.MethodPost, "/api/tickets/delete", "", jsonBody(map[string]any{"token": "tok", "id": 1}))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestStats(t *testing.T) {
	s := newTestServer()
	s.SeedTickets("tok",
		core.Ticket{Merchant: "a", Amount: core.Money{Cents: 1000}, Date: core.NewDate(2024, 3, 2)},
		core.Ticket{Merchant: "b", Amount: core.Money{Cents: 500}, Date: core.NewDate(2024, 2, 2)},
	)
	s.SeedExpenses("tok", core.Expense{Description: "rent", Amount: core.Money{Cents: 90000}, Date: core.NewDate(2024, 3, 1)})

	w := makeRequest(s, http.MethodPost, "/api/tickets/stats", "", jsonBody(map[string]string{"token": "tok"}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res struct {
		Success bool       `json:"success"`
		Stats   core.Stats `json:"stats"`
	}
	decode(t, w, &res)
	if !res.Success || res.Stats.Total != 2 || res.Stats.TotalAmount.Cents != 1500 || res.Stats.MonthAmount.Cents != 1000 || res.Stats.AverageAmount.Cents != 750 {
		t.Errorf("unexpected stats %+v", res)
	}

	w = makeRequest(s, http.MethodPost, "/api/expenses/stats", "", jsonBody(map[string]string{"token": "tok"}))
	decode(t, w, &res)
	if res.Stats.Total != 1 || res.Stats.MonthAmount.Cents != 90000 {
		t.Errorf("unexpected expense stats %+v", res.Stats)
	}
}

func TestOtherCollections(t *testing.T) {
	s := newTestServer()
	s.SeedCategories("tok", core.Category{Name: "Food", Type: core.ExpenseCategory, Budget: core.Money{Cents: 30000}})
	s.SeedRevenues("tok", core.Revenue{Description: "salary", Amount: core.Money{Cents: 250000}})

	w := makeRequest(s, http.MethodGet, "/api/categories/user", "tok", nil)
	var categories []core.Category
	decode(t, w, &categories)
	if len(categories) != 1 || categories[0].Type != core.ExpenseCategory || categories[0].Budget.Cents != 30000 {
		t.Errorf("categories = %+v", categories)
	}

	w = makeRequest(s, http.MethodGet, "/api/revenues/user", "tok", nil)
	var revenues []core.Revenue
	decode(t, w, &revenues)
	if len(revenues) != 1 || revenues[0].Description != "salary" {
		t.Errorf("revenues = %+v", revenues)
	}

	w = makeRequest(s, http.MethodPost, "/api/categories/stats", "", jsonBody(map[string]string{"token": "tok"}))
	if w.Code != http.StatusNotFound {
		t.Errorf("categories have no stats route, got %d", w.Code)
	}
}

func TestExtract(t *testing.T) {
	now := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		filename  string
		content   string
		wantTotal int64
		wantText  bool
	}{
		{"comma total", "esselunga.txt", "Totale: 45,90", 4590, true},
		{"dot total", "bar-roma.pdf", "TOTAL 3.50 EUR", 350, true},
		{"no total", "scan.jpg", "\xff\xd8\xff\xe0", defaultTotal.Cents, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, text := extract(tt.filename, []byte(tt.content), now)
			if got.Total.Cents != tt.wantTotal {
				t.Errorf("total = %d, want %d", got.Total.Cents, tt.wantTotal)
			}
			if (text != "") != tt.wantText {
				t.Errorf("text = %q", text)
			}
			if got.Merchant == "" {
				t.Error("merchant should come from the file name")
			}
		})
	}
}
