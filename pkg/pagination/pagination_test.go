package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		query    string
		wantPage int
		wantSize int
	}{
		{"", 1, DefaultPageSize},
		{"?pageNumber=3&pageSize=10", 3, 10},
		{"?pageNumber=0&pageSize=-4", 1, DefaultPageSize},
		{"?pageNumber=abc", 1, DefaultPageSize},
		{"?pageSize=1000", 1, MaxPageSize},
	}

	e := echo.New()
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patients"+tt.query, nil)
		c := e.NewContext(req, httptest.NewRecorder())

		p := FromContext(c)
		if p.PageNumber != tt.wantPage || p.PageSize != tt.wantSize {
			t.Errorf("FromContext(%q) = %+v, want page %d size %d", tt.query, p, tt.wantPage, tt.wantSize)
		}
	}
}

func TestParams_Skip(t *testing.T) {
	if got := New(1, 20).Skip(); got != 0 {
		t.Errorf("expected skip 0 for first page, got %d", got)
	}
	if got := New(3, 20).Skip(); got != 40 {
		t.Errorf("expected skip 40 for third page, got %d", got)
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 45, New(2, 20))
	if resp.TotalCount != 45 || resp.PageNumber != 2 || resp.PageSize != 20 {
		t.Errorf("unexpected response %+v", resp)
	}
	if !resp.HasNext {
		t.Error("expected another page after page 2 of 45 rows")
	}

	last := NewResponse(nil, 45, New(3, 20))
	if last.HasNext {
		t.Error("expected no page after the last one")
	}
}
