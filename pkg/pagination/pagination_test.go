package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(target string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor("/")

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor("/?limit=50&offset=10")

	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_Page(t *testing.T) {
	tests := []struct {
		target     string
		wantOffset int
	}{
		{"/?page=1&limit=10", 0},
		{"/?page=3&limit=10", 20},
		{"/?page=0&limit=10", 0},
		{"/?page=-2", 0},
		{"/?page=3&limit=10&offset=5", 5},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if got := paramsFor(tt.target).Offset; got != tt.wantOffset {
				t.Errorf("expected offset %d, got %d", tt.wantOffset, got)
			}
		})
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := paramsFor("/?limit=500")

	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_InvalidValues(t *testing.T) {
	p := paramsFor("/?limit=abc&offset=-5")

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit for garbage input, got %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected negative offset clamped to 0, got %d", p.Offset)
	}
}

func TestParams_Page(t *testing.T) {
	if got := (Params{Limit: 10, Offset: 25}).Page(); got != 3 {
		t.Errorf("expected page 3, got %d", got)
	}
	if got := (Params{}).Page(); got != 1 {
		t.Errorf("expected page 1 for zero params, got %d", got)
	}
}

func TestParams_Window(t *testing.T) {
	tests := []struct {
		name      string
		p         Params
		n         int
		wantStart int
		wantEnd   int
	}{
		{"first page", Params{Limit: 10, Offset: 0}, 25, 0, 10},
		{"last partial", Params{Limit: 10, Offset: 20}, 25, 20, 25},
		{"past end", Params{Limit: 10, Offset: 40}, 25, 25, 25},
		{"empty", Params{Limit: 10}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.p.Window(tt.n)
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("expected [%d:%d], got [%d:%d]", tt.wantStart, tt.wantEnd, start, end)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 2})

	if resp.Total != 5 || resp.Page != 2 || resp.Limit != 2 || resp.Offset != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !resp.HasMore {
		t.Error("expected more results")
	}

	last := NewResponse(nil, 5, Params{Limit: 2, Offset: 4})
	if last.HasMore {
		t.Error("expected no more results on last page")
	}
}
