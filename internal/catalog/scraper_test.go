package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const catalogPage = `<!DOCTYPE html>
<html><body>
<form>
<select name="sort"><option value="newest">Newest</option></select>
<select name="make_slug" id="search-make">
  <option value="">Any make</option>
  <option value="alfa-romeo">Alfa Romeo</option>
  <option value="bmw"> BMW </option>
  <option value="porsche">Porsche</option>
</select>
</form>
</body></html>`

type recordingSink struct {
	names []string
	slugs []string
}

func (s *recordingSink) ReplaceMakes(names, slugs []string) error {
	s.names = names
	s.slugs = slugs
	return nil
}

func TestFetchMakes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(catalogPage))
	}))
	defer srv.Close()

	makes, err := NewScraper(srv.Client(), srv.URL).FetchMakes(context.Background())
	if err != nil {
		t.Fatalf("FetchMakes: %v", err)
	}

	want := []Make{
		{Name: "Alfa Romeo", Slug: "alfa-romeo"},
		{Name: "BMW", Slug: "bmw"},
		{Name: "Porsche", Slug: "porsche"},
	}
	if len(makes) != len(want) {
		t.Fatalf("got %d makes, want %d: %v", len(makes), len(want), makes)
	}
	for i := range want {
		if makes[i] != want[i] {
			t.Errorf("make %d = %+v, want %+v", i, makes[i], want[i])
		}
	}
}

func TestFetchMakesSkipsPageWithoutOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>maintenance</p></body></html>`))
	}))
	defer srv.Close()

	if _, err := NewScraper(srv.Client(), srv.URL).FetchMakes(context.Background()); err == nil {
		t.Fatal("expected error for page without a make selector")
	}
}

func TestFetchMakesRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewScraper(srv.Client(), srv.URL).FetchMakes(context.Background()); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestRefreshStoresScrapedMakes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(catalogPage))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	n, err := NewScraper(srv.Client(), srv.URL).Refresh(context.Background(), sink)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 3 {
		t.Errorf("Refresh reported %d makes, want 3", n)
	}
	if len(sink.names) != 3 || sink.names[2] != "Porsche" || sink.slugs[2] != "porsche" {
		t.Errorf("sink got names=%v slugs=%v", sink.names, sink.slugs)
	}
}
