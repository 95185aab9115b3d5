package webfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Migraine - Overview</title><style>p{color:red}</style></head>
<body>
<nav><a href="/">Home</a> | <a href="/topics">Topics</a></nav>
<header>Site banner</header>
<main>
<h1>Migraine</h1>
<p>Migraine is a primary headache disorder characterized by recurrent attacks.</p>
<ul><li>Aura may precede the headache phase.</li></ul>
<script>trackPageView();</script>
</main>
<footer>Copyright notice</footer>
</body>
</html>`

func TestFetchExtractsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("expected browser user agent, got %q", ua)
		}
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := New()
	result := f.Fetch(context.Background(), srv.URL)

	if !result.Success {
		t.Fatalf("Fetch failed: %s", result.Error)
	}
	if result.Title != "Migraine - Overview" {
		t.Errorf("Title = %q", result.Title)
	}
	if !strings.Contains(result.Content, "primary headache disorder") {
		t.Errorf("content missing body text:\n%s", result.Content)
	}
	if !strings.Contains(result.Content, "- Aura may precede") {
		t.Errorf("content missing list item:\n%s", result.Content)
	}
	if strings.Contains(result.Content, "trackPageView") {
		t.Errorf("script content leaked into extraction:\n%s", result.Content)
	}
	if strings.Contains(result.Content, "Site banner") || strings.Contains(result.Content, "Copyright notice") {
		t.Errorf("page chrome leaked into extraction:\n%s", result.Content)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	result := New().Fetch(context.Background(), srv.URL)
	if result.Success {
		t.Fatal("Fetch should report failure on 403")
	}
	if !strings.Contains(result.Error, "403") {
		t.Errorf("Error = %q, want status code mentioned", result.Error)
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	result := New().Fetch(context.Background(), "http://127.0.0.1:1/nothing")
	if result.Success {
		t.Fatal("Fetch should report failure for unreachable host")
	}
	if result.Error == "" {
		t.Error("Error should describe the failure")
	}
}

func TestFetchTruncatesLongContent(t *testing.T) {
	long := "<html><body><main><p>" + strings.Repeat("evidence ", 5000) + "</p></main></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(long))
	}))
	defer srv.Close()

	f := New(WithMaxContent(500))
	result := f.Fetch(context.Background(), srv.URL)
	if !result.Success {
		t.Fatalf("Fetch failed: %s", result.Error)
	}
	if !strings.HasSuffix(result.Content, "[content truncated]") {
		t.Error("long content should carry truncation marker")
	}
	if len(result.Content) > 500+len("\n\n[content truncated]") {
		t.Errorf("content length %d exceeds cap", len(result.Content))
	}
}

func TestFetchAllPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head><title>" + r.URL.Path + "</title></head><body><main><p>page " + r.URL.Path + "</p></main></body></html>"))
	}))
	defer srv.Close()

	f := New()
	results := f.FetchAll(context.Background(), []string{srv.URL + "/a", "http://127.0.0.1:1/bad", srv.URL + "/b"})
	if len(results) != 3 {
		t.Fatalf("FetchAll returned %d results, want 3", len(results))
	}
	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Errorf("success pattern = %v/%v/%v, want true/false/true",
			results[0].Success, results[1].Success, results[2].Success)
	}

	text := FormatResults(results)
	if !strings.Contains(text, "fetch failed") {
		t.Errorf("FormatResults should surface the failure:\n%s", text)
	}
}

func TestDomainOf(t *testing.T) {
	if got := domainOf("https://www.nhs.uk/conditions/migraine/"); got != "nhs.uk" {
		t.Errorf("domainOf = %q, want nhs.uk", got)
	}
	if got := domainOf("::bad::"); got != "unknown" {
		t.Errorf("domainOf invalid = %q, want unknown", got)
	}
}
