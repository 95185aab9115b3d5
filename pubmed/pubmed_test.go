package pubmed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const efetchSample = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>12345678</PMID>
      <Article>
        <Journal>
          <JournalIssue><PubDate><Year>2023</Year></PubDate></JournalIssue>
          <Title>Cephalalgia</Title>
        </Journal>
        <ArticleTitle>CGRP antagonists for migraine prophylaxis</ArticleTitle>
        <ELocationID EIdType="doi">10.1000/test.2023</ELocationID>
        <Abstract>
          <AbstractText Label="BACKGROUND">Migraine is common.</AbstractText>
          <AbstractText Label="RESULTS">CGRP antagonists reduced attack frequency.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author><LastName>Smith</LastName><Initials>JA</Initials></Author>
          <Author><LastName>Jones</LastName><Initials>RB</Initials></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.Path+"?"+r.URL.RawQuery)
		switch r.URL.Path {
		case "/esearch.fcgi":
			w.Write([]byte(`{"esearchresult":{"count":"2","idlist":["12345678","87654321"]}}`))
		case "/efetch.fcgi":
			w.Write([]byte(efetchSample))
		default:
			http.NotFound(w, r)
		}
	}))
	return srv, &requests
}

func TestSearch(t *testing.T) {
	srv, requests := newTestServer(t)
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	pmids, err := c.Search(context.Background(), "migraine treatment", SearchOptions{MaxResults: 5, YearsBack: 10})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(pmids) != 2 || pmids[0] != "12345678" {
		t.Errorf("pmids = %v", pmids)
	}

	req := (*requests)[0]
	if !strings.Contains(req, "db=pubmed") || !strings.Contains(req, "retmax=5") {
		t.Errorf("request missing expected params: %s", req)
	}
	if !strings.Contains(req, "%5Bdp%5D") {
		t.Errorf("request missing date-range filter: %s", req)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	c := New()
	if _, err := c.Search(context.Background(), " ", SearchOptions{}); err == nil {
		t.Fatal("Search with empty query should fail")
	}
}

func TestFetchDetails(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	articles, err := c.FetchDetails(context.Background(), []string{"12345678"})
	if err != nil {
		t.Fatalf("FetchDetails() error: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}

	a := articles[0]
	if a.PMID != "12345678" {
		t.Errorf("PMID = %q", a.PMID)
	}
	if a.Title != "CGRP antagonists for migraine prophylaxis" {
		t.Errorf("Title = %q", a.Title)
	}
	if a.Journal != "Cephalalgia" || a.Year != "2023" {
		t.Errorf("Journal/Year = %q/%q", a.Journal, a.Year)
	}
	if a.DOI != "10.1000/test.2023" {
		t.Errorf("DOI = %q", a.DOI)
	}
	if len(a.Authors) != 2 || a.Authors[0] != "Smith JA" {
		t.Errorf("Authors = %v", a.Authors)
	}
	if !strings.Contains(a.Abstract, "BACKGROUND: Migraine is common.") {
		t.Errorf("Abstract = %q", a.Abstract)
	}
}

func TestFetchDetailsEmpty(t *testing.T) {
	c := New()
	articles, err := c.FetchDetails(context.Background(), nil)
	if err != nil || articles != nil {
		t.Errorf("FetchDetails(nil) = %v, %v; want nil, nil", articles, err)
	}
}

func TestCitation(t *testing.T) {
	a := Article{
		PMID:    "111",
		Title:   "A trial.",
		Journal: "Lancet",
		Year:    "2020",
		Authors: []string{"Smith JA", "Jones RB", "Lee C", "Wu D"},
	}
	got := a.Citation()
	if !strings.HasPrefix(got, "Smith JA et al.") {
		t.Errorf("Citation() = %q, want et-al form for >3 authors", got)
	}
	if !strings.Contains(got, "PMID: 111") {
		t.Errorf("Citation() = %q, want PMID included", got)
	}
}

func TestFormatArticles(t *testing.T) {
	if got := FormatArticles(nil); got != "No PubMed articles matched the query." {
		t.Errorf("empty format = %q", got)
	}

	out := FormatArticles([]Article{
		{PMID: "1", Title: "First.", Abstract: "Details."},
		{PMID: "2", Title: "Second."},
	})
	if !strings.Contains(out, "[1] First.") || !strings.Contains(out, "[2] Second.") {
		t.Errorf("FormatArticles output:\n%s", out)
	}
	if !strings.Contains(out, "Abstract: Details.") {
		t.Errorf("FormatArticles missing abstract:\n%s", out)
	}
}
