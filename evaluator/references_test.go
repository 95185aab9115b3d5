package evaluator

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestSplitReferences(t *testing.T) {
	body, refs, err := SplitReferences("...text...\n**References:**\n* Source A\n---\n* Source B\n")
	if err != nil {
		t.Fatalf("SplitReferences() error: %v", err)
	}
	if body != "...text..." {
		t.Errorf("body = %q", body)
	}
	if !reflect.DeepEqual(refs, []string{"Source A", "Source B"}) {
		t.Errorf("refs = %v, want [Source A, Source B]", refs)
	}
}

func TestSplitReferencesStripsMarkers(t *testing.T) {
	_, refs, err := SplitReferences("report\n**References:**\n  - Dashed Source  \n\t* Starred Source\n• Bulleted Source")
	if err != nil {
		t.Fatalf("SplitReferences() error: %v", err)
	}
	want := []string{"Dashed Source", "Starred Source", "Bulleted Source"}
	if !reflect.DeepEqual(refs, want) {
		t.Errorf("refs = %v, want %v", refs, want)
	}
}

func TestSplitReferencesMissingMarker(t *testing.T) {
	body, refs, err := SplitReferences("a report with no source list")
	var perr *ReferenceParseError
	if err == nil {
		t.Fatal("SplitReferences() should report missing marker")
	}
	if ok := errors.As(err, &perr); !ok {
		t.Fatalf("error type = %T, want *ReferenceParseError", err)
	}
	if body != "a report with no source list" || refs != nil {
		t.Errorf("missing marker should leave text untouched: body=%q refs=%v", body, refs)
	}
}

func TestRenderReferencesDeduplicates(t *testing.T) {
	out := RenderReferences([]Reference{
		{Type: ReferenceRAG, Reference: "Neurology Handbook"},
		{Type: ReferenceRAG, Reference: "Neurology Handbook"},
	})
	if got := strings.Count(out, "Neurology Handbook"); got != 1 {
		t.Errorf("duplicate reference rendered %d times, want 1:\n%s", got, out)
	}
}

func TestRenderReferencesGroupsByType(t *testing.T) {
	out := RenderReferences([]Reference{
		{Type: ReferenceRAG, Reference: "Shared Source"},
		{Type: ReferenceLiterature, Reference: "Shared Source"},
	})
	if got := strings.Count(out, "Shared Source"); got != 2 {
		t.Errorf("same reference in two groups rendered %d times, want 2:\n%s", got, out)
	}
	if !strings.Contains(out, "Knowledge Base References") || !strings.Contains(out, "Literature References") {
		t.Errorf("missing group headings:\n%s", out)
	}
}

func TestRenderReferencesPreservesFirstSeenOrder(t *testing.T) {
	out := RenderReferences([]Reference{
		{Type: ReferenceRAG, Reference: "First"},
		{Type: ReferenceRAG, Reference: "Second"},
		{Type: ReferenceRAG, Reference: "First"},
	})
	if strings.Index(out, "First") > strings.Index(out, "Second") {
		t.Errorf("first-seen order not preserved:\n%s", out)
	}
}

func TestRenderReferencesEmpty(t *testing.T) {
	out := RenderReferences(nil)
	if !strings.Contains(out, "No references were consulted") {
		t.Errorf("empty input should render the notice:\n%s", out)
	}
	if strings.Contains(out, "####") {
		t.Errorf("empty input must not render group headings:\n%s", out)
	}
}

func TestRenderReferencesSkipsEmptyGroup(t *testing.T) {
	out := RenderReferences([]Reference{
		{Type: ReferenceLiterature, Reference: "Only Literature"},
	})
	if strings.Contains(out, "Knowledge Base References") {
		t.Errorf("empty group heading must not be rendered:\n%s", out)
	}
	if !strings.Contains(out, "* Only Literature") {
		t.Errorf("literature bullet missing:\n%s", out)
	}
}
