package evaluator

import (
	"strings"
)

// ReferencesMarker separates a research report's prose from its source list.
const ReferencesMarker = "**References:**"

// SplitReferences divides a research report into its prose body and the
// extracted reference lines. List markers and surrounding whitespace are
// stripped from each line; empty lines and horizontal rules are discarded.
// A missing marker returns a ReferenceParseError and the untouched text.
func SplitReferences(text string) (body string, refs []string, err error) {
	idx := strings.Index(text, ReferencesMarker)
	if idx < 0 {
		return text, nil, &ReferenceParseError{Reason: "no references marker found"}
	}

	body = strings.TrimSpace(text[:idx])
	block := text[idx+len(ReferencesMarker):]

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "*-• \t")
		line = strings.TrimSpace(line)
		if line == "" || line == "---" || strings.Trim(line, "-") == "" {
			continue
		}
		refs = append(refs, line)
	}
	return body, refs, nil
}

// Group headings in the rendered citation section, keyed by reference type.
var groupHeadings = []struct {
	typ     ReferenceType
	heading string
}{
	{ReferenceRAG, "Knowledge Base References"},
	{ReferenceLiterature, "Literature References"},
}

// RenderReferences formats the accumulated reference records as the citation
// section appended to the final report. References are grouped by type and
// deduplicated by exact string match, preserving first-seen order.
func RenderReferences(refs []Reference) string {
	var sb strings.Builder
	sb.WriteString("### References\n")

	if len(refs) == 0 {
		sb.WriteString("\nNo references were consulted for this report.\n")
		return sb.String()
	}

	for _, group := range groupHeadings {
		seen := make(map[string]struct{})
		var lines []string
		for _, r := range refs {
			if r.Type != group.typ {
				continue
			}
			if _, dup := seen[r.Reference]; dup {
				continue
			}
			seen[r.Reference] = struct{}{}
			lines = append(lines, r.Reference)
		}
		if len(lines) == 0 {
			continue
		}
		sb.WriteString("\n#### " + group.heading + "\n")
		for _, line := range lines {
			sb.WriteString("* " + line + "\n")
		}
	}
	return sb.String()
}
