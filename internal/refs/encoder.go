package refs

import (
	"strings"

	"bioknowledge/kbsync/internal/kb"
	"bioknowledge/kbsync/internal/table"
)

// Encoder builds references from edge rows using the two structural
// reference properties.
type Encoder struct {
	TextProperty string // supporting-text holder
	URLProperty  string // citation-URL holder
}

// Encode returns one reference per edge row. A row with neither supporting
// text nor a citation produces no reference.
func (e Encoder) Encode(rows []table.Edge) []kb.Reference {
	var out []kb.Reference
	for _, row := range rows {
		var snaks []kb.Snak
		for _, seg := range Wrap(row.ReferenceSupportingText, MaxLength) {
			snaks = append(snaks, kb.Snak{Property: e.TextProperty, Value: kb.Literal(seg)})
		}
		if row.ReferenceURI != "" {
			for _, raw := range strings.Split(row.ReferenceURI, "|") {
				for _, u := range NormalizeURL(raw) {
					snaks = append(snaks, kb.Snak{Property: e.URLProperty, Value: kb.URL(u)})
				}
			}
		}
		if len(snaks) > 0 {
			out = append(out, kb.Reference{Snaks: snaks})
		}
	}
	return out
}

// Decode reverses Encode for one reference: text segments joined by a space,
// URLs joined by a pipe with PubMed batches merged and the NA citation
// restored.
func (e Encoder) Decode(ref kb.Reference) (text, uri string) {
	text = strings.Join(ref.Values(e.TextProperty), " ")
	urls := JoinPubMed(ref.Values(e.URLProperty))
	for i, u := range urls {
		urls[i] = DenormalizeURL(u)
	}
	return text, strings.Join(urls, "|")
}
