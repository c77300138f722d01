// Package refs encodes edge provenance (supporting text and citation URLs)
// into knowledge-base references that fit the remote's per-value length
// limit, and decodes them back.
package refs

import (
	"strings"
	"unicode/utf8"
)

// MaxLength is the remote's per-value character limit.
const MaxLength = 400

const (
	// NAURL stands in for a missing citation.
	NAURL = "https://na.na/na"
	// PubMedBase prefixes literature-database citations. The path carries a
	// comma-separated PMID list.
	PubMedBase = "https://www.ncbi.nlm.nih.gov/pubmed/"
	// BookSourcesBase is the bibliographic search URL ISBN citations are
	// rewritten to.
	BookSourcesBase = "https://www.wikidata.org/wiki/Special:BookSources/"
)

// Wrap splits text into whitespace-bounded segments of at most limit
// characters, packing greedily. Runs of whitespace collapse to one space.
// A single word longer than limit is cut into limit-sized pieces; it is the
// only case that breaks inside a word.
func Wrap(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxLength
	}
	var (
		out  []string
		cur  strings.Builder
		size int // runes in cur
	)
	flush := func() {
		if size > 0 {
			out = append(out, cur.String())
			cur.Reset()
			size = 0
		}
	}
	for _, word := range strings.Fields(text) {
		n := utf8.RuneCountInString(word)
		for n > limit {
			flush()
			head := cut(word, limit)
			out = append(out, head)
			word = word[len(head):]
			n -= limit
		}
		if size > 0 && size+1+n > limit {
			flush()
		}
		if size > 0 {
			cur.WriteByte(' ')
			size++
		}
		cur.WriteString(word)
		size += n
	}
	flush()
	return out
}

// NormalizeURL turns one citation into the URL values stored on the remote.
// ISBNs become book-source URLs, PubMed lists are re-batched under the
// length limit, the missing token becomes NAURL and anything else is cut to
// MaxLength.
func NormalizeURL(raw string) []string {
	u := strings.TrimSpace(raw)
	switch {
	case u == "":
		return nil
	case u == "NA":
		return []string{NAURL}
	case strings.HasPrefix(u, "ISBN"):
		return []string{truncate(BookSourcesBase + isbn(u))}
	case strings.HasPrefix(u, PubMedBase):
		return SplitPubMed(u)
	default:
		return []string{truncate(u)}
	}
}

func isbn(u string) string {
	for _, prefix := range []string{"ISBN-13:", "ISBN-10:", "ISBN-13", "ISBN-10", "ISBN:", "ISBN"} {
		if strings.HasPrefix(u, prefix) {
			return strings.TrimSpace(u[len(prefix):])
		}
	}
	return u
}

// SplitPubMed re-batches a PubMed URL so each result stays under MaxLength.
// Every PMID lands in exactly one batch, in input order.
func SplitPubMed(u string) []string {
	var pmids []string
	for _, id := range strings.Split(strings.TrimPrefix(u, PubMedBase), ",") {
		if id = strings.TrimSpace(id); id != "" {
			pmids = append(pmids, id)
		}
	}
	if len(pmids) == 0 {
		return []string{truncate(u)}
	}

	var urls []string
	for len(pmids) > 0 {
		cur := PubMedBase + pmids[0]
		pmids = pmids[1:]
		for len(pmids) > 0 && len(cur)+len(pmids[0])+1 < MaxLength {
			cur += "," + pmids[0]
			pmids = pmids[1:]
		}
		urls = append(urls, truncate(cur))
	}
	return urls
}

// JoinPubMed merges PubMed URLs back into one URL. Other URLs pass through
// in place; the merged URL takes the position of the first PubMed batch.
func JoinPubMed(urls []string) []string {
	var (
		out   []string
		pmids []string
		at    = -1
	)
	for _, u := range urls {
		if !strings.HasPrefix(u, PubMedBase) {
			out = append(out, u)
			continue
		}
		if at < 0 {
			at = len(out)
			out = append(out, "")
		}
		pmids = append(pmids, strings.TrimPrefix(u, PubMedBase))
	}
	if at >= 0 {
		out[at] = PubMedBase + strings.Join(pmids, ",")
	}
	return out
}

// DenormalizeURL maps a stored URL back to its table form.
func DenormalizeURL(u string) string {
	if u == NAURL {
		return "NA"
	}
	return u
}

func truncate(s string) string {
	return cut(s, MaxLength)
}

// cut returns the first n characters of s.
func cut(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
