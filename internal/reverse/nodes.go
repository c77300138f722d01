package reverse

import (
	"strings"

	"bioknowledge/kbsync/internal/kb"
	"bioknowledge/kbsync/internal/report"
	"bioknowledge/kbsync/internal/table"
)

// reformatter rewrites a provisional node, whose ID is still the packed
// external ID, into graph form.
type reformatter func(n *table.Node)

// reformatters is the closed set of node labels a pull understands. Nodes
// with any other label are dropped.
var reformatters = map[string]reformatter{
	"GENE": parseGene,
	"NA":   parseGene,
	"GENO": parseLongForm,
	"DISO": parseLongForm,
	"PHYS": parseLongForm,
	"VARI": parseLongForm,
	"ANAT": parseLongForm,
}

var bracketReplacer = strings.NewReplacer("(", "", ")", "", "[", "", "]", "", "'", "")

// nodeOf turns an item into a node row and records the alias its edges are
// remapped through. Classes, ambiguous items and unknown labels yield no
// row.
func (s *Syncer) nodeOf(item *kb.Entity) (table.Node, bool) {
	packed, _ := s.xref.GraphID(item.ID)
	types := item.StatementsFor(s.typePID)
	for _, st := range types {
		s.typeTargets[st.Value.Text] = true
	}
	switch {
	case len(types) == 0 && item.Label == packed:
		// Decided once every item's types are known.
		s.classCandidates = append(s.classCandidates, item.ID)
		return table.Node{}, false
	case len(types) != 1:
		s.sum.Record(report.NodesUntyped, item.ID)
		s.log.Warn("item does not have exactly one type", "item", item.ID, "types", len(types))
		return table.Node{}, false
	}
	label, ok := s.xref.GraphID(types[0].Value.Text)
	if !ok {
		s.sum.Record(report.NodesUntyped, item.ID)
		s.log.Warn("item type has no external ID", "item", item.ID, "type", types[0].Value.Text)
		return table.Node{}, false
	}

	reformat, ok := reformatters[label]
	if !ok {
		s.sum.Record(report.NodesUnknownLabel, label+" "+item.ID)
		s.log.Warn("unrecognized node label", "item", item.ID, "label", label)
		return table.Node{}, false
	}
	n := table.Node{
		ID:          packed,
		Label:       label,
		PrefLabel:   undoIDParenthesis(item.Label),
		Name:        item.Label,
		Description: item.Description,
		Synonyms:    item.Aliases,
	}
	reformat(&n)
	s.xref.Alias(packed, n.ID)
	return n, true
}

// undoIDParenthesis strips a trailing " (…)" suffix:
// "N-Acetyl-D-glucosamine (CHEBI:17411)" -> "N-Acetyl-D-glucosamine".
func undoIDParenthesis(s string) string {
	if i := strings.LastIndex(s, " ("); i >= 0 && strings.HasSuffix(s, ")") {
		return s[:i]
	}
	return s
}

// parseGene handles the shapes a gene title is stored under. A title of the
// form "SYMBOL (HGNC:n)" yields the HGNC ID with SYMBOL as display title;
// anything else swaps ID and title.
func parseGene(n *table.Node) {
	packed := n.ID
	tokens := strings.Split(packed, " ")
	switch {
	case len(tokens) == 2 && strings.Contains(tokens[1], "HGNC:"):
		id := bracketReplacer.Replace(tokens[1])
		n.ID = id
		n.PrefLabel = tokens[0]
		if tokens[0] == table.Missing {
			n.PrefLabel = id
		}
	case len(tokens) == 2:
		n.ID, n.PrefLabel = n.PrefLabel, packed
	default:
		n.ID, n.PrefLabel = n.PrefLabel, bracketReplacer.Replace(packed)
	}
}

// parseLongForm swaps ID and title outright and keeps the packed title as
// the name.
func parseLongForm(n *table.Node) {
	packed := n.ID
	n.ID = n.PrefLabel
	n.PrefLabel = packed
	n.Name = packed
}
