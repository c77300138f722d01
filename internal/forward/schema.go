package forward

import (
	"context"
	"fmt"
	"sort"

	"bioknowledge/kbsync/internal/kb"
	"bioknowledge/kbsync/internal/report"
	"bioknowledge/kbsync/internal/table"
)

const (
	// MaxIDLength is the longest node CURIE that still gets an item.
	MaxIDLength = 100
	// MaxDescription is the longest description written unchanged.
	MaxDescription = 247
)

// predicateURIs replaces the recorded URI of predicates whose URI is known to
// be missing or wrong in edge tables.
var predicateURIs = map[string]string{
	"colocalizes_with": "http://purl.obolibrary.org/obo/RO_0002325",
	"contributes_to":   "http://purl.obolibrary.org/obo/RO_0002326",
	"NA":               "http://snomed.info/id/261988005",
}

// bootstrap makes sure the structural properties exist and loads the
// external-ID index.
func (s *Syncer) bootstrap(ctx context.Context) error {
	equiv, err := s.xref.LoadProperties(ctx, s.client)
	if err != nil {
		return err
	}
	s.equivPID = equiv

	for _, spec := range kb.Structural {
		if _, ok := s.xref.PropertyID(spec.URI); ok {
			s.sum.Inc(report.PropertiesExisting)
			continue
		}
		s.dbxrefPID, _ = s.xref.PropertyID(kb.DbXrefURI)
		pid, err := s.createProperty(ctx, spec)
		if err != nil {
			return fmt.Errorf("creating %s: %w", spec.URI, err)
		}
		s.sum.Inc(report.PropertiesCreated)
		s.log.Info("created structural property", "uri", spec.URI, "pid", pid)
	}

	s.dbxrefPID, _ = s.xref.PropertyID(kb.DbXrefURI)
	s.exactPID, _ = s.xref.PropertyID(kb.ExactMatchURI)
	s.typePID, _ = s.xref.PropertyID(kb.TypeURI)
	s.enc.URLProperty, _ = s.xref.PropertyID(kb.ReferenceURLURI)
	s.enc.TextProperty, _ = s.xref.PropertyID(kb.SupportingTextURI)

	if err := s.xref.LoadExternalIDs(ctx, s.client, s.dbxrefPID); err != nil {
		return err
	}
	s.log.Debug("external-ID index loaded", "xref", s.xref.String())
	return nil
}

// createProperty creates one property holding its URI and, when it has one,
// its external-ID literal.
func (s *Syncer) createProperty(ctx context.Context, spec kb.PropertySpec) (string, error) {
	statements := []kb.Statement{{Property: s.equivPID, Value: kb.URL(spec.URI)}}
	if spec.DbXref != "" {
		statements = append(statements, kb.Statement{Property: s.dbxrefPID, Value: kb.Literal(spec.DbXref)})
	}
	pid, err := s.client.CreateEntity(ctx, &kb.Entity{
		Type:        kb.TypeProperty,
		Datatype:    spec.Datatype,
		Label:       spec.Label,
		Description: spec.Description,
		Statements:  statements,
	})
	if err != nil {
		return "", err
	}
	s.xref.RegisterProperty(spec.URI, pid)
	if spec.DbXref != "" {
		s.xref.Register(spec.DbXref, pid)
	}
	return pid, nil
}

// predicateSpecs derives one property spec per distinct predicate. The label
// and description are the first non-blank ones recorded for the predicate;
// the URI comes from the override table, else the first recorded one.
func predicateSpecs(edges []table.Edge) []kb.PropertySpec {
	byCURIE := make(map[string]*kb.PropertySpec)
	var order []string
	for _, e := range edges {
		if e.Type == "" || e.Type == table.ExactMatch {
			continue
		}
		spec, ok := byCURIE[e.Type]
		if !ok {
			spec = &kb.PropertySpec{Datatype: kb.DatatypeItem, DbXref: e.Type}
			byCURIE[e.Type] = spec
			order = append(order, e.Type)
		}
		if spec.Label == "" {
			spec.Label = e.PropertyLabel
		}
		if spec.Description == "" {
			spec.Description = e.PropertyDescription
		}
		if spec.URI == "" {
			spec.URI = e.PropertyURI
		}
	}
	sort.Strings(order)

	out := make([]kb.PropertySpec, 0, len(order))
	for _, curie := range order {
		spec := byCURIE[curie]
		if spec.Label == "" {
			spec.Label = curie
		}
		if uri, ok := predicateURIs[curie]; ok {
			spec.URI = uri
		}
		out = append(out, *spec)
	}
	return out
}

func (s *Syncer) createPredicates(ctx context.Context, edges []table.Edge) error {
	s.predicates[table.ExactMatch] = s.exactPID
	for _, spec := range predicateSpecs(edges) {
		if spec.URI == "" {
			s.sum.Record(report.PredicatesSkipped, spec.DbXref)
			s.log.Warn("predicate has no URI, its edges will be dropped", "predicate", spec.DbXref)
			continue
		}
		if pid, ok := s.xref.PropertyID(spec.URI); ok {
			s.predicates[spec.DbXref] = pid
			s.sum.Inc(report.PropertiesExisting)
			continue
		}
		pid, err := s.createProperty(ctx, spec)
		if err != nil {
			if fatal(err) {
				return fmt.Errorf("creating property for %s: %w", spec.DbXref, err)
			}
			s.sum.Record(report.PredicatesSkipped, spec.DbXref)
			s.log.Warn("property creation failed", "predicate", spec.DbXref, "error", err)
			continue
		}
		s.predicates[spec.DbXref] = pid
		s.sum.Inc(report.PropertiesCreated)
		s.log.Debug("created property", "predicate", spec.DbXref, "uri", spec.URI, "pid", pid)
	}
	return nil
}

// createClasses makes one item per node label. Classes are never forced.
func (s *Syncer) createClasses(ctx context.Context, nodes []table.Node) error {
	seen := make(map[string]bool)
	var labels []string
	for _, n := range nodes {
		if n.Label != "" && !seen[n.Label] {
			seen[n.Label] = true
			labels = append(labels, n.Label)
		}
	}
	sort.Strings(labels)

	for _, label := range labels {
		if _, ok := s.xref.Lookup(label); ok {
			s.sum.Inc(report.ClassesExisting)
			continue
		}
		id, err := s.client.CreateEntity(ctx, &kb.Entity{
			Type:       kb.TypeItem,
			Label:      label,
			Statements: []kb.Statement{{Property: s.dbxrefPID, Value: kb.Literal(label)}},
		})
		if err != nil {
			if fatal(err) {
				return fmt.Errorf("creating class %s: %w", label, err)
			}
			s.sum.Record(report.ItemsFailed, label)
			s.log.Warn("class creation failed", "class", label, "error", err)
			continue
		}
		s.xref.Register(label, id)
		s.sum.Inc(report.ClassesCreated)
		s.log.Info("created class", "class", label, "qid", id)
	}
	return nil
}

// createItems makes one item per node, in CURIE order. The item is labelled
// with the CURIE and keyed by the node's display title.
func (s *Syncer) createItems(ctx context.Context, nodes []table.Node) error {
	sorted := append([]table.Node(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	s.xref.SetTitles(table.Titles(sorted))

	for _, n := range sorted {
		if len(n.ID) > MaxIDLength {
			s.sum.Record(report.ItemsMalformed, n.ID)
			s.log.Warn("skipping node with overlong id", "id", n.ID, "length", len(n.ID))
			continue
		}
		if id, ok := s.xref.Lookup(n.PrefLabel); ok && !s.opts.Force {
			s.sum.Inc(report.ItemsExisting)
			s.log.Debug("item already exists", "id", n.ID, "qid", id)
			continue
		}
		id, err := s.client.CreateEntity(ctx, s.itemFor(n))
		if err != nil {
			if fatal(err) {
				return fmt.Errorf("creating item %s: %w", n.ID, err)
			}
			s.sum.Record(report.ItemsFailed, n.ID)
			s.log.Warn("item creation failed", "id", n.ID, "error", err)
			continue
		}
		s.xref.Register(n.PrefLabel, id)
		s.sum.Inc(report.ItemsCreated)
	}
	return nil
}

func (s *Syncer) itemFor(n table.Node) *kb.Entity {
	statements := []kb.Statement{{Property: s.dbxrefPID, Value: kb.Literal(n.PrefLabel)}}
	if class, ok := s.xref.Lookup(n.Label); ok && n.Label != "" {
		statements = append(statements, kb.Statement{Property: s.typePID, Value: kb.ItemRef(class)})
	}
	return &kb.Entity{
		Type:        kb.TypeItem,
		Label:       n.ID,
		Description: truncateDescription(n.Description),
		Aliases:     aliases(n),
		Statements:  statements,
	}
}

func truncateDescription(d string) string {
	r := []rune(d)
	if len(r) > MaxDescription {
		return string(r[:MaxDescription-1]) + "..."
	}
	return d
}

// aliases returns the synonyms plus the alternate name, minus the display
// title and blanks, sorted.
func aliases(n table.Node) []string {
	set := make(map[string]bool, len(n.Synonyms)+1)
	for _, syn := range append(append([]string(nil), n.Synonyms...), n.Name) {
		if syn != "" && syn != n.PrefLabel {
			set[syn] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for syn := range set {
		out = append(out, syn)
	}
	sort.Strings(out)
	return out
}
