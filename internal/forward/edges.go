package forward

import (
	"context"
	"fmt"
	"sort"

	"bioknowledge/kbsync/internal/kb"
	"bioknowledge/kbsync/internal/report"
	"bioknowledge/kbsync/internal/table"
)

// subjectEdges holds one subject's edge rows grouped by triple.
type subjectEdges struct {
	subject string
	triples []table.Triple
	rows    map[table.Triple][]table.Edge
}

// groupEdges groups rows by subject and then by triple, both sorted.
func groupEdges(edges []table.Edge) []subjectEdges {
	bySubject := make(map[string]*subjectEdges)
	for _, e := range edges {
		g, ok := bySubject[e.StartID]
		if !ok {
			g = &subjectEdges{subject: e.StartID, rows: make(map[table.Triple][]table.Edge)}
			bySubject[e.StartID] = g
		}
		t := e.Triple()
		if _, ok := g.rows[t]; !ok {
			g.triples = append(g.triples, t)
		}
		g.rows[t] = append(g.rows[t], e)
	}

	out := make([]subjectEdges, 0, len(bySubject))
	for _, g := range bySubject {
		sort.Slice(g.triples, func(i, j int) bool {
			a, b := g.triples[i], g.triples[j]
			if a.Predicate != b.Predicate {
				return a.Predicate < b.Predicate
			}
			return a.Object < b.Object
		})
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].subject < out[j].subject })
	return out
}

func (s *Syncer) createEdges(ctx context.Context, edges []table.Edge) error {
	for _, g := range groupEdges(edges) {
		qid, ok := s.xref.Resolve(g.subject)
		if !ok {
			for _, t := range g.triples {
				s.dropTriple(t, "subject")
			}
			continue
		}
		statements := s.statements(g)
		if len(statements) == 0 {
			continue
		}
		if err := s.write(ctx, g.subject, qid, statements); err != nil {
			return err
		}
	}
	return nil
}

// statements builds one statement per resolvable triple of a subject.
func (s *Syncer) statements(g subjectEdges) []kb.Statement {
	var out []kb.Statement
	for _, t := range g.triples {
		pid, ok := s.predicates[t.Predicate]
		if !ok {
			s.dropTriple(t, "predicate")
			continue
		}
		var value kb.Value
		if t.Predicate == table.ExactMatch {
			value = kb.Literal(t.Object)
		} else {
			obj, ok := s.xref.Resolve(t.Object)
			if !ok {
				s.dropTriple(t, "object")
				continue
			}
			value = kb.ItemRef(obj)
		}
		out = append(out, kb.Statement{
			Property:   pid,
			Value:      value,
			References: s.enc.Encode(g.rows[t]),
		})
	}
	return out
}

func (s *Syncer) dropTriple(t table.Triple, side string) {
	s.sum.Record(report.TriplesDropped, t.Subject+" "+t.Predicate+" "+t.Object)
	s.log.Debug("dropping triple", "unresolved", side,
		"subject", t.Subject, "predicate", t.Predicate, "object", t.Object)
}

// write saves a subject's statements in one edit. When the remote rejects the
// edit as too large the statements are halved and each half written on its
// own; a single statement that is still too large ends the run.
func (s *Syncer) write(ctx context.Context, subject, qid string, statements []kb.Statement) error {
	if len(statements) == 0 {
		return nil
	}
	s.sum.Inc(report.Writes)
	err := s.client.WriteStatements(ctx, qid, statements)
	switch {
	case err == nil:
		s.sum.Add(report.StatementsWritten, len(statements))
		return nil
	case kb.IsPayloadTooLarge(err):
		if len(statements) == 1 {
			return fmt.Errorf("writing %s (%s): %w: %w", subject, qid, ErrSplitExhausted, err)
		}
		s.sum.Inc(report.WriteSplits)
		mid := len(statements) / 2
		s.log.Debug("write too large, splitting", "subject", subject, "statements", len(statements))
		if err := s.write(ctx, subject, qid, statements[:mid]); err != nil {
			return err
		}
		return s.write(ctx, subject, qid, statements[mid:])
	case fatal(err):
		return fmt.Errorf("writing %s (%s): %w", subject, qid, err)
	default:
		s.sum.Add(report.StatementsFailed, len(statements))
		if len(s.sum.Samples[report.StatementsFailed]) < report.SampleSize {
			s.sum.Samples[report.StatementsFailed] = append(s.sum.Samples[report.StatementsFailed], subject)
		}
		s.log.Warn("statement write failed", "subject", subject, "qid", qid,
			"statements", len(statements), "error", err)
		return nil
	}
}
