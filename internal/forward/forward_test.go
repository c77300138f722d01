package forward

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bioknowledge/kbsync/internal/kb"
	"bioknowledge/kbsync/internal/kb/local"
	"bioknowledge/kbsync/internal/refs"
	"bioknowledge/kbsync/internal/report"
	"bioknowledge/kbsync/internal/table"
)

const interactsURI = "http://purl.obolibrary.org/obo/RO_0002434"

func openStore(t *testing.T) *local.Store {
	t.Helper()
	s, err := local.Open(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// recorder wraps a client and remembers what was created and written.
type recorder struct {
	kb.Client
	created []string // labels, in creation order

	// writeErr, when set, decides the outcome of a write before it reaches
	// the wrapped client.
	writeErr func(n int) error
	writes   []int
}

func (r *recorder) CreateEntity(ctx context.Context, e *kb.Entity) (string, error) {
	r.created = append(r.created, e.Label)
	return r.Client.CreateEntity(ctx, e)
}

func (r *recorder) WriteStatements(ctx context.Context, id string, ss []kb.Statement) error {
	r.writes = append(r.writes, len(ss))
	if r.writeErr != nil {
		if err := r.writeErr(len(ss)); err != nil {
			return err
		}
	}
	return r.Client.WriteStatements(ctx, id, ss)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func huntingtonFixture() ([]table.Node, []table.Edge) {
	nodes := []table.Node{
		{ID: "HGNC:4851", Label: "GENE", PrefLabel: "HTT", Name: "huntingtin", Synonyms: []string{"HD", "IT15"}},
		{ID: "MONDO:0007739", Label: "DISO", PrefLabel: "Huntington disease"},
	}
	edges := []table.Edge{{
		StartID:                 "HGNC:4851",
		Type:                    "RO:0002434",
		EndID:                   "MONDO:0007739",
		PropertyLabel:           "interacts with",
		PropertyURI:             interactsURI,
		ReferenceSupportingText: strings.Repeat("huntingtin aggregates ", 25),
		ReferenceURI:            "https://www.ncbi.nlm.nih.gov/pubmed/8458085",
	}}
	return nodes, edges
}

// fanOut returns one subject with n outgoing edges to distinct nodes.
func fanOut(n int) ([]table.Node, []table.Edge) {
	nodes := []table.Node{{ID: "HGNC:1", Label: "GENE", PrefLabel: "A1"}}
	var edges []table.Edge
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("MONDO:%d", i)
		nodes = append(nodes, table.Node{ID: id, Label: "DISO", PrefLabel: "disease " + id})
		edges = append(edges, table.Edge{StartID: "HGNC:1", Type: "RO:0002434", EndID: id, PropertyURI: interactsURI})
	}
	return nodes, edges
}

func TestRun_HuntingtinExample(t *testing.T) {
	store := openStore(t)
	rec := &recorder{Client: store}
	ctx := context.Background()
	nodes, edges := huntingtonFixture()

	s := New(rec, nil, nil, Options{})
	require.NoError(t, s.Run(ctx, nodes, edges))

	classAt := indexOf(rec.created, "GENE")
	itemAt := indexOf(rec.created, "HGNC:4851")
	require.NotEqual(t, -1, classAt)
	require.NotEqual(t, -1, itemAt)
	assert.Less(t, classAt, itemAt, "class must be created before its item")

	qid, ok := s.Resolver().Lookup("HTT")
	require.True(t, ok)
	pid, ok := s.Resolver().PropertyID(interactsURI)
	require.True(t, ok)
	textPID, _ := s.Resolver().PropertyID(kb.SupportingTextURI)

	item, err := kb.GetEntity(ctx, store, qid)
	require.NoError(t, err)
	assert.Equal(t, "HGNC:4851", item.Label)
	assert.Equal(t, []string{"HD", "IT15", "huntingtin"}, item.Aliases)

	statements := item.StatementsFor(pid)
	require.Len(t, statements, 1)
	disease, _ := s.Resolver().Lookup("Huntington disease")
	assert.Equal(t, kb.ItemRef(disease), statements[0].Value)

	require.Len(t, statements[0].References, 1)
	segments := statements[0].References[0].Values(textPID)
	assert.GreaterOrEqual(t, len(segments), 2)
	for _, seg := range segments {
		assert.LessOrEqual(t, len(seg), refs.MaxLength)
	}

	sum := s.Summary()
	assert.Equal(t, 2, sum.Count(report.ClassesCreated))
	assert.Equal(t, 2, sum.Count(report.ItemsCreated))
	assert.Equal(t, 1, sum.Count(report.StatementsWritten))
	assert.Equal(t, len(kb.Structural)+1, sum.Count(report.PropertiesCreated))
	assert.Zero(t, sum.Count(report.TriplesDropped))
}

func TestRun_SkipsOverlongIDs(t *testing.T) {
	store := openStore(t)
	rec := &recorder{Client: store}
	long := "HGNC:" + strings.Repeat("9", MaxIDLength)
	nodes := []table.Node{
		{ID: long, Label: "GENE", PrefLabel: "LONG"},
		{ID: "HGNC:1", Label: "GENE", PrefLabel: "A1BG"},
	}

	s := New(rec, nil, nil, Options{})
	require.NoError(t, s.Run(context.Background(), nodes, nil))

	assert.Equal(t, 1, s.Summary().Count(report.ItemsMalformed))
	assert.Equal(t, []string{long}, s.Summary().Samples[report.ItemsMalformed])
	assert.Equal(t, 1, s.Summary().Count(report.ItemsCreated))
	assert.Equal(t, -1, indexOf(rec.created, long))
}

func TestRun_Idempotent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	nodes, edges := huntingtonFixture()

	first := New(store, nil, nil, Options{})
	require.NoError(t, first.Run(ctx, nodes, edges))
	require.Positive(t, first.Summary().Count(report.ItemsCreated))

	second := New(store, nil, nil, Options{})
	require.NoError(t, second.Run(ctx, nodes, edges))
	sum := second.Summary()
	assert.Zero(t, sum.Count(report.ItemsCreated))
	assert.Zero(t, sum.Count(report.ClassesCreated))
	assert.Zero(t, sum.Count(report.PropertiesCreated))
	assert.Equal(t, 2, sum.Count(report.ItemsExisting))
	assert.Equal(t, 2, sum.Count(report.ClassesExisting))

	qid, _ := second.Resolver().Lookup("HTT")
	pid, _ := second.Resolver().PropertyID(interactsURI)
	item, err := kb.GetEntity(ctx, store, qid)
	require.NoError(t, err)
	assert.Len(t, item.StatementsFor(pid), 1, "rewriting an edge must not duplicate its statement")
}

func TestRun_ForceRecreatesItemsButNotClasses(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	nodes, _ := huntingtonFixture()

	require.NoError(t, New(store, nil, nil, Options{}).Run(ctx, nodes, nil))
	forced := New(store, nil, nil, Options{Force: true})
	require.NoError(t, forced.Run(ctx, nodes, nil))

	assert.Equal(t, 2, forced.Summary().Count(report.ItemsCreated))
	assert.Zero(t, forced.Summary().Count(report.ClassesCreated))
}

func TestRun_SplitsOversizedWrites(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 16} {
		t.Run(fmt.Sprintf("%d statements", n), func(t *testing.T) {
			store := openStore(t)
			rec := &recorder{Client: store, writeErr: func(size int) error {
				if size > 1 {
					return &kb.WriteError{Code: kb.CodeFailedSave}
				}
				return nil
			}}
			nodes, edges := fanOut(n)

			s := New(rec, nil, nil, Options{})
			require.NoError(t, s.Run(context.Background(), nodes, edges))
			assert.Equal(t, n, s.Summary().Count(report.StatementsWritten))
			assert.Equal(t, n-1, s.Summary().Count(report.WriteSplits))
		})
	}
}

func TestRun_SplitTerminatesWhenEveryWriteFails(t *testing.T) {
	for _, n := range []int{1, 2, 5, 33} {
		t.Run(fmt.Sprintf("%d statements", n), func(t *testing.T) {
			rec := &recorder{Client: openStore(t), writeErr: func(int) error {
				return &kb.WriteError{Code: kb.CodeFailedSave, Info: "always"}
			}}
			nodes, edges := fanOut(n)

			err := New(rec, nil, nil, Options{}).Run(context.Background(), nodes, edges)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSplitExhausted))
			assert.LessOrEqual(t, len(rec.writes), n)
			assert.Equal(t, 1, rec.writes[len(rec.writes)-1])
		})
	}
}

func TestRun_OtherWriteErrorsAreCounted(t *testing.T) {
	rec := &recorder{Client: openStore(t), writeErr: func(int) error {
		return &kb.WriteError{Code: kb.CodeModificationFailed}
	}}
	nodes, edges := fanOut(3)

	s := New(rec, nil, nil, Options{})
	require.NoError(t, s.Run(context.Background(), nodes, edges))
	assert.Equal(t, 3, s.Summary().Count(report.StatementsFailed))
	assert.Equal(t, []string{"HGNC:1"}, s.Summary().Samples[report.StatementsFailed])
	assert.Zero(t, s.Summary().Count(report.StatementsWritten))
}

type authFailing struct{ kb.Client }

func (authFailing) CreateEntity(context.Context, *kb.Entity) (string, error) {
	return "", fmt.Errorf("login: %w", kb.ErrAuth)
}

func TestRun_AuthFailureIsFatal(t *testing.T) {
	nodes, edges := huntingtonFixture()
	err := New(authFailing{openStore(t)}, nil, nil, Options{}).Run(context.Background(), nodes, edges)
	require.Error(t, err)
	assert.ErrorIs(t, err, kb.ErrAuth)
	assert.Contains(t, err.Error(), "bootstrap")
}

func TestRun_DropsUnresolvedTriples(t *testing.T) {
	nodes, edges := huntingtonFixture()
	edges = append(edges,
		table.Edge{StartID: "HGNC:4851", Type: "RO:0002434", EndID: "MONDO:404", PropertyURI: interactsURI},
		table.Edge{StartID: "HGNC:4851", Type: "RO:9999999", EndID: "MONDO:0007739"},
	)

	s := New(openStore(t), nil, nil, Options{})
	require.NoError(t, s.Run(context.Background(), nodes, edges))
	sum := s.Summary()
	assert.Equal(t, 2, sum.Count(report.TriplesDropped))
	assert.Equal(t, 1, sum.Count(report.PredicatesSkipped))
	assert.Equal(t, 1, sum.Count(report.StatementsWritten))
	assert.Equal(t, 1, sum.Count(report.Unresolved))
}

func TestRun_ExactMatchIsLiteral(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	nodes, _ := huntingtonFixture()
	edges := []table.Edge{{StartID: "MONDO:0007739", Type: table.ExactMatch, EndID: "UMLS:C0020179"}}

	s := New(store, nil, nil, Options{})
	require.NoError(t, s.Run(ctx, nodes, edges))

	qid, _ := s.Resolver().Lookup("Huntington disease")
	pid, _ := s.Resolver().PropertyID(kb.ExactMatchURI)
	item, err := kb.GetEntity(ctx, store, qid)
	require.NoError(t, err)
	require.Len(t, item.StatementsFor(pid), 1)
	assert.Equal(t, kb.Literal("UMLS:C0020179"), item.StatementsFor(pid)[0].Value)
}

func TestRun_SimulateWritesNothing(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	nodes, edges := huntingtonFixture()

	s := New(store, nil, nil, Options{Simulate: true})
	require.NoError(t, s.Run(ctx, nodes, edges))
	assert.True(t, s.Summary().Simulate)
	assert.Equal(t, 2, s.Summary().Count(report.ItemsCreated))
	assert.Equal(t, 1, s.Summary().Count(report.StatementsWritten))

	ents, err := store.GetEntities(ctx, []string{"P2", "Q1"})
	require.NoError(t, err)
	assert.Empty(t, ents)
}

func TestPredicateSpecs(t *testing.T) {
	edges := []table.Edge{
		{Type: "RO:0002434", PropertyURI: interactsURI},
		{Type: "RO:0002434", PropertyLabel: "interacts with", PropertyDescription: "a relation"},
		{Type: "colocalizes_with", PropertyURI: "http://example.org/wrong"},
		{Type: "NA"},
		{Type: table.ExactMatch, PropertyURI: kb.ExactMatchURI},
		{Type: "RO:0000000"},
	}

	specs := predicateSpecs(edges)
	require.Len(t, specs, 4)

	byCURIE := make(map[string]kb.PropertySpec)
	for _, spec := range specs {
		byCURIE[spec.DbXref] = spec
		assert.Equal(t, kb.DatatypeItem, spec.Datatype)
	}
	assert.Equal(t, kb.PropertySpec{
		URI: interactsURI, Label: "interacts with", Description: "a relation",
		Datatype: kb.DatatypeItem, DbXref: "RO:0002434",
	}, byCURIE["RO:0002434"])
	assert.Equal(t, "http://purl.obolibrary.org/obo/RO_0002325", byCURIE["colocalizes_with"].URI)
	assert.Equal(t, "http://snomed.info/id/261988005", byCURIE["NA"].URI)
	assert.Equal(t, "RO:0000000", byCURIE["RO:0000000"].Label)
	assert.Empty(t, byCURIE["RO:0000000"].URI)
	assert.NotContains(t, byCURIE, table.ExactMatch)
}

func TestItemHelpers(t *testing.T) {
	assert.Equal(t, "short", truncateDescription("short"))
	exact := strings.Repeat("d", MaxDescription)
	assert.Equal(t, exact, truncateDescription(exact))
	long := truncateDescription(strings.Repeat("d", MaxDescription+10))
	assert.Len(t, long, MaxDescription+2)
	assert.True(t, strings.HasSuffix(long, "..."))

	n := table.Node{PrefLabel: "HTT", Name: "HTT", Synonyms: []string{"IT15", "", "HD", "IT15"}}
	assert.Equal(t, []string{"HD", "IT15"}, aliases(n))
	assert.Nil(t, aliases(table.Node{PrefLabel: "X", Name: "X"}))
}
