package wikibase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bioknowledge/kbsync/internal/kb"
)

// fakeWiki is a minimal Action API plus SPARQL endpoint.
type fakeWiki struct {
	password string

	// edit answers wbeditentity; nil means success with id Q100.
	edit   func(form map[string]string) any
	edits  []map[string]string
	status atomic.Int32 // forced HTTP status for the next N requests
	failN  atomic.Int32
}

func (f *fakeWiki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if n := f.failN.Load(); n > 0 {
		f.failN.Add(-1)
		w.WriteHeader(int(f.status.Load()))
		return
	}
	if r.URL.Path == "/sparql" {
		f.serveSPARQL(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form := make(map[string]string)
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}
	var out any
	switch form["action"] {
	case "query":
		if form["type"] == "login" {
			out = map[string]any{"query": map[string]any{"tokens": map[string]string{"logintoken": "LT"}}}
		} else {
			out = map[string]any{"query": map[string]any{"tokens": map[string]string{"csrftoken": "CT"}}}
		}
	case "login":
		result := "Failed"
		if form["lgtoken"] == "LT" && form["lgpassword"] == f.password {
			result = "Success"
		}
		out = map[string]any{"login": map[string]string{"result": result, "reason": "bad password"}}
	case "wbgetentities":
		out = json.RawMessage(entitiesFixture)
	case "wbeditentity":
		f.edits = append(f.edits, form)
		if f.edit != nil {
			out = f.edit(form)
		} else {
			out = map[string]any{"success": 1, "entity": map[string]string{"id": "Q100"}}
		}
	default:
		out = map[string]any{"error": map[string]string{"code": "badvalue", "info": form["action"]}}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (f *fakeWiki) serveSPARQL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	var bindings []map[string]sparqlTerm
	switch {
	case q == equivalentPropertyQuery:
		bindings = []map[string]sparqlTerm{{
			"item": {Type: "uri", Value: "http://wikibase.svc/entity/P1"},
			"prop": {Type: "uri", Value: "http://wikibase.svc/prop/direct/P1"},
		}}
	case q == "SELECT ?item ?value WHERE { ?item <http://wikibase.svc/prop/direct/P2> ?value . }":
		bindings = []map[string]sparqlTerm{
			{"item": {Type: "uri", Value: "http://wikibase.svc/entity/Q5"}, "value": {Type: "literal", Value: "HTT"}},
			{"item": {Type: "uri", Value: "http://wikibase.svc/entity/Q6"}, "value": {Type: "literal", Value: "GENE"}},
		}
	}
	w.Header().Set("Content-Type", "application/sparql-results+json")
	json.NewEncoder(w).Encode(map[string]any{"results": map[string]any{"bindings": bindings}})
}

const entitiesFixture = `{"entities":{
  "Q5":{"id":"Q5","type":"item",
    "labels":{"en":{"language":"en","value":"HGNC:4851"}},
    "descriptions":[],
    "aliases":{"en":[{"language":"en","value":"HD"},{"language":"en","value":"IT15"}]},
    "claims":{
      "P2":[{"id":"Q5$a","type":"statement","mainsnak":{"snaktype":"value","property":"P2","datatype":"string",
        "datavalue":{"value":"HTT","type":"string"}}}],
      "P7":[{"id":"Q5$b","type":"statement","mainsnak":{"snaktype":"value","property":"P7","datatype":"wikibase-item",
        "datavalue":{"value":{"entity-type":"item","numeric-id":9},"type":"wikibase-entityid"}},
        "references":[{"snaks":{
          "P3":[{"snaktype":"value","property":"P3","datatype":"url","datavalue":{"value":"https://na.na/na","type":"string"}}],
          "P4":[{"snaktype":"value","property":"P4","datatype":"string","datavalue":{"value":"seg one","type":"string"}},
                {"snaktype":"value","property":"P4","datatype":"string","datavalue":{"value":"seg two","type":"string"}}]},
          "snaks-order":["P4","P3"]}]}],
      "P8":[{"id":"Q5$c","type":"statement","mainsnak":{"snaktype":"novalue","property":"P8"}}]
    }},
  "Q404":{"id":"Q404","missing":""}
}}`

func newTestClient(t *testing.T, f *fakeWiki) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.APIURL = srv.URL + "/w/api.php"
	cfg.SPARQLURL = srv.URL + "/sparql"
	cfg.Username = "bot"
	cfg.Password = f.password
	cfg.RequestsPerSecond = 0
	cfg.RetryInitial = time.Millisecond
	cfg.MaxRetries = 2
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestGetEntities_DecodesClaims(t *testing.T) {
	c := newTestClient(t, &fakeWiki{password: "pw"})
	ents, err := c.GetEntities(context.Background(), []string{"Q5", "Q404"})
	require.NoError(t, err)
	require.Len(t, ents, 1, "missing entities are omitted")

	e := ents[0]
	assert.Equal(t, "HGNC:4851", e.Label)
	assert.Empty(t, e.Description)
	assert.Equal(t, []string{"HD", "IT15"}, e.Aliases)
	require.Len(t, e.Statements, 2, "novalue snaks are skipped")

	assert.Equal(t, kb.Statement{Property: "P2", Value: kb.Literal("HTT")}, e.Statements[0])
	st := e.Statements[1]
	assert.Equal(t, kb.ItemRef("Q9"), st.Value)
	require.Len(t, st.References, 1)
	assert.Equal(t, []kb.Snak{
		{Property: "P4", Value: kb.Literal("seg one")},
		{Property: "P4", Value: kb.Literal("seg two")},
		{Property: "P3", Value: kb.URL("https://na.na/na")},
	}, st.References[0].Snaks)
}

func TestCreateEntity_LogsInAndPostsData(t *testing.T) {
	f := &fakeWiki{password: "pw"}
	c := newTestClient(t, f)

	id, err := c.CreateEntity(context.Background(), &kb.Entity{
		Type:     kb.TypeProperty,
		Datatype: kb.DatatypeItem,
		Label:    "interacts with",
		Statements: []kb.Statement{
			{Property: "P1", Value: kb.URL("http://purl.obolibrary.org/obo/RO_0002434")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Q100", id)

	require.Len(t, f.edits, 1)
	form := f.edits[0]
	assert.Equal(t, "property", form["new"])
	assert.Equal(t, "CT", form["token"])

	var data editEntity
	require.NoError(t, json.Unmarshal([]byte(form["data"]), &data))
	assert.Equal(t, kb.DatatypeItem, data.Datatype)
	assert.Equal(t, "interacts with", data.Labels["en"].Value)
	require.Len(t, data.Claims, 1)
	assert.Equal(t, "url", data.Claims[0].MainSnak.DataType)
}

func TestWriteStatements_ReusesExistingClaimID(t *testing.T) {
	f := &fakeWiki{password: "pw"}
	c := newTestClient(t, f)

	err := c.WriteStatements(context.Background(), "Q5", []kb.Statement{
		{Property: "P7", Value: kb.ItemRef("Q9")},
		{Property: "P7", Value: kb.ItemRef("Q10")},
	})
	require.NoError(t, err)

	require.Len(t, f.edits, 1)
	assert.Equal(t, "Q5", f.edits[0]["id"])
	var data editEntity
	require.NoError(t, json.Unmarshal([]byte(f.edits[0]["data"]), &data))
	require.Len(t, data.Claims, 2)
	assert.Equal(t, "Q5$b", data.Claims[0].ID)
	assert.Empty(t, data.Claims[1].ID)

	err = c.WriteStatements(context.Background(), "Q404", nil)
	var we *kb.WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, kb.CodeNoSuchEntity, we.Code)
}

func TestEdit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		reply any
		check func(t *testing.T, err error)
	}{
		{
			name:  "failed-save",
			reply: map[string]any{"error": map[string]string{"code": "failed-save", "info": "too big"}},
			check: func(t *testing.T, err error) { assert.True(t, kb.IsPayloadTooLarge(err)) },
		},
		{
			name:  "permission denied",
			reply: map[string]any{"error": map[string]string{"code": "permissiondenied"}},
			check: func(t *testing.T, err error) { assert.True(t, errors.Is(err, kb.ErrAuth)) },
		},
		{
			name:  "other",
			reply: map[string]any{"error": map[string]string{"code": "modification-failed"}},
			check: func(t *testing.T, err error) {
				var we *kb.WriteError
				require.True(t, errors.As(err, &we))
				assert.Equal(t, kb.CodeModificationFailed, we.Code)
				assert.False(t, kb.IsPayloadTooLarge(err))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeWiki{password: "pw", edit: func(map[string]string) any { return tt.reply }}
			c := newTestClient(t, f)
			_, err := c.CreateEntity(context.Background(), &kb.Entity{Label: "x"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestEdit_RefreshesBadToken(t *testing.T) {
	calls := 0
	f := &fakeWiki{password: "pw", edit: func(map[string]string) any {
		calls++
		if calls == 1 {
			return map[string]any{"error": map[string]string{"code": "badtoken"}}
		}
		return map[string]any{"entity": map[string]string{"id": "Q7"}}
	}}
	c := newTestClient(t, f)
	id, err := c.CreateEntity(context.Background(), &kb.Entity{Label: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Q7", id)
	assert.Equal(t, 2, calls)
}

func TestLogin_BadPassword(t *testing.T) {
	f := &fakeWiki{password: "pw"}
	c := newTestClient(t, f)
	c.cfg.Password = "wrong"

	_, err := c.CreateEntity(context.Background(), &kb.Entity{Label: "x"})
	assert.True(t, errors.Is(err, kb.ErrAuth), "got %v", err)
	assert.Empty(t, f.edits)
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	f := &fakeWiki{password: "pw"}
	f.status.Store(http.StatusServiceUnavailable)
	f.failN.Store(2)
	c := newTestClient(t, f)

	ents, err := c.GetEntities(context.Background(), []string{"Q5"})
	require.NoError(t, err)
	assert.Len(t, ents, 1)
}

func TestRetry_ExhaustedIsUnavailable(t *testing.T) {
	f := &fakeWiki{password: "pw"}
	f.status.Store(http.StatusBadGateway)
	f.failN.Store(100)
	c := newTestClient(t, f)

	_, err := c.GetEntities(context.Background(), []string{"Q5"})
	assert.True(t, errors.Is(err, kb.ErrUnavailable), "got %v", err)
	assert.Equal(t, int32(100-3), f.failN.Load(), "one attempt plus two retries")
}

func TestPayloadStatusIsWriteError(t *testing.T) {
	f := &fakeWiki{password: "pw"}
	c := newTestClient(t, f)
	require.NoError(t, c.Login(context.Background()))

	f.status.Store(http.StatusRequestEntityTooLarge)
	f.failN.Store(1)
	c.csrf = "CT"
	_, err := c.CreateEntity(context.Background(), &kb.Entity{Label: "x"})
	assert.True(t, kb.IsPayloadTooLarge(err), "got %v", err)
}

func TestSPARQLIndexes(t *testing.T) {
	c := newTestClient(t, &fakeWiki{password: "pw"})
	ctx := context.Background()

	pid, err := c.EquivalentProperty(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P1", pid)

	index, err := c.ValueIndex(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"HTT": "Q5", "GENE": "Q6"}, index)

	index, err = c.ValueIndex(ctx, "P99")
	require.NoError(t, err)
	assert.Empty(t, index)
}

func TestLastSegment(t *testing.T) {
	for in, want := range map[string]string{
		"http://wikibase.svc/entity/Q5":      "Q5",
		"http://wikibase.svc/prop/direct/P1": "P1",
		"P3":                                 "P3",
	} {
		assert.Equal(t, want, lastSegment(in), fmt.Sprintf("lastSegment(%q)", in))
	}
}
