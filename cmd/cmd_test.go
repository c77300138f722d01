package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bioknowledge/kbsync/internal/table"
)

// isolate runs the test in an empty directory with no config reachable.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("KBSYNC_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, key := range []string{"KBSYNC_BACKEND", "KBSYNC_LOCAL_DB", "KBSYNC_LOG_MODE", "KBSYNC_METRICS_FILE"} {
		t.Setenv(key, "")
	}
	jsonOutput = false
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTables(t *testing.T, dir string, nodes []table.Node, edges []table.Edge) (string, string) {
	t.Helper()
	nodesPath := filepath.Join(dir, "nodes.csv")
	edgesPath := filepath.Join(dir, "edges.csv")
	if err := table.SaveNodes(nodesPath, nodes); err != nil {
		t.Fatalf("SaveNodes: %v", err)
	}
	if err := table.SaveEdges(edgesPath, edges); err != nil {
		t.Fatalf("SaveEdges: %v", err)
	}
	return nodesPath, edgesPath
}

func fixture() ([]table.Node, []table.Edge) {
	nodes := []table.Node{
		{ID: "HGNC:4851", Label: "GENE", PrefLabel: "HTT", Name: "huntingtin"},
		{ID: "MONDO:0007739", Label: "DISO", PrefLabel: "Huntington disease"},
	}
	edges := []table.Edge{{
		StartID:      "HGNC:4851",
		Type:         "RO:0002434",
		EndID:        "MONDO:0007739",
		PropertyURI:  "http://purl.obolibrary.org/obo/RO_0002434",
		ReferenceURI: "https://www.ncbi.nlm.nih.gov/pubmed/8458085",
	}}
	return nodes, edges
}

func TestPushThenPull(t *testing.T) {
	dir := isolate(t)
	nodes, edges := fixture()
	nodesIn, edgesIn := writeTables(t, dir, nodes, edges)
	db := filepath.Join(dir, "kb.db")
	metrics := filepath.Join(dir, "kbsync.prom")

	out, err := execute(t, "push", "--backend", "local", "--local-db", db, "--log-mode", "prod",
		"--metrics-file", metrics, "--nodes", nodesIn, "--edges", edgesIn)
	if err != nil {
		t.Fatalf("push: %v\n%s", err, out)
	}
	if !strings.Contains(out, "push: ok") {
		t.Errorf("push summary missing status:\n%s", out)
	}
	if !strings.Contains(out, "items_created") {
		t.Errorf("push summary missing items_created:\n%s", out)
	}

	nodesOut := filepath.Join(dir, "pulled_nodes.csv")
	edgesOut := filepath.Join(dir, "pulled_edges.csv")
	out, err = execute(t, "pull", "--backend", "local", "--local-db", db, "--log-mode", "prod",
		"--nodes-out", nodesOut, "--edges-out", edgesOut)
	if err != nil {
		t.Fatalf("pull: %v\n%s", err, out)
	}
	if !strings.Contains(out, "pull: ok") {
		t.Errorf("pull summary missing status:\n%s", out)
	}

	nodes, err = table.LoadNodes(nodesOut)
	if err != nil {
		t.Fatalf("LoadNodes: %v", err)
	}
	ids := make(map[string]bool)
	for _, n := range nodes {
		ids[n.ID] = true
	}
	for _, want := range []string{"HGNC:4851", "MONDO:0007739"} {
		if !ids[want] {
			t.Errorf("pulled nodes missing %s: %v", want, ids)
		}
	}
	edges, err = table.LoadEdges(edgesOut)
	if err != nil {
		t.Fatalf("LoadEdges: %v", err)
	}
	if len(edges) != 1 || edges[0].Type != "RO:0002434" {
		t.Errorf("pulled edges = %+v, want one RO:0002434 edge", edges)
	}
}

func TestPushRequiresCredentialsForWikibase(t *testing.T) {
	dir := isolate(t)
	nodes, edges := fixture()
	nodesIn, edgesIn := writeTables(t, dir, nodes, edges)

	_, err := execute(t, "push", "--backend", "wikibase", "--log-mode", "prod",
		"--nodes", nodesIn, "--edges", edgesIn)
	if err == nil {
		t.Fatal("push without credentials succeeded")
	}
	if !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("err = %v, want invalid config", err)
	}
}

func TestCheckReportsDanglingEdges(t *testing.T) {
	dir := isolate(t)
	nodes, edges := fixture()
	edges = append(edges, table.Edge{StartID: "HGNC:4851", Type: "RO:0002434", EndID: "MONDO:404"})
	nodesIn, edgesIn := writeTables(t, dir, nodes, edges)

	out, err := execute(t, "check", "--nodes", nodesIn, "--edges", edgesIn)
	if err == nil {
		t.Fatal("check passed with a dangling edge")
	}
	if !strings.Contains(err.Error(), "1 dangling edges") {
		t.Errorf("err = %v", err)
	}
	for _, want := range []string{"TOPOLOGY", "PROBLEMS", "MONDO:404"} {
		if !strings.Contains(out, want) {
			t.Errorf("check output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "HTT", 10, "HTT"},
		{"exact", "huntingtin", 10, "huntingtin"},
		{"cut", "Huntington disease", 10, "Huntington..."},
		{"multibyte boundary", "αβγ", 3, "α..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncTitle(tt.in, tt.max); got != tt.want {
				t.Errorf("truncTitle(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(abs); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PWD", abs)
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
