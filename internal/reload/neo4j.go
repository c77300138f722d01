// Package reload hands pulled node and edge tables to a graph database.
package reload

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"bioknowledge/kbsync/internal/logging"
	"bioknowledge/kbsync/internal/table"
)

// Loader replaces the contents of a graph database with the given tables.
type Loader interface {
	Load(ctx context.Context, nodes []table.Node, edges []table.Edge) error
}

// Config holds Neo4j connection settings.
type Config struct {
	URI       string        `yaml:"uri"`
	User      string        `yaml:"user"`
	Password  string        `yaml:"password"`
	Database  string        `yaml:"database"`
	Wipe      bool          `yaml:"wipe"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultBatchSize is how many rows one UNWIND carries.
const DefaultBatchSize = 500

// nodeLabel is the label every loaded node carries in addition to its own.
const nodeLabel = "Concept"

// Neo4jLoader loads tables through the Neo4j Bolt driver.
type Neo4jLoader struct {
	Driver   neo4j.DriverWithContext
	Database string
	cfg      Config
	log      *logging.Logger
}

var _ Loader = (*Neo4jLoader)(nil)

// NewNeo4j connects to Neo4j and verifies connectivity.
func NewNeo4j(ctx context.Context, cfg Config, log *logging.Logger) (*Neo4jLoader, error) {
	if log == nil {
		log = logging.Nop()
	}
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("neo4j: uri required")
	}
	if cfg.User == "" {
		cfg.User = "neo4j"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	return &Neo4jLoader{
		Driver:   driver,
		Database: cfg.Database,
		cfg:      cfg,
		log:      log.With("component", "reload"),
	}, nil
}

func (l *Neo4jLoader) Close(ctx context.Context) error {
	if l == nil || l.Driver == nil {
		return nil
	}
	err := l.Driver.Close(ctx)
	l.Driver = nil
	return err
}

// Load optionally wipes the loaded graph, then merges nodes by id and
// relationships by endpoints, type and reference. Edges whose end is not a node
// (exact-match literals) match nothing and are skipped by the database.
func (l *Neo4jLoader) Load(ctx context.Context, nodes []table.Node, edges []table.Edge) error {
	session := l.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: l.Database,
	})
	defer session.Close(ctx)

	if res, err := session.Run(ctx, constraintQuery, nil); err != nil {
		l.log.Warn("neo4j schema init failed (continuing)", "error", err)
	} else {
		_, _ = res.Consume(ctx)
	}

	if l.cfg.Wipe {
		if err := l.write(ctx, session, wipeQuery, nil); err != nil {
			return fmt.Errorf("neo4j: wipe: %w", err)
		}
		l.log.Info("wiped graph")
	}

	for _, g := range groupNodes(nodes) {
		for _, batch := range chunk(g.rows, l.cfg.BatchSize) {
			if err := l.write(ctx, session, nodeQuery(g.key), map[string]any{"rows": batch}); err != nil {
				return fmt.Errorf("neo4j: loading %s nodes: %w", g.key, err)
			}
		}
	}
	for _, g := range groupEdges(edges) {
		for _, batch := range chunk(g.rows, l.cfg.BatchSize) {
			if err := l.write(ctx, session, edgeQuery(g.key), map[string]any{"rows": batch}); err != nil {
				return fmt.Errorf("neo4j: loading %s edges: %w", g.key, err)
			}
		}
	}
	l.log.Info("graph reloaded", "nodes", len(nodes), "edges", len(edges))
	return nil
}

func (l *Neo4jLoader) write(ctx context.Context, session neo4j.SessionWithContext, query string, params map[string]any) error {
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

var (
	constraintQuery = "CREATE CONSTRAINT concept_id_unique IF NOT EXISTS FOR (c:" + nodeLabel + ") REQUIRE c.id IS UNIQUE"
	wipeQuery       = "MATCH (c:" + nodeLabel + ") DETACH DELETE c"
)

// quoteName backtick-quotes a label or relationship type. Backticks inside
// are doubled and a blank name becomes the missing token.
func quoteName(name string) string {
	if strings.TrimSpace(name) == "" {
		name = table.Missing
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func nodeQuery(label string) string {
	return fmt.Sprintf(`
UNWIND $rows AS n
MERGE (c:%s {id: n.id})
SET c += n, c:%s
`, nodeLabel, quoteName(label))
}

// edgeQuery merges one relationship per (start, type, end, reference) so a
// repeated load does not duplicate edges.
func edgeQuery(relType string) string {
	return fmt.Sprintf(`
UNWIND $rows AS r
MATCH (a:%s {id: r.start_id})
MATCH (b:%s {id: r.end_id})
MERGE (a)-[e:%s {reference_uri: r.props.reference_uri, reference_supporting_text: r.props.reference_supporting_text}]->(b)
SET e += r.props
`, nodeLabel, nodeLabel, quoteName(relType))
}

type group struct {
	key  string
	rows []map[string]any
}

// groupNodes groups node rows by label, in label order.
func groupNodes(nodes []table.Node) []group {
	return groupBy(nodes, func(n table.Node) (string, map[string]any) {
		return n.Label, map[string]any{
			"id":          n.ID,
			"preflabel":   n.PrefLabel,
			"name":        n.Name,
			"description": n.Description,
			"synonyms":    n.Synonyms,
		}
	})
}

// groupEdges groups edge rows by predicate, in predicate order.
func groupEdges(edges []table.Edge) []group {
	return groupBy(edges, func(e table.Edge) (string, map[string]any) {
		return e.Type, map[string]any{
			"start_id": e.StartID,
			"end_id":   e.EndID,
			"props": map[string]any{
				"reference_uri":             e.ReferenceURI,
				"reference_supporting_text": e.ReferenceSupportingText,
				"reference_date":            e.ReferenceDate,
				"property_label":            e.PropertyLabel,
				"property_description":      e.PropertyDescription,
				"property_uri":              e.PropertyURI,
			},
		}
	})
}

func groupBy[T any](rows []T, row func(T) (string, map[string]any)) []group {
	byKey := make(map[string]*group)
	var keys []string
	for _, r := range rows {
		key, props := row(r)
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			keys = append(keys, key)
		}
		g.rows = append(g.rows, props)
	}
	sort.Strings(keys)
	out := make([]group, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}

func chunk[T any](rows []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]T
	for len(rows) > 0 {
		n := min(size, len(rows))
		out = append(out, rows[:n:n])
		rows = rows[n:]
	}
	return out
}
