package wikibase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"bioknowledge/kbsync/internal/kb"
)

const equivalentPropertyQuery = `SELECT * WHERE {
  ?item ?prop <http://www.w3.org/2002/07/owl#equivalentProperty> .
  ?item <http://wikiba.se/ontology#directClaim> ?prop .
}`

type sparqlTerm struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// sparql runs a SELECT query against the query service.
func (c *Client) sparql(ctx context.Context, query string) ([]map[string]sparqlTerm, error) {
	if c.cfg.SPARQLURL == "" {
		return nil, errors.New("wikibase: sparql url is not configured")
	}
	params := url.Values{"query": {query}, "format": {"json"}}

	var body []byte
	err := c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SPARQLURL+"?"+params.Encode(), nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/sparql-results+json")
		body, err = c.send(req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sparql: %w", err)
	}

	var res struct {
		Results struct {
			Bindings []map[string]sparqlTerm `json:"bindings"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("sparql: decoding results: %w", err)
	}
	return res.Results.Bindings, nil
}

// lastSegment returns the entity ID at the end of an entity or property URI.
func lastSegment(uri string) string {
	return uri[strings.LastIndex(uri, "/")+1:]
}

// EquivalentProperty finds the property whose URI statement is
// owl:equivalentProperty, without knowing its ID in advance.
func (c *Client) EquivalentProperty(ctx context.Context) (string, error) {
	rows, err := c.sparql(ctx, equivalentPropertyQuery)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("equivalent property: %w", kb.ErrNotFound)
	}
	return lastSegment(rows[0]["prop"].Value), nil
}

// ValueIndex maps each value of a property's direct claims to the entity
// holding it.
func (c *Client) ValueIndex(ctx context.Context, property string) (map[string]string, error) {
	base := strings.TrimRight(c.cfg.ConceptURI, "/")
	query := fmt.Sprintf("SELECT ?item ?value WHERE { ?item <%s/prop/direct/%s> ?value . }", base, property)
	rows, err := c.sparql(ctx, query)
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(rows))
	for _, row := range rows {
		item, value := row["item"], row["value"]
		if item.Value == "" {
			continue
		}
		index[value.Value] = lastSegment(item.Value)
	}
	return index, nil
}
