package wikibase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"bioknowledge/kbsync/internal/kb"
)

// phpMap decodes a JSON object, also accepting the empty array the API
// emits for an empty map.
type phpMap[V any] map[string]V

func (m *phpMap[V]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("[]")) {
		*m = nil
		return nil
	}
	var raw map[string]V
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

type wireTerm struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type wireValue struct {
	Value json.RawMessage `json:"value"`
	Type  string          `json:"type"`
}

type wireEntityID struct {
	EntityType string `json:"entity-type"`
	NumericID  int    `json:"numeric-id"`
	ID         string `json:"id,omitempty"`
}

type wireSnak struct {
	SnakType  string     `json:"snaktype"`
	Property  string     `json:"property"`
	DataValue *wireValue `json:"datavalue,omitempty"`
	DataType  string     `json:"datatype,omitempty"`
}

type wireReference struct {
	Snaks      phpMap[[]wireSnak] `json:"snaks"`
	SnaksOrder []string           `json:"snaks-order,omitempty"`
}

type wireClaim struct {
	ID         string          `json:"id,omitempty"`
	MainSnak   wireSnak        `json:"mainsnak"`
	Type       string          `json:"type"`
	Rank       string          `json:"rank,omitempty"`
	References []wireReference `json:"references,omitempty"`
}

type wireEntity struct {
	ID           string              `json:"id,omitempty"`
	Type         string              `json:"type,omitempty"`
	Datatype     string              `json:"datatype,omitempty"`
	Missing      *string             `json:"missing,omitempty"`
	Labels       phpMap[wireTerm]    `json:"labels,omitempty"`
	Descriptions phpMap[wireTerm]    `json:"descriptions,omitempty"`
	Aliases      phpMap[[]wireTerm]  `json:"aliases,omitempty"`
	Claims       phpMap[[]wireClaim] `json:"claims,omitempty"`
}

// editEntity is the wbeditentity data payload. Claims go as a list so that
// existing claim IDs can be addressed.
type editEntity struct {
	Datatype     string                `json:"datatype,omitempty"`
	Labels       map[string]wireTerm   `json:"labels,omitempty"`
	Descriptions map[string]wireTerm   `json:"descriptions,omitempty"`
	Aliases      map[string][]wireTerm `json:"aliases,omitempty"`
	Claims       []wireClaim           `json:"claims,omitempty"`
}

func encodeValue(property string, v kb.Value) wireSnak {
	snak := wireSnak{SnakType: "value", Property: property, DataType: v.Kind.Datatype()}
	if v.Kind == kb.KindItemRef {
		ref := wireEntityID{EntityType: string(kb.TypeOf(v.Text)), ID: v.Text}
		ref.NumericID, _ = strconv.Atoi(strings.TrimLeft(v.Text, "PQ"))
		raw, _ := json.Marshal(ref)
		snak.DataValue = &wireValue{Value: raw, Type: "wikibase-entityid"}
		return snak
	}
	raw, _ := json.Marshal(v.Text)
	snak.DataValue = &wireValue{Value: raw, Type: "string"}
	return snak
}

// decodeSnak converts a value snak. Novalue/somevalue snaks and datatypes
// outside the tagged variant are reported as not ok.
func decodeSnak(s wireSnak) (kb.Snak, bool) {
	if s.SnakType != "value" || s.DataValue == nil {
		return kb.Snak{}, false
	}
	switch s.DataValue.Type {
	case "wikibase-entityid":
		var ref wireEntityID
		if err := json.Unmarshal(s.DataValue.Value, &ref); err != nil {
			return kb.Snak{}, false
		}
		id := ref.ID
		if id == "" {
			prefix := "Q"
			if ref.EntityType == string(kb.TypeProperty) {
				prefix = "P"
			}
			id = prefix + strconv.Itoa(ref.NumericID)
		}
		return kb.Snak{Property: s.Property, Value: kb.ItemRef(id)}, true
	case "string":
		var text string
		if err := json.Unmarshal(s.DataValue.Value, &text); err != nil {
			return kb.Snak{}, false
		}
		if s.DataType == kb.DatatypeURL {
			return kb.Snak{Property: s.Property, Value: kb.URL(text)}, true
		}
		return kb.Snak{Property: s.Property, Value: kb.Literal(text)}, true
	default:
		return kb.Snak{}, false
	}
}

func encodeReference(ref kb.Reference) wireReference {
	out := wireReference{Snaks: make(phpMap[[]wireSnak])}
	for _, sn := range ref.Snaks {
		if _, ok := out.Snaks[sn.Property]; !ok {
			out.SnaksOrder = append(out.SnaksOrder, sn.Property)
		}
		out.Snaks[sn.Property] = append(out.Snaks[sn.Property], encodeValue(sn.Property, sn.Value))
	}
	return out
}

func decodeReference(ref wireReference) kb.Reference {
	order := ref.SnaksOrder
	if len(order) == 0 {
		for p := range ref.Snaks {
			order = append(order, p)
		}
		sort.Strings(order)
	}
	var out kb.Reference
	for _, p := range order {
		for _, s := range ref.Snaks[p] {
			if sn, ok := decodeSnak(s); ok {
				out.Snaks = append(out.Snaks, sn)
			}
		}
	}
	return out
}

func encodeClaim(st kb.Statement) wireClaim {
	c := wireClaim{
		MainSnak: encodeValue(st.Property, st.Value),
		Type:     "statement",
		Rank:     "normal",
	}
	for _, ref := range st.References {
		c.References = append(c.References, encodeReference(ref))
	}
	return c
}

func term(lang, value string) map[string]wireTerm {
	if value == "" {
		return nil
	}
	return map[string]wireTerm{lang: {Language: lang, Value: value}}
}

func (c *Client) encodeEntity(e *kb.Entity) editEntity {
	lang := c.cfg.Language
	out := editEntity{
		Labels:       term(lang, e.Label),
		Descriptions: term(lang, e.Description),
	}
	if e.Type == kb.TypeProperty {
		out.Datatype = e.Datatype
	}
	for _, a := range e.Aliases {
		if out.Aliases == nil {
			out.Aliases = make(map[string][]wireTerm)
		}
		out.Aliases[lang] = append(out.Aliases[lang], wireTerm{Language: lang, Value: a})
	}
	for _, st := range e.Statements {
		out.Claims = append(out.Claims, encodeClaim(st))
	}
	return out
}

func (c *Client) decodeEntity(w wireEntity) *kb.Entity {
	lang := c.cfg.Language
	e := &kb.Entity{
		ID:          w.ID,
		Type:        kb.EntityType(w.Type),
		Datatype:    w.Datatype,
		Label:       w.Labels[lang].Value,
		Description: w.Descriptions[lang].Value,
	}
	if e.Type == "" {
		e.Type = kb.TypeOf(w.ID)
	}
	for _, a := range w.Aliases[lang] {
		e.Aliases = append(e.Aliases, a.Value)
	}

	props := make([]string, 0, len(w.Claims))
	for p := range w.Claims {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		for _, cl := range w.Claims[p] {
			main, ok := decodeSnak(cl.MainSnak)
			if !ok {
				continue
			}
			st := kb.Statement{Property: main.Property, Value: main.Value}
			for _, ref := range cl.References {
				if r := decodeReference(ref); len(r.Snaks) > 0 {
					st.References = append(st.References, r)
				}
			}
			e.Statements = append(e.Statements, st)
		}
	}
	return e
}

// getWire fetches raw entities, at most 50 IDs per request. Missing
// entities are left out.
func (c *Client) getWire(ctx context.Context, ids []string) ([]wireEntity, error) {
	var out []wireEntity
	for _, chunk := range kb.Chunk(ids, 50) {
		var res struct {
			Entities map[string]wireEntity `json:"entities"`
		}
		err := c.api(ctx, false, url.Values{
			"action":    {"wbgetentities"},
			"ids":       {strings.Join(chunk, "|")},
			"props":     {"info|datatype|labels|descriptions|aliases|claims"},
			"languages": {c.cfg.Language},
		}, &res)
		if err != nil {
			return nil, fmt.Errorf("wbgetentities: %w", err)
		}
		for _, id := range chunk {
			w, ok := res.Entities[id]
			if !ok || w.Missing != nil {
				continue
			}
			out = append(out, w)
		}
	}
	return out, nil
}

// GetEntities fetches entities in request order.
func (c *Client) GetEntities(ctx context.Context, ids []string) ([]*kb.Entity, error) {
	raw, err := c.getWire(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*kb.Entity, len(raw))
	for i, w := range raw {
		out[i] = c.decodeEntity(w)
	}
	return out, nil
}

// CreateEntity creates an item or property with wbeditentity&new=.
func (c *Client) CreateEntity(ctx context.Context, e *kb.Entity) (string, error) {
	typ := e.Type
	if typ == "" {
		typ = kb.TypeItem
	}
	data, err := json.Marshal(c.encodeEntity(e))
	if err != nil {
		return "", err
	}
	var res struct {
		Entity struct {
			ID string `json:"id"`
		} `json:"entity"`
	}
	if err := c.edit(ctx, url.Values{"new": {string(typ)}, "data": {string(data)}}, &res); err != nil {
		return "", err
	}
	if res.Entity.ID == "" {
		return "", fmt.Errorf("wbeditentity: response carries no entity id")
	}
	return res.Entity.ID, nil
}

// WriteStatements adds statements to an entity in one edit. Statements whose
// property and value already exist reuse the existing claim ID, which
// replaces that claim's references.
func (c *Client) WriteStatements(ctx context.Context, id string, statements []kb.Statement) error {
	raw, err := c.getWire(ctx, []string{id})
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return &kb.WriteError{Code: kb.CodeNoSuchEntity, Info: id}
	}

	existing := make(map[string]string)
	for _, claims := range raw[0].Claims {
		for _, cl := range claims {
			if sn, ok := decodeSnak(cl.MainSnak); ok {
				existing[claimKey(sn.Property, sn.Value)] = cl.ID
			}
		}
	}

	payload := editEntity{}
	for _, st := range statements {
		cl := encodeClaim(st)
		cl.ID = existing[claimKey(st.Property, st.Value)]
		payload.Claims = append(payload.Claims, cl)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.edit(ctx, url.Values{"id": {id}, "data": {string(data)}}, nil)
}

func claimKey(property string, v kb.Value) string {
	return property + "\x00" + v.Kind.String() + "\x00" + v.Text
}
