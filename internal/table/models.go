package table

// Missing is the on-disk token for an absent value.
const Missing = "NA"

// ExactMatch is the predicate whose edges carry a literal object instead of
// a node reference.
const ExactMatch = "skos:exactMatch"

// Node represents a row in the nodes table
type Node struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`     // semantic type: GENE, DISO, GENO, PHYS, VARI, ANAT, NA
	PrefLabel   string   `json:"preflabel"` // display title
	Synonyms    []string `json:"synonyms"`  // pipe-joined on disk
	Name        string   `json:"name"`      // alternate/original title
	Description string   `json:"description"`
}

// Edge represents a row in the edges table
type Edge struct {
	StartID                 string `json:"start_id"`
	Type                    string `json:"type"` // predicate CURIE
	EndID                   string `json:"end_id"`
	ReferenceURI            string `json:"reference_uri"` // pipe-joined
	ReferenceSupportingText string `json:"reference_supporting_text"`
	ReferenceDate           string `json:"reference_date"`
	PropertyLabel           string `json:"property_label"`
	PropertyDescription     string `json:"property_description"`
	PropertyURI             string `json:"property_uri"`
}

// Triple is the (subject, predicate, object) key that groups edge rows into
// one statement.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// Triple returns the statement key of the edge.
func (e Edge) Triple() Triple {
	return Triple{Subject: e.StartID, Predicate: e.Type, Object: e.EndID}
}

// NodeColumns is the fixed column order of the nodes table.
var NodeColumns = []string{"id", "label", "preflabel", "synonyms", "name", "description"}

// EdgeColumns is the fixed column order of the edges table.
var EdgeColumns = []string{
	"start_id", "type", "end_id", "reference_uri", "reference_supporting_text",
	"reference_date", "property_label", "property_description", "property_uri",
}

// headerAliases maps neo4j bulk-import headers onto canonical column names.
var headerAliases = map[string]string{
	"id:ID":                       "id",
	":LABEL":                      "label",
	"synonyms:IGNORE":             "synonyms",
	":START_ID":                   "start_id",
	":TYPE":                       "type",
	":END_ID":                     "end_id",
	"property_description:IGNORE": "property_description",
}

// freeText lists the columns where the Missing token reads as empty. In the
// remaining columns NA is a legitimate value (the NA label, the NA predicate,
// "NA (id)" titles, the NA citation).
var freeText = map[string]bool{
	"synonyms":                  true,
	"name":                      true,
	"description":               true,
	"reference_supporting_text": true,
	"reference_date":            true,
	"property_label":            true,
	"property_description":      true,
	"property_uri":              true,
}

func (n Node) values() []string {
	return []string{n.ID, n.Label, n.PrefLabel, joinPipe(n.Synonyms), n.Name, n.Description}
}

func (e Edge) values() []string {
	return []string{
		e.StartID, e.Type, e.EndID, e.ReferenceURI, e.ReferenceSupportingText,
		e.ReferenceDate, e.PropertyLabel, e.PropertyDescription, e.PropertyURI,
	}
}

// scanNode builds a Node from a record keyed by canonical column name.
func scanNode(rec map[string]string) Node {
	return Node{
		ID:          rec["id"],
		Label:       rec["label"],
		PrefLabel:   rec["preflabel"],
		Synonyms:    splitPipe(rec["synonyms"]),
		Name:        rec["name"],
		Description: rec["description"],
	}
}

// scanEdge builds an Edge from a record keyed by canonical column name.
func scanEdge(rec map[string]string) Edge {
	return Edge{
		StartID:                 rec["start_id"],
		Type:                    rec["type"],
		EndID:                   rec["end_id"],
		ReferenceURI:            rec["reference_uri"],
		ReferenceSupportingText: rec["reference_supporting_text"],
		ReferenceDate:           rec["reference_date"],
		PropertyLabel:           rec["property_label"],
		PropertyDescription:     rec["property_description"],
		PropertyURI:             rec["property_uri"],
	}
}
