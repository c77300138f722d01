package kb

// PropertySpec describes a property the sync engine needs before it can
// write anything else.
type PropertySpec struct {
	URI         string
	Label       string
	Description string
	Datatype    string
	DbXref      string // external-ID literal, empty for the external-ID property itself
}

// Structural property URIs.
const (
	DbXrefURI         = "http://www.geneontology.org/formats/oboInOwl#DbXref"
	ExactMatchURI     = "http://www.w3.org/2004/02/skos/core#exactMatch"
	ReferenceURLURI   = "http://www.wikidata.org/entity/P854"
	SupportingTextURI = "http://reference_supporting_text"
	TypeURI           = "http://type"
)

// Structural lists the bootstrap properties in creation order. The
// external-ID property comes first because the others carry an external-ID
// statement.
var Structural = []PropertySpec{
	{
		URI:         DbXrefURI,
		Label:       "External ID",
		Description: "generic property for holding a (generally CURIE-fied) external ID",
		Datatype:    DatatypeString,
	},
	{
		URI:      ExactMatchURI,
		Label:    "exact match",
		Datatype: DatatypeString,
		DbXref:   "skos:exactMatch",
	},
	{
		URI:      ReferenceURLURI,
		Label:    "reference uri",
		Datatype: DatatypeURL,
		DbXref:   "reference_uri",
	},
	{
		URI:      SupportingTextURI,
		Label:    "reference supporting text",
		Datatype: DatatypeString,
		DbXref:   "ref_supp_text",
	},
	{
		URI:         TypeURI,
		Label:       "type",
		Description: "the neo4j type, aka ':LABEL'",
		Datatype:    DatatypeItem,
		DbXref:      "type",
	},
}
