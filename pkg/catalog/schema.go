package catalog

import (
	"github.com/invopop/jsonschema"
)

// documentSchema mirrors the frontmatter of an artifact document for
// schema generation. It exists only for reflection; parsing goes through
// documentMeta.
type documentSchema struct {
	Name        string   `json:"name" jsonschema:"required,description=Unique artifact identifier"`
	Description string   `json:"description,omitempty" jsonschema:"description=One-line summary shown in listings"`
	Cost        int      `json:"cost" jsonschema:"required,minimum=1,description=Token cost of loading the artifact into an agent's context"`
	Tier        int      `json:"tier" jsonschema:"required,minimum=1,maximum=6,description=Selection tier; 1 is always loaded and 6 is never auto-selected"`
	Category    string   `json:"category" jsonschema:"required,enum=core,enum=framework,enum=shared-always,enum=on-demand,description=How the artifact enters a plan"`
	Framework   string   `json:"framework,omitempty" jsonschema:"description=Framework the artifact applies to; required for the framework category"`
	Triggers    []string `json:"triggers,omitempty" jsonschema:"description=Phrases that match the artifact during on-demand extension"`
}

// Schema returns the JSON Schema for artifact document frontmatter, for
// editor integration and out-of-band validation of catalog files.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	return reflector.Reflect(documentSchema{})
}
