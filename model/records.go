// Package model holds the read-only in-memory records of a pre-built
// knowledge graph index: entities, relationships, covariates (claims),
// text units, the community hierarchy and its reports, plus the
// conversation history buffer.
//
// All records are loaded once at engine construction and never mutated
// afterwards. Per-query scratch state (match counters, sort keys) lives in
// parallel structs owned by the retrieval and packing code, never on these
// records.
package model

// Entity is a node in the knowledge graph.
type Entity struct {
	// ID is the opaque unique identifier; it joins to the vector store.
	ID string `json:"id"`

	// ShortID is the human-readable identifier used in citations.
	ShortID string `json:"human_readable_id"`

	// Title is the display name. Unique within an index; relationships
	// and covariates join on it.
	Title string `json:"title"`

	// Type is the optional entity category (person, place, event, ...).
	Type string `json:"type,omitempty"`

	// Description is the indexed summary of the entity.
	Description string `json:"description,omitempty"`

	// DescriptionEmbedding is the semantic vector over Description.
	DescriptionEmbedding []float32 `json:"description_embedding,omitempty"`

	// CommunityIDs lists the communities this entity belongs to.
	CommunityIDs []string `json:"community_ids,omitempty"`

	// TextUnitIDs lists source text units in retrieval-priority order.
	TextUnitIDs []string `json:"text_unit_ids,omitempty"`

	// Rank is the degree centrality; higher = more connected.
	Rank int `json:"degree"`

	// Attributes carries free-form additional columns.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Relationship is a directed edge between two entities. Source and Target
// are entity titles, not ids. Traversal for retrieval is symmetric.
type Relationship struct {
	ID          string            `json:"id"`
	ShortID     string            `json:"human_readable_id"`
	Source      string            `json:"source"`
	Target      string            `json:"target"`
	Description string            `json:"description,omitempty"`
	Weight      float64           `json:"weight"`
	TextUnitIDs []string          `json:"text_unit_ids,omitempty"`
	Rank        int               `json:"combined_degree"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Covariate is a typed claim attached to an entity subject.
type Covariate struct {
	ID      string `json:"id"`
	ShortID string `json:"human_readable_id"`

	// SubjectID is the entity title the claim is about.
	SubjectID string `json:"subject_id"`

	Type string `json:"type"`

	// Attributes holds the claim payload (status, dates, object,
	// description, source_text).
	Attributes map[string]string `json:"attributes,omitempty"`
}

// TextUnit is a chunk of the source corpus: the atomic citable unit.
type TextUnit struct {
	ID      string `json:"id"`
	ShortID string `json:"human_readable_id"`
	Text    string `json:"text"`
	NTokens int    `json:"n_tokens"`

	EntityIDs       []string `json:"entity_ids,omitempty"`
	RelationshipIDs []string `json:"relationship_ids,omitempty"`
	CovariateIDs    []string `json:"covariate_ids,omitempty"`
	DocumentIDs     []string `json:"document_ids,omitempty"`
}

// Community is a cluster of entities at one level of the hierarchy.
// Level 0 is the root; larger levels are deeper (more specific).
type Community struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Level           int      `json:"level"`
	EntityIDs       []string `json:"entity_ids,omitempty"`
	RelationshipIDs []string `json:"relationship_ids,omitempty"`
	SubCommunityIDs []string `json:"sub_community_ids,omitempty"`
}

// CommunityReport is the generated summary of a community at a level.
type CommunityReport struct {
	ID          string `json:"id"`
	ShortID     string `json:"human_readable_id"`
	CommunityID string `json:"community"`
	Level       int    `json:"level"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	FullContent string `json:"full_content"`

	// Rank is the report salience in [0,10].
	Rank float64 `json:"rank"`

	SummaryEmbedding     []float32 `json:"summary_embedding,omitempty"`
	FullContentEmbedding []float32 `json:"full_content_embedding,omitempty"`

	// Attributes carries per-community extras such as "weight" (distinct
	// text units attributed to member entities).
	Attributes map[string]string `json:"attributes,omitempty"`
}
