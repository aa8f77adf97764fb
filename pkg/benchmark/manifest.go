package benchmark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// Manifest is the JSON document describing a data-driven benchmark (§6).
// Unknown fields are rejected at decode time.
type Manifest struct {
	ManifestVersion      string           `json:"manifest_version" validate:"required,eq=1"`
	Name                 string           `json:"name" validate:"required"`
	Version              string           `json:"version" validate:"required,semver"`
	DataFile             string           `json:"data_file" validate:"required"`
	Flatten              *FlattenConfig   `json:"flatten,omitempty"`
	Ingestion            IngestionConfig  `json:"ingestion" validate:"required"`
	Query                QueryConfig      `json:"query" validate:"required"`
	Evaluation           EvaluationConfig `json:"evaluation" validate:"required"`
	Metrics              []string         `json:"metrics,omitempty"`
	RequiredCapabilities []string         `json:"required_capabilities,omitempty"`
}

// FlattenConfig expands one array field of a record into multiple cases.
type FlattenConfig struct {
	Field         string   `json:"field" validate:"required"`
	MaxItems      int      `json:"max_items,omitempty"`
	PromoteFields []string `json:"promote_fields,omitempty"`
}

// IngestionConfig is a discriminated union over the ingestion strategy.
// Only the fields relevant to Strategy are populated; unknown strategies are
// rejected at ParseManifest time, not at execution time (§4.B, §9).
type IngestionConfig struct {
	Strategy string `json:"strategy" validate:"required,oneof=simple session-based add-delete-verify"`

	// simple
	ContentField string   `json:"content_field,omitempty"`
	IsArray      bool     `json:"is_array,omitempty"`
	MetadataKeys []string `json:"metadata_keys,omitempty"`

	// session-based
	SessionsFormat    string `json:"sessions_format,omitempty"` // "array" | "dynamic_keys"
	SessionsField     string `json:"sessions_field,omitempty"`  // for "array" format
	SessionKeyPrefix  string `json:"session_key_prefix,omitempty"`
	DateKeySuffix     string `json:"date_key_suffix,omitempty"`
	EvidenceField     string `json:"evidence_field,omitempty"`
	EvidenceParser    string `json:"evidence_parser,omitempty"` // e.g. "dialog_refs"
	Mode              string `json:"mode,omitempty"`            // "lazy" | "shared" | "full"
	SharedSampleSize  int    `json:"shared_sample_size,omitempty"`
	AnswerSessionsKey string `json:"answer_sessions_key,omitempty"`
}

// QueryConfig names the fields a case's data record carries.
type QueryConfig struct {
	QuestionField       string `json:"question_field" validate:"required"`
	ExpectedAnswerField string `json:"expected_answer_field" validate:"required"`
	RetrievalLimit      int    `json:"retrieval_limit,omitempty"`
}

// EvaluationConfig is a discriminated union over the scoring protocol.
type EvaluationConfig struct {
	Protocol string `json:"protocol" validate:"required,oneof=exact-match llm-as-judge deletion-check"`

	// exact-match
	CaseSensitive       bool `json:"case_sensitive,omitempty"`
	NormalizeWhitespace bool `json:"normalize_whitespace,omitempty"`
	Trim                bool `json:"trim,omitempty"`

	// llm-as-judge
	TypeInstructionsFile string `json:"type_instructions_file,omitempty"`
	QuestionTypeField    string `json:"question_type_field,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	return v
}

// ParseManifest decodes and validates a benchmark manifest. Unknown JSON
// fields are a hard error (§6 "Unknown fields rejected"); unsupported
// strategy/protocol tags are rejected here too, per §7 taxonomy item 3
// ("construction errors... fail the run before the executor starts").
func ParseManifest(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("benchmark: invalid manifest: %w", err)
	}

	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("benchmark: manifest validation failed: %w", err)
	}

	switch m.Ingestion.Strategy {
	case "add-delete-verify":
		return nil, fmt.Errorf("benchmark: ingestion strategy %q is declared but not implemented", m.Ingestion.Strategy)
	case "session-based":
		if m.Ingestion.SessionsFormat != "array" && m.Ingestion.SessionsFormat != "dynamic_keys" {
			return nil, fmt.Errorf("benchmark: session-based ingestion requires sessions_format of array or dynamic_keys, got %q", m.Ingestion.SessionsFormat)
		}
		switch m.Ingestion.Mode {
		case "lazy", "shared", "full":
		default:
			return nil, fmt.Errorf("benchmark: session-based ingestion requires mode of lazy, shared or full, got %q", m.Ingestion.Mode)
		}
	}

	switch m.Evaluation.Protocol {
	case "deletion-check":
		return nil, fmt.Errorf("benchmark: evaluation protocol %q is declared but not implemented", m.Evaluation.Protocol)
	}

	return &m, nil
}

// LoadManifestFile reads and parses a manifest from disk.
func LoadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("benchmark: reading manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}
