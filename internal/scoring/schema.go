package scoring

import (
	"encoding/json"
	"fmt"

	"teed-waitlist/internal/common/validation"
)

// configSchema is the shape every config source must satisfy before it is used.
const configSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["weights", "autoApproval"],
	"definitions": {
		"pointTable": {
			"type": "object",
			"additionalProperties": {"type": "number"}
		},
		"points": {"type": "number", "minimum": 0}
	},
	"properties": {
		"weights": {
			"type": "object",
			"required": ["role", "shareChannels", "learnChannels", "spend", "uses", "buyFrequency", "shareFrequency", "caps", "totalCap"],
			"properties": {
				"role":           {"$ref": "#/definitions/pointTable"},
				"shareChannels":  {"$ref": "#/definitions/pointTable"},
				"learnChannels":  {"$ref": "#/definitions/pointTable"},
				"spend":          {"$ref": "#/definitions/pointTable"},
				"uses":           {"$ref": "#/definitions/pointTable"},
				"buyFrequency":   {"$ref": "#/definitions/pointTable"},
				"shareFrequency": {"$ref": "#/definitions/pointTable"},
				"totalCap":       {"type": "number", "exclusiveMinimum": 0, "maximum": 100},
				"caps": {
					"type": "object",
					"required": ["shareChannels", "learnChannels", "uses"],
					"properties": {
						"shareChannels": {"$ref": "#/definitions/points"},
						"learnChannels": {"$ref": "#/definitions/points"},
						"uses":          {"$ref": "#/definitions/points"},
						"bonuses":       {"$ref": "#/definitions/points"}
					}
				},
				"bonuses": {
					"type": "object",
					"properties": {
						"location":   {"type": "number"},
						"inviteCode": {"type": "number"},
						"profileCompletion": {
							"type": "object",
							"properties": {
								"minPercent": {"type": "number", "minimum": 0, "maximum": 100},
								"points":     {"type": "number"}
							}
						},
						"equipment": {
							"type": "object",
							"properties": {
								"firstItem":  {"type": "number"},
								"perItem":    {"type": "number"},
								"perItemCap": {"$ref": "#/definitions/points"},
								"hasPhoto":   {"type": "number"}
							}
						}
					}
				}
			}
		},
		"autoApproval": {
			"type": "object",
			"required": ["threshold"],
			"properties": {
				"threshold":                {"type": "number", "minimum": 0},
				"requireEmailVerification": {"type": "boolean"},
				"capacityBuffer":           {"type": "integer", "minimum": 0}
			}
		},
		"metadata": {
			"type": "object",
			"properties": {
				"version":     {"type": "string"},
				"lastUpdated": {"type": "string"},
				"updatedBy":   {"type": "string"},
				"description": {"type": "string"}
			}
		}
	}
}`

var compiledSchema = validation.MustCompile(configSchema)

// ParseConfig validates a raw config document and decodes it. A nil config is
// returned together with the list of problems when the document is unusable.
func ParseConfig(raw []byte) (*Config, []validation.ValidationError) {
	res := compiledSchema.ValidateBytes(raw)
	if !res.Valid {
		return nil, res.Errors
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, []validation.ValidationError{{
			Field:   "(root)",
			Message: err.Error(),
			Code:    "DECODE_FAILED",
		}}
	}
	if errs := semanticErrors(&cfg); len(errs) > 0 {
		return nil, errs
	}
	if cfg.Metadata.Version == "" {
		cfg.Metadata.Version = DefaultVersion
	}
	return &cfg, nil
}

// Validate checks a typed config against the same rules as ParseConfig.
func Validate(cfg *Config) []validation.ValidationError {
	if cfg == nil {
		return []validation.ValidationError{{Field: "(root)", Message: "config is nil", Code: "REQUIRED"}}
	}
	if res := compiledSchema.ValidateValue(cfg); !res.Valid {
		return res.Errors
	}
	return semanticErrors(cfg)
}

func semanticErrors(cfg *Config) []validation.ValidationError {
	var errs []validation.ValidationError
	if cfg.AutoApproval.Threshold > cfg.Weights.TotalCap {
		errs = append(errs, validation.ValidationError{
			Field:   "autoApproval.threshold",
			Message: fmt.Sprintf("threshold %g exceeds totalCap %g", cfg.AutoApproval.Threshold, cfg.Weights.TotalCap),
			Code:    "THRESHOLD_ABOVE_CAP",
		})
	}
	if cfg.Metadata.Version != "" {
		if _, ok := parseSemver(cfg.Metadata.Version); !ok {
			errs = append(errs, validation.ValidationError{
				Field:   "metadata.version",
				Message: fmt.Sprintf("version %q is not MAJOR.MINOR.PATCH", cfg.Metadata.Version),
				Code:    "INVALID_VERSION",
			})
		}
	}
	return errs
}
