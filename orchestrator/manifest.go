package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/AltairaLabs/hearth/logger"
	"github.com/AltairaLabs/hearth/types"
)

// Manifest kinds and the API group they belong to. Profiles and care
// plans are loaded declaratively by the admin tool; the voice path
// never writes them.
const (
	ManifestAPIVersion = "hearth.altairalabs.ai/v1"

	KindCarePlan    = "CarePlan"
	KindUserProfile = "UserProfile"
)

// Manifest is one declarative admin document. metadata.name is the
// user id the document applies to.
type Manifest struct {
	APIVersion string            `yaml:"apiVersion" json:"apiVersion"`
	Kind       string            `yaml:"kind" json:"kind"`
	Metadata   metav1.ObjectMeta `yaml:"metadata" json:"metadata"`
	Spec       map[string]any    `yaml:"spec" json:"spec"`
}

const manifestSchema = `{
  "type": "object",
  "required": ["apiVersion", "kind", "metadata", "spec"],
  "properties": {
    "apiVersion": {"enum": ["hearth.altairalabs.ai/v1"]},
    "kind": {"enum": ["CarePlan", "UserProfile"]},
    "metadata": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1}
      }
    },
    "spec": {"type": "object"}
  }
}`

// LoadManifest reads and validates one manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest validates raw YAML against the manifest schema and
// decodes it.
func ParseManifest(raw []byte) (*Manifest, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(manifestSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("invalid manifest: %s", result.Errors()[0].String())
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// ApplyManifest writes one manifest into the store.
func (s *Store) ApplyManifest(ctx context.Context, m *Manifest) error {
	switch m.Kind {
	case KindUserProfile:
		var profile types.UserProfile
		if err := decodeSpec(m.Spec, &profile); err != nil {
			return fmt.Errorf("decode %s spec: %w", m.Kind, err)
		}
		profile.UserID = m.Metadata.Name
		if profile.DeviceID == "" {
			return fmt.Errorf("manifest %s: spec.device_id is required", m.Metadata.Name)
		}
		if err := s.SaveUserProfile(ctx, &profile); err != nil {
			return err
		}
	case KindCarePlan:
		var plan types.CarePlan
		if err := decodeSpec(m.Spec, &plan); err != nil {
			return fmt.Errorf("decode %s spec: %w", m.Kind, err)
		}
		plan.UserID = m.Metadata.Name
		if err := s.SaveCarePlan(ctx, &plan); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown manifest kind %q", m.Kind)
	}

	logger.Info("manifest_applied", "kind", m.Kind, "name", m.Metadata.Name)
	return nil
}

// decodeSpec maps a free-form spec into a typed record through its
// snake_case JSON tags.
func decodeSpec(spec map[string]any, out any) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
