package saga

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"civicpulse/models"
)

// Policy says which issue types are gated by the detector and which label
// the detector is asked about. Types absent from Verified skip verification.
type Policy struct {
	Verified map[models.IssueType]string `yaml:"verified"`
}

// DefaultPolicy gates potholes only; that is the one class the detector
// was trained for.
func DefaultPolicy() Policy {
	return Policy{Verified: map[models.IssueType]string{models.IssuePothole: "pothole"}}
}

// Requires returns the detector label for t and whether t is verified.
func (p Policy) Requires(t models.IssueType) (string, bool) {
	label, ok := p.Verified[t]
	if ok && label == "" {
		label = string(t)
	}
	return label, ok
}

// LoadPolicy reads a YAML policy file. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read verification policy: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse verification policy %s: %w", path, err)
	}
	for t := range p.Verified {
		if !t.Valid() {
			return Policy{}, fmt.Errorf("verification policy %s: unknown issue type %q", path, t)
		}
	}
	if p.Verified == nil {
		p.Verified = map[models.IssueType]string{}
	}
	return p, nil
}
