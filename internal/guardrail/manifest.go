package guardrail

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// manifest is the declarative shape of a claim as applied to the cluster.
// Status is reconciler-owned and never part of the applied document.
type manifest struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Metadata   manifestMeta `yaml:"metadata"`
	Spec       manifestSpec `yaml:"spec"`
}

type manifestMeta struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

type manifestSpec struct {
	AccountID  string    `yaml:"accountId"`
	Parameters ClaimSpec `yaml:"parameters"`
}

// RenderManifest renders the claim as the YAML document the cluster consumes.
func RenderManifest(claim *Claim) ([]byte, error) {
	m := manifest{
		APIVersion: "guardrails.fluxkit.io/v1alpha1",
		Kind:       "GuardrailClaim",
		Metadata: manifestMeta{
			Name: claim.Name,
			Labels: map[string]string{
				"fluxkit.io/account-id": claim.Spec.AccountID,
			},
		},
		Spec: manifestSpec{
			AccountID:  claim.Spec.AccountID,
			Parameters: claim.Spec,
		},
	}

	out, err := yaml.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("failed to render claim manifest: %w", err)
	}

	return out, nil
}
