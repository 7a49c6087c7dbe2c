// Package manifest parses and validates the phase manifest: the JSON
// document describing the phase graph that the DAG Scheduler executes. It is
// grounded on agentium's internal/config.Config's viper-driven validation
// style (Validate/ValidateForRun), adapted to a standalone JSON document
// rather than the whole project config tree.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/forgehq/forge/internal/phase"
)

// phaseDescriptor mirrors the manifest's on-disk phase shape: keys
// `number`, `name`, `promise`, `budget`, optional `phase_type`, optional
// `depends_on`.
type phaseDescriptor struct {
	Number    *string  `json:"number"`
	Name      *string  `json:"name"`
	Promise   *string  `json:"promise"`
	Budget    *int     `json:"budget"`
	PhaseType string   `json:"phase_type,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// Parse decodes and validates a phase manifest document into an ordered
// slice of phases preserving declaration order. Duplicate ids and missing
// required keys are rejected here; cycle/dangling-dependency checks are the
// dag package's responsibility once the phases are loaded.
func Parse(data []byte) ([]phase.Phase, error) {
	var descriptors []phaseDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("parse phase manifest: %w", err)
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("phase manifest is empty")
	}

	seen := make(map[string]bool, len(descriptors))
	phases := make([]phase.Phase, 0, len(descriptors))

	for i, d := range descriptors {
		if d.Number == nil || *d.Number == "" {
			return nil, fmt.Errorf("phase manifest entry %d: missing required key \"number\"", i)
		}
		if d.Name == nil || *d.Name == "" {
			return nil, fmt.Errorf("phase %s: missing required key \"name\"", *d.Number)
		}
		if d.Promise == nil || *d.Promise == "" {
			return nil, fmt.Errorf("phase %s: missing required key \"promise\"", *d.Number)
		}
		if d.Budget == nil {
			return nil, fmt.Errorf("phase %s: missing required key \"budget\"", *d.Number)
		}
		if seen[*d.Number] {
			return nil, fmt.Errorf("duplicate phase id %q", *d.Number)
		}
		seen[*d.Number] = true

		p := phase.Phase{
			ID:        *d.Number,
			Name:      *d.Name,
			Promise:   *d.Promise,
			Budget:    *d.Budget,
			PhaseType: d.PhaseType,
			DependsOn: d.DependsOn,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}

	return phases, nil
}
