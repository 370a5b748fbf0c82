package types

import (
	"fmt"
	"strings"
)

// ProviderBinding ties a persona to one backend provider and model.
// An empty Model means the persona follows the global default configuration.
type ProviderBinding struct {
	Provider string `json:"provider,omitempty" yaml:"provider" bson:"provider"`
	Model    string `json:"model,omitempty" yaml:"model" bson:"model"`
}

// Persona is a configured AI identity.
type Persona struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Role        string          `json:"role,omitempty" yaml:"role"`
	Instruction string          `json:"instruction,omitempty" yaml:"instruction"`
	Binding     ProviderBinding `json:"binding" yaml:"binding"`
	Temperature *float32        `json:"temperature,omitempty" yaml:"temperature"`
}

// DisplayName returns the name shown to other participants.
func (p Persona) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.ID
}

// Validate checks the persona can be scheduled.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("persona id is required")
	}
	if p.ID == UserSpeakerID || p.ID == SystemSpeakerID {
		return fmt.Errorf("persona id %q is reserved", p.ID)
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return fmt.Errorf("persona %s: temperature must be within [0, 2]", p.ID)
	}
	return nil
}
