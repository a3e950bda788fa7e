// Package generation produces lotto number sets for batches of names.
//
// The contract is deliberately forgiving: a Generator returns whatever
// assignments it could produce, and callers treat every missing name as an
// individual miss. Pipelines that allow a local fallback fill the gaps with
// random sets; pipelines that must fail closed leave the name for a retry.
package generation

import (
	"context"
	"encoding/json"
	"strings"

	"notto/internal/lotto/numbers"
)

// PlaceholderNames is the token in a prompt template replaced with the
// JSON-encoded array of names being processed.
const PlaceholderNames = "{names}"

// Assignment pairs one name with its generated number set.
type Assignment struct {
	Name    string `json:"name"`
	Numbers []int  `json:"numbers"`
}

// Generator yields number sets for names. Implementations never fail the
// whole batch: on any upstream or parse error they return an empty slice and
// a nil error, leaving recovery policy to the caller.
type Generator interface {
	Generate(ctx context.Context, promptTemplate string, names []string) ([]Assignment, error)
}

// Disabled is the generator used when no API key is configured. It answers
// every batch with nothing, so queued names simply wait until a provider is
// wired up.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, []string) ([]Assignment, error) {
	return nil, nil
}

// BuildPrompt substitutes the names placeholder in a template. Names are
// encoded as a JSON array so quoting and unicode survive the round trip.
func BuildPrompt(template string, names []string) string {
	encoded, err := json.Marshal(names)
	if err != nil {
		encoded = []byte("[]")
	}
	return strings.ReplaceAll(template, PlaceholderNames, string(encoded))
}

// ParseAssignments decodes a model response and keeps only well-formed
// entries: a requested name, seen once, with a set that survives validation.
// Anything else is dropped silently; the caller compensates per name.
func ParseAssignments(raw string, requested []string) []Assignment {
	var decoded []Assignment
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &decoded); err != nil {
		return nil
	}

	wanted := make(map[string]bool, len(requested))
	for _, name := range requested {
		wanted[name] = true
	}

	out := make([]Assignment, 0, len(decoded))
	for _, a := range decoded {
		if !wanted[a.Name] {
			continue
		}
		set, ok := numbers.Validate(a.Numbers)
		if !ok {
			continue
		}
		wanted[a.Name] = false
		out = append(out, Assignment{Name: a.Name, Numbers: set})
	}
	return out
}

// ToMap indexes assignments by name for per-name lookup.
func ToMap(assignments []Assignment) map[string][]int {
	out := make(map[string][]int, len(assignments))
	for _, a := range assignments {
		out[a.Name] = a.Numbers
	}
	return out
}
