package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

type listSamplesArgs struct {
	Pattern string `json:"pattern,omitempty" jsonschema:"Optional glob filter for sample bank names, e.g. 'gm_*' or '*808*'."`
}

// ListSamplesTool lists the sample banks the surface can play.
type ListSamplesTool struct {
	banks []string
}

func NewListSamplesTool(banks []string) *ListSamplesTool {
	return &ListSamplesTool{banks: banks}
}

func (t *ListSamplesTool) Name() string { return "list_samples" }
func (t *ListSamplesTool) Description() string {
	return "Lists the sample banks and synth sounds available to s() and .bank(). Args: pattern (string, optional glob)."
}
func (t *ListSamplesTool) Schema() *jsonschema.Schema { return schemaFor[listSamplesArgs]() }

func (t *ListSamplesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		pattern = "*"
	}

	var matches []string
	for _, bank := range t.banks {
		ok, err := matchesAny(bank, []string{pattern})
		if err != nil {
			return "", err
		}
		if ok {
			matches = append(matches, bank)
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No samples match '%s'.", pattern), nil
	}
	sort.Strings(matches)
	return strings.Join(matches, "\n"), nil
}
