package validation

import (
	"fmt"
	"unicode"
)

// Labels and project names share the same rule: non-empty, no
// whitespace. Whitespace-free names keep the id-or-label CLI arguments
// unambiguous.

func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("label cannot be empty")
	}
	for _, r := range label {
		if unicode.IsSpace(r) {
			return fmt.Errorf("invalid label: %q", label)
		}
	}
	return nil
}

func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	for _, r := range name {
		// ':' separates key segments in the metadata index.
		if unicode.IsSpace(r) || r == ':' {
			return fmt.Errorf("invalid project name: %q", name)
		}
	}
	return nil
}
