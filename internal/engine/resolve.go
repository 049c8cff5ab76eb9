package engine

import "strings"

// Resolve replaces every [NAME] marker in template whose name appears in
// variables and has a non-blank value. Names are matched literally and the
// substitution is a single pass, so inserted values are never re-scanned.
// Markers without a value are left as-is.
func Resolve(template string, variables []string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(variables))
	seen := make(map[string]bool, len(variables))
	for _, name := range variables {
		if seen[name] {
			continue
		}
		seen[name] = true
		v, ok := values[name]
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		pairs = append(pairs, Marker(name), v)
	}
	if len(pairs) == 0 {
		return template
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Unresolved returns the distinct variable names, in first-occurrence order,
// that have no non-blank value.
func Unresolved(variables []string, values map[string]string) []string {
	var missing []string
	seen := make(map[string]bool, len(variables))
	for _, name := range variables {
		if seen[name] {
			continue
		}
		seen[name] = true
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Distinct returns variables with repeats removed, keeping first occurrences.
func Distinct(variables []string) []string {
	out := make([]string, 0, len(variables))
	seen := make(map[string]bool, len(variables))
	for _, name := range variables {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
