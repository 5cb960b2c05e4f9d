// Package template resolves the "{{ path.to.value }}" expressions that
// devrig manifests use to reference other resources' assigned ports and
// names, plus "$VAR" / "${VAR}" host-environment expansion for secrets.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/steveyackey/devrig/internal/devrigerr"
)

// suggestionThreshold is the minimum Jaro-Winkler score at which an
// unresolved variable is considered a plausible typo of a known one.
const suggestionThreshold = 0.8

var templateRe = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

// Resolve substitutes every "{{ var }}" reference in input using vars.
// It runs in two passes: first it validates every reference resolves,
// collecting all failures (with a best-effort typo suggestion) into one
// report; only if that report is empty does it perform the actual
// substitution. field identifies input's location in the manifest for
// error messages (e.g. "services.api.env.DATABASE_URL").
func Resolve(input string, vars map[string]string, field string) (string, *devrigerr.TemplateReport) {
	report := &devrigerr.TemplateReport{}
	for _, match := range templateRe.FindAllStringSubmatch(input, -1) {
		variable := match[1]
		if _, ok := vars[variable]; ok {
			continue
		}
		report.Errors = append(report.Errors, &devrigerr.TemplateUnresolved{
			Field:      field,
			Variable:   variable,
			Suggestion: closestMatch(variable, vars),
		})
	}
	if report.HasErrors() {
		return "", report
	}

	resolved := templateRe.ReplaceAllStringFunc(input, func(m string) string {
		sub := templateRe.FindStringSubmatch(m)
		return vars[sub[1]]
	})
	return resolved, nil
}

// closestMatch returns the known variable name with the highest
// Jaro-Winkler similarity to name, provided it clears
// suggestionThreshold, or "" if nothing is close enough.
func closestMatch(name string, vars map[string]string) string {
	best := ""
	bestScore := 0.0
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic tie-break
	for _, key := range keys {
		score := jaroWinkler(name, key)
		if score >= suggestionThreshold && score > bestScore {
			best, bestScore = key, score
		}
	}
	return best
}

// ResolveAll walks a flat set of (field, value) pairs, resolving each
// against vars and aggregating every field's errors into a single
// report, matching the manifest-wide env resolution pass.
func ResolveAll(fields map[string]string, vars map[string]string) (map[string]string, *devrigerr.TemplateReport) {
	out := make(map[string]string, len(fields))
	report := &devrigerr.TemplateReport{}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, field := range keys {
		resolved, fieldReport := Resolve(fields[field], vars, field)
		if fieldReport != nil {
			report.Errors = append(report.Errors, fieldReport.Errors...)
			continue
		}
		out[field] = resolved
	}
	if report.HasErrors() {
		return nil, report
	}
	return out, nil
}

// PortVars produces the "kind.name.port" template variable for one
// resolved port allocation. Named ports are recorded separately by
// NamedPortVars.
func PortVars(vars map[string]string, kind, name string, port int) {
	vars[fmt.Sprintf("%s.%s.port", kind, name)] = fmt.Sprintf("%d", port)
}

// NamedPortVars records a named port under both its canonical
// "kind.name.ports.alias" key and the "kind.name.port_alias" shorthand.
func NamedPortVars(vars map[string]string, kind, name, alias string, port int) {
	val := fmt.Sprintf("%d", port)
	vars[fmt.Sprintf("%s.%s.ports.%s", kind, name, alias)] = val
	vars[fmt.Sprintf("%s.%s.port_%s", kind, name, alias)] = val
}

// ExpandEnv expands "$VAR" / "${VAR}" references in input using lookup,
// and turns "$$" into a literal "$". Returns the expanded string and the
// set of variable names that were referenced but that lookup did not
// find.
func ExpandEnv(input string, lookup func(name string) (string, bool)) (string, []string) {
	var missing []string
	var b strings.Builder
	i := 0
	for i < len(input) {
		c := input[i]
		if c != '$' || i == len(input)-1 {
			b.WriteByte(c)
			i++
			continue
		}
		if input[i+1] == '$' {
			b.WriteByte('$')
			i += 2
			continue
		}
		rest := input[i+1:]
		var name string
		var consumed int
		switch {
		case strings.HasPrefix(rest, "{"):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				b.WriteByte(c)
				i++
				continue
			}
			name = rest[1:end]
			consumed = end + 2
		default:
			end := 0
			for end < len(rest) && isVarNameByte(rest[end]) {
				end++
			}
			if end == 0 {
				b.WriteByte(c)
				i++
				continue
			}
			name = rest[:end]
			consumed = end + 1
		}
		if val, ok := lookup(name); ok {
			b.WriteString(val)
		} else {
			missing = append(missing, name)
		}
		i += consumed
	}
	return b.String(), missing
}

func isVarNameByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Mask renders a secret value for display/logging: empty strings stay
// empty, everything else becomes a fixed-width placeholder so secret
// length never leaks into logs.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	return "••••••••"
}
