package stamper

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/valyala/fasttemplate"
)

// Vars maps placeholder names to their values.
type Vars map[string]any

// Merge returns a copy of v overlaid with other. Values from
// other win.
func (v Vars) Merge(other Vars) Vars {
	out := make(Vars, len(v)+len(other))
	maps.Copy(out, v)
	maps.Copy(out, other)

	return out
}

// Environ converts "KEY=VALUE" entries, as returned by
// os.Environ, into Vars. Entries without '=' are skipped.
func Environ(env []string) Vars {
	vars := make(Vars, len(env))

	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			vars[k] = v
		}
	}

	return vars
}

// LoadStamps reads stamp files and merges them into a
// single map. Each line is "KEY VALUE" with the first space
// as delimiter. Lines without a space are silently skipped;
// later files override earlier ones.
func LoadStamps(
	infoFiles []string,
) (Vars, error) {
	const errCtx = "loading stamps"

	stamps := make(Vars)

	for _, sf := range infoFiles {
		content, err := os.ReadFile(sf) //nolint:gosec // paths from CLI flags
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		for line := range strings.SplitSeq(
			string(content), "\n",
		) {
			k, v, ok := strings.Cut(
				strings.TrimSuffix(line, "\r"), " ",
			)
			if ok {
				stamps[k] = v
			}
		}
	}

	return stamps, nil
}

// Expand substitutes {VAR} placeholders in value. Unknown
// variables are preserved as-is.
func Expand(value string, vars Vars) string {
	if !strings.Contains(value, "{") {
		return value
	}

	return fasttemplate.ExecuteStringStd(
		value, "{", "}", vars,
	)
}
