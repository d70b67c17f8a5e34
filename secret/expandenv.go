package secret

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

var bracedVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands $VAR and ${VAR} in s. A braced variable that is
// unset fails with ErrMissingEnv naming every such variable; a bare one
// expands to "". $$ is a literal dollar sign.
func ExpandEnvStrict(s string) (string, error) {
	const escaped = "\x00"
	s = strings.ReplaceAll(s, "$$", escaped)

	var missing []string
	for _, m := range bracedVar.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(m[1]); !ok {
			missing = append(missing, m[1])
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(slices.Compact(missing), ", "))
	}
	return strings.ReplaceAll(os.ExpandEnv(s), escaped, "$"), nil
}
