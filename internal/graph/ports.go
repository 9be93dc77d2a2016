package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// Port placeholders in shell commands come in two shapes:
//
//	{PORT::name}              replaced by the bound data paths, space-joined
//	{PORT[sep=,]::name}       same, with an explicit separator
//	[--flag {PORT::name}]     optional segment, dropped when the port is empty
var (
	optionalPortPattern = regexp.MustCompile(`\[([^\[\]]*?)\{PORT(\[sep=([^\]]+)\])?::([^}]+?)\}([^\[\]]*?)\]`)
	portPattern         = regexp.MustCompile(`\{PORT(\[sep=([^\]]+)\])?::([^}]+?)\}`)
)

// resolvePorts substitutes every port placeholder in command with the paths
// bound to that port. A required placeholder naming a port with no bound data
// is an error; an optional segment is silently removed instead.
func resolvePorts(command string, ports map[string][]string) (string, error) {
	resolved := optionalPortPattern.ReplaceAllStringFunc(command, func(match string) string {
		groups := optionalPortPattern.FindStringSubmatch(match)
		prefix, sep, port, suffix := groups[1], groups[3], groups[4], groups[5]
		paths := ports[port]
		if len(paths) == 0 {
			return ""
		}
		if sep == "" {
			sep = " "
		}
		return prefix + strings.Join(paths, sep) + suffix
	})

	var missing []string
	resolved = portPattern.ReplaceAllStringFunc(resolved, func(match string) string {
		groups := portPattern.FindStringSubmatch(match)
		sep, port := groups[2], groups[3]
		paths := ports[port]
		if len(paths) == 0 {
			missing = append(missing, port)
			return match
		}
		if sep == "" {
			sep = " "
		}
		return strings.Join(paths, sep)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("no data bound to required port(s) %s", strings.Join(missing, ", "))
	}
	return resolved, nil
}
