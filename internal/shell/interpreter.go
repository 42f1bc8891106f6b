package shell

import (
	"fmt"
	"strings"
)

// DefaultInterpreter runs scripts that do not name one.
const DefaultInterpreter = "sh"

// ScriptArgv returns the argv that runs script through interpreter.
func ScriptArgv(interpreter, script string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(interpreter)) {
	case "", "sh":
		return []string{"sh", "-c", script}, nil
	case "bash":
		return []string{"bash", "--noprofile", "--norc", "-o", "pipefail", "-c", script}, nil
	case "pwsh", "powershell":
		return []string{"pwsh", "-NoLogo", "-NoProfile", "-NonInteractive", "-Command", script}, nil
	case "python", "python3":
		return []string{interpreter, "-c", script}, nil
	default:
		if strings.ContainsAny(interpreter, " \t") {
			return nil, fmt.Errorf("interpreter %q must be a single program name", interpreter)
		}
		return []string{interpreter, "-c", script}, nil
	}
}
