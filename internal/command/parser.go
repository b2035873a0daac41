package command

import (
	"fmt"
	"strings"

	"github.com/DK5EN/mcapp-gateway/internal/cmdgrammar"
)

// Parse splits a command's tokens into its key:value argument map and its
// remaining positional tokens (spec.md §4.3 step 6). TARGET: is always
// consumed into args and never appears among the positional tokens.
func Parse(command string, tokens []string) (args map[string]string, positional []string, err error) {
	args = make(map[string]string)
	for _, tok := range tokens {
		if k, v, ok := cmdgrammar.IsKeyValue(tok); ok {
			args[k] = v
			continue
		}
		positional = append(positional, tok)
	}

	if err := validatePositional(command, positional, args); err != nil {
		return nil, nil, err
	}
	return args, positional, nil
}

// validatePositional applies the per-command positional-argument rules
// named in spec.md §4.3's command table.
func validatePositional(command string, positional []string, args map[string]string) error {
	switch strings.ToUpper(command) {
	case "CTCPING":
		if _, ok := args["CALL"]; !ok {
			return fmt.Errorf("ctcping requires call:<callsign>")
		}
	case "DICE":
		// optional positional: number of sides; default handled by handler.
	case "GROUP", "KB", "TOPIC":
		if len(positional) == 0 && len(args) == 0 {
			return fmt.Errorf("%s requires arguments", strings.ToLower(command))
		}
	}
	return nil
}
