package cli

import (
	"fmt"
	"os"
)

// HintContext provides context for generating relevant next steps.
type HintContext struct {
	// Action is the command that was executed (e.g. "account_add").
	Action string

	// Handle is the account involved (if any).
	Handle string
}

// PrintNextSteps prints contextual next steps after a successful command.
// Does nothing if JSON output is enabled.
func PrintNextSteps(ctx HintContext) {
	if IsJSONOutput() || IsJSONLOutput() {
		return
	}

	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}

	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(os.Stdout, "  %s\n", hint)
	}
}

func generateHints(ctx HintContext) []string {
	switch ctx.Action {
	case "account_add":
		return hintsForAccountAdd(ctx)
	case "accounts_empty":
		return []string{
			"convo accounts add --instance <host> --token env:CONVO_TOKEN   # Register an account",
		}
	case "account_removed_active":
		return []string{
			"convo accounts list                 # Pick another account",
			"convo accounts use <handle>         # Make it active",
		}
	default:
		return nil
	}
}

func hintsForAccountAdd(ctx HintContext) []string {
	hints := make([]string, 0, 3)
	hints = append(hints, "convo conversations                 # List the inbox")
	if ctx.Handle != "" {
		hints = append(hints, fmt.Sprintf("convo watch --account %s   # Stream live updates", ctx.Handle))
	}
	hints = append(hints, "convo accounts list                 # See all accounts")
	return hints
}
