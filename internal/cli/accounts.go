package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/convo/internal/account"
	"github.com/tOgg1/convo/internal/api"
	"github.com/tOgg1/convo/internal/db"
	"github.com/tOgg1/convo/internal/logging"
	"github.com/tOgg1/convo/internal/models"
)

var (
	accountsAddInstance string
	accountsAddToken    string
	accountsAddNoUse    bool
)

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd, accountsRemoveCmd, accountsUseCmd)

	accountsAddCmd.Flags().StringVar(&accountsAddInstance, "instance", "", "server host, e.g. mastodon.social (required)")
	accountsAddCmd.Flags().StringVar(&accountsAddToken, "token", "env:CONVO_TOKEN", "access token or reference (env:NAME, $NAME, file:PATH)")
	accountsAddCmd.Flags().BoolVar(&accountsAddNoUse, "no-use", false, "do not make the new account active")
	_ = accountsAddCmd.MarkFlagRequired("instance")
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage accounts",
	Long:  "Manage the locally registered accounts and the active one.",
}

type accountRow struct {
	ID                string `json:"id"`
	Handle            string `json:"handle"`
	DisplayName       string `json:"display_name,omitempty"`
	Instance          string `json:"instance"`
	Active            bool   `json:"active"`
	Authenticated     bool   `json:"authenticated"`
	Token             string `json:"token,omitempty"`
	NotificationCount int    `json:"notification_count"`
	Badge             bool   `json:"badge"`
}

type accountsListOutput struct {
	Accounts          []accountRow `json:"accounts"`
	NotificationCount int          `json:"notification_count"`
	Badge             bool         `json:"badge"`
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Long:  "List registered accounts. A dot marks other accounts with unread notifications.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		selector, err := env.newSelector()
		if err != nil {
			return err
		}
		if err := selector.Refresh(ctx); err != nil {
			return err
		}

		snapshot := selector.Snapshot()
		out := accountsListOutput{
			Accounts:          make([]accountRow, 0, len(snapshot)),
			NotificationCount: selector.NotificationCount(),
			Badge:             selector.ShowBadge(),
		}
		for _, vm := range snapshot {
			out.Accounts = append(out.Accounts, accountRow{
				ID:                vm.Account.ID,
				Handle:            vm.Account.Handle,
				DisplayName:       vm.Account.DisplayName,
				Instance:          vm.Account.Instance,
				Active:            vm.IsActive,
				Authenticated:     vm.Account.HasToken(),
				Token:             redactedToken(vm.Account.OAuthToken),
				NotificationCount: vm.NotificationCount,
				Badge:             vm.ShowBadge,
			})
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, out)
		}

		if len(out.Accounts) == 0 {
			fmt.Fprintln(os.Stdout, "No accounts found.")
			PrintNextSteps(HintContext{Action: "accounts_empty"})
			return nil
		}

		tbl := newTable("", "HANDLE", "NAME", "AUTH", "UNREAD").limit(2, 32)
		for _, row := range out.Accounts {
			tbl.add(
				formatActive(row.Active),
				row.Handle,
				row.DisplayName,
				formatYesNo(row.Authenticated),
				formatUnread(row.NotificationCount, row.Badge),
			)
		}
		return tbl.write(os.Stdout)
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an account",
	Long:  "Verify an access token against the server and register the account it belongs to.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		token, err := account.ResolveCredential(accountsAddToken)
		if err != nil {
			return err
		}
		instanceURL, err := api.ParseInstance(accountsAddInstance)
		if err != nil {
			return err
		}

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		candidate := &models.Account{Instance: instanceURL.Host, OAuthToken: token}
		client, err := env.newClient(candidate)
		if err != nil {
			return err
		}
		remote, err := client.VerifyCredentials(ctx)
		if err != nil {
			return fmt.Errorf("failed to verify token: %w", err)
		}

		acct := remoteToAccount(remote, instanceURL.Host, token)
		if err := env.accounts.Create(ctx, acct); err != nil {
			if errors.Is(err, db.ErrAccountAlreadyExists) {
				return fmt.Errorf("%s is already registered", acct.Handle)
			}
			return err
		}

		if !accountsAddNoUse || env.current.ID() == "" {
			if err := env.current.Set(ctx, acct.ID); err != nil {
				return err
			}
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, acct)
		}
		fmt.Fprintf(os.Stdout, "Added @%s\n", acct.Handle)
		PrintNextSteps(HintContext{Action: "account_add", Handle: acct.Handle})
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:     "remove <handle|id>",
	Aliases: []string{"rm"},
	Short:   "Remove an account",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		acct, err := env.resolveAccount(ctx, args[0])
		if err != nil {
			return err
		}
		wasActive := env.current.ID() == acct.ID

		if err := env.accounts.Delete(ctx, acct.ID); err != nil {
			return err
		}
		env.prefs.ClearNotifications(acct.OAuthToken)
		if wasActive {
			if err := env.current.Clear(); err != nil {
				return err
			}
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"removed": acct.ID, "was_active": wasActive})
		}
		fmt.Fprintf(os.Stdout, "Removed @%s\n", acct.Handle)
		if wasActive {
			PrintNextSteps(HintContext{Action: "account_removed_active"})
		}
		return nil
	},
}

var accountsUseCmd = &cobra.Command{
	Use:   "use <handle|id>",
	Short: "Switch the active account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		acct, err := env.resolveAccount(ctx, args[0])
		if err != nil {
			return err
		}
		if err := env.current.Set(ctx, acct.ID); err != nil {
			return err
		}
		// Opening the account's inbox clears its unread badge.
		env.prefs.ClearNotifications(acct.OAuthToken)

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"active": acct.ID, "handle": acct.Handle})
		}
		fmt.Fprintf(os.Stdout, "Now using @%s\n", acct.Handle)
		return nil
	},
}

func remoteToAccount(remote models.RemoteAccount, instance, token string) *models.Account {
	handle := remote.Acct
	if !strings.Contains(handle, "@") {
		handle = handle + "@" + instance
	}
	return &models.Account{
		Instance:    instance,
		RemoteID:    remote.ID,
		Handle:      handle,
		DisplayName: remote.DisplayName,
		AvatarURL:   remote.Avatar,
		OAuthToken:  token,
	}
}

func formatActive(active bool) string {
	if active {
		return "*"
	}
	return ""
}

func formatUnread(count int, badge bool) string {
	if count == 0 {
		return "-"
	}
	if badge {
		return fmt.Sprintf("● %d", count)
	}
	return fmt.Sprintf("%d", count)
}

// accountContext is used by commands that take --account.
func accountContext(ctx context.Context, env *environment, ref string) (*models.Account, error) {
	acct, err := env.resolveAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !acct.HasToken() {
		return nil, fmt.Errorf("@%s has no access token: %w", acct.Handle, api.ErrUnauthenticated)
	}
	return acct, nil
}

func redactedToken(token string) string {
	if token == "" {
		return ""
	}
	return logging.RedactToken(token)
}
