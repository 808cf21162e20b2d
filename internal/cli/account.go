package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	kerrors "github.com/matzehuels/kinship/pkg/errors"
)

// accountDeleter deletes the signed-in user's account.
type accountDeleter interface {
	DeleteAccount(ctx context.Context) error
}

func (c *CLI) accountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage your account",
	}
	cmd.AddCommand(c.accountDeleteCommand())
	return cmd
}

func (c *CLI) accountDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete your account and everything it owns",
		Long: `Delete your account.

The account of the configured access token is deleted on the backend.
This cannot be undone. You are asked to type "delete" unless --yes is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !confirm(os.Stdin, "Type \"delete\" to delete your account: ", "delete") {
				return kerrors.New(kerrors.ErrCodeInvalidInput, "account deletion cancelled")
			}
			fn, err := c.newFunctions()
			if err != nil {
				return err
			}
			return deleteAccount(cmd.Context(), fn)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func deleteAccount(ctx context.Context, d accountDeleter) error {
	spinner := newSpinner(ctx, "Deleting account...")
	spinner.Start()
	if err := d.DeleteAccount(ctx); err != nil {
		spinner.StopWithError("Account not deleted")
		return err
	}
	spinner.StopWithSuccess("Account deleted")
	return nil
}

// confirm prints prompt and reports whether the next input line equals
// want.
func confirm(r io.Reader, prompt, want string) bool {
	fmt.Fprint(stdout, StyleWarning.Render(prompt))
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == want
}
