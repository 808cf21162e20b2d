package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/kinship/pkg/backend"
)

// inviteCommand groups the invite subcommands.
func (c *CLI) inviteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Preview and accept invites to shared trees",
	}
	cmd.AddCommand(c.invitePreviewCommand())
	cmd.AddCommand(c.inviteAcceptCommand())
	return cmd
}

func (c *CLI) invitePreviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <token>",
		Short: "Show which tree an invite grants access to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := c.openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			defer pg.Close()
			return previewInvite(cmd.Context(), pg, args[0])
		},
	}
}

func (c *CLI) inviteAcceptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <token>",
		Short: "Accept an invite and join the shared tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := c.openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			defer pg.Close()
			return acceptInvite(cmd.Context(), pg, args[0])
		},
	}
}

func previewInvite(ctx context.Context, inv backend.Invites, token string) error {
	prev, err := inv.PreviewInvite(ctx, token)
	if err != nil {
		return err
	}
	if prev == nil {
		printWarning("No open invite matches this token")
		return nil
	}
	printKeyValue("Tree", prev.GraphName)
	printKeyValue("Tree ID", prev.GraphID)
	if prev.PersonID != "" {
		printKeyValue("Joins as", prev.PersonName)
	}
	if prev.ExpiresAt != nil {
		printKeyValue("Expires", prev.ExpiresAt.Local().Format(time.DateTime))
	}
	printNewline()
	printNextStep("Accept", appName+" invite accept "+token)
	return nil
}

func acceptInvite(ctx context.Context, inv backend.Invites, token string) error {
	graphID, err := inv.AcceptInvite(ctx, token)
	if err != nil {
		return err
	}
	printSuccess("Invite accepted")
	printKeyValue("Tree ID", graphID)
	printNewline()
	printNextStep("Watch it", appName+" watch "+graphID)
	return nil
}
