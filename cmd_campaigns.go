package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/domain"
)

const dateLayout = "2006-01-02"

func (a *app) campaignsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "campaigns",
		Aliases: []string{"campaign"},
		Short:   "Manage your campaigns",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			userID, err := a.requireUser()
			if err != nil {
				return err
			}
			campaigns, err := a.client.ListCampaigns(ctx, userID)
			if err != nil {
				return err
			}
			if len(campaigns) == 0 {
				printf(cmd.OutOrStdout(), "No campaigns yet. Create one with `marketa campaigns create --name ...`.\n")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tBUDGET")
			for _, c := range campaigns {
				fmt.Fprintf(tw, "%s\t%s\t%s\t$%.0f\n", c.ID, c.Name, c.Status, c.Budget)
			}
			return tw.Flush()
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			c, err := a.client.GetCampaign(ctx, args[0])
			if err != nil {
				return err
			}
			printCampaign(cmd.OutOrStdout(), c)
			return nil
		},
	}

	createForm := &campaignForm{}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			userID, err := a.requireUser()
			if err != nil {
				return err
			}
			c := domain.Campaign{UserID: userID, Status: string(domain.CampaignStatusActive)}
			if err := createForm.apply(cmd.Flags(), &c); err != nil {
				return err
			}
			if err := a.validator.Campaign(ctx, c); err != nil {
				return err
			}
			created, err := a.client.CreateCampaign(ctx, c)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Campaign created\n")
			printCampaign(cmd.OutOrStdout(), created)
			return nil
		},
	}
	createForm.bind(create.Flags())

	updateForm := &campaignForm{}
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a campaign; unset flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			current, err := a.client.GetCampaign(ctx, args[0])
			if err != nil {
				return err
			}
			c := *current
			if err := updateForm.apply(cmd.Flags(), &c); err != nil {
				return err
			}
			if err := a.validator.Campaign(ctx, c); err != nil {
				return err
			}
			updated, err := a.client.UpdateCampaign(ctx, c)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Campaign updated\n")
			printCampaign(cmd.OutOrStdout(), updated)
			return nil
		},
	}
	updateForm.bind(update.Flags())

	remove := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a campaign and its cached chat",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			if err := a.client.DeleteCampaign(ctx, args[0]); err != nil {
				return err
			}
			if err := a.store.DeleteTranscript(ctx, args[0]); err != nil {
				a.logger.Warn("failed to drop cached transcript", zap.Error(err))
			}
			printf(cmd.OutOrStdout(), "Campaign deleted\n")
			return nil
		},
	}

	cached := &cobra.Command{
		Use:   "cached",
		Short: "List the campaign chats kept on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.services(ctx); err != nil {
				return err
			}
			infos, err := a.store.ListTranscripts(ctx)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				printf(cmd.OutOrStdout(), "No chats cached on this device.\n")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CAMPAIGN\tMESSAGES\tUPDATED")
			for _, info := range infos {
				updated := "-"
				if !info.UpdatedAt.IsZero() {
					updated = info.UpdatedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", info.CampaignID, info.MessageCount, updated)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(list, show, create, update, remove, cached)
	return cmd
}

// campaignForm binds the campaign editor fields to flags.
type campaignForm struct {
	name, status, goals, channels string
	audience, content             string
	budget                        float64
	start, end                    string
}

func (f *campaignForm) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "Campaign name")
	fs.StringVar(&f.status, "status", "", "Active, Paused, Completed or Draft")
	fs.StringVar(&f.goals, "goals", "", "What the campaign should achieve")
	fs.StringVar(&f.channels, "channels", "", "Marketing channels")
	fs.Float64Var(&f.budget, "budget", 0, "Budget in dollars")
	fs.StringVar(&f.start, "start", "", "Start date (YYYY-MM-DD)")
	fs.StringVar(&f.end, "end", "", "End date (YYYY-MM-DD)")
	fs.StringVar(&f.audience, "audience", "", "Target audience")
	fs.StringVar(&f.content, "content", "", "Campaign content or brief")
}

// apply copies the flags that were set onto c.
func (f *campaignForm) apply(fs *pflag.FlagSet, c *domain.Campaign) error {
	set := func(flag string, dst *string, v string) {
		if fs.Changed(flag) {
			*dst = v
		}
	}
	set("name", &c.Name, f.name)
	set("status", &c.Status, f.status)
	set("goals", &c.Goals, f.goals)
	set("channels", &c.Channels, f.channels)
	set("audience", &c.Audience, f.audience)
	set("content", &c.Content, f.content)
	if fs.Changed("budget") {
		c.Budget = f.budget
	}

	var err error
	if fs.Changed("start") {
		if c.StartDate, err = parseDate("start", f.start); err != nil {
			return err
		}
	}
	if fs.Changed("end") {
		if c.EndDate, err = parseDate("end", f.end); err != nil {
			return err
		}
	}
	return nil
}

func parseDate(flag, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", flag, v)
	}
	return &t, nil
}

func printCampaign(w io.Writer, c *domain.Campaign) {
	printf(w, "%s (%s)\n", c.Name, c.ID)
	printf(w, "  status:   %s\n", c.Status)
	printf(w, "  budget:   $%.2f\n", c.Budget)
	if c.Goals != "" {
		printf(w, "  goals:    %s\n", c.Goals)
	}
	if c.Channels != "" {
		printf(w, "  channels: %s\n", c.Channels)
	}
	if c.Audience != "" {
		printf(w, "  audience: %s\n", c.Audience)
	}
	if c.StartDate != nil || c.EndDate != nil {
		printf(w, "  dates:    %s - %s\n", formatDate(c.StartDate), formatDate(c.EndDate))
	}
	if c.Content != "" {
		printf(w, "  content:  %s\n", c.Content)
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format(dateLayout)
}
