package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/arunshreyas/Marketa/internal/tui"
)

func (a *app) runTUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if err := a.services(ctx); err != nil {
		return err
	}
	model := tui.New(ctx, tui.Deps{
		Client:    a.client,
		Sessions:  a.sessions,
		Store:     a.store,
		Validator: a.validator,
		Feed:      a.feedOptions(),
		Logger:    a.logger,
	})
	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
