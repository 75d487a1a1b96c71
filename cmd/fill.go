// cmd/fill.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/config"
	"github.com/xkilldash9x/isde-autofill/internal/store"
)

func newFillCmd(a *app) *cobra.Command {
	var applicant, remoteURL string
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fills the visible fields of the current page once",
		Long: `Manual assist: fills whatever known fields the current page shows, without
clicking through the wizard or touching a running session. Best used with
--remote-url against the browser the applicant is already working in.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("remote-url") {
				a.cfg.SetBrowserRemoteURL(remoteURL)
			}
			cfg, err := schemas.LoadAutomationConfig(applicant)
			if err != nil {
				return err
			}
			return runFill(cmd.Context(), a.cfg, a.logger, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&applicant, "applicant", "a", "", "applicant file (YAML or JSON)")
	cmd.Flags().StringVar(&remoteURL, "remote-url", "", "DevTools websocket of a running browser")
	_ = cmd.MarkFlagRequired("applicant")
	return cmd
}

func runFill(ctx context.Context, cfg config.Interface, logger *zap.Logger, applicant *schemas.AutomationConfig, out io.Writer) error {
	tab, closeTab, err := openTab(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		closeTab(shutdownCtx)
	}()

	// Manual fills never read or write session state.
	c := newComponents(cfg, logger, tab, store.NewMemory())
	defer c.registry.Close()

	fillCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	n, err := c.executor.FillCurrentPage(fillCtx, applicant)
	if err != nil {
		return fmt.Errorf("manual fill failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "Filled %d fields on this page\n", n)
	return err
}
