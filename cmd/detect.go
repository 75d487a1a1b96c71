// cmd/detect.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/internal/browser/dom"
	"github.com/xkilldash9x/isde-autofill/internal/config"
	"github.com/xkilldash9x/isde-autofill/internal/detector"
	"github.com/xkilldash9x/isde-autofill/internal/portal"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
)

// detectReport is the output of the detect command.
type detectReport struct {
	Source     string   `json:"source"`
	URL        string   `json:"url,omitempty"`
	Title      string   `json:"title,omitempty"`
	Step       steps.ID `json:"step"`
	Label      string   `json:"label"`
	Candidates []string `json:"candidates"`
	Contract   string   `json:"contract"`
	// Targets maps each contract target present on the page to the XPath of
	// every match.
	Targets map[string][]string `json:"targets"`
}

func newDetectCmd(a *app) *cobra.Command {
	var file, remoteURL, save string
	var asJSON, showTargets bool
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Prints the wizard stage detected on a page",
		Long: `Classifies the live tab, or a saved HTML file with --file. All matching
rules are listed in priority order, which helps when the portal changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				snap   *dom.Snapshot
				source string
				err    error
			)
			if file != "" {
				source = file
				snap, err = snapshotFromFile(file)
			} else {
				if cmd.Flags().Changed("remote-url") {
					a.cfg.SetBrowserRemoteURL(remoteURL)
				}
				source = "live"
				snap, err = snapshotFromBrowser(cmd.Context(), a.cfg, a.logger)
			}
			if err != nil {
				return err
			}
			if save != "" {
				if err := saveSnapshot(save, snap); err != nil {
					return err
				}
			}
			report := detectPage(a.logger, source, snap)
			return writeDetectReport(cmd.OutOrStdout(), report, asJSON, showTargets)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "saved HTML page to classify instead of the live tab")
	cmd.Flags().StringVar(&remoteURL, "remote-url", "", "DevTools websocket of a running browser")
	cmd.Flags().StringVar(&save, "save", "", "write the captured page to this file, e.g. as a detector fixture")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&showTargets, "targets", false, "list the selector contract targets found on the page")
	return cmd
}

func snapshotFromFile(path string) (*dom.Snapshot, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()
	return dom.Parse(f, "file://"+expanded)
}

// saveSnapshot writes the snapshot markup, including the visibility markers of
// a live capture.
func saveSnapshot(path string, snap *dom.Snapshot) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(expanded, []byte(snap.HTML()), 0o600); err != nil {
		return fmt.Errorf("failed to save page: %w", err)
	}
	return nil
}

func snapshotFromBrowser(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*dom.Snapshot, error) {
	tab, closeTab, err := openTab(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		closeTab(shutdownCtx)
	}()
	return tab.Snapshot(ctx)
}

func detectPage(logger *zap.Logger, source string, snap *dom.Snapshot) detectReport {
	det := detector.New(logger)
	id := det.Detect(snap)
	report := detectReport{
		Source:     source,
		URL:        snap.URL,
		Title:      snap.Title,
		Step:       id,
		Label:      id.Label(),
		Candidates: []string{},
		Contract:   portal.ContractVersion,
		Targets:    map[string][]string{},
	}
	for _, c := range det.Candidates(snap) {
		report.Candidates = append(report.Candidates, c.String())
	}
	for _, t := range portal.Contract() {
		if paths := snap.Describe(t); len(paths) > 0 {
			report.Targets[t.Name] = paths
		}
	}
	return report
}

func writeDetectReport(w io.Writer, report detectReport, asJSON, showTargets bool) error {
	if asJSON {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err := fmt.Fprintf(w, "%s (%s)\n", report.Step, report.Label)
	if err != nil {
		return err
	}
	if len(report.Candidates) > 1 {
		if _, err := fmt.Fprintf(w, "matching rules: %v\n", report.Candidates); err != nil {
			return err
		}
	}
	if !showTargets {
		return nil
	}
	names := make([]string, 0, len(report.Targets))
	for name := range report.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "  %-24s %s\n", name, strings.Join(report.Targets[name], " | ")); err != nil {
			return err
		}
	}
	return nil
}
