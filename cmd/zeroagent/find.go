package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/installer"
	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/presenter"
)

// skillSearcher is the marketplace search of the installer
type skillSearcher interface {
	Find(ctx context.Context, query string) (string, error)
}

var findCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Search the skill marketplace",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return runFind(ctx, a.installer, strings.Join(args, " "))
		})
	},
}

// runFind prints the marketplace listing for query. A failed search only
// prints a hint.
func runFind(ctx context.Context, searcher skillSearcher, query string) error {
	presenter.Section(fmt.Sprintf("Searching for skills: %q", query))
	listing, err := searcher.Find(ctx, query)
	if err != nil {
		logger.G(ctx).WithError(err).Debug("marketplace search failed")
		presenter.Warning("Search failed. Try different keywords or browse the marketplace directly.")
		presenter.Info(installer.MarketplaceURL)
		return nil
	}
	if listing == "" {
		presenter.Info("No skills found. Try different keywords.")
		return nil
	}
	fmt.Println(listing)
	presenter.Info("Install one with `zeroagent install <skill>`")
	return nil
}
