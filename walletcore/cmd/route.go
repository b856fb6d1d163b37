package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/config"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/router"
)

var (
	routeChainConfig string
	routeHubChain    string
	routeJSON        bool
)

var routeCmd = &cobra.Command{
	Use:   "route <from-asset> <to-asset>",
	Short: "Find the swap path between two assets",
	Long: `Find the swap path between two assets from the chain registry config alone,
without connecting any chain or quote API.

Examples:
  walletcore route polkadot-NATIVE-DOT hydradx_main-NATIVE-HDX --chain-config ./registry.toml
  walletcore route ethereum-NATIVE-ETH polkadot-NATIVE-DOT --chain-config https://config.example.com/registry.toml --json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return findRoute(cmd.Context(), args[0], args[1])
	},
}

func init() {
	routeCmd.Flags().StringVar(&routeChainConfig, "chain-config", "./registry.toml", "chain registry config, a file or a remote source")
	routeCmd.Flags().StringVar(&routeHubChain, "hub", "", "chain preferred as the first hop of bridge routes")
	routeCmd.Flags().BoolVarP(&routeJSON, "json", "j", false, "Output in JSON format")
	rootCmd.AddCommand(routeCmd)
}

func findRoute(ctx context.Context, from, to string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	regCfg, err := config.NewChainConfigLoader().Load(ctx, routeChainConfig)
	if err != nil {
		return err
	}
	reg, err := regCfg.BuildRegistry()
	if err != nil {
		return err
	}

	index := router.NewRouteIndex()
	if err := index.BuildIndex(reg.Assets(), reg.GetAssetRefMap(), regCfg.ProviderGroups); err != nil {
		return fmt.Errorf("failed to build route index: %w", err)
	}
	result, err := router.NewPathfinder(index, routeHubChain).FindPath(from, to)
	if err != nil {
		return err
	}

	if routeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printRoute(from, to, result)
	return nil
}

func printRoute(from, to string, result *router.PathResult) {
	bold := color.New(color.Bold)
	if result.Kind == router.RouteNotFound {
		color.Yellow("\nNo route from %s to %s\n\n", from, to)
		return
	}

	fmt.Println()
	bold.Printf("Route %s -> %s\n", from, to)
	fmt.Printf("Kind: %s", color.CyanString(string(result.Kind)))
	if result.Provider != "" {
		fmt.Printf("  Provider: %s", color.CyanString(result.Provider))
	}
	fmt.Println()
	if len(result.Path) == 0 {
		fmt.Printf("  %s %s -> %s\n", color.GreenString("BRIDGE"), from, to)
	}
	for i, step := range result.Path {
		fmt.Printf("  %d. %-7s %s -> %s\n",
			i+1,
			color.GreenString(string(step.Action)),
			step.Pair.From,
			step.Pair.To,
		)
	}
	fmt.Println()
}
