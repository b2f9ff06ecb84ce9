package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	appcache "github.com/yeisme/minerva/pkg/cache"
	"github.com/yeisme/minerva/pkg/configs"
	kv "github.com/yeisme/minerva/pkg/internal/storage/kv"
	"github.com/yeisme/minerva/pkg/tile"
)

var (
	purgeTiles  bool
	purgeImages []string
	purgePrefix string

	kvCmd = &cobra.Command{
		Use:     "kv",
		Short:   "cache store commands",
		Aliases: []string{"cache"},
	}

	kvListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list the compiled-in kv backends",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configs.GetConfig()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Registered kv types:")

			for _, t := range kv.GetRegisteredKVTypes() {
				var roles []string
				if t == cfg.KV.GetKVType() {
					roles = append(roles, "cache")
				}

				if t == cfg.KV.GetTileKVType() {
					roles = append(roles, "tiles")
				}

				line := "   - " + string(t)
				if len(roles) > 0 {
					line += " (" + strings.Join(roles, ", ") + ")"
				}

				fmt.Fprintln(out, line)
			}
		},
	}

	kvPurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "delete cached entries from the cache or tile store",
		Example: `  minerva kv purge --tiles --image 0b6c...   # rendered tiles of one image
  minerva kv purge --prefix rc:                 # every cached API response`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(purgeImages) == 0 && purgePrefix == "" {
				return fmt.Errorf("give --image or --prefix")
			}

			cfg := configs.GetConfig()

			kvType := cfg.KV.GetKVType()
			if purgeTiles {
				kvType = cfg.KV.GetTileKVType()
			}

			client, err := kv.NewKVClient(cmd.Context(), kvType, &cfg.KV)
			if err != nil {
				return err
			}
			defer client.Close()

			c := appcache.NewCache(client)

			prefixes := make([]string, 0, 2*len(purgeImages)+1)
			for _, id := range purgeImages {
				prefixes = append(prefixes, tile.RenderedPrefixes(id)...)
			}

			if purgePrefix != "" {
				prefixes = append(prefixes, purgePrefix)
			}

			total := 0

			for _, p := range prefixes {
				n, err := c.Purge(cmd.Context(), p)
				total += n

				if err != nil {
					return fmt.Errorf("purge %s: %w", p, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "purged %d keys from %s\n", total, kvType)

			return nil
		},
	}
)

func registerKVCommands() {
	kvPurgeCmd.Flags().BoolVar(&purgeTiles, "tiles", false, "operate on the tile store instead of the general cache")
	kvPurgeCmd.Flags().StringSliceVar(&purgeImages, "image", nil, "image uuid whose rendered tiles are purged, repeatable")
	kvPurgeCmd.Flags().StringVar(&purgePrefix, "prefix", "", "raw key prefix to purge")

	kvCmd.AddCommand(kvListCmd, kvPurgeCmd)
	rootCmd.AddCommand(kvCmd)
}
