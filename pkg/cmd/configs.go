package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/minerva/pkg/configs"
)

const redacted = "******"

// 键名包含这些片段的配置值在输出时隐藏.
var secretKeyParts = []string{"password", "secret", "token", "dsn", "authorization"}

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "inspect the effective configuration",
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "print the path of the config file in use",
		Run: func(cmd *cobra.Command, args []string) {
			v := configs.GetViper()
			if v == nil || v.ConfigFileUsed() == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no config file used, running on defaults and MINERVA_* environment")
				return
			}

			fmt.Fprintln(cmd.OutOrStdout(), v.ConfigFileUsed())
		},
	}

	configShowCmd = &cobra.Command{
		Use:   "show [section]",
		Short: "print the effective configuration as JSON with secrets redacted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := configs.GetViper()
			if v == nil {
				return fmt.Errorf("config not initialized")
			}

			if debug {
				v.Debug()
			}

			var settings any = redact(v.AllSettings())

			if len(args) == 1 {
				section, ok := settings.(map[string]any)[strings.ToLower(args[0])]
				if !ok {
					return fmt.Errorf("unknown section %q, have %s", args[0], strings.Join(sections(v.AllSettings()), ", "))
				}

				settings = section
			}

			b, err := sonic.ConfigStd.MarshalIndent(settings, "", "  ")
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			return nil
		},
	}

	// 配置在 PersistentPreRunE 中已加载并校验，能走到这里即为有效.
	configValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "load and validate the configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configs.GetConfig()
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: db=%s kv=%s tile_kv=%s mq=%s\n",
				cfg.DB.GetDBType(), cfg.KV.GetKVType(), cfg.KV.GetTileKVType(), cfg.MQ.GetMQType())
		},
	}
)

// redact 返回隐藏了敏感值的副本.
func redact(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))

	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = redact(val)
		default:
			if isSecretKey(k) && val != "" && val != nil {
				out[k] = redacted
			} else {
				out[k] = v
			}
		}
	}

	return out
}

func isSecretKey(k string) bool {
	k = strings.ToLower(k)

	return slices.ContainsFunc(secretKeyParts, func(part string) bool {
		return strings.Contains(k, part)
	})
}

func sections(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

func registerConfigsCommands() {
	configCmd.AddCommand(configPathCmd, configShowCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
