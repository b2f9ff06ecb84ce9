// Package cmd 提供 minerva 命令行：启动服务、查看配置与存储后端.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/minerva/pkg/app"
	"github.com/yeisme/minerva/pkg/configs"
)

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:           "minerva",
		Short:         "Minerva microscopy image registry and tile server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// serve 在 app.NewApp 中自行加载配置并启用热重载
			if cmd == serveCmd {
				return nil
			}

			return configs.InitConfig(configPath)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.NewApp(ctx, configPath)
			if err != nil {
				return err
			}

			return a.Run(ctx)
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "minerva", configs.AppVersion)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "config file or directory containing config.*")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "print viper debug output")

	rootCmd.AddCommand(serveCmd, versionCmd)

	registerConfigsCommands()
	registerDBCommands()
	registerKVCommands()
	registerMQCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}
