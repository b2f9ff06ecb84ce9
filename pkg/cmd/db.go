package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/storage/db"
)

var (
	dbCmd = &cobra.Command{
		Use:   "db",
		Short: "Database related commands",
	}

	dbListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list all registered database types",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered database types:")

			for _, dbType := range db.GetRegisteredDBTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(dbType))
			}
		},
	}

	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "create or update the registry tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.GetConfig()

			client, err := db.New(cmd.Context(), &cfg.DB)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Migrate(cmd.Context(), model.All()...); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d tables on %s\n", len(model.All()), cfg.DB.GetDBType())

			return nil
		},
	}

	dbStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "check connectivity and show row counts of the registry tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.GetConfig()

			client, err := db.New(cmd.Context(), &cfg.DB)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("ping %s: %w", cfg.DB.GetDBType(), err)
			}

			return writeTableStatus(cmd.Context(), cmd.OutOrStdout(), client.GetDB())
		},
	}
)

// writeTableStatus 逐个模型输出表名、是否存在与行数，缺表不视为错误.
func writeTableStatus(ctx context.Context, out io.Writer, gdb *gorm.DB) error {
	gdb = gdb.WithContext(ctx)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "TABLE\tEXISTS\tROWS")

	for _, m := range model.All() {
		stmt := &gorm.Statement{DB: gdb}
		if err := stmt.Parse(m); err != nil {
			return err
		}

		table := stmt.Schema.Table
		if !gdb.Migrator().HasTable(m) {
			fmt.Fprintf(w, "%s\tno\t-\n", table)

			continue
		}

		var n int64
		if err := gdb.Model(m).Count(&n).Error; err != nil {
			return fmt.Errorf("count %s: %w", table, err)
		}

		fmt.Fprintf(w, "%s\tyes\t%d\n", table, n)
	}

	return w.Flush()
}

// registerDBCommands 注册数据库相关命令.
func registerDBCommands() {
	rootCmd.AddCommand(dbCmd)

	dbCmd.AddCommand(dbListCmd, dbMigrateCmd, dbStatusCmd)
}
