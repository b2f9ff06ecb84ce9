package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/minerva/pkg/configs"
	mq "github.com/yeisme/minerva/pkg/internal/storage/mq"
	"github.com/yeisme/minerva/pkg/queue"
)

var (
	mqCmd = &cobra.Command{
		Use:     "mq",
		Short:   "message queue commands",
		Aliases: []string{"events"},
	}

	mqListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list the compiled-in mq backends and the topics minerva uses",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			current := configs.GetConfig().MQ.GetMQType()

			fmt.Fprintln(out, "Registered mq types:")

			for _, t := range mq.GetRegisteredTypes() {
				line := "   - " + string(t)
				if t == current {
					line += " (active)"
				}

				fmt.Fprintln(out, line)
			}

			fmt.Fprintln(out, "Topics:")
			fmt.Fprintln(out, "   - "+queue.TopicImportCompleted+" (published)")
			fmt.Fprintln(out, "   - "+queue.TopicFilesetBuilt+" (consumed)")
		},
	}

	// 导入流水线丢失事件时，可把保存下来的负载重新发布一次.
	mqPublishFilesetCmd = &cobra.Command{
		Use:   "publish-fileset <payload.json|->",
		Short: "publish a fileset built event from a JSON payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readFilesetPayload(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			cfg := configs.GetConfig()

			client, err := mq.New(cmd.Context(), &cfg.MQ)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := queue.PublishFilesetBuilt(cmd.Context(), client, *payload, queue.WithProducer("minerva-cli/"+configs.AppVersion)); err != nil {
				return fmt.Errorf("publish: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published %s for fileset %s (%d images)\n",
				queue.TopicFilesetBuilt, payload.FilesetUUID, len(payload.Images))

			return nil
		},
	}
)

// readFilesetPayload 从文件或标准输入（-）读取并检查负载.
func readFilesetPayload(stdin io.Reader, path string) (*queue.FilesetBuiltPayload, error) {
	var (
		data []byte
		err  error
	)

	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}

	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	var p queue.FilesetBuiltPayload
	if err := sonic.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	if p.FilesetUUID == "" || p.ImportUUID == "" {
		return nil, fmt.Errorf("payload needs fileset_uuid and import_uuid")
	}

	return &p, nil
}

func registerMQCommands() {
	mqCmd.AddCommand(mqListCmd, mqPublishFilesetCmd)
	rootCmd.AddCommand(mqCmd)
}
