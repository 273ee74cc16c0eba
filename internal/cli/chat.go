package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wwwzy/DocAgent/internal/tui"
	"github.com/wwwzy/DocAgent/internal/ui"
)

var (
	chatUI     string
	chatStream bool
	askStream  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式对话模式",
	Long: `进入对话模式，用自然语言查询已入库的文档。
在必要时，Agent 会调用检索、取文档、摘要等内置工具来回答问题。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		backend, err := buildAgent(ctx, store)
		if err != nil {
			return err
		}

		var uiImpl ui.ChatUI
		switch chatUI {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUI)
		}

		return uiImpl.Run(ctx, backend, ui.ChatOptions{Stream: chatStream})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "单次提问并输出回答",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		backend, err := buildAgent(ctx, store)
		if err != nil {
			return err
		}

		qctx, _ := ui.NewTraceContext(ctx)
		ans, err := ui.Respond(qctx, backend, strings.Join(args, " "), askStream, cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if ans.GaveUp {
			fmt.Fprintf(cmd.ErrOrStderr(), "note: stopped after %d tool rounds without a final answer\n", ans.Rounds)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "边生成边输出回答")

	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askStream, "stream", false, "边生成边输出回答")
}
