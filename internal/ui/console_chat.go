package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wwwzy/DocAgent/internal/log"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error {
	in := u.In
	if in == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}

	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "进入 DocAgent 对话模式。输入 exit/quit 退出。")
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "已退出。")
			return nil
		default:
		}

		fmt.Fprint(out, "你: ")
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "已退出。")
				return nil
			}
			return fmt.Errorf("读取输入失败: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Fprintln(out, "已退出。")
			return nil
		}

		qctx, traceID := NewTraceContext(ctx)
		log.Debugf("query trace_id=%s", traceID)

		fmt.Fprint(out, "助手: ")
		ans, err := Respond(qctx, backend, line, opts.Stream, out)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "已退出。")
				return nil
			}
			fmt.Fprintf(out, "\n发生错误：%v\n\n", err)
			continue
		}
		if strings.TrimSpace(ans.Content) == "" {
			fmt.Fprint(out, "(无文本输出)")
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out)
	}
}
