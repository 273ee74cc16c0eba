// Package tui 提供基于 bubbletea 的全屏对话界面。
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/DocAgent/internal/agent"
	"github.com/wwwzy/DocAgent/internal/log"
	"github.com/wwwzy/DocAgent/internal/ui"
)

type ChatUI struct{}

func (u *ChatUI) Run(ctx context.Context, backend ui.ChatBackend, opts ui.ChatOptions) error {
	// 全屏模式下日志会打乱界面。
	log.SetOutput(io.Discard)
	defer log.SetOutput(os.Stderr)

	m := newChatModel(ctx, backend, opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// runResultMsg 为非流式模式下一次提问的完整结果。
type runResultMsg struct {
	answer agent.Answer
	err    error
}

type streamOpenedMsg struct {
	reader *schema.StreamReader[string]
	err    error
}

type streamChunkMsg struct {
	reader *schema.StreamReader[string]
	text   string
}

type streamEndMsg struct {
	err error
}

type revealTickMsg struct{}
type cancelMsg struct{}

const revealStep = 32

type chatModel struct {
	ctx     context.Context
	backend ui.ChatBackend
	opts    ui.ChatOptions

	messages []*schema.Message

	width  int
	height int

	viewport   viewport.Model
	input      textinput.Model
	spinner    spinner.Model
	thinking   bool
	followTail bool

	// 非流式回答的逐段展示
	revealing  bool
	revealFull []rune
	revealPos  int

	renderer *glamour.TermRenderer
}

func newChatModel(ctx context.Context, backend ui.ChatBackend, opts ui.ChatOptions) chatModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot

	ti := textinput.New()
	ti.Placeholder = "输入问题，回车发送"
	ti.Prompt = ""
	ti.Focus()

	vp := viewport.New(0, 0)
	vp.SetContent("")

	return chatModel{
		ctx:        ctx,
		backend:    backend,
		opts:       opts,
		viewport:   vp,
		input:      ti,
		spinner:    s,
		followTail: true,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitCancel(m.ctx))
}

func waitCancel(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return cancelMsg{}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case cancelMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		inputHeight := 3
		footerHeight := 1
		chatHeight := max(1, m.height-inputHeight-footerHeight)

		m.viewport.Width = m.width
		m.viewport.Height = chatHeight

		m.input.Width = max(10, m.width-4)

		m.resetMarkdownRenderer()
		m.updateViewportContent(m.renderChat())
		return m, nil

	case spinner.TickMsg:
		if m.thinking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case runResultMsg:
		m.thinking = false
		if msg.err != nil {
			m.setReply(fmt.Sprintf("发生错误：%v", msg.err))
			m.updateViewportContent(m.renderChat())
			return m, nil
		}
		m.revealing = true
		m.revealFull = []rune(msg.answer.Content)
		m.revealPos = 0
		return m, revealTick()

	case revealTickMsg:
		if !m.revealing {
			return m, nil
		}
		m.revealPos = min(len(m.revealFull), m.revealPos+revealStep)
		m.setReply(string(m.revealFull[:m.revealPos]))
		m.updateViewportContent(m.renderChat())
		if m.revealPos >= len(m.revealFull) {
			m.revealing = false
			return m, nil
		}
		return m, revealTick()

	case streamOpenedMsg:
		if msg.err != nil {
			m.thinking = false
			m.setReply(fmt.Sprintf("发生错误：%v", msg.err))
			m.updateViewportContent(m.renderChat())
			return m, nil
		}
		return m, recvChunk(msg.reader)

	case streamChunkMsg:
		m.appendReply(msg.text)
		m.updateViewportContent(m.renderChat())
		return m, recvChunk(msg.reader)

	case streamEndMsg:
		m.thinking = false
		if msg.err != nil {
			m.appendReply(fmt.Sprintf("\n\n发生错误：%v", msg.err))
		}
		m.updateViewportContent(m.renderChat())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "pgup", "pageup":
			m.viewport.PageUp()
			m.followTail = false
			return m, nil
		case "pgdown", "pagedown":
			m.viewport.PageDown()
			if m.viewport.AtBottom() {
				m.followTail = true
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)

		if msg.String() == "enter" {
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy() {
				return m, cmd
			}
			switch strings.ToLower(text) {
			case "exit", "quit":
				return m, tea.Quit
			}

			m.messages = append(m.messages, schema.UserMessage(text), schema.AssistantMessage("", nil))
			m.followTail = true
			m.updateViewportContent(m.renderChat())

			m.input.SetValue("")
			m.thinking = true
			return m, tea.Batch(cmd, m.spinner.Tick, ask(m.ctx, m.backend, text, m.opts.Stream))
		}

		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) busy() bool {
	return m.thinking || m.revealing
}

// setReply 替换最后一条助手消息的内容。
func (m *chatModel) setReply(content string) {
	if n := len(m.messages); n > 0 && m.messages[n-1].Role == schema.Assistant {
		m.messages[n-1].Content = content
		return
	}
	m.messages = append(m.messages, schema.AssistantMessage(content, nil))
}

func (m *chatModel) appendReply(chunk string) {
	if n := len(m.messages); n > 0 && m.messages[n-1].Role == schema.Assistant {
		m.messages[n-1].Content += chunk
		return
	}
	m.messages = append(m.messages, schema.AssistantMessage(chunk, nil))
}

func ask(ctx context.Context, backend ui.ChatBackend, query string, stream bool) tea.Cmd {
	return func() tea.Msg {
		qctx, _ := ui.NewTraceContext(ctx)
		if !stream {
			ans, err := backend.Run(qctx, query)
			return runResultMsg{answer: ans, err: err}
		}
		sr, err := backend.Stream(qctx, query)
		return streamOpenedMsg{reader: sr, err: err}
	}
}

func recvChunk(sr *schema.StreamReader[string]) tea.Cmd {
	return func() tea.Msg {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			sr.Close()
			return streamEndMsg{}
		}
		if err != nil {
			sr.Close()
			return streamEndMsg{err: err}
		}
		return streamChunkMsg{reader: sr, text: chunk}
	}
}

func revealTick() tea.Cmd {
	return tea.Tick(45*time.Millisecond, func(time.Time) tea.Msg { return revealTickMsg{} })
}

func (m chatModel) View() string {
	header := lipgloss.NewStyle().Bold(true).Render("DocAgent Chat")
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), m.inputView(), m.footerView())
}

func (m chatModel) footerView() string {
	left := "Enter 发送 | PgUp/PgDn 滚动 | Ctrl+C 退出"
	right := ""
	if m.thinking {
		right = m.spinner.View() + " Thinking..."
	}
	style := lipgloss.NewStyle().Width(m.width).Padding(0, 1)
	return style.Render(lipgloss.JoinHorizontal(lipgloss.Left, left, lipgloss.NewStyle().Width(max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)-2)).Render(""), right))
}

func (m chatModel) inputView() string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(max(1, m.input.Width+2)).
		Render(m.input.View())
}

func (m *chatModel) updateViewportContent(content string) {
	oldYOffset := m.viewport.YOffset
	m.viewport.SetContent(content)
	if m.followTail {
		m.viewport.GotoBottom()
		return
	}
	m.viewport.SetYOffset(oldYOffset)
}

func (m *chatModel) resetMarkdownRenderer() {
	if m.width <= 0 {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(m.bubbleMaxContentWidth()),
	)
	if err == nil {
		m.renderer = r
	}
}

func (m chatModel) renderChat() string {
	if m.width <= 0 {
		m.width = 80
	}

	var b strings.Builder
	for i, msg := range m.messages {
		if msg == nil || msg.Role == schema.System {
			continue
		}
		content := strings.TrimRight(msg.Content, "\n")
		if msg.Role == schema.Assistant && strings.TrimSpace(content) == "" {
			if m.thinking && i == len(m.messages)-1 {
				content = "…"
			} else {
				continue
			}
		}

		b.WriteString(m.renderOneMessage(msg.Role, content))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m chatModel) bubbleMaxContentWidth() int {
	if m.width <= 0 {
		return 72
	}
	return max(20, m.width-8)
}

func (m chatModel) desiredContentWidth(s string) int {
	w := max(10, maxLineWidth(s))
	return min(m.bubbleMaxContentWidth(), w)
}

func (m chatModel) wrapToWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

func maxLineWidth(s string) int {
	s = strings.TrimRight(s, "\n")
	if strings.TrimSpace(s) == "" {
		return 0
	}
	maxW := 0
	for _, line := range strings.Split(s, "\n") {
		maxW = max(maxW, lipgloss.Width(strings.TrimRight(line, " ")))
	}
	return maxW
}

func (m chatModel) renderOneMessage(role schema.RoleType, content string) string {
	switch role {
	case schema.User:
		return m.renderUser(content)
	default:
		return m.renderAssistant(content)
	}
}

func (m chatModel) renderAssistant(content string) string {
	md := content
	if m.renderer != nil && strings.TrimSpace(md) != "" {
		if rendered, err := m.renderer.Render(md); err == nil {
			md = strings.TrimRight(rendered, "\n")
		}
	}
	md = m.wrapToWidth(md, m.desiredContentWidth(md))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1).
		MaxWidth(max(20, m.width-4)).
		Render(md)
}

func (m chatModel) renderUser(content string) string {
	content = m.wrapToWidth(content, m.desiredContentWidth(content))
	bubble := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(0, 1).
		MaxWidth(max(20, m.width-4)).
		Render(content)
	return lipgloss.NewStyle().Width(m.width).Align(lipgloss.Right).Render(bubble)
}
