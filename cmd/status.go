// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 brickd contributors

package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Christoph-Caina/brickd/pkg/observability"
)

var traceURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Attach to a running daemon's trace endpoint and show live traffic",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&traceURL, "trace-url", "ws://127.0.0.1:4223/trace", "trace websocket URL of a running brickd serve --trace")
	rootCmd.AddCommand(statusCmd)
}

type traceItem observability.Event

func (i traceItem) Title() string {
	return fmt.Sprintf("[%s] %-5s uid=%-10d fn=%-3d len=%d", i.Stack, i.Direction, i.UID, i.FunctionID, i.PayloadLength)
}
func (i traceItem) Description() string {
	return time.Unix(0, i.TimestampUnixNano).Format("15:04:05.000000")
}
func (i traceItem) FilterValue() string { return i.Stack }

type statusModel struct {
	events chan observability.Event
	list   list.Model
	err    error
	conn   *websocket.Conn
}

type eventMsg observability.Event
type errMsg error

func newStatusModel(conn *websocket.Conn) statusModel {
	delegate := list.NewDefaultDelegate()
	l := list.New(nil, delegate, 80, 20)
	l.Title = "brickd trace"
	return statusModel{events: make(chan observability.Event, 256), list: l, conn: conn}
}

func (m statusModel) Init() tea.Cmd {
	go m.readLoop()
	return m.waitForEvent
}

func (m statusModel) readLoop() {
	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev observability.Event
		if err := cbor.Unmarshal(data, &ev); err != nil {
			continue
		}
		m.events <- ev
	}
}

func (m statusModel) waitForEvent() tea.Msg {
	ev, ok := <-m.events
	if !ok {
		return errMsg(fmt.Errorf("trace connection closed"))
	}
	return eventMsg(ev)
}

const maxStatusEvents = 500

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case eventMsg:
		items := m.list.Items()
		items = append(items, traceItem(msg))
		if len(items) > maxStatusEvents {
			items = items[len(items)-maxStatusEvents:]
		}
		m.list.SetItems(items)
		return m, m.waitForEvent
	case errMsg:
		m.err = msg
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m statusModel) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render(m.err.Error()) + "\n"
	}
	return m.list.View()
}

func runStatus(cmd *cobra.Command, args []string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(traceURL, nil)
	if err != nil {
		return fmt.Errorf("dial trace endpoint %s: %w", traceURL, err)
	}
	defer conn.Close()

	p := tea.NewProgram(newStatusModel(conn))
	_, err = p.Run()
	return err
}
