// Copyright (C) 2025 Morizady
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Morizady/javatrace/services/callgraph"
	"github.com/Morizady/javatrace/services/callgraph/tree"
)

// browserChromeHeight is the number of terminal rows taken by the header
// and footer around the scrolling tree area.
const browserChromeHeight = 4

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	statsStyle    = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
)

// browseTree opens the full-screen call-tree browser and blocks until the
// user quits it.
func browseTree(result *callgraph.AnalyzeResult) error {
	p := tea.NewProgram(newBrowserModel(result), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tree browser: %w", err)
	}
	return nil
}

// browserKeyMap defines the browser's key bindings. It implements
// help.KeyMap so the footer renders itself.
type browserKeyMap struct {
	Up          key.Binding
	Down        key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Top         key.Binding
	Bottom      key.Binding
	Toggle      key.Binding
	ExpandAll   key.Binding
	CollapseAll key.Binding
	Quit        key.Binding
}

func defaultBrowserKeys() browserKeyMap {
	return browserKeyMap{
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		PageUp:      key.NewBinding(key.WithKeys("pgup", "b"), key.WithHelp("pgup", "page up")),
		PageDown:    key.NewBinding(key.WithKeys("pgdown", "f"), key.WithHelp("pgdn", "page down")),
		Top:         key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "top")),
		Bottom:      key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),
		Toggle:      key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "expand/collapse")),
		ExpandAll:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "expand all")),
		CollapseAll: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "collapse all")),
		Quit:        key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k browserKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.ExpandAll, k.CollapseAll, k.Quit}
}

func (k browserKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Top, k.Bottom, k.Toggle},
		{k.ExpandAll, k.CollapseAll, k.Quit},
	}
}

// browserRow is one visible line of the flattened tree.
type browserRow struct {
	node        *tree.Node
	depth       int
	hasChildren bool
	expanded    bool
}

// browserModel is the Elm-style state of the tree browser: the flattened
// visible rows, the cursor, and the collapse set keyed by node identity.
type browserModel struct {
	result    *callgraph.AnalyzeResult
	collapsed map[*tree.Node]bool
	rows      []browserRow
	cursor    int

	vp    viewport.Model
	keys  browserKeyMap
	help  help.Model
	ready bool
}

func newBrowserModel(result *callgraph.AnalyzeResult) browserModel {
	collapsed := make(map[*tree.Node]bool)
	return browserModel{
		result:    result,
		collapsed: collapsed,
		rows:      flattenTree(result.Root, collapsed),
		keys:      defaultBrowserKeys(),
		help:      help.New(),
	}
}

// flattenTree lists the rows visible under the current collapse set, in
// pre-order. Children of a collapsed node are skipped whole.
func flattenTree(root *tree.Node, collapsed map[*tree.Node]bool) []browserRow {
	var rows []browserRow
	var walk func(n *tree.Node, depth int)
	walk = func(n *tree.Node, depth int) {
		expanded := len(n.Children) > 0 && !collapsed[n]
		rows = append(rows, browserRow{
			node:        n,
			depth:       depth,
			hasChildren: len(n.Children) > 0,
			expanded:    expanded,
		})
		if !expanded {
			return
		}
		for _, child := range n.Children {
			walk(child, depth+1)
		}
	}
	if root != nil {
		walk(root, 0)
	}
	return rows
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(1, msg.Height-browserChromeHeight)
		if !m.ready {
			m.vp = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = height
		}
		m.help.Width = msg.Width
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			m.moveCursor(-1)
		case key.Matches(msg, m.keys.Down):
			m.moveCursor(1)
		case key.Matches(msg, m.keys.PageUp):
			m.moveCursor(-m.vp.Height)
		case key.Matches(msg, m.keys.PageDown):
			m.moveCursor(m.vp.Height)
		case key.Matches(msg, m.keys.Top):
			m.cursor = 0
		case key.Matches(msg, m.keys.Bottom):
			m.cursor = len(m.rows) - 1
		case key.Matches(msg, m.keys.Toggle):
			m.toggleCursorRow()
		case key.Matches(msg, m.keys.ExpandAll):
			clear(m.collapsed)
			m.rows = flattenTree(m.result.Root, m.collapsed)
		case key.Matches(msg, m.keys.CollapseAll):
			m.collapseAll()
		}
		m.clampCursor()
		m.refresh()
		return m, nil
	}
	return m, nil
}

// moveCursor shifts the cursor by delta rows, clamped to the row list.
func (m *browserModel) moveCursor(delta int) {
	m.cursor += delta
}

func (m *browserModel) clampCursor() {
	if len(m.rows) == 0 {
		m.cursor = 0
		return
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
}

// toggleCursorRow flips the collapse state of the row under the cursor and
// re-flattens. Leaves stay as they are.
func (m *browserModel) toggleCursorRow() {
	if m.cursor >= len(m.rows) {
		return
	}
	row := m.rows[m.cursor]
	if !row.hasChildren {
		return
	}
	m.collapsed[row.node] = !m.collapsed[row.node]
	m.rows = flattenTree(m.result.Root, m.collapsed)
}

// collapseAll collapses every expandable node, leaving only the root row.
func (m *browserModel) collapseAll() {
	m.result.Root.Walk(func(n *tree.Node) {
		if len(n.Children) > 0 {
			m.collapsed[n] = true
		}
	})
	m.rows = flattenTree(m.result.Root, m.collapsed)
	m.cursor = 0
}

// refresh re-renders the viewport content and keeps the cursor in view.
func (m *browserModel) refresh() {
	if !m.ready {
		return
	}
	m.vp.SetContent(m.renderRows())
	if m.cursor < m.vp.YOffset {
		m.vp.SetYOffset(m.cursor)
	}
	if m.cursor >= m.vp.YOffset+m.vp.Height {
		m.vp.SetYOffset(m.cursor - m.vp.Height + 1)
	}
}

// renderRows renders the flattened rows. The cursor row renders unstyled
// under a reverse-video bar so nested escape sequences never garble it.
func (m *browserModel) renderRows() string {
	var b strings.Builder
	for i, row := range m.rows {
		marker := "· "
		switch {
		case row.hasChildren && row.expanded:
			marker = "▾ "
		case row.hasChildren:
			marker = "▸ "
		}
		indent := strings.Repeat("  ", row.depth)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render(indent + marker + nodeText(row.node, false)))
		} else {
			b.WriteString(indent + marker + nodeText(row.node, true))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (m browserModel) View() string {
	if !m.ready {
		return "loading..."
	}
	s := m.result.Stats
	header := headerStyle.Render(m.result.Root.Label()) + "\n" +
		statsStyle.Render(fmt.Sprintf("%d nodes · depth %d · %d classes · %d unresolved",
			s.TotalNodes, s.MaxDepth, s.DistinctClasses, s.Unresolved)) + "\n"
	return header + "\n" + m.vp.View() + "\n" + m.help.View(m.keys)
}
