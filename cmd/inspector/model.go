package main

// model is the inspector's bubbletea root model, in the style of a debug
// reader: a single struct wiring one or more table.Model/viewport.Model
// panels behind a CommonKeyMap-style key table. A refreshMsg-driven refresh
// loop stands in for a one-shot "load then browse" reader, since this tool
// watches a live engine rather than a closed file.

import (
	"fmt"
	"strings"
	"time"

	"storemy/pkg/buffer/pool"
	"storemy/pkg/concurrency/lock"
	"storemy/pkg/primitives"
	"storemy/pkg/wal"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type panel int

const (
	panelPool panel = iota
	panelLocks
	panelWAL
	panelCount
)

func (p panel) title() string {
	switch p {
	case panelPool:
		return "Buffer Pool"
	case panelLocks:
		return "Lock Table"
	case panelWAL:
		return "Write-Ahead Log"
	default:
		return "?"
	}
}

type refreshMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg { return refreshMsg{} })
}

// source is the seam into the running engine the model polls. A real
// process wires its own *pool.Manager/*lock.Manager/disk.Manager through
// here; nothing about the model depends on how those were constructed.
type source struct {
	pool        *pool.Manager
	lockMgr     *lock.Manager
	wal         *wal.Manager
	logBufSize  int
	readLog     func(bufSize int) ([]*wal.Record, error)
}

type model struct {
	src    source
	active panel
	tables [panelCount]table.Model

	width, height int
	err           error
	dbName        string
}

func newModel(src source, dbName string) model {
	m := model{
		src:    src,
		active: panelPool,
		dbName: dbName,
	}
	m.tables[panelPool] = newPanelTable([]table.Column{
		{Title: "Frame", Width: 6},
		{Title: "Page", Width: 8},
		{Title: "Pins", Width: 6},
		{Title: "Dirty", Width: 7},
		{Title: "LSN", Width: 8},
	})
	m.tables[panelLocks] = newPanelTable([]table.Column{
		{Title: "RID", Width: 14},
		{Title: "Mode", Width: 11},
		{Title: "Holders", Width: 20},
		{Title: "Waiters", Width: 8},
	})
	m.tables[panelWAL] = newPanelTable([]table.Column{
		{Title: "LSN", Width: 6},
		{Title: "Type", Width: 16},
		{Title: "TxnID", Width: 8},
		{Title: "PrevLSN", Width: 8},
	})
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), m.refreshCmd())
}

type dataMsg struct {
	pool  []pool.FrameSnapshot
	locks []lock.GrantSnapshot
	log   []*wal.Record
	err   error
}

func (m model) refreshCmd() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		msg := dataMsg{}
		if src.pool != nil {
			msg.pool = src.pool.Snapshot()
		}
		if src.lockMgr != nil {
			msg.locks = src.lockMgr.Snapshot()
		}
		if src.readLog != nil {
			recs, err := src.readLog(src.logBufSize)
			if err != nil {
				msg.err = err
			} else {
				msg.log = recs
			}
		}
		return msg
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case refreshMsg:
		return m, tea.Batch(tick(), m.refreshCmd())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.tables[panelPool].SetRows(poolRows(msg.pool))
		m.tables[panelLocks].SetRows(lockRows(msg.locks))
		m.tables[panelWAL].SetRows(walRows(msg.log))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Next):
			m.active = (m.active + 1) % panelCount
			return m, nil
		case key.Matches(msg, keys.Prev):
			m.active = (m.active - 1 + panelCount) % panelCount
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.tables[m.active], cmd = m.tables[m.active].Update(msg)
	return m, cmd
}

func poolRows(snap []pool.FrameSnapshot) []table.Row {
	rows := make([]table.Row, 0, len(snap))
	for _, f := range snap {
		page := "-"
		if f.PageID != primitives.InvalidPageID {
			page = fmt.Sprintf("%d", f.PageID)
		}
		dirty := cleanStyle.Render("clean")
		if f.Dirty {
			dirty = dirtyStyle.Render("DIRTY")
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", f.FrameID),
			page,
			fmt.Sprintf("%d", f.PinCount),
			dirty,
			fmt.Sprintf("%d", f.LSN),
		})
	}
	return rows
}

func lockRows(snap []lock.GrantSnapshot) []table.Row {
	rows := make([]table.Row, 0, len(snap))
	for _, g := range snap {
		mode := sharedStyle.Render(g.Mode.String())
		if g.Mode == lock.Exclusive {
			mode = excStyle.Render(g.Mode.String())
		}
		holders := make([]string, 0, len(g.Holders))
		for _, h := range g.Holders {
			holders = append(holders, fmt.Sprintf("T%d", h))
		}
		waiters := "no"
		if g.Waiters {
			waiters = "yes"
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("(%d,%d)", g.RID.PageID, g.RID.Slot),
			mode,
			strings.Join(holders, ", "),
			waiters,
		})
	}
	return rows
}

func walRows(recs []*wal.Record) []table.Row {
	start := 0
	if len(recs) > 200 {
		start = len(recs) - 200
	}
	rows := make([]table.Row, 0, len(recs)-start)
	for _, r := range recs[start:] {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", r.LSN),
			r.Type.String(),
			fmt.Sprintf("%d", r.TxnID),
			fmt.Sprintf("%d", r.PrevLSN),
		})
	}
	return rows
}

func (m model) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("storage engine inspector — %s", m.dbName)) + "\n")

	var tabs []string
	for p := panel(0); p < panelCount; p++ {
		if p == m.active {
			tabs = append(tabs, activeTabStyle.Render(p.title()))
		} else {
			tabs = append(tabs, tabStyle.Render(p.title()))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...) + "\n\n")

	b.WriteString(m.tables[m.active].View() + "\n")
	b.WriteString(statusBarStyle.Render(fmt.Sprintf(" %s | %d rows ", m.active.title(), len(m.tables[m.active].Rows()))))
	b.WriteString("\n" + helpStyle.Render("tab: next panel | ↑/↓: scroll | q: quit"))

	return b.String()
}
