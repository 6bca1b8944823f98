package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/dragonsnek/game"
)

type cell uint8

const (
	cellEmpty cell = iota
	cellBody
	cellHead
	cellFood
	cellSpecial
)

var (
	boardStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63"))
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	bodyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	headStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	foodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	specialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	statusStyle  = lipgloss.NewStyle().Bold(true)
	flashStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	overStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// boardCells lays out a snapshot as rows of cells, top row first.
// Up (negative Z) is drawn towards the top of the screen.
func boardCells(s *game.Snapshot) [][]cell {
	lo, hi := game.Bounds(s.GridSize)
	n := int(hi - lo + 1)
	if n <= 0 {
		return nil
	}
	rows := make([][]cell, n)
	for i := range rows {
		rows[i] = make([]cell, n)
	}
	put := func(p game.Point, c cell) {
		if !game.InBounds(p, s.GridSize) {
			return
		}
		rows[p.Z-lo][p.X-lo] = c
	}

	if s.NormalFood != nil {
		put(*s.NormalFood, cellFood)
	}
	if s.Special != nil {
		put(s.Special.Pos, cellSpecial)
	}
	for _, b := range s.Body {
		put(b, cellBody)
	}
	put(s.Head, cellHead)
	return rows
}

func headGlyph(d game.Direction) string {
	switch d {
	case game.Up:
		return "^^"
	case game.Down:
		return "vv"
	case game.Left:
		return "<<"
	default:
		return ">>"
	}
}

func renderBoard(s *game.Snapshot) string {
	var b strings.Builder
	for i, row := range boardCells(s) {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, c := range row {
			switch c {
			case cellBody:
				b.WriteString(bodyStyle.Render("[]"))
			case cellHead:
				b.WriteString(headStyle.Render(headGlyph(s.Facing)))
			case cellFood:
				b.WriteString(foodStyle.Render("()"))
			case cellSpecial:
				b.WriteString(specialStyle.Render("$$"))
			default:
				b.WriteString(emptyStyle.Render(" ."))
			}
		}
	}
	return boardStyle.Render(b.String())
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	s := m.engine.Snapshot()
	if s.GameID == "" {
		title := statusStyle.Render("DRAGON SNEK")
		help := dimStyle.Render("enter: start  arrows/wasd: steer  q: quit")
		best := ""
		if m.best > 0 {
			best = fmt.Sprintf("\nHigh score: %d", m.best)
		}
		return title + "\n\n" + help + best + "\n"
	}

	status := fmt.Sprintf("Score: %d  Best: %d  Length: %d", m.score, m.best, s.Length()+1)
	if s.Special != nil {
		status += fmt.Sprintf("  Bonus: %.1fs", m.specialSeconds)
	}

	var out strings.Builder
	out.WriteString(statusStyle.Render(status))
	if m.flash != "" {
		out.WriteString("  ")
		out.WriteString(flashStyle.Render(m.flash))
	}
	out.WriteByte('\n')
	out.WriteString(renderBoard(s))
	out.WriteByte('\n')

	if s.Over {
		out.WriteString(overStyle.Render("GAME OVER"))
		if m.lastResult != "" {
			out.WriteString("  " + m.lastResult)
		}
		out.WriteByte('\n')
		out.WriteString(dimStyle.Render("r/enter: play again  q: quit"))
	} else {
		out.WriteString(dimStyle.Render("arrows/wasd: steer  q: quit"))
	}
	out.WriteByte('\n')
	return out.String()
}
