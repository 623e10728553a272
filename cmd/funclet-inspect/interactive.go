package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-funclets/funclet"
	"github.com/wippyai/wasm-funclets/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcletStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	sealedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateFuncletList modelState = iota
	stateFuncletDetail
	stateJump
)

type inspectModel struct {
	err      error
	body     *funclet.ValidatedBody
	ctx      *funclet.TypeContext
	filename string
	jump     textinput.Model
	region   int
	selected int
	state    modelState
}

type loadedMsg struct {
	err  error
	body *funclet.ValidatedBody
}

func newInspectModel(filename string, ctx *funclet.TypeContext) *inspectModel {
	ti := textinput.New()
	ti.Prompt = "funclet: "
	ti.Placeholder = "index"
	ti.Width = 10
	return &inspectModel{
		filename: filename,
		ctx:      ctx,
		jump:     ti,
		state:    stateFuncletList,
	}
}

func (m *inspectModel) Init() tea.Cmd {
	return m.loadBody
}

func (m *inspectModel) loadBody() tea.Msg {
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	vb, err := funclet.ValidateFunctionBody(data, m.ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{body: vb}
}

func (m *inspectModel) curRegion() *funclet.FuncletRegion {
	if m.body == nil || len(m.body.Regions) == 0 {
		return nil
	}
	return m.body.Regions[m.region]
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateJump {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter":
				if region := m.curRegion(); region != nil {
					if idx, err := strconv.Atoi(m.jump.Value()); err == nil &&
						idx >= 0 && idx < int(region.NumFunclets()) {
						m.selected = idx
						m.state = stateFuncletDetail
					} else {
						m.state = stateFuncletList
					}
				}
				m.jump.SetValue("")
				m.jump.Blur()
				return m, nil
			case "esc":
				m.state = stateFuncletList
				m.jump.SetValue("")
				m.jump.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.jump, cmd = m.jump.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateFuncletList && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if region := m.curRegion(); region != nil &&
				m.state == stateFuncletList && m.selected < int(region.NumFunclets())-1 {
				m.selected++
			}

		case "left", "h":
			if m.state == stateFuncletList && m.region > 0 {
				m.region--
				m.selected = 0
			}

		case "right", "l":
			if m.body != nil && m.state == stateFuncletList && m.region < len(m.body.Regions)-1 {
				m.region++
				m.selected = 0
			}

		case "g":
			if m.state == stateFuncletList {
				m.state = stateJump
				return m, m.jump.Focus()
			}

		case "enter":
			if m.state == stateFuncletList && m.curRegion() != nil {
				m.state = stateFuncletDetail
			}

		case "esc":
			if m.state == stateFuncletDetail {
				m.state = stateFuncletList
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.body = msg.body
	}

	return m, nil
}

func (m *inspectModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.body == nil {
		return "Loading body..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Funclet Inspector"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	region := m.curRegion()
	if region == nil {
		b.WriteString("No funclet regions in this body.\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	switch m.state {
	case stateFuncletList, stateJump:
		fmt.Fprintf(&b, "Region %d/%d  %s -> %s\n\n",
			m.region+1, len(m.body.Regions),
			typeStyle.Render(typeList(region.Params)),
			typeStyle.Render(typeList(region.Results)))

		for i, f := range region.Funclets {
			line := m.formatFunclet(f)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.state == stateJump {
			b.WriteString(m.jump.View())
			b.WriteString("\n\n")
			b.WriteString(helpStyle.Render("enter go • esc cancel"))
		} else {
			b.WriteString(helpStyle.Render("↑/↓ select • ←/→ region • g goto • enter detail • q quit"))
		}

	case stateFuncletDetail:
		f := region.Funclets[m.selected]
		fmt.Fprintf(&b, "Funclet %s %s\n\n",
			funcletStyle.Render(fmt.Sprintf("%d", f.Index)),
			typeStyle.Render(typeList(f.Sig)))

		if f.Declared {
			fmt.Fprintf(&b, "Declared num_preds: %d (observed %d)\n", f.DeclaredPreds, f.ObservedBackward)
		} else {
			b.WriteString("Signature inferred from forward edges\n")
		}
		if f.Sealed() {
			b.WriteString(sealedStyle.Render("sealed"))
		} else {
			b.WriteString(errorStyle.Render("unsealed"))
		}
		b.WriteString("\n\nIncoming edges:\n")
		for _, e := range region.Graph.EdgesTo(f.Index) {
			from := "entry"
			if e.From != funclet.RegionEntry {
				from = fmt.Sprintf("funclet %d", e.From)
			}
			dir := "forward"
			if e.Backward {
				dir = "backward"
			}
			fmt.Fprintf(&b, "  %s %s at 0x%x (%s)\n", from, typeList(e.Args), e.Offset, dir)
		}

		b.WriteString("\nSSA block:\n")
		b.WriteString(funcletStyle.Render(f.Block.FormatHeader()))
		b.WriteString("\n")
		for _, in := range f.Block.Instrs {
			b.WriteString("  ")
			b.WriteString(in.Format(wasm.OpcodeName))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("esc back • q quit"))
	}

	return b.String()
}

func (m *inspectModel) formatFunclet(f *funclet.Funclet) string {
	sealed := errorStyle.Render("unsealed")
	if f.Sealed() {
		sealed = sealedStyle.Render("sealed")
	}
	preds := "inferred"
	if f.Declared {
		preds = fmt.Sprintf("num_preds=%d", f.DeclaredPreds)
	}
	return fmt.Sprintf("%s %s  %s, %s",
		funcletStyle.Render(fmt.Sprintf("funclet %d", f.Index)),
		typeStyle.Render(typeList(f.Sig)), preds, sealed)
}

func runInteractive(filename string, ctx *funclet.TypeContext) error {
	p := tea.NewProgram(newInspectModel(filename, ctx), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
