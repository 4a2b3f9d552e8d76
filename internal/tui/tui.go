// Package tui provides the interactive terminal client for a running vexd
// server: debounced semantic search, an upload mode, and a stats view.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/screenager/vexd/internal/client"
)

// ── Palette ──────────────────────────────────────────────────────────────────

var (
	colorAccent = lipgloss.Color("#56B6C2") // teal
	colorDim    = lipgloss.Color("#555555")
	colorMuted  = lipgloss.Color("#888888")
	colorText   = lipgloss.Color("#DDDDDD")
	colorRank   = lipgloss.Color("#E5C07B") // amber for ranks
	colorErr    = lipgloss.Color("#FF6B6B")
	colorOK     = lipgloss.Color("#5AF078")

	sTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	sAccent  = lipgloss.NewStyle().Foreground(colorAccent)
	sDim     = lipgloss.NewStyle().Foreground(colorDim)
	sMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	sRank    = lipgloss.NewStyle().Foreground(colorRank).Bold(true)
	sErr     = lipgloss.NewStyle().Foreground(colorErr)
	sOK      = lipgloss.NewStyle().Foreground(colorOK)
	sDivider = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
	sSel     = lipgloss.NewStyle().
		Background(lipgloss.Color("#15303A")).
		Foreground(colorText)
	sHint = lipgloss.NewStyle().
		Foreground(colorDim).
		Background(lipgloss.Color("#111111"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ── Messages ─────────────────────────────────────────────────────────────────

type mode int

const (
	modeSearch mode = iota
	modeUpload
	modeStats
)

type (
	spinTickMsg     struct{}
	searchResultMsg []string
	uploadedMsg     struct{}
	statsMsg        *client.Stats
	errMsg          struct{ err error }
	debounceMsg     struct {
		query string
		id    int
	}
)

func spinTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg { return spinTickMsg{} })
}

// ── Model ─────────────────────────────────────────────────────────────────────

// Model is the bubbletea application model.
type Model struct {
	api        *client.Client
	input      textinput.Model
	results    []string
	cursor     int
	mode       mode
	err        error
	notice     string
	width      int
	height     int
	busy       bool
	spinFrame  int
	stats      *client.Stats
	debounceID int
	lastQuery  string
	topK       uint
}

// New creates a TUI model talking to api.
func New(api *client.Client) Model {
	ti := textinput.New()
	ti.Placeholder = "search your documents…"
	ti.Focus()
	ti.CharLimit = 512
	ti.Width = 60
	ti.PromptStyle = sAccent
	ti.Prompt = "❯ "
	ti.TextStyle = lipgloss.NewStyle().Foreground(colorText)

	return Model{api: api, input: ti, mode: modeSearch, topK: 10}
}

// Init is the bubbletea init hook.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, spinTick())
}

// Update processes messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = m.width - 8
		return m, nil

	case spinTickMsg:
		m.spinFrame = (m.spinFrame + 1) % len(spinnerFrames)
		return m, spinTick()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			return m, tea.Quit

		case "ctrl+u":
			if m.mode == modeUpload {
				m.toSearchMode()
			} else {
				m.mode = modeUpload
				m.input.Placeholder = "paste a document, enter to upload…"
				m.input.SetValue("")
				m.results = nil
				m.notice = ""
			}
			return m, nil

		case "ctrl+s":
			if m.mode != modeStats {
				m.mode = modeStats
				m.input.Blur()
				return m, statsCmd(m.api)
			}
			m.toSearchMode()
			return m, nil

		case "esc":
			m.toSearchMode()
			m.err = nil
			m.notice = ""
			return m, nil

		case "up", "ctrl+p":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case "down", "ctrl+n":
			if m.cursor < len(m.results)-1 {
				m.cursor++
			}
			return m, nil

		case "enter":
			if m.mode == modeUpload {
				content := strings.TrimSpace(m.input.Value())
				if content == "" {
					return m, nil
				}
				m.busy = true
				m.input.SetValue("")
				return m, uploadCmd(m.api, content)
			}
			return m, nil
		}

	case debounceMsg:
		if msg.id == m.debounceID && msg.query == m.input.Value() && m.mode == modeSearch {
			if strings.TrimSpace(msg.query) == "" {
				m.busy = false
				m.results = nil
				return m, nil
			}
			m.busy = true
			m.lastQuery = msg.query
			return m, searchCmd(m.api, msg.query, m.topK)
		}
		return m, nil

	case searchResultMsg:
		m.busy = false
		m.results = []string(msg)
		m.cursor = 0
		m.err = nil
		return m, nil

	case uploadedMsg:
		m.busy = false
		m.err = nil
		m.notice = "uploaded — will appear after the next batch tick"
		return m, nil

	case statsMsg:
		m.stats = (*client.Stats)(msg)
		return m, nil

	case errMsg:
		m.busy = false
		m.err = msg.err
		return m, nil
	}

	if m.mode == modeSearch || m.mode == modeUpload {
		prevVal := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.mode == modeSearch && m.input.Value() != prevVal {
			m.debounceID++
			return m, tea.Batch(cmd, debounceCmd(m.input.Value(), m.debounceID))
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) toSearchMode() {
	m.mode = modeSearch
	m.input.Placeholder = "search your documents…"
	m.input.Focus()
	m.stats = nil
}

// ── Views ─────────────────────────────────────────────────────────────────────

// View renders the current mode.
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	if m.mode == modeStats {
		return m.statsView()
	}
	return m.mainView()
}

func (m Model) mainView() string {
	var b strings.Builder
	divider := sDivider.Render(strings.Repeat("─", clamp(m.width-2, 10, 200)))

	label := "semantic search"
	if m.mode == modeUpload {
		label = "upload a document"
	}
	fmt.Fprintln(&b, "  "+sTitle.Render("vexd")+"  "+sMuted.Render(label))
	fmt.Fprintln(&b, "  "+m.input.View())
	fmt.Fprintln(&b, "  "+divider)

	switch {
	case m.err != nil:
		fmt.Fprintln(&b, sErr.Render("  error: "+m.err.Error()))
	case m.busy:
		frame := spinnerFrames[m.spinFrame]
		fmt.Fprintln(&b, "  "+sAccent.Render(frame)+"  "+sMuted.Render("working…"))
	case m.notice != "":
		fmt.Fprintln(&b, "  "+sOK.Render(m.notice))
	case m.mode == modeUpload:
		fmt.Fprintln(&b, "")
		fmt.Fprintln(&b, sMuted.Render("  Type or paste text, then press enter to enqueue it."))
	case len(m.results) == 0 && m.input.Value() == "":
		fmt.Fprintln(&b, "")
		fmt.Fprintln(&b, sMuted.Render("  Start typing to search the index semantically."))
	case len(m.results) == 0:
		fmt.Fprintln(&b, "")
		fmt.Fprintln(&b, sMuted.Render("  no results for ")+sAccent.Render("\""+m.lastQuery+"\""))
	default:
		m.renderResults(&b)
	}

	b.WriteString("\n  " + divider + "\n")
	fmt.Fprint(&b, sHint.Render("  ^u upload  ^s stats  esc clear  ↑↓ nav  ^q quit  "))
	return b.String()
}

func (m Model) renderResults(b *strings.Builder) {
	// Each result takes two rows: rank and truncated snippet, then a blank line.
	maxRows := clamp((m.height-7)/2, 1, len(m.results))
	for i, content := range m.results {
		if i >= maxRows {
			fmt.Fprintf(b, "  %s\n", sDim.Render(fmt.Sprintf("  … %d more", len(m.results)-i)))
			break
		}
		snippet := strings.Join(strings.Fields(content), " ")
		maxSnip := clamp(m.width-10, 20, 160)
		if len(snippet) > maxSnip {
			snippet = snippet[:maxSnip-1] + "…"
		}
		line := fmt.Sprintf("  %s  %s", sRank.Render(fmt.Sprintf("%2d", i+1)), snippet)
		if i == m.cursor {
			line = sSel.Render(line)
		}
		fmt.Fprintln(b, line)
		fmt.Fprintln(b, "")
	}
}

func (m Model) statsView() string {
	var b strings.Builder
	divider := sDivider.Render(strings.Repeat("─", clamp(m.width-2, 10, 200)))

	fmt.Fprintln(&b, "  "+sTitle.Render("vexd")+" "+sMuted.Render("— server stats"))
	fmt.Fprintln(&b, "  "+divider)
	if m.stats != nil {
		st := m.stats
		row := func(label, value string) {
			fmt.Fprintf(&b, "  %-22s %s\n", sDim.Render(label), value)
		}
		fmt.Fprintln(&b, "")
		row("documents", sAccent.Render(fmt.Sprintf("%d", st.Documents)))
		row("embedding dim", sAccent.Render(fmt.Sprintf("%d", st.Dim)))
		row("queue depth", sAccent.Render(fmt.Sprintf("%d", st.QueueDepth)))
		row("batches indexed", sMuted.Render(fmt.Sprintf("%d", st.Batches)))
		row("batches dropped", sMuted.Render(fmt.Sprintf("%d", st.DroppedBatch)))
		layers := make([]string, len(st.LayerNodes))
		for i, n := range st.LayerNodes {
			layers[i] = fmt.Sprintf("%d", n)
		}
		row("layer nodes", sMuted.Render(strings.Join(layers, " / ")))
	} else {
		fmt.Fprintln(&b, "  "+sMuted.Render("fetching…"))
	}
	fmt.Fprintln(&b, "")
	fmt.Fprintln(&b, "  "+divider)
	fmt.Fprint(&b, sHint.Render("  esc back  ^q quit  "))
	return b.String()
}

// ── Commands ──────────────────────────────────────────────────────────────────

func debounceCmd(query string, id int) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(280 * time.Millisecond)
		return debounceMsg{query: query, id: id}
	}
}

func searchCmd(api *client.Client, query string, topK uint) tea.Cmd {
	return func() tea.Msg {
		results, err := api.Search(context.Background(), query, topK)
		if err != nil {
			return errMsg{err}
		}
		return searchResultMsg(results)
	}
}

func uploadCmd(api *client.Client, content string) tea.Cmd {
	return func() tea.Msg {
		if err := api.Upload(context.Background(), content); err != nil {
			return errMsg{err}
		}
		return uploadedMsg{}
	}
}

func statsCmd(api *client.Client) tea.Cmd {
	return func() tea.Msg {
		st, err := api.Stats(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return statsMsg(st)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
