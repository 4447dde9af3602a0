package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/relabs-tech/flyvr_rig/internal/config"
)

const monitorHistory = 120

var (
	monitorTitle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	monitorLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	monitorValue = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	monitorWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaa00")).Bold(true)
	monitorGraph = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	monitorHelp  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	monitorPanel = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444466")).Padding(0, 2)
)

// snapshotMsg carries a fresh LiveState snapshot into the monitor.
type snapshotMsg StateSnapshot

// monitorModel shows the latest telemetry plus a short history of the marker
// offset and filtered angle.
type monitorModel struct {
	broker string
	snap   StateSnapshot

	lastIteration int
	xs, ys        []float64
	angles        []float64
	paused        bool
}

func newMonitorModel(broker string) monitorModel {
	return monitorModel{broker: broker, lastIteration: -1}
}

func (m monitorModel) Init() tea.Cmd { return nil }

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "c":
			m.xs, m.ys, m.angles = nil, nil, nil
		}
	case snapshotMsg:
		if m.paused {
			return m, nil
		}
		m.snap = StateSnapshot(msg)
		if s := m.snap.Tracker; s != nil && s.Found && s.Iteration != m.lastIteration {
			m.lastIteration = s.Iteration
			m.xs = pushBounded(m.xs, s.X)
			m.ys = pushBounded(m.ys, s.Y)
			m.angles = pushBounded(m.angles, s.FilteredAngle)
		}
	}
	return m, nil
}

func pushBounded(xs []float64, v float64) []float64 {
	xs = append(xs, v)
	if len(xs) > monitorHistory {
		xs = xs[len(xs)-monitorHistory:]
	}
	return xs
}

func (m monitorModel) View() string {
	var b strings.Builder
	b.WriteString(monitorTitle.Render("Fly VR rig  " + m.broker))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(monitorLabel.Render(label))
		b.WriteString(monitorValue.Render(value))
		b.WriteString("\n")
	}

	switch s := m.snap.Tracker; {
	case s == nil:
		row("tracker", monitorWarn.Render("waiting for telemetry"))
	case !s.Found:
		row("tracker", fmt.Sprintf("#%d ", s.Iteration)+monitorWarn.Render("no blob"))
	default:
		row("tracker", fmt.Sprintf("#%d  x=%.2f  y=%.2f mm", s.Iteration, s.X, s.Y))
		row("angle", fmt.Sprintf("%.1f (filtered %.1f) deg", s.Angle, s.FilteredAngle))
		row("viewpoint", fmt.Sprintf("%.2f, %.2f, %.2f", s.Viewpoint.X, s.Viewpoint.Y, s.Viewpoint.Z))
		row("loop", fmt.Sprintf("%.1f ms", s.LoopSeconds*1000))
	}

	if a := m.snap.Actuator; a != nil {
		state := "idle"
		if a.Moving {
			state = "moving"
		}
		row("stage", fmt.Sprintf("x=%.2f  y=%.2f  %s", a.X, a.Y, state))
	}

	if st := m.snap.Stimulus; st != nil {
		if st.Done {
			row("stimulus", fmt.Sprintf("all %d done", st.Total))
		} else {
			row("stimulus", fmt.Sprintf("%d/%d %s (%s)", st.Index+1, st.Total, st.Name, st.State))
		}
	}

	if len(m.angles) > 1 {
		b.WriteString(monitorGraph.Render(asciigraph.Plot(m.angles,
			asciigraph.Height(6), asciigraph.Width(60), asciigraph.Caption("filtered angle (deg)"))))
		b.WriteString("\n")
		b.WriteString(monitorGraph.Render(asciigraph.Plot(m.xs,
			asciigraph.Height(4), asciigraph.Width(60), asciigraph.Caption("marker x offset (mm)"))))
		b.WriteString("\n")
	}

	help := "q quit  space pause  c clear"
	if m.paused {
		help = monitorWarn.Render("paused") + "  " + help
	}
	b.WriteString(monitorHelp.Render(help))
	return monitorPanel.Render(b.String())
}

// RunMonitor shows live rig telemetry in the terminal until the user quits
// or ctx is cancelled.
func RunMonitor(ctx context.Context, cfg *config.Config) error {
	if cfg.MQTTBroker == "" {
		return errors.New("monitor: MQTT_BROKER is not set")
	}

	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDMonitor)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	p := tea.NewProgram(newMonitorModel(cfg.MQTTBroker), tea.WithAltScreen(), tea.WithContext(ctx))

	state := &LiveState{}
	onUpdate := func(string) { p.Send(snapshotMsg(state.Snapshot())) }
	if err := subscribeLive(client, cfg, state, "monitor", onUpdate); err != nil {
		return err
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
