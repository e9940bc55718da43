package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"sketchpad/internal/sample"
	"sketchpad/internal/session"
	"sketchpad/internal/shape"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// labelStep is how far one arrow press moves a continuous label.
const labelStep = 0.05

// Controller is the part of the session the terminal UI drives.
type Controller interface {
	Start(ctx context.Context) error
	ReRecord(ctx context.Context) error
	Stop(ctx context.Context) (sample.FeatureVector, sample.LabelVector, error)
	SetLabels(labels sample.LabelVector) error
	Confirm(ctx context.Context, labels sample.LabelVector) (<-chan error, error)
	Clear(ctx context.Context) error
	Play(ctx context.Context) error
	Pause()
}

// FrameMsg carries one session frame into the program.
type FrameMsg session.VisualState

type fitDoneMsg struct {
	err error
}

type stoppedMsg struct {
	features sample.FeatureVector
	labels   sample.LabelVector
}

type statusMsg struct {
	text string
	err  error
}

// SessionModel is the recording screen: live features, the label sliders and
// the controls for the record, review and confirm cycle.
type SessionModel struct {
	ctx    context.Context
	ctrl   Controller
	shapes int

	frame    session.VisualState
	draft    sample.LabelVector
	selected int

	status string
	err    error

	keys  keyMap
	help  help.Model
	width int
}

func NewSessionModel(ctx context.Context, ctrl Controller, shapes int) SessionModel {
	return SessionModel{
		ctx:    ctx,
		ctrl:   ctrl,
		shapes: shapes,
		draft:  sample.Neutral(shape.Sphere),
		keys:   defaultKeyMap(),
		help:   help.New(),
		status: "Press space to record",
	}
}

func (m SessionModel) Init() tea.Cmd {
	return nil
}

func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case FrameMsg:
		m.frame = session.VisualState(msg)

	case stoppedMsg:
		m.draft = msg.labels
		m.frame.State = session.Reviewing
		m.status = fmt.Sprintf("Suggested %s. Adjust the labels, then press enter", shape.Name(msg.labels.Shape))
		m.err = nil

	case fitDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Training failed"
		} else {
			m.err = nil
			m.status = "Model updated"
		}

	case statusMsg:
		m.status = msg.text
		m.err = msg.err

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m SessionModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Record):
		return m.toggleRecording()

	case key.Matches(msg, m.keys.Confirm):
		return m.confirm()

	case key.Matches(msg, m.keys.Play):
		if m.frame.Playing {
			m.ctrl.Pause()
			m.status = "Paused"
			return m, nil
		}
		if err := m.ctrl.Play(m.ctx); err != nil {
			m.err = err
			return m, nil
		}
		m.status = "Playing back"

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}

	case key.Matches(msg, m.keys.Down):
		if m.selected < 3 {
			m.selected++
		}

	case key.Matches(msg, m.keys.Less):
		return m.adjust(-labelStep)

	case key.Matches(msg, m.keys.More):
		return m.adjust(labelStep)

	case key.Matches(msg, m.keys.Shape):
		idx := int(msg.Runes[0] - '0')
		if idx >= m.shapes {
			return m, nil
		}
		next := m.draft
		next.Shape = idx
		return m.applyDraft(next)

	case key.Matches(msg, m.keys.Clear):
		if err := m.ctrl.Clear(m.ctx); err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.status = "Training data cleared"
	}
	return m, nil
}

func (m SessionModel) toggleRecording() (tea.Model, tea.Cmd) {
	var err error
	switch m.frame.State {
	case session.Recording:
		fv, labels, err := m.ctrl.Stop(m.ctx)
		if err != nil {
			m.err = err
			return m, nil
		}
		return m, func() tea.Msg { return stoppedMsg{features: fv, labels: labels} }
	case session.Reviewing:
		err = m.ctrl.ReRecord(m.ctx)
	default:
		err = m.ctrl.Start(m.ctx)
	}
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.frame.State = session.Recording
	m.status = "Recording. Press space to stop"
	return m, nil
}

func (m SessionModel) confirm() (tea.Model, tea.Cmd) {
	done, err := m.ctrl.Confirm(m.ctx, m.draft)
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.status = "Training..."
	m.frame.Busy = true
	return m, func() tea.Msg {
		return fitDoneMsg{err: <-done}
	}
}

func (m SessionModel) adjust(delta float64) (tea.Model, tea.Cmd) {
	next := m.draft
	v := []*float64{&next.Y1, &next.Y2, &next.Y3, &next.Y4}[m.selected]
	*v = math.Round(math.Max(0, math.Min(1, *v+delta))*100) / 100
	return m.applyDraft(next)
}

// applyDraft keeps edits local until a recording is under review, then
// pushes them to the session so the preview follows the sliders.
func (m SessionModel) applyDraft(next sample.LabelVector) (tea.Model, tea.Cmd) {
	if m.frame.State == session.Reviewing {
		if err := m.ctrl.SetLabels(next); err != nil {
			m.err = err
			return m, nil
		}
	}
	m.draft = next
	m.err = nil
	return m, nil
}

func (m SessionModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Sound Sketchpad"))
	sb.WriteString("  ")
	sb.WriteString(stateBadge(m.frame.State))
	if m.frame.Busy {
		sb.WriteString(dimStyle.Render("  training"))
	}
	if m.frame.Playing {
		sb.WriteString(dimStyle.Render("  playing"))
	}
	sb.WriteString("\n\n")

	fv := m.frame.Features
	sb.WriteString(infoStyle.Render(fmt.Sprintf("Source: %-9s Samples: %d", m.frame.Source, m.frame.Samples)))
	sb.WriteString("\n\n")
	for _, row := range []struct {
		name string
		v    float64
		ceil float64
	}{
		{"loudness", fv.Loudness, 10},
		{"pitch", fv.Pitch, 5},
		{"brightness", fv.Brightness, 6},
		{"roughness", fv.Roughness, 2},
	} {
		sb.WriteString(fmt.Sprintf("  %-10s %s %6.3f\n", row.name, bar(row.v/row.ceil, 24), row.v))
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render(fmt.Sprintf("Shape: %s", shape.Name(m.frame.Labels.Shape))))
	sb.WriteString("\n\n")

	labels := m.draft
	if m.frame.State == session.Idle {
		labels = m.frame.Labels
	}
	for i, v := range labels.Continuous() {
		line := fmt.Sprintf("  y%d %s %.2f", i+1, bar(v, 24), v)
		if m.frame.State != session.Idle && i == m.selected {
			line = highlightStyle.Render("▶" + line[1:])
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if m.frame.State != session.Idle {
		sb.WriteString(fmt.Sprintf("  shape %s\n", highlightStyle.Render(shape.Name(m.draft.Shape))))
	}

	sb.WriteString("\n")
	if m.err != nil {
		sb.WriteString(errorStyle.Render(describe(m.err)))
	} else {
		sb.WriteString(dimStyle.Render(m.status))
	}
	sb.WriteString("\n\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func stateBadge(s session.State) string {
	switch s {
	case session.Recording:
		return recordingStyle.Render("REC")
	case session.Reviewing:
		return reviewingStyle.Render("REVIEW")
	default:
		return idleStyle.Render("IDLE")
	}
}

func bar(frac float64, width int) string {
	if math.IsNaN(frac) {
		frac = 0
	}
	n := int(math.Round(math.Max(0, math.Min(1, frac)) * float64(width)))
	return strings.Repeat("█", n) + dimStyle.Render(strings.Repeat("░", width-n))
}

func describe(err error) string {
	var perm *session.PermissionError
	switch {
	case errors.As(err, &perm):
		return "Microphone unavailable. Check the input device and permissions."
	case errors.Is(err, session.ErrNoPendingRecording):
		return "Nothing to confirm. Record something first."
	case errors.Is(err, session.ErrBusy):
		return "Still training, try again in a moment."
	default:
		return "Error: " + err.Error()
	}
}

// ProgramSink forwards session frames to a running program.
type ProgramSink struct {
	p *tea.Program
}

func NewProgramSink(p *tea.Program) *ProgramSink {
	return &ProgramSink{p: p}
}

func (s *ProgramSink) Send(vs session.VisualState) error {
	s.p.Send(FrameMsg(vs))
	return nil
}

func (s *ProgramSink) Close() error {
	return nil
}

// RunSession runs the recording screen until the user quits. frames is
// handed a sink that feeds the screen; it should return when ctx is done.
func RunSession(ctx context.Context, ctrl Controller, shapes int, frames func(context.Context, *ProgramSink) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewSessionModel(ctx, ctrl, shapes), tea.WithAltScreen(), tea.WithContext(ctx))
	sink := NewProgramSink(p)

	errc := make(chan error, 1)
	go func() {
		errc <- frames(ctx, sink)
	}()

	_, err := p.Run()
	cancel()
	if ferr := <-errc; ferr != nil && !errors.Is(ferr, context.Canceled) && err == nil {
		err = ferr
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		err = nil
	}
	return err
}
