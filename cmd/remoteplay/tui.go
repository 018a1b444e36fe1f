package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KarpelesLab/remoteplay"
	"github.com/KarpelesLab/remoteplay/playback"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const seekStep = 10 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	playingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))
)

type (
	statusMsg   playback.Status
	progressMsg remoteplay.Progress
	tickMsg     struct{}
	errMsg      struct{ err error }
)

type model struct {
	ctx        context.Context
	machine    *playback.Machine
	dm         *remoteplay.DownloadManager
	resourceID string

	status   playback.Status
	download remoteplay.Progress
	bar      progress.Model
	err      error
}

func runTUI(ctx context.Context, machine *playback.Machine, dm *remoteplay.DownloadManager, resourceID string) error {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 50

	m := model{
		ctx:        ctx,
		machine:    machine,
		dm:         dm,
		resourceID: resourceID,
		bar:        bar,
	}

	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		// interrupted from outside
		return nil
	}
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitStatus(), m.pollProgress())
}

func (m model) waitStatus() tea.Cmd {
	return func() tea.Msg {
		select {
		case st := <-m.machine.Status():
			return statusMsg(st)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m model) pollProgress() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, time.Second)
		defer cancel()

		p, err := m.dm.Progress(ctx, m.resourceID)
		if err != nil {
			// keep polling
			return progressMsg(remoteplay.Progress{Size: -1})
		}
		return progressMsg(p)
	}
}

func (m model) send(c playback.Command) tea.Cmd {
	return func() tea.Msg {
		if err := m.machine.Send(m.ctx, c); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-20, 20), 80)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case " ", "p":
			if m.status.Playing {
				return m, m.send(playback.Pause{})
			}
			return m, m.send(playback.Resume{})
		case "left", "h":
			return m, m.send(playback.Seek{Delta: -seekStep})
		case "right", "l":
			return m, m.send(playback.Seek{Delta: seekStep})
		}

	case statusMsg:
		m.status = playback.Status(msg)
		return m, m.waitStatus()

	case progressMsg:
		m.download = remoteplay.Progress(msg)
		var cmd tea.Cmd
		if m.download.Size > 0 {
			cmd = m.bar.SetPercent(float64(m.download.Downloaded) / float64(m.download.Size))
		}
		next := tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
		return m, tea.Batch(cmd, next)

	case tickMsg:
		return m, m.pollProgress()

	case errMsg:
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	title := m.status.Title
	if title == "" {
		title = "remoteplay"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	switch {
	case m.status.ResourceID == "":
		b.WriteString(dimStyle.Render("loading..."))
	case m.status.Playing:
		b.WriteString(playingStyle.Render("▶ " + formatStatus(m.status)))
	default:
		b.WriteString(pausedStyle.Render("⏸ " + formatStatus(m.status)))
	}
	b.WriteString("\n\n")

	b.WriteString(m.bar.View())
	if m.download.Cached {
		b.WriteString(dimStyle.Render("  cached"))
	} else if m.download.Found {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %d connection(s)", m.download.Streams)))
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(pausedStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("space: pause/resume • ←/→: seek 10s • q: quit"))
	b.WriteString("\n")
	return b.String()
}

func formatStatus(st playback.Status) string {
	pos := "--:--"
	if st.HasPosition {
		pos = formatDuration(st.Position)
	}
	if !st.HasDuration {
		return pos
	}
	return pos + " / " + formatDuration(st.Duration)
}

func formatDuration(d time.Duration) string {
	s := int(d / time.Second)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
