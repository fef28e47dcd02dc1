package viz

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/stochsim/internal/sim"
)

// ProgressMsg reports completed realizations.
type ProgressMsg struct {
	Done, Total int
}

// DoneMsg ends the progress display.
type DoneMsg struct {
	Err error
}

type tickMsg time.Time

// Progress is the Bubble Tea model shown while an ensemble runs.
type Progress struct {
	title     string
	done      int
	total     int
	frame     int
	started   time.Time
	finished  bool
	cancelled bool
	err       error
	width     int
}

func NewProgress(title string, total int) Progress {
	return Progress{title: title, total: total, started: time.Now(), width: 40}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Progress) Init() tea.Cmd { return tick() }

func (m Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = min(max(msg.Width-30, 10), 60)
	case ProgressMsg:
		m.done, m.total = msg.Done, msg.Total
	case DoneMsg:
		m.finished = true
		m.err = msg.Err
		if msg.Err == nil {
			m.done = m.total
		}
		return m, tea.Quit
	case tickMsg:
		if m.finished {
			return m, nil
		}
		m.frame++
		return m, tick()
	}
	return m, nil
}

func (m Progress) View() string {
	frac := 0.0
	if m.total > 0 {
		frac = float64(m.done) / float64(m.total)
	}

	var b strings.Builder
	switch {
	case m.err != nil:
		b.WriteString(Warning.Render("✗"))
	case m.finished:
		b.WriteString(SparkHigh.Render("✓"))
	default:
		b.WriteString(cyan.Render(AnimatedSpinner(m.frame)))
	}
	fmt.Fprintf(&b, " %s %s %s\n",
		white.Render(m.title),
		ProgressBar(frac, m.width),
		dim.Render(fmt.Sprintf("%d/%d realizations", m.done, m.total)))
	if m.cancelled {
		b.WriteString(yellow.Render("cancelled") + "\n")
	}
	return b.String()
}

// Cancelled reports whether the user quit before the job finished.
func (m Progress) Cancelled() bool { return m.cancelled }

// Track runs job while rendering a Progress to out. Quitting the display
// cancels the context passed to job. The job's error is returned.
func Track(ctx context.Context, out io.Writer, title string, total int, job func(context.Context, sim.ProgressFunc) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgress(title, total),
		tea.WithOutput(out),
		tea.WithContext(ctx),
	)

	errc := make(chan error, 1)
	go func() {
		err := job(ctx, func(done, total int) {
			p.Send(ProgressMsg{Done: done, Total: total})
		})
		p.Send(DoneMsg{Err: err})
		errc <- err
	}()

	final, err := p.Run()
	if m, ok := final.(Progress); err != nil || (ok && m.Cancelled()) {
		cancel()
	}
	jobErr := <-errc
	if jobErr != nil {
		return jobErr
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
