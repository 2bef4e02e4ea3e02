// Package terminal renders controller events as line-oriented terminal output.
package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"gdsim/internal/domain"
	"gdsim/internal/ports"
)

var _ ports.EventSink = (*View)(nil)

type styles struct {
	state     lipgloss.Style
	moderator lipgloss.Style
	user      lipgloss.Style
	panel     lipgloss.Style
	clock     lipgloss.Style
	err       lipgloss.Style
	heading   lipgloss.Style
	body      lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		state:     r.NewStyle().Foreground(lipgloss.Color("246")),
		moderator: r.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		user:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("118")),
		panel:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
		clock:     r.NewStyle().Foreground(lipgloss.Color("214")),
		err:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		heading:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		body:      r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// View is a ports.EventSink that writes to a terminal. Streamed replies are
// printed fragment by fragment on one line.
type View struct {
	mu        sync.Mutex
	out       io.Writer
	styles    styles
	streaming bool
	turns     int

	evaluated chan struct{}
	once      sync.Once
}

func NewView(out io.Writer) *View {
	return &View{
		out:       out,
		styles:    newStyles(lipgloss.NewRenderer(out)),
		evaluated: make(chan struct{}),
	}
}

// Evaluated is closed once the closing evaluation has been shown.
func (v *View) Evaluated() <-chan struct{} {
	return v.evaluated
}

func (v *View) SessionStateChanged(state domain.TurnState, reason domain.StateReason) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.breakLine()
	line := "· " + string(state)
	if hint := stateHint(state); hint != "" {
		line += " · " + hint
	}
	if reason != "" {
		line += " (" + strings.ReplaceAll(string(reason), "_", " ") + ")"
	}
	v.println(v.styles.state.Render(line))
}

func (v *View) MessageAppended(msg domain.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.breakLine()
	v.println(v.speaker(msg.Speaker) + " " + msg.Text)
}

func (v *View) TranscriptRestored(topic string, transcript []domain.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.breakLine()
	v.println(v.styles.heading.Render("Resumed discussion: " + topic))
	for _, msg := range transcript {
		v.println(v.speaker(msg.Speaker) + " " + msg.Text)
	}
}

func (v *View) PartialResponse(speaker string, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.streaming {
		v.streaming = true
		fmt.Fprint(v.out, v.speaker(speaker)+" ")
	}
	fmt.Fprint(v.out, text)
}

func (v *View) ResponseFinished(speaker string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if speaker != "" && speaker != domain.SpeakerAI && v.streaming {
		fmt.Fprint(v.out, " "+v.styles.state.Render("("+speaker+")"))
	}
	v.breakLine()
}

func (v *View) CountdownTick(secondsLeft int) {
	if !announceTick(secondsLeft) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.breakLine()
	v.println(v.styles.clock.Render("⏱ " + FormatRemaining(secondsLeft) + " left"))
}

func (v *View) TurnCountChanged(turns int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.turns = turns
}

func (v *View) SessionError(_ domain.ErrorCode, detail string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.breakLine()
	v.println(v.styles.err.Render("! " + detail))
}

func (v *View) EvaluationReady(text string) {
	v.mu.Lock()
	v.breakLine()
	v.println(v.styles.heading.Render(fmt.Sprintf("Evaluation (%d turns)", v.turns)))
	v.println(v.styles.body.Render(text))
	v.mu.Unlock()
	v.once.Do(func() { close(v.evaluated) })
}

func (v *View) speaker(name string) string {
	switch name {
	case domain.SpeakerUser:
		return v.styles.user.Render("You:")
	case domain.SpeakerModerator:
		return v.styles.moderator.Render("Moderator:")
	case "", domain.SpeakerAI:
		return v.styles.panel.Render("Panel:")
	default:
		return v.styles.panel.Render(name + ":")
	}
}

// breakLine terminates an in-progress streamed line.
func (v *View) breakLine() {
	if v.streaming {
		v.streaming = false
		fmt.Fprintln(v.out)
	}
}

func (v *View) println(line string) {
	fmt.Fprintln(v.out, line)
}

func stateHint(state domain.TurnState) string {
	switch state {
	case domain.TurnStateAITurnAssigned:
		return "type /hand to take the floor"
	case domain.TurnStateQueued:
		return "hand raised"
	case domain.TurnStateUserSpeaking:
		return "you have the floor"
	default:
		return ""
	}
}

// announceTick limits countdown output to every full minute, every ten
// seconds of the final minute, and the last five seconds.
func announceTick(left int) bool {
	switch {
	case left <= 0:
		return false
	case left <= 5:
		return true
	case left < 60:
		return left%10 == 0
	default:
		return left%60 == 0
	}
}

// FormatRemaining renders seconds as m:ss.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
