// Package broadcast holds the value types shared by the orchestration core:
// scheduler state, content types, dialogue scripts and playable plans.
package broadcast

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the scheduler's single mutual-exclusion flag.
type Status string

const (
	StatusIdle       Status = "IDLE"
	StatusGenerating Status = "GENERATING"
)

// ContentType classifies airtime for pacing.
type ContentType string

const (
	ContentVoice   ContentType = "VOICE"
	ContentVisual  ContentType = "VISUAL"
	ContentSilence ContentType = "SILENCE"
)

// ContentTypes lists every tracked content type in a stable order.
var ContentTypes = []ContentType{ContentVoice, ContentVisual, ContentSilence}

// Role identifies one of the two on-air characters.
type Role string

const (
	RoleA Role = "ROLE_A"
	RoleB Role = "ROLE_B"
)

// DialogueLine is one spoken line.
type DialogueLine struct {
	Role Role   `json:"role" yaml:"role" toml:"role"`
	Text string `json:"text" yaml:"text" toml:"text"`
}

// Script is an ordered sequence of dialogue lines.
type Script []DialogueLine

// Clone returns a copy that shares no backing array with s.
func (s Script) Clone() Script {
	if s == nil {
		return nil
	}
	out := make(Script, len(s))
	copy(out, s)
	return out
}

// TextLength is the total number of characters across all lines.
func (s Script) TextLength() int {
	n := 0
	for _, l := range s {
		n += len(l.Text)
	}
	return n
}

// String renders the script one "ROLE: text" line at a time.
func (s Script) String() string {
	var b strings.Builder
	for i, l := range s {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(string(l.Role))
		b.WriteString(": ")
		b.WriteString(l.Text)
	}
	return b.String()
}

// Trigger is the reason a generation cycle started.
type Trigger string

const (
	TriggerSystemStart    Trigger = "SYSTEM_START"
	TriggerSilenceBreak   Trigger = "SILENCE_BREAK"
	TriggerCountryArrival Trigger = "COUNTRY_ARRIVAL"
	TriggerManual         Trigger = "MANUAL"
)

// ParseTrigger accepts a trigger name in any case.
func ParseTrigger(s string) (Trigger, bool) {
	switch t := Trigger(strings.ToUpper(strings.TrimSpace(s))); t {
	case TriggerSystemStart, TriggerSilenceBreak, TriggerCountryArrival, TriggerManual:
		return t, true
	}
	return "", false
}

// Action is what a plan asks the sequencer to do.
type Action string

const (
	ActionDialogue  Action = "DIALOGUE"
	ActionNarrative Action = "NARRATIVE"
	ActionVisual    Action = "VISUAL"
)

// ContentType maps an action to the airtime it produces.
func (a Action) ContentType() ContentType {
	if a == ActionVisual {
		return ContentVisual
	}
	return ContentVoice
}

// Focus is a camera target handed to the map renderer.
type Focus struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom float64 `json:"zoom"`
}

// Plan is a unit of playable content.
type Plan struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Trigger   Trigger   `json:"trigger"`
	Script    Script    `json:"script"`
	Focus     *Focus    `json:"focus,omitempty"`
	Country   string    `json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPlan stamps a plan with a fresh id and creation time.
func NewPlan(action Action, trigger Trigger, script Script) Plan {
	return Plan{
		ID:        uuid.NewString(),
		Action:    action,
		Trigger:   trigger,
		Script:    script,
		CreatedAt: time.Now(),
	}
}
