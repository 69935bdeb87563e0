package editor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownAction = errors.New("unknown notification action")

type ActionKind string

const (
	ActionSnooze ActionKind = "snooze"
	ActionDelete ActionKind = "delete"
	ActionDone   ActionKind = "mark_done"
)

// Action is a button pressed on an interactive notification.
type Action struct {
	Kind    ActionKind
	Minutes int
}

// ParseAction reads notification action identifiers: "snooze_<minutes>",
// "delete" and "mark_done". Anything after a further underscore is ignored,
// so "delete_<event id>" works too.
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == string(ActionDone) || strings.HasPrefix(s, string(ActionDone)+"_"):
		return Action{Kind: ActionDone}, nil
	case s == string(ActionDelete) || strings.HasPrefix(s, string(ActionDelete)+"_"):
		return Action{Kind: ActionDelete}, nil
	case strings.HasPrefix(s, string(ActionSnooze)+"_"):
		rest := strings.TrimPrefix(s, string(ActionSnooze)+"_")
		n, _, _ := strings.Cut(rest, "_")
		minutes, err := strconv.Atoi(n)
		if err != nil || minutes <= 0 {
			return Action{}, fmt.Errorf("%w: %q", ErrInvalidTiming, s)
		}
		return Action{Kind: ActionSnooze, Minutes: minutes}, nil
	}
	return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}
