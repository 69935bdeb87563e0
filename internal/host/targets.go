package host

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

type TargetKind string

const (
	TargetPush  TargetKind = "push"
	TargetVoice TargetKind = "voice"
)

// Target is a device a reminder can be delivered to.
type Target struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Kind TargetKind `json:"kind"`
}

type Targets struct {
	Push  []Target `json:"push"`
	Voice []Target `json:"voice"`
}

// IsVoiceService reports whether a notify service name belongs to a voice
// assistant.
func IsVoiceService(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "alexa") || strings.HasSuffix(n, "_speak") || strings.HasSuffix(n, "_announce")
}

// Targets enumerates push and voice targets from the notify services and
// the speaker entities.
func (c *Client) Targets(ctx context.Context) (Targets, error) {
	out := Targets{Push: []Target{}, Voice: []Target{}}

	domains, err := c.Services(ctx)
	if err != nil {
		return out, fmt.Errorf("list targets: %w", err)
	}
	for _, d := range domains {
		if d.Domain != "notify" {
			continue
		}
		for name := range d.Services {
			if name == "send_message" || name == "persistent_notification" {
				continue
			}
			t := Target{ID: "notify." + name, Name: name}
			if IsVoiceService(name) {
				t.Kind = TargetVoice
				out.Voice = append(out.Voice, t)
			} else {
				t.Kind = TargetPush
				out.Push = append(out.Push, t)
			}
		}
	}

	states, err := c.States(ctx)
	if err != nil {
		return out, fmt.Errorf("list targets: %w", err)
	}
	for _, st := range states {
		id := strings.ToLower(st.EntityID)
		switch {
		case strings.HasPrefix(id, "notify.") && (strings.HasSuffix(id, "_speak") || strings.HasSuffix(id, "_announce")):
			out.Voice = append(out.Voice, Target{ID: st.EntityID, Name: st.FriendlyName(), Kind: TargetVoice})
		case strings.HasPrefix(id, "media_player.") && (strings.Contains(id, "alexa") || strings.Contains(id, "echo")):
			out.Voice = append(out.Voice, Target{ID: st.EntityID, Name: st.FriendlyName(), Kind: TargetVoice})
		}
	}

	sortTargets(out.Push)
	sortTargets(out.Voice)
	return out, nil
}

// FirstVoiceService returns the first alexa_media notify service, if any.
func (c *Client) FirstVoiceService(ctx context.Context) (string, error) {
	domains, err := c.Services(ctx)
	if err != nil {
		return "", err
	}
	var names []string
	for _, d := range domains {
		if d.Domain != "notify" {
			continue
		}
		for name := range d.Services {
			if strings.Contains(name, "alexa_media") {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return names[0], nil
}

// FirstSpeaker returns the first alexa media player entity, if any.
func (c *Client) FirstSpeaker(ctx context.Context) (string, error) {
	states, err := c.States(ctx)
	if err != nil {
		return "", err
	}
	for _, st := range states {
		id := strings.ToLower(st.EntityID)
		if strings.HasPrefix(id, "media_player.") && strings.Contains(id, "alexa") {
			return st.EntityID, nil
		}
	}
	return "", nil
}

func sortTargets(ts []Target) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}
