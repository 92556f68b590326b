package session

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/omochice/linkchat/pkg/protocol"
)

const avatarURLTemplate = "https://avatars.dicebear.com/api/adventurer-neutral/%s.svg"

// AvatarURL derives the avatar location for a participant name.
func AvatarURL(name string) string {
	return fmt.Sprintf(avatarURLTemplate, url.PathEscape(name))
}

var imageSuffixes = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// IsImageLink reports whether body is a bare link to an image, which front
// ends show as an image rather than text.
func IsImageLink(body string) bool {
	if !strings.HasPrefix(body, "http") {
		return false
	}
	return slices.ContainsFunc(imageSuffixes, func(ext string) bool {
		return strings.HasSuffix(body, ext)
	})
}

// DisplayBody returns body as a terminal shows it. Image links are tagged.
func DisplayBody(body string) string {
	if IsImageLink(body) {
		return "[image] " + body
	}
	return body
}

// Phase is the connection state of a session.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseJoined
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// Participant is one roster entry.
type Participant struct {
	Name      string
	AvatarURL string
	Online    bool
}

func newParticipant(name string, online bool) Participant {
	return Participant{Name: name, AvatarURL: AvatarURL(name), Online: online}
}

// State is a snapshot of everything the presentation layer shows.
// Snapshots handed out by the engine share no memory with it.
type State struct {
	Phase Phase
	// Roster is in server order, duplicates included.
	Roster []Participant
	// Transcript is append-only, in arrival order.
	Transcript []protocol.ChatMessage
	Connected  bool
	// LastError is empty when there is no error to show.
	LastError string
	Draft     string
}

// Participant returns the roster entry for name. Names missing from the
// current roster, such as past senders, get an offline entry that is not
// added to the roster.
func (s State) Participant(name string) Participant {
	for _, p := range s.Roster {
		if p.Name == name {
			return p
		}
	}
	return newParticipant(name, false)
}

func (s State) clone() State {
	s.Roster = slices.Clone(s.Roster)
	s.Transcript = slices.Clone(s.Transcript)
	return s
}
