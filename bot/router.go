// Package bot implements the live chat bot core: command routing, the
// cursor-based polling loop, and the keyed session state (presence, cursor,
// processed markers) it persists between executions.
package bot

import "fmt"

// Message kinds as reported by the feed's snippet type.
const (
	KindTextMessage = "textMessageEvent"
	KindChatEnded   = "chatEndedEvent"
)

// Message is one chat message as returned by the feed. It is transient;
// nothing beyond its processed marker is ever stored.
type Message struct {
	ID          string
	Kind        string
	Text        string
	AuthorName  string
	IsModerator bool
	IsOwner     bool
}

// ActionKind classifies what the loop should do with a routed message.
type ActionKind int

const (
	// ActionContinue means no reaction; keep polling.
	ActionContinue ActionKind = iota
	// ActionReply means send Reply and keep polling.
	ActionReply
	// ActionLeave means send Reply, then exit the channel at the end of the page.
	ActionLeave
	// ActionSessionEnded means the chat itself ended; stop immediately.
	ActionSessionEnded
)

// String returns a human-readable name for the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionContinue:
		return "continue"
	case ActionReply:
		return "reply"
	case ActionLeave:
		return "leave"
	case ActionSessionEnded:
		return "session_ended"
	default:
		return "unknown"
	}
}

// Action is the routing result for a single message. Reply is set for
// ActionReply and ActionLeave.
type Action struct {
	Kind  ActionKind
	Reply string
}

// Route maps a message to the action the loop should take. It is pure: all
// side effects (sending replies, exiting) are performed by the caller.
func Route(m Message) Action {
	switch m.Kind {
	case KindChatEnded:
		return Action{Kind: ActionSessionEnded}
	case KindTextMessage:
		switch m.Text {
		case ".hi":
			return Action{Kind: ActionReply, Reply: fmt.Sprintf("Well hello there, %s!", m.AuthorName)}
		case ".leave":
			// Only moderators and the channel owner may dismiss the bot.
			if m.IsModerator || m.IsOwner {
				return Action{Kind: ActionLeave, Reply: fmt.Sprintf("Okay %s, I'm leaving the channel!", m.AuthorName)}
			}
			return Action{Kind: ActionContinue}
		}
	}
	return Action{Kind: ActionContinue}
}
