package conversation

import "strings"

// History is the ordered committed transcript of a conversation.
type History []Message

func (h History) BySender(senders ...Sender) History {
	ret := History{}
	for _, m := range h {
		for _, s := range senders {
			if m.Sender == s {
				ret = append(ret, m)
				break
			}
		}
	}
	return ret
}

// Transcript is what the user sees: context directives are hidden.
func (h History) Transcript() History {
	return h.BySender(SenderUser, SenderAssistant, SenderSystemError)
}

// Submittable is the history sent to the model, context messages included at
// their insertion position. System errors are never sent.
func (h History) Submittable() History {
	return h.BySender(SenderUser, SenderAssistant, SenderContext)
}

func (h History) Directives() History {
	ret := History{}
	for _, m := range h {
		if m.IsDirective() {
			ret = append(ret, m)
		}
	}
	return ret
}

func (h History) Last() (Message, bool) {
	if len(h) == 0 {
		return Message{}, false
	}
	return h[len(h)-1], true
}

func (h History) Contains(m Message) bool {
	for _, m_ := range h {
		if m_.ID == m.ID {
			return true
		}
	}
	return false
}

func (h History) String() string {
	lines := make([]string, 0, len(h))
	for _, m := range h {
		lines = append(lines, m.String())
	}
	return strings.Join(lines, "\n")
}
