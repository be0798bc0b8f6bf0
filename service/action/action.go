package action

const (
	Reply    = "reply"
	MarkRead = "mark_read"
	Dismiss  = "dismiss"
)

type Descriptor struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Icon             string `json:"icon,omitempty"`
	RequiresInput    bool   `json:"requiresInput,omitempty"`
	InputPlaceholder string `json:"inputPlaceholder,omitempty"`
}

func (d Descriptor) Kind() Kind {
	return Classify(d.ID, d.RequiresInput)
}

type Kind int

const (
	AppOpening Kind = iota
	Silent
)

func (k Kind) String() string {
	if k == Silent {
		return "silent"
	}
	return "app-opening"
}

// Classify is the only place that decides whether an action may bring the
// application to the foreground. Renderers and the dispatch router both call it.
func Classify(id string, requiresInput bool) Kind {
	if requiresInput {
		return Silent
	}
	switch id {
	case Reply, MarkRead, Dismiss:
		return Silent
	default:
		return AppOpening
	}
}
