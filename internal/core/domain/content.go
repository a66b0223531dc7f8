package domain

// Action is an inline button. Exactly one of Data or URL is set.
type Action struct {
	Label string
	Data  string
	URL   string
}

// Content is a transport-neutral message: HTML text or a photo with an HTML caption.
type Content struct {
	Text    string
	Photo   string
	Actions [][]Action
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Incoming is a message received from a user: either text or a photo.
type Incoming struct {
	Text  string
	Photo string
}

func (m Incoming) Empty() bool {
	return m.Text == "" && m.Photo == ""
}
