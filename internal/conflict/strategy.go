package conflict

// Strategy decides which side wins a conflict.
type Strategy string

const (
	// Manual writes both sides into the local file between conflict markers.
	Manual     Strategy = "manual"
	LocalWins  Strategy = "local-wins"
	RemoteWins Strategy = "remote-wins"
)

var Strategies = []Strategy{Manual, LocalWins, RemoteWins}

func (s Strategy) Valid() bool {
	switch s {
	case Manual, LocalWins, RemoteWins:
		return true
	}
	return false
}

// Automatic reports whether the strategy settles a conflict without user edits.
func (s Strategy) Automatic() bool {
	return s == LocalWins || s == RemoteWins
}

func (s Strategy) String() string { return string(s) }

func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(s)
	if !st.Valid() {
		return "", &Error{Strategy: s}
	}
	return st, nil
}
