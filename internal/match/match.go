// internal/match/match.go
package match

import "sync"

// State is the lifecycle phase of a match. Transitions only run
// Waiting -> Playing -> Finished; Finished is terminal.
type State string

const (
	StateWaiting  State = "waiting"
	StatePlaying  State = "playing"
	StateFinished State = "finished"
)

// Question is one trivia question. The reference answer is carried for the
// final reveal; the core never grades against it.
type Question struct {
	ID     int    `json:"id"`
	Text   string `json:"text"`
	Answer string `json:"answer"`
}

// Match holds the entire state for one trivia session in memory.
//
// Players preserves join order and never contains duplicates; HostID is a
// member of Players at all times and is set once at creation. CurrentIndex
// is the index of the next question to broadcast, so answers for the
// question currently on screen are keyed by the already-incremented index.
type Match struct {
	ID        string
	HostID    string
	Players   []string
	Names     map[string]string
	State     State
	Questions []Question

	CurrentIndex int
	// Answers maps question index -> player id -> submitted text.
	Answers map[int]map[string]string

	// advancePending tracks indices for which an advance timer has been
	// scheduled, so resubmissions cannot re-trigger it.
	advancePending map[int]bool

	// Mu serializes every mutation of this match. All mutating manager
	// operations hold it; timer callbacks re-acquire it when they fire.
	Mu sync.Mutex
}

// newMatch builds a Waiting match with the host as its first player.
func newMatch(id, hostID, hostName string, questions []Question) *Match {
	return &Match{
		ID:             id,
		HostID:         hostID,
		Players:        []string{hostID},
		Names:          map[string]string{hostID: hostName},
		State:          StateWaiting,
		Questions:      questions,
		Answers:        make(map[int]map[string]string),
		advancePending: make(map[int]bool),
	}
}

// hasPlayer reports whether userID already joined. Assumes Mu is held.
func (m *Match) hasPlayer(userID string) bool {
	for _, id := range m.Players {
		if id == userID {
			return true
		}
	}
	return false
}

// removePlayer undoes an optimistic join after a persistence failure.
// Assumes Mu is held.
func (m *Match) removePlayer(userID string) {
	for i, id := range m.Players {
		if id == userID {
			m.Players = append(m.Players[:i], m.Players[i+1:]...)
			break
		}
	}
	delete(m.Names, userID)
}

// allAnswered reports whether every current player has an answer stored
// for the current index. Assumes Mu is held.
func (m *Match) allAnswered() bool {
	byPlayer := m.Answers[m.CurrentIndex]
	if byPlayer == nil {
		return false
	}
	for _, id := range m.Players {
		if _, ok := byPlayer[id]; !ok {
			return false
		}
	}
	return true
}

// playersSnapshot copies the player list for use outside the lock.
func (m *Match) playersSnapshot() []string {
	out := make([]string, len(m.Players))
	copy(out, m.Players)
	return out
}

// answersSnapshot deep-copies the answer map for the final broadcast.
func (m *Match) answersSnapshot() map[int]map[string]string {
	out := make(map[int]map[string]string, len(m.Answers))
	for idx, byPlayer := range m.Answers {
		inner := make(map[string]string, len(byPlayer))
		for id, text := range byPlayer {
			inner[id] = text
		}
		out[idx] = inner
	}
	return out
}
