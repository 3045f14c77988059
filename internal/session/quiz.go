package session

import "sync"

type Round struct {
	Guess   string `json:"guess"`
	Correct string `json:"correct"`
	Result  bool   `json:"result"`
}

// QuizTally is the score of the current quiz game.
type QuizTally struct {
	mu     sync.Mutex
	rounds []Round
}

// Record scores a round. Labels must match exactly, since class names are
// case sensitive.
func (q *QuizTally) Record(guess, correct string) Round {
	r := Round{
		Guess:   guess,
		Correct: correct,
		Result:  guess == correct,
	}
	q.mu.Lock()
	q.rounds = append(q.rounds, r)
	q.mu.Unlock()
	return r
}

// Score returns the number of correct rounds and the number played.
func (q *QuizTally) Score() (int, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, r := range q.rounds {
		if r.Result {
			n++
		}
	}
	return n, len(q.rounds)
}

func (q *QuizTally) Rounds() []Round {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Round(nil), q.rounds...)
}

func (q *QuizTally) Reset() {
	q.mu.Lock()
	q.rounds = nil
	q.mu.Unlock()
}
