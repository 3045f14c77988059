package handlers

import (
	"net/http"
	"time"

	"github.com/Brownie44l1/asl-api/internal/history"
	"github.com/Brownie44l1/asl-api/internal/live"
	"github.com/Brownie44l1/asl-api/internal/model"
	"github.com/Brownie44l1/asl-api/internal/session"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

const maxControlBody = 64 * 1024

type wordJSON struct {
	Target   int                      `json:"target"`
	Letters  []session.CapturedLetter `json:"letters"`
	Word     string                   `json:"word"`
	Complete bool                     `json:"complete"`
}

type quizJSON struct {
	Score  int             `json:"score"`
	Played int             `json:"played"`
	Rounds []session.Round `json:"rounds"`
}

type sessionJSON struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	LastFrame uint64        `json:"last_frame"`
	Reading   *live.Reading `json:"reading,omitempty"`
	Word      wordJSON      `json:"word"`
	Quiz      quizJSON      `json:"quiz"`
}

func describeWord(wb *session.WordBuilder) wordJSON {
	letters := wb.Letters()
	if letters == nil {
		letters = []session.CapturedLetter{}
	}
	return wordJSON{
		Target:   wb.Target(),
		Letters:  letters,
		Word:     wb.Word(),
		Complete: wb.Complete(),
	}
}

func describeQuiz(q *session.QuizTally) quizJSON {
	score, played := q.Score()
	rounds := q.Rounds()
	if rounds == nil {
		rounds = []session.Round{}
	}
	return quizJSON{Score: score, Played: played, Rounds: rounds}
}

func describeSession(sess *session.Session) *sessionJSON {
	out := &sessionJSON{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		Word:      describeWord(sess.Word),
		Quiz:      describeQuiz(sess.Quiz),
	}
	if snap, err := sess.Live.Latest(); err == nil {
		out.LastFrame = snap.Seq
	}
	if sess.Watcher != nil {
		out.Reading, _ = sess.Watcher.Latest()
	}
	return out
}

type wordLengthJSON struct {
	WordLength int `json:"word_length"`
}

func (h *Handler) readWordLength(w http.ResponseWriter, r *http.Request) int {
	if r.ContentLength == 0 {
		return 0
	}
	req := wordLengthJSON{}
	www.ReadJSON(w, r, &req, maxControlBody)
	return req.WordLength
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	n := h.readWordLength(w, r)
	if n == 0 {
		n = 1
	}
	sess, err := h.sessions.Create(n)
	h.check(err)
	h.log.Infof("Created session %v (word length %v)", sess.ID, n)
	www.SendJSON(w, describeSession(sess))
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	all := []*sessionJSON{}
	for _, sess := range h.sessions.All() {
		all = append(all, describeSession(sess))
	}
	www.SendJSON(w, all)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, describeSession(h.session(params)))
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if !h.sessions.Delete(params.ByName("id")) {
		www.PanicNotFound()
	}
	www.SendOK(w)
}

// LiveFeed upgrades to a websocket that receives camera frames for the session.
func (h *Handler) LiveFeed(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := h.session(params)

	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("LiveFeed websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()

	h.log.Infof("Live feed opened for session %v", sess.ID)
	feed := &live.Feed{
		Slot:    sess.Live,
		Watcher: sess.Watcher,
		Log:     logs.NewPrefixLogger(h.log, "live "+sess.ID[:8]+":"),
	}
	feed.Run(c)
	h.log.Infof("Live feed closed for session %v", sess.ID)
}

// LiveLatest returns the last cooldown prediction made on the feed.
func (h *Handler) LiveLatest(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := h.session(params)
	reading, ok := sess.Watcher.Latest()
	if !ok {
		h.check(live.ErrNoFrame)
	}
	www.SendJSON(w, reading)
}

// LiveSnapshot classifies the latest frame and records it under "live".
func (h *Handler) LiveSnapshot(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := h.session(params)
	snap, err := sess.Live.Latest()
	h.check(err)
	clf := h.classifier()

	result, err := clf.Predict(snap.Frame)
	h.check(err)
	img, err := snap.Frame.Image()
	h.check(err)

	file := "live_" + snap.At.Format(history.FileStampLayout) + ".jpg"
	entry := history.NewPredictionEntry(file, result, img)
	saved, err := h.history.Save(history.SourceLive, entry)
	h.check(err)

	out := newPredictionJSON(file, result)
	out.Image = entry.ImagePath
	out.Timestamp = saved.Timestamp
	out.Warnings = warningStrings(saved)
	www.SendJSON(w, out)
}

type letterJSON struct {
	Letter     string   `json:"letter"`
	Confidence float32  `json:"confidence"`
	Count      int      `json:"count"`
	Word       wordJSON `json:"word"`
}

// AddLetter predicts one letter of the word, from an uploaded "image" or, when
// there is none, from the latest live frame.
func (h *Handler) AddLetter(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := h.session(params)
	clf := h.classifier()

	var frame *model.Frame
	if isMultipart(r) {
		h.parseMultipart(w, r)
		if img, _ := formImage(r); img != nil {
			frame = model.FrameFromImage(img)
		}
	}
	if frame == nil {
		snap, err := sess.Live.Latest()
		h.check(err)
		frame = snap.Frame
	}

	result, err := clf.Predict(frame)
	h.check(err)
	n, err := sess.Word.Add(result.Label, result.Confidence, frame)
	h.check(err)

	www.SendJSON(w, &letterJSON{
		Letter:     result.Label,
		Confidence: result.Confidence,
		Count:      n,
		Word:       describeWord(sess.Word),
	})
}

// ResetWord clears the captured letters, optionally changing the word length.
func (h *Handler) ResetWord(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := h.session(params)
	n := h.readWordLength(w, r)
	h.check(sess.Word.Reset(n, h.sessions.MaxLetters))
	www.SendJSON(w, describeWord(sess.Word))
}

// FinishWord looks up the meaning of the complete word, records it under
// "word" and starts a new word of the same length.
func (h *Handler) FinishWord(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := h.session(params)
	finished, err := sess.Word.Finish()
	h.check(err)

	meaning := h.dict.Lookup(r.Context(), finished.Word)

	entry := &history.WordEntry{
		Word:     finished.Word,
		Meaning:  meaning,
		File:     finished.Word + ".jpg",
		Payloads: finished.Images,
	}
	for _, l := range finished.Letters {
		entry.Letters = append(entry.Letters, history.Letter{Label: l.Label})
	}
	saved, err := h.history.Save(history.SourceWord, entry)
	h.check(err)
	h.check(sess.Word.Reset(0, h.sessions.MaxLetters))

	www.SendJSON(w, map[string]any{
		"record":   entry,
		"warnings": warningStrings(saved),
	})
}

// QuizRound scores one round. The guess is taken from the form, or predicted
// from the uploaded image when absent.
func (h *Handler) QuizRound(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := h.session(params)
	if isMultipart(r) {
		h.parseMultipart(w, r)
	} else if err := r.ParseForm(); err != nil {
		www.PanicBadRequestf("Failed to parse form: %v", err)
	}

	correct := r.FormValue("correct")
	if correct == "" {
		www.PanicBadRequestf("'correct' is required")
	}
	guess := r.FormValue("guess")
	img, _ := formImage(r)
	if guess == "" {
		if img == nil {
			www.PanicBadRequestf("Either 'guess' or 'image' is required")
		}
		result, err := h.classifier().PredictImage(img)
		h.check(err)
		guess = result.Label
	}

	round := sess.Quiz.Record(guess, correct)
	entry := &history.QuizEntry{
		Guess:   round.Guess,
		Correct: round.Correct,
		Result:  round.Result,
		Image:   img,
	}
	saved, err := h.history.Save(history.SourceQuiz, entry)
	h.check(err)

	score, played := sess.Quiz.Score()
	www.SendJSON(w, map[string]any{
		"round":    round,
		"record":   entry,
		"score":    score,
		"played":   played,
		"warnings": warningStrings(saved),
	})
}

// ResetQuiz starts a new game. Saved quiz history is kept.
func (h *Handler) ResetQuiz(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	sess := h.session(params)
	sess.Quiz.Reset()
	www.SendJSON(w, describeQuiz(sess.Quiz))
}
