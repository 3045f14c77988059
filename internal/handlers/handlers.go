package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Brownie44l1/asl-api/internal/config"
	"github.com/Brownie44l1/asl-api/internal/history"
	"github.com/Brownie44l1/asl-api/internal/live"
	"github.com/Brownie44l1/asl-api/internal/model"
	"github.com/Brownie44l1/asl-api/internal/session"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Dictionary looks up the meaning of a finished word. It never fails.
type Dictionary interface {
	Lookup(ctx context.Context, word string) string
}

type Handler struct {
	log      logs.Log
	loader   *model.Loader
	history  *history.Store
	dict     Dictionary
	sessions *session.Store
	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewHandler(log logs.Log, loader *model.Loader, store *history.Store, dict Dictionary, cfg *config.Config) *Handler {
	h := &Handler{
		log:     log,
		loader:  loader,
		history: store,
		dict:    dict,
		cfg:     cfg,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}
	h.sessions = session.NewStore(session.Options{
		MaxLetters:  cfg.Word.MaxLetters,
		MaxSessions: cfg.Sessions.Max,
		IdleTTL:     cfg.Sessions.IdleTTL,
		NewWatcher: func(slot *live.Slot) *live.Watcher {
			return live.NewWatcher(h.predictFrame, cfg.Live.Cooldown)
		},
	})
	return h
}

func (h *Handler) Sessions() *session.Store {
	return h.sessions
}

// Router returns every API route behind the CORS middleware.
func (h *Handler) Router() http.Handler {
	router := httprouter.New()

	handle := func(method, path string, handle httprouter.Handle) {
		www.Handle(h.log, router, method, path, handle)
	}
	limited := func(method, path string, handle httprouter.Handle) {
		if h.cfg.Server.RateLimit <= 0 {
			www.Handle(h.log, router, method, path, handle)
			return
		}
		limiter := httprate.Limit(h.cfg.Server.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(h.log, router, method, path, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/health", h.Health)
	limited("POST", "/api/predict", h.Predict)
	limited("POST", "/api/predict/image", h.PredictFromImage)
	limited("POST", "/api/predict/raw", h.PredictRaw)

	handle("GET", "/api/sessions", h.ListSessions)
	limited("POST", "/api/sessions", h.CreateSession)
	handle("GET", "/api/sessions/:id", h.GetSession)
	handle("DELETE", "/api/sessions/:id", h.DeleteSession)
	handle("GET", "/api/sessions/:id/live/feed", h.LiveFeed)
	handle("GET", "/api/sessions/:id/live/latest", h.LiveLatest)
	limited("POST", "/api/sessions/:id/live/snapshot", h.LiveSnapshot)
	limited("POST", "/api/sessions/:id/word/letters", h.AddLetter)
	handle("POST", "/api/sessions/:id/word/reset", h.ResetWord)
	handle("POST", "/api/sessions/:id/word/finish", h.FinishWord)
	limited("POST", "/api/sessions/:id/quiz/rounds", h.QuizRound)
	handle("POST", "/api/sessions/:id/quiz/reset", h.ResetQuiz)

	handle("GET", "/api/history", h.History)
	handle("GET", "/api/history/:source", h.HistorySource)
	handle("GET", "/api/history/:source/image", h.HistoryImage)

	return h.enableCORS(router)
}

func (h *Handler) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", h.cfg.Server.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || h.cfg.Server.CORSOrigin == "*" || origin == h.cfg.Server.CORSOrigin
}

// classifier returns the loaded model, or panics with 503 and the remedy if
// it cannot be loaded.
func (h *Handler) classifier() *model.Classifier {
	clf, err := h.loader.Get()
	h.check(err)
	return clf
}

func (h *Handler) predictFrame(f *model.Frame) (*model.PredictionResult, error) {
	clf, err := h.loader.Get()
	if err != nil {
		return nil, err
	}
	return clf.Predict(f)
}

// check turns err into the matching HTTP error.
func (h *Handler) check(err error) {
	if err == nil {
		return
	}
	var loadErr *model.LoadError
	var prepErr *model.PreprocessError
	var persistErr *history.PersistError
	switch {
	case errors.As(err, &loadErr):
		h.log.Errorf("%v", loadErr)
		www.Panic(http.StatusServiceUnavailable, loadErr.Remedy())
	case errors.As(err, &prepErr):
		www.PanicBadRequestf("%v", prepErr)
	case errors.As(err, &persistErr):
		h.log.Errorf("%v", persistErr)
		www.PanicServerErrorf("Record not saved: %v", persistErr)
	case errors.Is(err, live.ErrNoFrame),
		errors.Is(err, session.ErrWordComplete),
		errors.Is(err, session.ErrWordIncomplete):
		www.Panic(http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrTooManySessions):
		www.Panic(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, session.ErrNotFound):
		www.PanicNotFound()
	case errors.Is(err, session.ErrWordLength),
		errors.Is(err, history.ErrUnknownSource):
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)
}

func (h *Handler) session(params httprouter.Params) *session.Session {
	sess, err := h.sessions.Get(params.ByName("id"))
	h.check(err)
	return sess
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUpload)
	if err := r.ParseMultipartForm(h.cfg.Server.MaxUpload); err != nil {
		www.PanicBadRequestf("Failed to parse form: %v", err)
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func decodeUpload(fh *multipart.FileHeader) (image.Image, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("invalid image format (supported: JPEG, PNG, WebP, BMP): %w", err)
	}
	return img, nil
}

// formImage decodes the single "image" file of a multipart request. It
// returns nil if the request has none.
func formImage(r *http.Request) (image.Image, string) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["image"]) == 0 {
		return nil, ""
	}
	fh := r.MultipartForm.File["image"][0]
	img, err := decodeUpload(fh)
	if err != nil {
		www.PanicBadRequestf("%v: %v", fh.Filename, err)
	}
	return img, fh.Filename
}

func warningStrings(res *history.SaveResult) []string {
	if res == nil || len(res.Warnings) == 0 {
		return nil
	}
	out := make([]string, len(res.Warnings))
	for i, w := range res.Warnings {
		out[i] = w.Error()
	}
	return out
}
