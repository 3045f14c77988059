package handlers

import (
	"errors"
	"image"
	"net/http"

	"github.com/Brownie44l1/asl-api/internal/history"
	"github.com/Brownie44l1/asl-api/internal/model"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

const topK = 5

type predictionJSON struct {
	File       string             `json:"file,omitempty"`
	Label      string             `json:"label,omitempty"`
	Index      int                `json:"index"`
	Confidence float32            `json:"confidence"`
	Top5       []model.Ranked     `json:"top5,omitempty"`
	Probs      map[string]float32 `json:"probs,omitempty"`
	Image      string             `json:"image,omitempty"`
	Timestamp  string             `json:"timestamp,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func newPredictionJSON(file string, res *model.PredictionResult) *predictionJSON {
	return &predictionJSON{
		File:       file,
		Label:      res.Label,
		Index:      res.Index,
		Confidence: res.Confidence,
		Top5:       res.TopK(topK),
		Probs:      res.Probs,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, map[string]any{
		"status": "healthy",
		"model":  h.loader.Loaded(),
	})
}

// Predict runs an already preprocessed tensor.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	clf := h.classifier()

	var req model.PredictionRequest
	www.ReadJSON(w, r, &req, h.cfg.Server.MaxUpload)

	result, err := clf.PredictTensor(req.Image)
	h.check(err)

	www.SendJSON(w, newPredictionJSON("", result))
}

// PredictFromImage classifies every "image" file of a multipart upload. A
// file that cannot be decoded or classified is reported in its own result.
// Results are recorded under "upload" unless save=false.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	clf := h.classifier()
	h.parseMultipart(w, r)
	save := www.QueryValue(r, "save") != "false"

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		www.PanicBadRequestf("No image file provided. Use 'image' as the form field name")
	}

	results := []*predictionJSON{}
	for _, fh := range files {
		h.log.Infof("Received file: %s, size: %d bytes", fh.Filename, fh.Size)
		img, err := decodeUpload(fh)
		if err != nil {
			results = append(results, &predictionJSON{File: fh.Filename, Index: -1, Error: err.Error()})
			continue
		}

		result, err := clf.PredictImage(img)
		if err != nil {
			var prepErr *model.PreprocessError
			if !errors.As(err, &prepErr) {
				h.check(err)
			}
			results = append(results, &predictionJSON{File: fh.Filename, Index: -1, Error: err.Error()})
			continue
		}

		out := newPredictionJSON(fh.Filename, result)
		if save {
			h.saveUpload(out, fh.Filename, result, img)
		}
		results = append(results, out)
	}

	www.SendJSON(w, map[string]any{"results": results})
}

func (h *Handler) saveUpload(out *predictionJSON, file string, result *model.PredictionResult, img image.Image) {
	entry := history.NewPredictionEntry(file, result, img)
	saved, err := h.history.Save(history.SourceUpload, entry)
	h.check(err)
	out.Image = entry.ImagePath
	out.Timestamp = saved.Timestamp
	out.Warnings = warningStrings(saved)
}

// PredictRaw classifies a bare pixel buffer, as delivered by a camera. The
// query names its width, height, channels and channel order.
func (h *Handler) PredictRaw(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	clf := h.classifier()

	order, ok := model.ParseChannelOrder(www.QueryValue(r, "order"))
	if !ok {
		www.PanicBadRequestf("Unknown channel order '%v'", www.QueryValue(r, "order"))
	}
	channels := www.QueryInt(r, "channels")
	if channels == 0 {
		channels = 3
	}
	width := www.QueryInt(r, "width")
	height := www.QueryInt(r, "height")
	if width <= 0 || height <= 0 || width > model.MaxDimension || height > model.MaxDimension {
		www.PanicBadRequestf("width and height must be 1 to %d", model.MaxDimension)
	}
	frame := &model.Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Order:    order,
		Pix:      www.ReadLimited(w, r, h.cfg.Server.MaxUpload),
	}

	result, err := clf.Predict(frame)
	h.check(err)

	www.SendJSON(w, newPredictionJSON("", result))
}
