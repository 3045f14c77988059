package model

import "sort"

// PredictionRequest is the body of the raw tensor endpoint. Image must hold
// exactly one preprocessed input tensor.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResult struct {
	Label      string             `json:"label"`
	Index      int                `json:"index"`
	Confidence float32            `json:"confidence"`
	Probs      map[string]float32 `json:"probs"`

	scores  []float32
	classes []string
}

// Ranked is one label/probability pair of a top-K list.
type Ranked struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

func newResult(classes []string, scores []float32) *PredictionResult {
	maxIdx := 0
	maxVal := scores[0]
	probs := make(map[string]float32, len(classes))

	for i, val := range scores {
		probs[classes[i]] = val
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}

	return &PredictionResult{
		Label:      classes[maxIdx],
		Index:      maxIdx,
		Confidence: maxVal,
		Probs:      probs,
		scores:     scores,
		classes:    classes,
	}
}

// TopK returns the k most probable labels, highest first. Equal scores keep
// class-map order.
func (p *PredictionResult) TopK(k int) []Ranked {
	if k <= 0 {
		return nil
	}
	ranked := make([]Ranked, 0, len(p.scores))
	if p.scores != nil {
		for i, v := range p.scores {
			ranked = append(ranked, Ranked{Label: p.classes[i], Confidence: v})
		}
	} else {
		// Results decoded from JSON only carry the map
		for label, v := range p.Probs {
			ranked = append(ranked, Ranked{Label: label, Confidence: v})
		}
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].Label < ranked[j].Label })
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Confidence > ranked[j].Confidence })
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
