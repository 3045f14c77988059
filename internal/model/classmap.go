package model

import (
	"encoding/json"
	"errors"
	"os"
)

// Metadata is the older export format, where the class list sits beside the
// tensor shapes. LoadClassMap accepts it as well as a bare JSON array.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// LoadClassMap reads the ordered label list written next to the model at
// training time.
func LoadClassMap(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var classes []string
	if err := json.Unmarshal(raw, &classes); err != nil {
		var meta Metadata
		if err2 := json.Unmarshal(raw, &meta); err2 != nil || meta.Classes == nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		classes = meta.Classes
	}

	if len(classes) == 0 {
		return nil, &LoadError{Path: path, Err: errors.New("class map is empty")}
	}
	return classes, nil
}
