// Package dictionary looks up English word definitions on the Free Dictionary API.
package dictionary

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
)

const (
	DefaultBaseURL = "https://api.dictionaryapi.dev/api/v2/entries/en"
	DefaultTimeout = 5 * time.Second

	// NoMeaning is returned whenever a definition cannot be found.
	NoMeaning = "No valid meaning found."
)

type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Client struct {
	baseURL string
	timeout time.Duration
	log     logs.Log
}

func New(cfg Config, log logs.Log) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		log:     logs.NewPrefixLogger(log, "dictionary:"),
	}
}

type entry struct {
	Meanings []struct {
		Definitions []struct {
			Definition string `json:"definition"`
		} `json:"definitions"`
	} `json:"meanings"`
}

// Lookup returns the first definition of the first meaning of word, or
// NoMeaning if there is none or the service could not be reached.
func (c *Client) Lookup(ctx context.Context, word string) string {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return NoMeaning
	}
	def, err := c.lookup(ctx, word)
	if err != nil {
		c.log.Warnf("Lookup of %q failed: %v", word, err)
		return NoMeaning
	}
	return def
}

func (c *Client) lookup(ctx context.Context, word string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/"+url.PathEscape(word), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	entries := []entry{}
	if err := www.FetchJSON(req, &entries); err != nil {
		return "", err
	}
	if len(entries) == 0 || len(entries[0].Meanings) == 0 || len(entries[0].Meanings[0].Definitions) == 0 {
		return "", errors.New("no definitions")
	}
	def := strings.TrimSpace(entries[0].Meanings[0].Definitions[0].Definition)
	if def == "" {
		return "", errors.New("empty definition")
	}
	return def, nil
}
