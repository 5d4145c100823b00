package main

import (
	"net/http"
	"net/url"
	"time"
)

const (
	dictionaryLenient = "lenient"
	dictionaryStrict  = "strict"

	dictionaryTimeout = 3 * time.Second
)

// Dictionary is the optional phrase-existence lookup. The service is
// expected to answer GET <url>?word=<phrase> with 200 for a known
// phrase and any other status for an unknown one. Lookups are bounded
// by a short client timeout so a slow service can never stall a turn.
type Dictionary struct {
	url    string
	strict bool
	client *http.Client
}

// newDictionary returns nil when no lookup service is configured,
// which disables the check entirely.
func newDictionary(cfg *Config) *Dictionary {
	if cfg.dictionaryURL == "" {
		return nil
	}
	return &Dictionary{
		url:    cfg.dictionaryURL,
		strict: cfg.dictionaryPolicy == dictionaryStrict,
		client: &http.Client{Timeout: dictionaryTimeout},
	}
}

// contains reports whether the service knows the phrase. A failed
// lookup resolves per the configured policy: lenient assumes the
// phrase is valid, strict assumes it is not.
func (d *Dictionary) contains(cfg *Config, phrase string) bool {
	resp, err := d.client.Get(d.url + "?word=" + url.QueryEscape(phrase))
	if err != nil {
		logf(cfg, "DICT: Lookup for %q failed: %v", phrase, err)
		return !d.strict
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
