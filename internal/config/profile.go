package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cortexlens/contextd/internal/apperr"
)

// ProfileEnvVar selects a named profile JSON file under
// <root>/.context/profiles/<name>.json (spec.md §6.4).
const ProfileEnvVar = "CONTEXT_PROFILE"

// ProfileOverride is the subset of Config a profile JSON is allowed to
// replace. Profiles only override the embedding model set today — path
// and chunking overrides stay with the layered config.yml/env loader.
type ProfileOverride struct {
	Models []ModelConfig
}

// profileDoc mirrors the on-disk JSON shape:
//
//	{"embedding": {"models": [{"id": "...", "provider": "...", ...}]}}
type profileDoc struct {
	Embedding struct {
		Models []ModelConfig `json:"models"`
		Query  map[string]any `json:"query"`
	} `json:"embedding"`
}

// LoadProfile loads the profile named by CONTEXT_PROFILE, if set. It
// returns (nil, nil) when the env var is unset. An invalid profile
// fails closed: the returned error names the offending JSON path
// (spec.md §6.4 "invalid profile schema fails closed, naming the
// offending JSON path").
func LoadProfile(rootDir string) (*ProfileOverride, error) {
	name := os.Getenv(ProfileEnvVar)
	if name == "" {
		return nil, nil
	}

	path := filepath.Join(rootDir, ".context", "profiles", name+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidRequest, err,
			"profile %q: cannot read %s", name, path).
			WithHint("set CONTEXT_PROFILE to an existing .context/profiles/<name>.json, or unset it")
	}

	var raw2 map[string]any
	if err := json.Unmarshal(raw, &raw2); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidRequest, err, "profile %s: invalid JSON", path)
	}
	if badPath, err := validateProfileSchema(raw2); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidRequest, err, "profile %s: %s", path, badPath)
	}

	var doc profileDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidRequest, err, "profile %s: invalid JSON", path)
	}
	if len(doc.Embedding.Models) == 0 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "profile %s: embedding.models is empty", path)
	}
	return &ProfileOverride{Models: doc.Embedding.Models}, nil
}

// validateProfileSchema walks the small part of the profile schema
// that isn't otherwise covered by Go struct field names: the
// `embedding.query` template map is restricted to the query kinds
// §4.8 recognizes (identifier/path/conceptual). Any other key is
// reported by its full dotted JSON path so the caller can locate it.
func validateProfileSchema(doc map[string]any) (string, error) {
	embedding, ok := doc["embedding"].(map[string]any)
	if !ok {
		return "", nil
	}
	query, ok := embedding["query"].(map[string]any)
	if !ok {
		return "", nil
	}
	for key, val := range query {
		path := fmt.Sprintf("embedding.query.%s", key)
		if !recognizedQueryKinds[key] {
			return path, fmt.Errorf("unrecognized query kind %q (expected one of identifier, path, conceptual)", key)
		}
		if _, ok := val.(string); !ok {
			return path, fmt.Errorf("must be a string template, got %T", val)
		}
	}
	return "", nil
}
