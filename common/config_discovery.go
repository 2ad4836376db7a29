package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/v2"
)

// ConfigFileSearch is the outcome of looking for ConfigFileCandidates in a
// directory.
type ConfigFileSearch struct {
	// Chosen is the first candidate present, or empty when none is.
	Chosen string
	// Found lists every candidate present, in precedence order. More than
	// one usually means a stale file was left behind.
	Found []string
}

// FindConfigFile looks for ConfigFileCandidates in dir. Directories named
// like a candidate are skipped.
func FindConfigFile(dir string) ConfigFileSearch {
	var search ConfigFileSearch
	for _, candidate := range ConfigFileCandidates {
		path := filepath.Join(dir, candidate)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		search.Found = append(search.Found, path)
		if search.Chosen == "" {
			search.Chosen = path
		}
	}
	return search
}

// ParserFor picks the koanf parser for a config file by its extension.
func ParserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return yaml.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s", path)
	}
}
