package rule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"rule-console/internal/logger"
)

// DraftLoader reads rule drafts from the filesystem
type DraftLoader struct {
	logger *logger.Logger
}

// NewDraftLoader creates a new draft loader
func NewDraftLoader(log *logger.Logger) *DraftLoader {
	return &DraftLoader{
		logger: log,
	}
}

// LoadFile reads one draft or a list of drafts from a JSON or YAML file
func (l *DraftLoader) LoadFile(path string) ([]Draft, error) {
	l.logger.Debug("loading draft file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Error("failed to read draft file",
			"path", path,
			"error", err)
		return nil, fmt.Errorf("failed to read draft file: %w", err)
	}

	var drafts []Draft
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		drafts, err = decodeYAML(data)
	case ".json":
		drafts, err = decodeJSON(data)
	default:
		return nil, fmt.Errorf("unsupported draft file extension: %s", filepath.Ext(path))
	}
	if err != nil {
		l.logger.Error("failed to parse draft file",
			"path", path,
			"error", err)
		return nil, fmt.Errorf("failed to parse draft file %s: %w", path, err)
	}

	l.logger.Debug("successfully loaded drafts",
		"path", path,
		"count", len(drafts))

	return drafts, nil
}

// LoadValues reads a sample submission used for previews
func (l *DraftLoader) LoadValues(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read submission file: %w", err)
	}

	values := make(map[string]interface{})
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &values)
	default:
		err = json.Unmarshal(data, &values)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse submission file %s: %w", path, err)
	}

	return values, nil
}

func decodeJSON(data []byte) ([]Draft, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var drafts []Draft
		if err := json.Unmarshal(trimmed, &drafts); err != nil {
			return nil, err
		}
		return drafts, nil
	}

	var draft Draft
	if err := json.Unmarshal(trimmed, &draft); err != nil {
		return nil, err
	}
	return []Draft{draft}, nil
}

func decodeYAML(data []byte) ([]Draft, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	if node.Content[0].Kind == yaml.SequenceNode {
		var drafts []Draft
		if err := node.Decode(&drafts); err != nil {
			return nil, err
		}
		return drafts, nil
	}

	var draft Draft
	if err := node.Decode(&draft); err != nil {
		return nil, err
	}
	return []Draft{draft}, nil
}
