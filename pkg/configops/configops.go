// Package configops edits the JSON config file by dotted key path, e.g.
// "telegram.control_chat_id", without going through the typed Config.
package configops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tgrelay/pkg/config"
)

// LoadMap reads the config file as a generic map. A missing file yields the
// defaults so "config set" can bootstrap a fresh install.
func LoadMap(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		data, err = json.Marshal(config.DefaultConfig())
		if err != nil {
			return nil, err
		}
	}

	var cfgMap map[string]interface{}
	if err := json.Unmarshal(data, &cfgMap); err != nil {
		return nil, err
	}
	return cfgMap, nil
}

func NormalizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), ".")
}

// ParseValue guesses the JSON type of a command-line value. A value
// containing "|" becomes a list, matching the env overlay for list keys.
func ParseValue(raw string) interface{} {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && strings.Contains(v, ".") {
		return f
	}
	if len(v) >= 2 && ((v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'')) {
		return v[1 : len(v)-1]
	}
	if strings.Contains(v, "|") {
		parts := strings.Split(v, "|")
		out := make([]interface{}, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	}
	return v
}

func Set(root map[string]interface{}, path string, value interface{}) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	parts := strings.Split(path, ".")
	cur := root
	for _, key := range parts[:len(parts)-1] {
		if key == "" {
			return fmt.Errorf("invalid path: %s", path)
		}
		next, ok := cur[key]
		if !ok {
			child := map[string]interface{}{}
			cur[key] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("path segment is not an object: %s", key)
		}
		cur = child
	}
	last := parts[len(parts)-1]
	if last == "" {
		return fmt.Errorf("invalid path: %s", path)
	}
	cur[last] = value
	return nil
}

func Get(root map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	var cur interface{} = root
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		next, ok := obj[key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Update sets one key and writes the file, keeping the previous version as
// <path>.bak. The edited document must still decode strictly into Config, so
// typos in key names are rejected before anything is written. Validation
// problems are returned for display but do not block the write.
func Update(configPath, key string, value interface{}) (problems []error, err error) {
	cfgMap, err := LoadMap(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := Set(cfgMap, NormalizePath(key), value); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(cfgMap, "", "  ")
	if err != nil {
		return nil, err
	}
	cfg := config.DefaultConfig()
	if err := config.DecodeStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	if _, err := WriteAtomicWithBackup(configPath, data); err != nil {
		return nil, err
	}
	return config.Validate(cfg), nil
}

func WriteAtomicWithBackup(configPath string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return "", err
	}

	backupPath := configPath + ".bak"
	if oldData, err := os.ReadFile(configPath); err == nil {
		if err := os.WriteFile(backupPath, oldData, 0600); err != nil {
			return "", fmt.Errorf("write backup failed: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read existing config failed: %w", err)
	}

	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return "", fmt.Errorf("write temp config failed: %w", err)
	}
	if err := os.Rename(tmpPath, configPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("atomic replace config failed: %w", err)
	}
	return backupPath, nil
}
