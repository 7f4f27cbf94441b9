/*
Package store
File: yamlfiles.go
Description:
    YAML file gateway: one document per session under a directory.
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLFiles stores each session as <Dir>/<sessionID>.yaml.
type YAMLFiles struct {
	Dir string
}

func NewYAMLFiles(dir string) (*YAMLFiles, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("save directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	return &YAMLFiles{Dir: dir}, nil
}

func (y *YAMLFiles) path(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || strings.HasPrefix(sessionID, ".") {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(y.Dir, sessionID+".yaml"), nil
}

func (y *YAMLFiles) Load(ctx context.Context, sessionID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	p, err := y.path(sessionID)
	if err != nil {
		return Record{}, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("read save: %w", err)
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		// A damaged schedule should not cost the player their stats.
		var partial struct {
			Stats    yaml.Node `yaml:"stats"`
			Time     yaml.Node `yaml:"game_time"`
			GameOver yaml.Node `yaml:"game_over"`
		}
		if perr := yaml.Unmarshal(data, &partial); perr != nil {
			return Record{}, fmt.Errorf("decode save: %w", err)
		}
		rec = Record{}
		if err := decodeNodes(&partial.Stats, &rec.Stats, &partial.Time, &rec.Time, &partial.GameOver, &rec.GameOver); err != nil {
			return Record{}, fmt.Errorf("decode save: %w", err)
		}
	}
	return rec, nil
}

func decodeNodes(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		node := pairs[i].(*yaml.Node)
		if node.Kind == 0 {
			continue
		}
		if err := node.Decode(pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// Save writes through a temp file so a crash never leaves half a save.
func (y *YAMLFiles) Save(ctx context.Context, sessionID string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := y.path(sessionID)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode save: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write save: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// List returns the ids of every stored session.
func (y *YAMLFiles) List() ([]string, error) {
	entries, err := os.ReadDir(y.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(ids)
	return ids, nil
}
