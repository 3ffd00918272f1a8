package tasktree

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// treeFile is the on-disk YAML shape a tree is loaded from: a flat list of
// nodes, parent/child and dependency relationships expressed by id exactly
// as Node itself carries them.
type treeFile struct {
	Tasks []*Node `yaml:"tasks"`
}

// LoadFromFile reads a YAML-encoded flat task list from disk and builds a
// Tree from it, running the same structural validation Build always does
// (single root, resolvable parent/dependency ids, no dependency cycle).
func LoadFromFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task tree file: %w", err)
	}

	var tf treeFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse task tree file: %w", err)
	}

	return Build(tf.Tasks)
}
