package content

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader reads authored content from a directory tree and builds a Library.
// Scenario files end in ".scenario.yaml"; courses live in "courses.yaml"
// and the character registry in "characters.yaml".
type Loader struct {
	rootDir    string
	scenarios  []Scenario
	courses    []Course
	characters map[string]Character
}

// Load reads all content under rootDir and returns an indexed Library.
func Load(rootDir string) (*Library, error) {
	l := &Loader{
		rootDir:    rootDir,
		characters: make(map[string]Character),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded",
		"scenarios", len(l.scenarios),
		"courses", len(l.courses),
		"characters", len(l.characters),
	)
	return NewLibrary(l.scenarios, l.courses, l.characters), nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}

		switch {
		case strings.HasSuffix(path, ".scenario.yaml"), strings.HasSuffix(path, ".scenario.yml"):
			return l.loadScenario(path)
		case filepath.Base(path) == "courses.yaml":
			return l.loadCourses(path)
		case filepath.Base(path) == "characters.yaml":
			return l.loadCharacters(path)
		}
		return nil
	})
}

func (l *Loader) loadScenario(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		slog.Warn("skipping invalid scenario YAML", "path", path, "error", err)
		return nil
	}
	if scenario.ID == "" {
		// Skipped files never reach the validator, so leave a trace for
		// whoever is wondering where their scenario went.
		slog.Debug("skipping scenario file without an id", "path", path)
		return nil
	}

	l.scenarios = append(l.scenarios, scenario)
	return nil
}

func (l *Loader) loadCourses(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var courses []Course
	if err := yaml.Unmarshal(data, &courses); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	l.courses = append(l.courses, courses...)
	return nil
}

func (l *Loader) loadCharacters(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var characters map[string]Character
	if err := yaml.Unmarshal(data, &characters); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for id, c := range characters {
		l.characters[id] = c
	}
	return nil
}
