package agents

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SteeringFile is a project rule document under .sidekick/steering. Files
// with inclusion "always" join every system prompt; "mention" files join
// only when the user references them by name.
type SteeringFile struct {
	Name      string
	Inclusion string
	Content   string
}

type steeringFront struct {
	Inclusion string `yaml:"inclusion"`
}

// LoadSteering reads every markdown file in the steering directory,
// parsing an optional YAML front matter block for the inclusion mode.
// A missing directory is not an error.
func LoadSteering(root string) ([]SteeringFile, error) {
	dir := filepath.Join(root, ".sidekick", "steering")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []SteeringFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		sf := SteeringFile{
			Name:      strings.TrimSuffix(entry.Name(), ".md"),
			Inclusion: "always",
		}
		sf.Content = parseFrontMatter(string(data), &sf)
		files = append(files, sf)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// parseFrontMatter strips a leading --- block, applying its fields, and
// returns the remaining body.
func parseFrontMatter(content string, sf *SteeringFile) string {
	if !strings.HasPrefix(content, "---\n") {
		return content
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return content
	}
	var front steeringFront
	if err := yaml.Unmarshal([]byte(rest[:end]), &front); err == nil && front.Inclusion != "" {
		sf.Inclusion = front.Inclusion
	}
	body := rest[end+4:]
	return strings.TrimPrefix(body, "\n")
}

// ActiveSteering selects the steering content for one turn: always-included
// files plus mention files whose name appears in the input.
func ActiveSteering(files []SteeringFile, input string) string {
	lower := strings.ToLower(input)
	var sb strings.Builder
	for _, sf := range files {
		include := sf.Inclusion == "always" ||
			(sf.Inclusion == "mention" && strings.Contains(lower, strings.ToLower(sf.Name)))
		if !include {
			continue
		}
		sb.WriteString(sf.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
