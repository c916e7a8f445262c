package cmd

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aimate/memorycore/internal/tier"
)

// templateFile is Tier 1's on-disk shape: scene_id -> candidate templates,
// loaded the same os.ReadFile + yaml.Unmarshal way scene.LoadTable reads
// scene_tier_mapping.yaml.
type templateFile struct {
	Scenes map[string][]struct {
		Text             string  `yaml:"text"`
		EmotionTag       string  `yaml:"emotion_tag"`
		EmotionIntensity float64 `yaml:"emotion_intensity"`
	} `yaml:"scenes"`
}

func loadTemplateTable(path string) (tier.TemplateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	table := make(tier.TemplateTable, len(f.Scenes))
	for sceneID, entries := range f.Scenes {
		templates := make([]tier.Template, 0, len(entries))
		for _, e := range entries {
			templates = append(templates, tier.Template{
				Text:             e.Text,
				EmotionTag:       e.EmotionTag,
				EmotionIntensity: e.EmotionIntensity,
			})
		}
		table[sceneID] = templates
	}
	return table, nil
}
