package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the default text prompts and the modifiers applied on top of them
type Prompts struct {
	Prompt         string `yaml:"prompt"`
	NegativePrompt string `yaml:"negative_prompt"`
	Male           string `yaml:"male"`
	Female         string `yaml:"female"`
	NoWeapon       string `yaml:"no_weapon"`
	WeaponTerms    string `yaml:"weapon_terms"`
}

// DefaultPrompts returns the built-in prompt set
func DefaultPrompts() Prompts {
	return Prompts{
		Prompt: "anime style character, cel shading, clean lineart, smooth gradients, " +
			"vibrant colors, full body, T-pose, centered, studio lighting, masterpiece",
		NegativePrompt: "lowres, pixelated, jpeg artifacts, blurry, bad anatomy, deformed hands, " +
			"extra fingers, missing fingers, text, watermark, photorealistic, noise",
		Male:        "male character, masculine features",
		Female:      "female character, feminine features",
		NoWeapon:    "no weapons, empty hands",
		WeaponTerms: "weapon, gun, sword, knife, spear, bow, axe, staff, shield",
	}
}

// LoadPrompts reads a YAML prompt set from path. Keys missing in the file keep their default value.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, err
	}
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return prompts, err
	}
	return prompts, nil
}
