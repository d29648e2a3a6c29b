package cryocare

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

const envBaseName = "cryoCARE"

type Recipe struct {
	Version         string   `yaml:"version"`
	Python          string   `yaml:"python"`
	Channels        []string `yaml:"channels"`
	CondaPackages   []string `yaml:"conda_packages"`
	PipPackages     []string `yaml:"pip_packages"`
	CryocarePackage string   `yaml:"cryocare_package"`
}

func (r Recipe) EnvName() string {
	return fmt.Sprintf("%s-%s", envBaseName, r.Version)
}

// InstalledFlag is the file touched once the environment is fully installed.
func (r Recipe) InstalledFlag() string {
	return fmt.Sprintf("%s_%s_installed", envBaseName, r.Version)
}

func (r Recipe) DefaultActivation() string {
	return "conda activate " + r.EnvName()
}

//go:embed recipes.yaml
var recipesYAML []byte

type recipeBook struct {
	Default string   `yaml:"default"`
	Recipes []Recipe `yaml:"recipes"`
}

var loadRecipes = sync.OnceValues(func() (recipeBook, error) {
	var book recipeBook
	if err := yaml.Unmarshal(recipesYAML, &book); err != nil {
		return book, fmt.Errorf("error parsing install recipes: %w", err)
	}
	return book, nil
})

func DefaultVersion() string {
	book, err := loadRecipes()
	if err != nil {
		return ""
	}
	return book.Default
}

func Versions() []string {
	book, err := loadRecipes()
	if err != nil {
		return nil
	}
	versions := make([]string, 0, len(book.Recipes))
	for _, r := range book.Recipes {
		versions = append(versions, r.Version)
	}
	return versions
}

func LookupRecipe(version string) (Recipe, error) {
	book, err := loadRecipes()
	if err != nil {
		return Recipe{}, err
	}
	if version == "" {
		version = book.Default
	}
	for _, r := range book.Recipes {
		if r.Version == version {
			return r, nil
		}
	}
	return Recipe{}, fmt.Errorf("unknown cryoCARE version '%s', available versions: %s", version, strings.Join(Versions(), ", "))
}

// InstallCommands returns the ordered shell commands that create and populate
// the conda environment. Each command must succeed before the next one runs.
func InstallCommands(r Recipe) []string {
	create := []string{"conda", "create", "-y", "-n", r.EnvName()}
	for _, c := range r.Channels {
		create = append(create, "-c", c)
	}
	create = append(create, "python="+r.Python)
	for _, p := range r.CondaPackages {
		create = append(create, shellQuote(p))
	}

	cmds := []string{
		strings.Join(create, " "),
		"conda activate " + r.EnvName(),
	}
	for _, p := range r.PipPackages {
		cmds = append(cmds, "pip install "+shellQuote(p))
	}
	cmds = append(cmds, "pip install "+shellQuote(r.CryocarePackage))
	cmds = append(cmds, "touch "+r.InstalledFlag())
	return cmds
}
