// Package prompt loads system prompt templates from TOML files.
//
// A template looks like:
//
//	system = "You are a {{lang}} translator."
//	user = "Translate: {{input}}"
//
// Both fields are optional. {{input}} is replaced with the user's message and
// every other {{key}} with the matching key:value argument.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
)

const extension = ".toml"

// Prompt represents the structure of a TOML prompt file
type Prompt struct {
	System string `toml:"system"`
	User   string `toml:"user"`
}

// Rendered is a prompt with every placeholder replaced
type Rendered struct {
	System string // system message for a new conversation, empty to keep the default
	User   string // user message to send
}

// Entry is a template found in one of the prompt directories
type Entry struct {
	Name string // path relative to the directory, without extension, slash separated
	Dir  string
}

// Library looks prompt templates up in a list of directories.
// Later directories take precedence over earlier ones.
type Library struct {
	fs   afero.Fs
	dirs []string
}

// NewLibrary creates a library over dirs. A nil fs uses the OS filesystem.
func NewLibrary(fs afero.Fs, dirs []string) *Library {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Library{fs: fs, dirs: dirs}
}

// Dirs returns the searched directories
func (l *Library) Dirs() []string {
	return l.dirs
}

// Load finds and decodes the named template
func (l *Library) Load(name string) (*Prompt, error) {
	promptFile := name
	if !strings.HasSuffix(promptFile, extension) {
		promptFile += extension
	}

	var promptPath string
	for _, dir := range l.dirs {
		candidate := filepath.Join(dir, promptFile)
		if _, err := l.fs.Stat(candidate); err == nil {
			// keep searching, later directories take precedence
			promptPath = candidate
		}
	}
	if promptPath == "" {
		return nil, fmt.Errorf("prompt file '%s' not found in any of the prompt directories: %v", promptFile, l.dirs)
	}

	data, err := afero.ReadFile(l.fs, promptPath)
	if err != nil {
		return nil, fmt.Errorf("error reading prompt file: %v", err)
	}
	var prompt Prompt
	if _, err := toml.Decode(string(data), &prompt); err != nil {
		return nil, fmt.Errorf("error decoding prompt file %s: %v", promptPath, err)
	}
	return &prompt, nil
}

// Render loads the named template and fills it with input and args.
// Each arg has the form key:value.
func (l *Library) Render(name, input string, args []string) (*Rendered, error) {
	prompt, err := l.Load(name)
	if err != nil {
		return nil, err
	}

	argMap, err := processArgs(args)
	if err != nil {
		return nil, fmt.Errorf("error processing arguments: %v", err)
	}
	argMap["input"] = input

	rendered := &Rendered{
		System: replacePlaceholders(prompt.System, argMap),
		User:   input,
	}
	if prompt.User != "" {
		rendered.User = replacePlaceholders(prompt.User, argMap)
	}
	return rendered, nil
}

// List returns every template in the library sorted by name.
// A name found in several directories is reported once, for the directory that wins.
func (l *Library) List() ([]Entry, error) {
	found := make(map[string]string)
	for _, dir := range l.dirs {
		if exists, _ := afero.DirExists(l.fs, dir); !exists {
			continue
		}
		err := afero.Walk(l.fs, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.HasSuffix(info.Name(), extension) {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return nil
			}
			found[filepath.ToSlash(strings.TrimSuffix(rel, extension))] = dir
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("error walking prompt directory %s: %v", dir, err)
		}
	}

	entries := make([]Entry, 0, len(found))
	for name, dir := range found {
		entries = append(entries, Entry{Name: name, Dir: dir})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func replacePlaceholders(text string, values map[string]string) string {
	for key, value := range values {
		text = strings.ReplaceAll(text, fmt.Sprintf("{{%s}}", key), value)
	}
	return text
}

// processArgs processes the command line arguments and returns a map of key-value pairs
func processArgs(args []string) (map[string]string, error) {
	result := make(map[string]string)
	for _, arg := range args {
		// Handle quoted values
		arg = strings.TrimSpace(arg)
		if strings.HasPrefix(arg, `"`) && strings.HasSuffix(arg, `"`) {
			arg = strings.Trim(arg, `"`)
		}

		parts := strings.SplitN(arg, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid argument format: %s. Expected format: key:value", arg)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove escape characters from value
		value = strings.ReplaceAll(value, `\:`, ":")
		value = strings.ReplaceAll(value, `\"`, `"`)

		if key == "input" {
			return nil, fmt.Errorf("'input' is a reserved keyword and cannot be used as a key")
		}
		result[key] = value
	}
	return result, nil
}
