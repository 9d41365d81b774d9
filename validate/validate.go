// Command validate provides a small CLI that validates room type JSON files
// in a configs directory (../configs unless a directory is given). It checks:
//   - JSON structure and required fields
//   - Room type name characters and max_players bounds
//   - That each file is named after the room type it defines
//   - That a game_room default exists, or reports which file the server falls back to
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/mcp-training/shapesync/game/config"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Name   string
	Valid  bool
	Errors []string
}

// validateConfig loads and validates a single room type file.
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	cfg, err := config.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		switch {
		case errors.Is(err, config.ErrConfigNotFound):
			result.Errors = append(result.Errors, "File not found")
		case errors.Is(err, config.ErrInvalidConfig):
			result.Errors = append(result.Errors, strings.TrimPrefix(err.Error(), config.ErrInvalidConfig.Error()+": "))
		default:
			result.Errors = append(result.Errors, err.Error())
		}
		return result
	}
	result.Name = cfg.Name

	if want := strings.TrimSuffix(result.File, ".json"); cfg.Name != want {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("name %q does not match file name %q", cfg.Name, want))
		return result
	}

	result.Errors = append(result.Errors, fmt.Sprintf("✓ room type %s (max %d players)", cfg.Name, cfg.MaxPlayers))
	if strings.TrimSpace(cfg.Description) == "" {
		result.Errors = append(result.Errors, "✓ no description")
	}
	return result
}

// defaultRoomNote reports which room type the server will join by default.
func defaultRoomNote(results []ValidationResult) string {
	var valid []string
	for _, r := range results {
		if r.Valid {
			if r.Name == engine.DefaultRoomName {
				return fmt.Sprintf("Default room type: %s", engine.DefaultRoomName)
			}
			valid = append(valid, r.File)
		}
	}
	if len(valid) == 0 {
		return fmt.Sprintf("No valid room types; the built-in %s (max %d players) is used", engine.DefaultRoomName, engine.DefaultMaxPlayers)
	}
	sort.Strings(valid)
	return fmt.Sprintf("No %s.json; %s is used as the default", engine.DefaultRoomName, valid[0])
}

// run validates every *.json file in dir, writes a report to w and reports
// whether all files are valid.
func run(dir string, w io.Writer) (bool, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return false, fmt.Errorf("error finding config files: %w", err)
	}
	sort.Strings(files)

	allValid := true
	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		result := validateConfig(file)
		results = append(results, result)

		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
			for _, info := range result.Errors {
				fmt.Fprintln(w, "  "+info)
			}
		} else {
			fmt.Fprintln(w, "❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				fmt.Fprintln(w, "  ❌ "+err)
			}
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	fmt.Fprintln(w, defaultRoomNote(results))
	if allValid {
		fmt.Fprintln(w, "✅ All room types are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some room types have errors")
	}
	return allValid, nil
}

func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	ok, err := run(configDir, os.Stdout)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}
