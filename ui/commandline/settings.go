// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/stylekit/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// Settings holds named hyperparameters with default values, which also define their types.
// They can be overwritten from the command line with ParseSettings.
type Settings struct {
	names  []string
	values map[string]any
}

// NewSettings creates an empty set of settings.
func NewSettings() *Settings {
	return &Settings{values: make(map[string]any)}
}

// Set the value of a parameter. If the parameter is new, its value is used as its default and defines its type.
// It returns itself, so calls can be cascaded.
func (s *Settings) Set(name string, value any) *Settings {
	if _, found := s.values[name]; !found {
		s.names = append(s.names, name)
	}
	s.values[name] = value
	return s
}

// Get the value of the parameter.
func (s *Settings) Get(name string) (value any, found bool) {
	value, found = s.values[name]
	return
}

// Names of the parameters, in the order they were defined.
func (s *Settings) Names() []string {
	return slices.Clone(s.names)
}

// GetOr returns the value of the parameter if it is set and of type T, or defaultValue otherwise.
func GetOr[T any](s *Settings, name string, defaultValue T) T {
	value, found := s.values[name]
	if !found {
		return defaultValue
	}
	t, ok := value.(T)
	if !ok {
		return defaultValue
	}
	return t
}

// ParseSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "param1=value1;param2=value2;...".
//
// All the parameters "param1", "param2", etc. must be already set with default values
// in s. The default values are also used to set the type to which the string values will be parsed to.
//
// An entry "file:<path>" reads the settings from the file, one or more per line. Lines starting with "#"
// are comments.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// It returns the list of parameters set, or an error in case a parameter is unknown or the parsing failed.
func (s *Settings) ParseSettings(settings string) (paramsSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		paramsSet, err = s.parseSetting(setting, paramsSet)
		if err != nil {
			return
		}
	}
	return
}

func (s *Settings) parseSetting(setting string, paramsSet []string) (newParamsSet []string, err error) {
	newParamsSet = paramsSet
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return
	}
	if filePath, isFile := strings.CutPrefix(setting, "file:"); isFile {
		filePath, err = fsutil.ReplaceTildeInDir(filePath)
		if err != nil {
			return
		}
		var contents []byte
		contents, err = os.ReadFile(filePath)
		if err != nil {
			err = errors.Wrapf(err, "failed to read settings from file %q", filePath)
			return
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			var lineParams []string
			lineParams, err = s.ParseSettings(line)
			if err != nil {
				return
			}
			newParamsSet = append(newParamsSet, lineParams...)
		}
		return
	}

	name, valueStr, found := strings.Cut(setting, "=")
	if !found {
		err = errors.Errorf("can't parse setting %q: each setting requires the format \"<param>=<value>\"", setting)
		return
	}
	name = strings.TrimSpace(name)
	value, found := s.values[name]
	if !found {
		err = errors.Errorf("can't set parameter %q: unknown parameter, known parameters are %q", name, s.names)
		return
	}
	value, err = parseValue(value, valueStr)
	if err != nil {
		err = errors.WithMessagef(err, "failed to parse value %q for parameter %q (default value is %#v)",
			valueStr, name, s.values[name])
		return
	}
	s.values[name] = value
	newParamsSet = append(newParamsSet, name)
	return
}

// parseValue parses valueStr to the same type as value.
func parseValue(value any, valueStr string) (any, error) {
	switch value.(type) {
	case int:
		return unmarshal[int](removeSeparators(valueStr))
	case int64:
		return unmarshal[int64](removeSeparators(valueStr))
	case uint64:
		return unmarshal[uint64](removeSeparators(valueStr))
	case float64:
		return unmarshal[float64](valueStr)
	case float32:
		return unmarshal[float32](valueStr)
	case bool:
		return unmarshal[bool](valueStr)
	case string:
		return valueStr, nil
	case []string:
		return strings.Split(valueStr, ","), nil
	case []int:
		return unmarshalList[int](removeSeparators(valueStr))
	case []float64:
		return unmarshalList[float64](valueStr)
	default:
		return nil, errors.Errorf("don't know how to parse type %T", value)
	}
}

func removeSeparators(valueStr string) string {
	return strings.ReplaceAll(valueStr, "_", "")
}

func unmarshal[T any](valueStr string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(valueStr), &v)
	if err != nil {
		return v, errors.Wrapf(err, "parsing %q as %T", valueStr, v)
	}
	return v, nil
}

func unmarshalList[T any](valueStr string) ([]T, error) {
	parts := strings.Split(valueStr, ",")
	values := make([]T, 0, len(parts))
	for _, part := range parts {
		v, err := unmarshal[T](part)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// CreateSettingsFlag creates a string flag in the default flag.CommandLine with the given flagName (if empty
// it will be named "set") and with a description of the currently defined parameters.
//
// The flag should be created before the call to `flags.Parse()`.
//
// Example usage:
//
//	func main() {
//		settings := commandline.NewSettings().Set("style_weight", 1e3)
//		settingsFlag := settings.CreateSettingsFlag("")
//		flag.Parse()
//		_, err := settings.ParseSettings(*settingsFlag)
//		if err != nil { panic(err) }
//		fmt.Println(settings)
//		...
//	}
func (s *Settings) CreateSettingsFlag(flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	parts := []string{
		`Set hyperparameters. ` +
			`It should be a list of elements "param=value" separated by ";". ` +
			`It can also be given an entry like: "file:settings_file.txt", in ` +
			`which case the file will be read and the settings will be parsed, ` +
			`with new-lines working as ";" to separate settings and lines starting with "#" are considered comments. ` +
			`Current available parameters that can be set:`,
	}
	for _, name := range s.names {
		parts = append(parts, fmt.Sprintf("%q: default value is %v", name, s.values[name]))
	}
	var settings string
	flag.StringVar(&settings, flagName, "", strings.Join(parts, "\n"))
	return &settings
}

// String pretty-prints all parameters, one per line.
func (s *Settings) String() string {
	return s.sprint(s.names)
}

// SprintModified pretty-prints the parameters listed in paramsSet (as returned by ParseSettings), one per line.
// Duplicates are printed only once.
func (s *Settings) SprintModified(paramsSet []string) string {
	paramsSet = slices.Clone(paramsSet)
	slices.Sort(paramsSet)
	return s.sprint(slices.Compact(paramsSet))
}

func (s *Settings) sprint(names []string) string {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		value, found := s.values[name]
		if !found {
			continue
		}
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", name, value, value))
	}
	return strings.Join(parts, "\n")
}
