// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// cliArgs holds configuration options parsed from command line arguments.
type cliArgs struct {
	ConfigPath string
	Profile    string
	Sets       map[string]string
}

// LoadWithProfile loads the base config file and, when a profile is given,
// overlays config.<profile>.yaml from the same directory. A profile file
// that does not exist is silently skipped.
func LoadWithProfile(path, profile string) (*Config, error) {
	paths := []string{}
	if path != "" {
		paths = append(paths, path)
	}
	if pp := profileConfigPath(path, profile); pp != "" {
		paths = append(paths, pp)
	}
	return load(paths, nil)
}

// LoadWithCLI parses --config, --profile (alias --env) and --set key=value
// arguments and loads configuration accordingly. --set overrides apply
// last, after files and environment variables.
func LoadWithCLI(args []string) (*Config, error) {
	parsed, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}

	paths := []string{}
	if parsed.ConfigPath != "" {
		paths = append(paths, parsed.ConfigPath)
	}
	if pp := profileConfigPath(parsed.ConfigPath, parsed.Profile); pp != "" {
		paths = append(paths, pp)
	}
	return load(paths, parsed.Sets)
}

// parseCLIOverrides extracts config-related flags from args. Unknown
// arguments are ignored so the caller's own flags pass through.
func parseCLIOverrides(args []string) (cliArgs, error) {
	parsed := cliArgs{Sets: make(map[string]string)}

	takeValue := func(i int, flag string) (string, int, error) {
		arg := args[i]
		if eq := strings.IndexByte(arg, '='); eq >= 0 {
			return arg[eq+1:], i, nil
		}
		if i+1 >= len(args) {
			return "", i, fmt.Errorf("missing value for %s", flag)
		}
		return args[i+1], i + 1, nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || strings.HasPrefix(arg, "--config="):
			value, next, err := takeValue(i, "--config")
			if err != nil {
				return parsed, err
			}
			parsed.ConfigPath = value
			i = next
		case arg == "--profile" || strings.HasPrefix(arg, "--profile="):
			value, next, err := takeValue(i, "--profile")
			if err != nil {
				return parsed, err
			}
			parsed.Profile = value
			i = next
		case arg == "--env" || strings.HasPrefix(arg, "--env="):
			value, next, err := takeValue(i, "--env")
			if err != nil {
				return parsed, err
			}
			parsed.Profile = value
			i = next
		case arg == "--set" || strings.HasPrefix(arg, "--set="):
			value, next, err := takeValue(i, "--set")
			if err != nil {
				return parsed, err
			}
			key, val, found := strings.Cut(value, "=")
			if !found || key == "" {
				return parsed, fmt.Errorf("invalid --set %q, expected key=value", value)
			}
			parsed.Sets[key] = val
			i = next
		}
	}
	return parsed, nil
}

// profileConfigPath derives the profile-specific config path next to the
// base config (config.yaml + "dev" -> config.dev.yaml). Returns "" when
// the file does not exist.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	dir := filepath.Dir(base)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	path := filepath.Join(dir, name+"."+profile+ext)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// load applies defaults, file overlays in order, MEND_ environment
// variables, legacy variables and finally explicit overrides.
func load(paths []string, overrides map[string]string) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	for _, path := range paths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("MEND_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "MEND_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyLegacyEnv(k)

	for key, raw := range overrides {
		k.Set(key, coerceScalar(raw))
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// coerceScalar interprets a --set value as bool, int or float when it
// parses as one, string otherwise.
func coerceScalar(raw string) interface{} {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
