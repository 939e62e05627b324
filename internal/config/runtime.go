package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/logging"
)

// Runtime is the part of the configuration that can change while the
// server runs.
type Runtime struct {
	Logging logging.Config
	ALSA    ALSADefaults
}

// ALSADefaults names the preferred ALSA devices in hw:C,D form.
type ALSADefaults struct {
	DefaultOutput string `toml:"default_output"`
	DefaultInput  string `toml:"default_input"`
}

// LoadRuntime reads the reloadable tables of a config file. Module levels
// may sit directly in [logging] or in [logging.modules].
func LoadRuntime(path string) (Runtime, error) {
	rt := Runtime{Logging: logging.Config{Level: "info", Format: "text", Modules: map[string]string{}}}

	data, err := os.ReadFile(path)
	if err != nil {
		return rt, err
	}
	var raw struct {
		Logging map[string]any `toml:"logging"`
		ALSA    ALSADefaults   `toml:"alsa"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return rt, fmt.Errorf("parse %s: %w", path, err)
	}
	rt.ALSA = raw.ALSA

	for key, value := range raw.Logging {
		switch v := value.(type) {
		case string:
			switch key {
			case "level":
				rt.Logging.Level = v
			case "format":
				rt.Logging.Format = v
			default:
				rt.Logging.Modules[key] = v
			}
		case map[string]any:
			if key != "modules" {
				continue
			}
			for module, level := range v {
				if s, ok := level.(string); ok {
					rt.Logging.Modules[module] = s
				}
			}
		}
	}
	return rt, nil
}

// RuntimeLoader returns a watcher loader that reads path with LoadRuntime
// and then puts back every logging and alsa value that came from the
// environment or a flag on cmd. opts is the struct LoadConfig filled at
// startup; its fields hold those values.
func RuntimeLoader(opts any, cmd *cobra.Command) func(path string) (Runtime, error) {
	return func(path string) (Runtime, error) {
		rt, err := LoadRuntime(path)
		if err != nil {
			return rt, err
		}
		applyOverrides(&rt, opts, cmd)
		return rt, nil
	}
}

func applyOverrides(rt *Runtime, opts any, cmd *cobra.Command) {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return
	}
	v = v.Elem()
	t := v.Type()
	fromCLI := changedFlags(cmd)

	for i := range t.NumField() {
		sf := t.Field(i)
		field := v.Field(i)
		path := sf.Tag.Get("toml")
		if path == "" || field.Kind() != reflect.String {
			continue
		}
		overridden := fromCLI[fieldNameToFlag(sf.Name)]
		if key := sf.Tag.Get("env"); key != "" && !overridden {
			raw, ok := os.LookupEnv(EnvPrefix + key)
			overridden = ok && raw != ""
		}
		if overridden {
			rt.set(path, field.String())
		}
	}
}

// set assigns a dotted TOML key. Keys outside [logging] and [alsa] are
// ignored.
func (rt *Runtime) set(path, value string) {
	table, key, ok := strings.Cut(path, ".")
	if !ok {
		return
	}
	switch table {
	case "logging":
		switch key {
		case "level":
			rt.Logging.Level = value
		case "format":
			rt.Logging.Format = value
		default:
			if rt.Logging.Modules == nil {
				rt.Logging.Modules = map[string]string{}
			}
			rt.Logging.Modules[strings.TrimPrefix(key, "modules.")] = value
		}
	case "alsa":
		switch key {
		case "default_output":
			rt.ALSA.DefaultOutput = value
		case "default_input":
			rt.ALSA.DefaultInput = value
		}
	}
}
