// Package config provides centralized management for application settings, defaults, and the Viper-based configuration engine.
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"

	"github.com/samber/lo"
	"github.com/spf13/viper"
	"github.com/tannoy-player/tannoy/color"
	"github.com/tannoy-player/tannoy/constant"
	"github.com/tannoy-player/tannoy/key"
	"github.com/tannoy-player/tannoy/style"
)

// Field represents a configuration field definition.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Pretty returns a colored string representation of the field for display.
func (f *Field) Pretty() string {
	var b strings.Builder
	lo.Must0(prettyTemplate.Execute(&b, f))
	return b.String()
}

// Env returns the environment variable name for this field.
func (f *Field) Env() string {
	env := strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
	prefix := strings.ToUpper(constant.Tannoy + "_")
	if strings.HasPrefix(env, prefix) {
		return env
	}
	return prefix + env
}

// MarshalJSON customizes JSON output to include current and default values.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key         string `json:"key"`
		Value       any    `json:"value"`
		Default     any    `json:"default"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}{
		Key:         f.Key,
		Value:       viper.Get(f.Key),
		Default:     f.Value,
		Description: f.Description,
		Type:        f.typeName(),
	})
}

// typeName returns the string representation of the field's underlying value type.
func (f *Field) typeName() string {
	switch f.Value.(type) {
	case string:
		return "string"
	case int:
		return "int"
	case bool:
		return "bool"
	case []string:
		return "[]string"
	case []int:
		return "[]int"
	default:
		return "unknown"
	}
}

// Default holds the map of all configuration fields.
var Default = make(map[string]Field)

// EnvExposed holds keys that are bound to environment variables.
var EnvExposed []string

func init() {
	// register validates and adds a new configuration field to the global registry.
	register := func(k string, v any, desc string) {
		if _, exists := Default[k]; exists {
			panic("Duplicate config key: " + k)
		}
		f := Field{Key: k, Value: v, Description: desc}
		Default[k] = f
		EnvExposed = append(EnvExposed, k)
	}

	register(key.ServerHost, "0.0.0.0", "Address the control server binds to")
	register(key.ServerPort, 5000, "Port the control server listens on")
	register(key.PlayerSocket, "", "Path of the mpv JSON-IPC socket.\nLeave empty to generate a random path under the system temp directory")
	register(key.PlayerVolume, 50, "Initial playback volume (0-100)")
	register(key.PlayerPollIntervalMs, 500, "Interval between player status polls, in milliseconds")
	register(key.PlayerMaxConsecutiveFailures, 3, "Consecutive failed player operations before the control channel is considered faulted")
	register(key.PlayerRestartMaxAttempts, 5, "Maximum supervised mpv restarts before the player is reported unavailable")
	register(key.QueueRetainFinished, false, "Keep finished tracks in the queue instead of removing them when playback starts")
	register(key.QueueAutoplay, true, "Automatically advance to the next ready track on completion")
	register(key.ResolverURL, "https://get-audio.tannoy.dev", "Base URL of the remote track-resolution service")
	register(key.ResolverTimeoutSec, 30, "Timeout for resolution service requests, in seconds")
	register(key.ResolverSearchLimit, 5, "Maximum number of search candidates to return")
	register(key.ResolverCacheTTLMin, 10, "Lifetime of cached search results, in minutes")
	register(key.ResolverCacheCapacity, 64, "Maximum number of cached search queries.\nOldest entries are evicted first")
	register(key.SearchShowQuerySuggestions, true, "Show query suggestions when searching")
	register(key.HistorySaveOnFinish, true, "Record finished tracks in the play history")
	register(key.IconsVariant, "plain", "Icons variant.\nAvailable options are: emoji, kaomoji, plain, squares, nerd (nerd-font required)")
	register(key.LogsWrite, false, "Write logs")
	register(key.LogsLevel, "info", "Available options are: (from less to most verbose)\npanic, fatal, error, warn, info, debug, trace")
	register(key.LogsJson, false, "Use json format for logs")
	register(key.CliColored, true, "Enable colored CLI output")
	register(key.CliVersionCheck, true, "Enable automatic version check")
}

var prettyTemplate = lo.Must(template.New("pretty").Funcs(template.FuncMap{
	"faint":    style.Faint,
	"bold":     style.Bold,
	"purple":   style.Fg(color.Purple),
	"blue":     style.Fg(color.Blue),
	"cyan":     style.Fg(color.Cyan),
	"value":    func(k string) any { return viper.Get(k) },
	"typename": func(v any) string { return reflect.TypeOf(v).String() },
	"hl": func(v any) string {
		switch value := v.(type) {
		case bool:
			b := strconv.FormatBool(value)
			if value {
				return style.Fg(color.Green)(b)
			}
			return style.Fg(color.Red)(b)
		case string:
			return style.Fg(color.Yellow)(value)
		default:
			return fmt.Sprint(value)
		}
	},
}).Parse(`{{ faint .Description }}
{{ blue "Key:" }}     {{ purple .Key }}
{{ blue "Env:" }}     {{ .Env }}
{{ blue "Value:" }}   {{ hl (value .Key) }}
{{ blue "Default:" }} {{ hl (.Value) }}
{{ blue "Type:" }}    {{ typename .Value }}`))
