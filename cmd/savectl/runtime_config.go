package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/dps_saves/src/settings"
)

type Action string

const (
	ActionSlots    Action = "slots"
	ActionInspect  Action = "inspect"
	ActionVerify   Action = "verify"
	ActionDelete   Action = "delete"
	ActionWipe     Action = "wipe"
	ActionMeta     Action = "meta"
	ActionArchived Action = "archived"
)

var actions = []Action{
	ActionSlots,
	ActionInspect,
	ActionVerify,
	ActionDelete,
	ActionWipe,
	ActionMeta,
	ActionArchived,
}

type RuntimeConfig struct {
	SettingsPath   string
	Directory      string // overrides the settings directory when set
	Action         Action
	ActionProvided bool
	Slot           int
	SlotProvided   bool
	Key            string
	Value          string
	ValueProvided  bool
	DumpTOML       bool
	Verbose        bool
}

func defaultConfig() RuntimeConfig {
	return RuntimeConfig{
		SettingsPath: "./local/saves.toml",
		Action:       ActionSlots,
		Slot:         -1,
	}
}

var defaultRuntimeConfig = defaultConfig()

const SETTINGS_FLAG = "--settings"
const DIR_FLAG = "--dir"
const SLOT_FLAG = "--slot"
const KEY_FLAG = "--key"
const VALUE_FLAG = "--value"
const TOML_FLAG = "--toml"
const VERBOSE_FLAG = "--verbose"

// flagValue handles both "--flag value" and "--flag=value". It reports
// whether arg was flag and the index of the last consumed argument.
func flagValue(args []string, i int, flag string) (string, int, bool, error) {
	arg := args[i]
	if arg == flag {
		if i+1 >= len(args) {
			return "", i, true, fmt.Errorf("missing value after %q", flag)
		}
		return strings.TrimSpace(args[i+1]), i + 1, true, nil
	}
	if after, ok := strings.CutPrefix(arg, flag+"="); ok {
		return strings.TrimSpace(after), i, true, nil
	}
	return "", i, false, nil
}

func parseCLI(args []string, cfg RuntimeConfig) (RuntimeConfig, error) {
	runtimeCfg := cfg

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == VERBOSE_FLAG {
			runtimeCfg.Verbose = true
			continue
		}
		if arg == TOML_FLAG {
			runtimeCfg.DumpTOML = true
			continue
		}

		if v, next, ok, err := flagValue(args, i, SETTINGS_FLAG); ok {
			if err != nil {
				return runtimeCfg, err
			}
			runtimeCfg.SettingsPath = v
			i = next
			continue
		}
		if v, next, ok, err := flagValue(args, i, DIR_FLAG); ok {
			if err != nil {
				return runtimeCfg, err
			}
			runtimeCfg.Directory = v
			i = next
			continue
		}
		if v, next, ok, err := flagValue(args, i, SLOT_FLAG); ok {
			if err != nil {
				return runtimeCfg, err
			}
			slot, convErr := strconv.Atoi(v)
			if convErr != nil {
				return runtimeCfg, fmt.Errorf("invalid %s value %q: %w", SLOT_FLAG, v, convErr)
			}
			if slot < 0 {
				return runtimeCfg, fmt.Errorf("%s must be >= 0", SLOT_FLAG)
			}
			runtimeCfg.Slot = slot
			runtimeCfg.SlotProvided = true
			i = next
			continue
		}
		if v, next, ok, err := flagValue(args, i, KEY_FLAG); ok {
			if err != nil {
				return runtimeCfg, err
			}
			runtimeCfg.Key = v
			i = next
			continue
		}
		if v, next, ok, err := flagValue(args, i, VALUE_FLAG); ok {
			if err != nil {
				return runtimeCfg, err
			}
			runtimeCfg.Value = v
			runtimeCfg.ValueProvided = true
			i = next
			continue
		}

		normalized := Action(strings.ToLower(strings.TrimSpace(arg)))
		if !isAction(normalized) {
			return runtimeCfg, fmt.Errorf("unsupported argument %q", arg)
		}
		if runtimeCfg.ActionProvided {
			return runtimeCfg, fmt.Errorf("multiple actions provided: %q", arg)
		}
		runtimeCfg.Action = normalized
		runtimeCfg.ActionProvided = true
	}

	switch runtimeCfg.Action {
	case ActionInspect, ActionDelete, ActionMeta:
		if !runtimeCfg.SlotProvided {
			return runtimeCfg, fmt.Errorf("action %q needs %s", runtimeCfg.Action, SLOT_FLAG)
		}
	}
	if runtimeCfg.ValueProvided && runtimeCfg.Key == "" {
		return runtimeCfg, fmt.Errorf("%s needs %s", VALUE_FLAG, KEY_FLAG)
	}
	return runtimeCfg, nil
}

func isAction(a Action) bool {
	for _, known := range actions {
		if a == known {
			return true
		}
	}
	return false
}

// loadSettings reads the settings file and applies command line overrides.
func loadSettings(cfg RuntimeConfig) (settings.Settings, error) {
	s, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		return s, err
	}
	if cfg.Directory != "" {
		s.Directory = cfg.Directory
	}
	if cfg.Verbose {
		s.EnableLogging = true
	}
	return s, nil
}

func printUsage(cfg RuntimeConfig) {
	fmt.Printf("Usage: savectl [slots|inspect|verify|delete|wipe|meta|archived] [%s PATH] [%s PATH] [%s N] [%s K] [%s V] [%s] [%s]\n",
		SETTINGS_FLAG,
		DIR_FLAG,
		SLOT_FLAG,
		KEY_FLAG,
		VALUE_FLAG,
		TOML_FLAG,
		VERBOSE_FLAG,
	)
	fmt.Printf("No action defaults to %q.\n", cfg.Action)
	fmt.Printf("Settings are read from %s; a missing file means defaults.\n", cfg.SettingsPath)
	fmt.Printf("%s overrides the save directory from the settings file.\n", DIR_FLAG)
	fmt.Printf("Verbose logging defaults to disabled; enable with %q.\n", VERBOSE_FLAG)
	fmt.Println("Actions: slots (list used slots), inspect (dump one slot, add --toml for toml), verify (load every slot, repairing single corrupt copies), delete (remove one slot), wipe (remove every slot), meta (read or set slot metadata), archived (list corrupted files moved aside).")
}
