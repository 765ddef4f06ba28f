package main

import (
	"fmt"
	"os"

	"github.com/danmuck/dps_saves/cmd/internal/logcfg"
	"github.com/danmuck/dps_saves/src/storage"
	logs "github.com/danmuck/smplog"
)

func main() {
	cfg, err := parseCLI(os.Args[1:], defaultRuntimeConfig)
	if err != nil {
		logs.Configure(logcfg.Load())
		fmt.Printf("Error: %v\n\n", err)
		printUsage(defaultRuntimeConfig)
		os.Exit(1)
	}

	s, err := loadSettings(cfg)
	if err != nil {
		logs.Configure(logcfg.Load())
		logs.Fatalf(err, "Failed to load settings from %s", cfg.SettingsPath)
	}
	logs.Configure(logcfg.Load(s.Directory))

	store, err := s.OpenStore()
	if err != nil {
		logs.Fatalf(err, "Failed to open save directory %s", s.Directory)
	}
	if s.EnableLogging {
		logs.Infof("save directory %s (%s)", s.Directory, store.Layout().Folder)
	}

	if err := executeAction(cfg, store); err != nil {
		logs.Fatalf(err, "Action %q failed", cfg.Action)
	}
}

func executeAction(cfg RuntimeConfig, store *storage.DualFileStore) error {
	switch cfg.Action {
	case ActionSlots:
		return executeSlotsAction(store)
	case ActionInspect:
		return executeInspectAction(cfg, store, os.Stdout)
	case ActionVerify:
		return executeVerifyAction(store)
	case ActionDelete:
		return executeDeleteAction(cfg, store)
	case ActionWipe:
		return executeWipeAction(store)
	case ActionMeta:
		return executeMetaAction(cfg, store)
	case ActionArchived:
		return executeArchivedAction(store)
	default:
		return fmt.Errorf("unsupported action %q", cfg.Action)
	}
}
