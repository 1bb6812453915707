package main

import (
	"attendees/internal/di"
	"attendees/internal/providers"
	"attendees/internal/structures"
	"flag"
	"fmt"
	"os"
)

func main() {
	flags := &structures.CliFlags{}
	flag.StringVar(&flags.ConfigPath, "config", "configs/shard.yml", "path to the YAML config")
	flag.StringVar(&flags.Role, "role", "", "unit role: shard or coordinator (overrides node.role)")
	flag.BoolVar(&flags.DebugMode, "debug", false, "mirror logs to the console")
	flag.Parse()

	role, err := providers.ResolveRole(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cleanup func()
	switch role {
	case structures.RoleCoordinator:
		_, cleanup, err = di.InitCoordinatorApp(flags)
	case structures.RoleShard:
		_, cleanup, err = di.InitShardApp(flags)
	default:
		err = fmt.Errorf("unknown role %q", role)
	}
	if cleanup != nil {
		cleanup()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
