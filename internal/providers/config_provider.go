package providers

import (
	"attendees/internal/structures"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const appName = "AttendeesStore"

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	v := viper.New()
	filename := filepath.Base(flags.ConfigPath)
	v.AddConfigPath(filepath.Dir(flags.ConfigPath))
	v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	v.SetConfigType("yaml")

	v.SetDefault("persistence.driver", "file")
	v.SetDefault("coordinator.maxBytesPerChunk", 2_000_000)
	v.SetDefault("coordinator.cacheTTL", "5s")
	v.SetDefault("remote.timeout", "10s")
	v.SetDefault("remote.retryMax", 3)
	v.SetDefault("remote.queueSize", 1024)
	v.SetDefault("shard.identifierKind", "eae")

	v.BindEnv("logger.level", "ATTENDEES_LOG_LEVEL")
	v.BindEnv("node.role", "ATTENDEES_NODE_ROLE")
	v.BindEnv("node.advertise", "ATTENDEES_ADVERTISE")
	v.BindEnv("webServer.port", "ATTENDEES_PORT")
	v.BindEnv("shard.parent", "ATTENDEES_PARENT")
	v.BindEnv("shard.capacity", "ATTENDEES_SHARD_CAPACITY")
	v.BindEnv("persistence.driver", "ATTENDEES_PERSISTENCE_DRIVER")
	v.BindEnv("persistence.filePath", "ATTENDEES_PERSISTENCE_PATH")
	v.BindEnv("persistence.saveInterval", "ATTENDEES_SAVE_INTERVAL")
	v.BindEnv("remote.permissionUrl", "ATTENDEES_PERMISSION_URL")
	v.BindEnv("cache.enabled", "ATTENDEES_CACHE_ENABLED")
	v.BindEnv("cache.size", "ATTENDEES_CACHE_SIZE")

	err := v.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = v.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if flags.Role != "" {
		conf.Node.Role = flags.Role
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	conf.AppName = appName
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}

// ResolveRole loads the config named by flags and returns the unit role. The
// -role flag wins over ATTENDEES_NODE_ROLE, which wins over node.role.
func ResolveRole(flags *structures.CliFlags) (string, error) {
	conf, err := NewConfigProvider(flags)
	if err != nil {
		return "", err
	}
	return conf.Node.Role, nil
}
