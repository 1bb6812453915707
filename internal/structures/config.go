package structures

import (
	"net/http"
	"time"
)

const (
	RoleShard       = "shard"
	RoleCoordinator = "coordinator"
)

type CliFlags struct {
	ConfigPath string
	Role       string
	DebugMode  bool
}

type Route struct {
	Url     string
	Handler http.Handler
}

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required|uint|min:1"`
}

type NodeConfig struct {
	Role string `yaml:"role" validate:"required|in:shard,coordinator"`
	// Advertise is the base URL other units use to reach this one. It doubles
	// as the unit principal.
	Advertise string `yaml:"advertise" validate:"required|fullUrl"`
	Name      string `yaml:"name" validate:"required"`
}

type Persistence struct {
	Driver       string        `yaml:"driver" validate:"in:file,sqlite"`
	FilePath     string        `yaml:"filePath" validate:"required|unixPath"`
	SaveInterval time.Duration `yaml:"saveInterval" validate:"required|min:1"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
}

type ShardConfig struct {
	Capacity       int    `yaml:"capacity" validate:"min:0|max:10000000"`
	IdentifierKind string `yaml:"identifierKind"`
	// Parent pre-installs the shard against a coordinator without going
	// through the install handshake.
	Parent string `yaml:"parent"`
}

type CoordinatorConfig struct {
	MaxBytesPerChunk int           `yaml:"maxBytesPerChunk" validate:"min:0"`
	ShardHosts       []string      `yaml:"shardHosts"`
	ShardCapacity    int           `yaml:"shardCapacity" validate:"min:0"`
	ChildImagePath   string        `yaml:"childImagePath"`
	ChildVersion     uint64        `yaml:"childVersion"`
	Admins           []string      `yaml:"admins"`
	UpgradeOnStart   bool          `yaml:"upgradeOnStart"`
	CacheTTL         time.Duration `yaml:"cacheTTL"`
}

type RemoteConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RetryMax      uint          `yaml:"retryMax"`
	PermissionURL string        `yaml:"permissionUrl"`
	QueueSize     int           `yaml:"queueSize"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName     string
	Debug       bool
	Path        string
	Node        NodeConfig        `yaml:"node"`
	WebServer   Server            `yaml:"webServer"`
	Persistence Persistence       `yaml:"persistence"`
	Logger      LoggerConfig      `yaml:"logger"`
	Shard       ShardConfig       `yaml:"shard"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Remote      RemoteConfig      `yaml:"remote"`
	Cache       CacheConfig       `yaml:"cache"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}
