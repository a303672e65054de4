package config

// Config is the v1 updater configuration.
type Config struct {
	Version int           `toml:"version"`
	Layout  LayoutConfig  `toml:"layout"`
	API     APIConfig     `toml:"api"`
	Logging LoggingConfig `toml:"logging"`
	Audit   AuditConfig   `toml:"audit"`
}

// LayoutConfig names the managed entries inside the install root.
type LayoutConfig struct {
	BackupDir     string   `toml:"backup_dir" json:"backupDir"`
	QuarantineDir string   `toml:"quarantine_dir" json:"quarantineDir"`
	ManifestFile  string   `toml:"manifest_file" json:"manifestFile"`
	Executable    string   `toml:"executable" json:"executable"`
	Keep          []string `toml:"keep" json:"keep"`
}

type APIConfig struct {
	Endpoints      []string `toml:"endpoints" json:"endpoints"`
	Resource       string   `toml:"resource" json:"resource"`
	ConnectTimeout string   `toml:"connect_timeout" json:"connectTimeout"`
	ReadTimeout    string   `toml:"read_timeout" json:"readTimeout"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type AuditConfig struct {
	Path string `toml:"path,omitempty"`
}
