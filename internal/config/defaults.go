package config

const (
	SchemaVersion = 1
)

const (
	DefaultBackupDir      = "RatScanner.old"
	DefaultQuarantineDir  = "RatScanner.unknown"
	DefaultManifestFile   = "RatScanner.files.ref"
	DefaultExecutable     = "RatScanner.exe"
	DefaultResource       = "RSDownload"
	DefaultConnectTimeout = "15s"
	DefaultReadTimeout    = "15s"
)

func DefaultEndpoints() []string {
	return []string{
		"https://api.ratscanner.com/v4/res",
		"https://api.ratscanner.com/v3/res",
		"https://api.ratscanner.com/v2/res",
	}
}

// DefaultConfig returns a fully-populated v1 config document.
func DefaultConfig() Config {
	return Config{
		Version: SchemaVersion,
		Layout: LayoutConfig{
			BackupDir:     DefaultBackupDir,
			QuarantineDir: DefaultQuarantineDir,
			ManifestFile:  DefaultManifestFile,
			Executable:    DefaultExecutable,
			Keep:          []string{"config.cfg"},
		},
		API: APIConfig{
			Endpoints:      DefaultEndpoints(),
			Resource:       DefaultResource,
			ConnectTimeout: DefaultConnectTimeout,
			ReadTimeout:    DefaultReadTimeout,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  5,
			MaxBackups: 3,
		},
	}
}
