package config

// CLIConfig is the configuration for clinvault-cli.
type CLIConfig struct {
	// ServerConfig is the clinvault-server config file commands open the
	// store with.
	ServerConfig string `json:"server_config" yaml:"server_config"`

	// AdminAddr is the clinvault-server admin listener for remote commands.
	AdminAddr string `json:"admin_addr" yaml:"admin_addr"`

	// Output is the default format: table, json or yaml.
	Output string `json:"output" yaml:"output"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		AdminAddr: "127.0.0.1:9180",
		Output:    "table",
	}
}
