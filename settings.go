package orientdb

// Config holds the configuration settings for the service.
type Config struct {
	DataFolder string `mapstructure:"data_folder"`
	HostAddr   string `mapstructure:"host_addr"`

	// Signing key for API tokens; an empty key disables authentication.
	JWTKey string `mapstructure:"jwt_key"`

	// Maximum accepted request body, in bytes.
	MaxBodySize int64 `mapstructure:"max_body_size"`
}

var globalConfig Config

func init() {
	globalConfig = Config{
		DataFolder:  "./data",
		HostAddr:    "0.0.0.0:8080",
		JWTKey:      "",
		MaxBodySize: 1 << 20,
	}
}

func Configure(cfg Config) {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 1 << 20
	}
	globalConfig = cfg
}
