package config

// --- YAML-Specific Structs ---

type YamlRedisConfig struct {
	Addr string `yaml:"addr"`
}

type YamlFirestoreConfig struct {
	ProjectID string `yaml:"project_id"`
}

// YamlStorageConfig selects and configures the storage backend.
type YamlStorageConfig struct {
	Type             string              `yaml:"type"` // "firestore" or "redis"
	MessagePartition string              `yaml:"message_partition"`
	Firestore        YamlFirestoreConfig `yaml:"firestore"`
	Redis            YamlRedisConfig     `yaml:"redis"`
}

type YamlStatsdConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// YamlConfig defines the structure for unmarshaling the config.yaml file.
type YamlConfig struct {
	RunMode     string            `yaml:"run_mode"`
	APIPort     string            `yaml:"api_port"`
	EndpointURL string            `yaml:"endpoint_url"`
	Storage     YamlStorageConfig `yaml:"storage"`
	Statsd      YamlStatsdConfig  `yaml:"statsd"`
}

// NewConfigFromYaml converts the raw unmarshaled data into a base AppConfig,
// without environment overrides.
func NewConfigFromYaml(yamlCfg *YamlConfig) (*AppConfig, error) {
	return &AppConfig{
		RunMode:          yamlCfg.RunMode,
		APIPort:          yamlCfg.APIPort,
		EndpointURL:      yamlCfg.EndpointURL,
		StorageType:      yamlCfg.Storage.Type,
		MessagePartition: yamlCfg.Storage.MessagePartition,
		FirestoreProject: yamlCfg.Storage.Firestore.ProjectID,
		RedisAddr:        yamlCfg.Storage.Redis.Addr,
		StatsdAddr:       yamlCfg.Statsd.Addr,
		StatsdNamespace:  yamlCfg.Statsd.Namespace,
	}, nil
}
