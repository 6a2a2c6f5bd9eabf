package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	ProcRoot                 string `mapstructure:"procRoot"`
	Pids                     []int  `mapstructure:"pids"`
	ShowThreads              bool   `mapstructure:"threadsEnabled"`
	SocketsOnly              bool   `mapstructure:"socketsOnly"`
	ShowSummary              bool   `mapstructure:"summaryEnabled"`
	DetectMultiplexing       bool   `mapstructure:"multiplexingDetectionEnabled"`
	ParallelScan             bool   `mapstructure:"parallelScanEnabled"`
	ScanWorkers              int    `mapstructure:"scanWorkers"`
	EnablePrometheusExporter bool   `mapstructure:"prometheusExporterEnabled"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("procRoot", "/proc")
	viper.SetDefault("multiplexingDetectionEnabled", true)
	viper.SetDefault("scanWorkers", 4)

	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return Config{}, err
	}

	var config Config
	err = viper.Unmarshal(&config)
	return config, err
}
