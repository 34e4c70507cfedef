// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"sync"

	"easypoints/internal/pkg/config"
	"easypoints/internal/pkg/nacos"

	zlog "github.com/rs/zerolog/log"
)

var (
	currentMu         sync.RWMutex
	currentConfig     = config.Default()
	nacosConfigClient *nacos.ConfigClient
)

// GetCurrentConfig 返回当前生效的配置。
func GetCurrentConfig() *config.Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return currentConfig
}

func setCurrentConfig(cfg *config.Config) {
	currentMu.Lock()
	currentConfig = cfg
	currentMu.Unlock()
}

// LoadConfig 按 Nacos 配置中心 > 本地文件 > 默认值 的顺序加载配置，最后应用环境变量覆盖。
// NACOS_SERVER_ADDRS 存在时从配置中心读取 dataId 并监听变更。
func LoadConfig() (*config.Config, error) {
	cfg, err := loadConfigSource()
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setCurrentConfig(cfg)
	return cfg, nil
}

func loadConfigSource() (*config.Config, error) {
	addrs := getEnv("NACOS_SERVER_ADDRS", "")
	if addrs == "" {
		path := getEnv("CONFIG_PATH", "configs/points-service.yaml")
		zlog.Info().Str("path", path).Msg("Loading config from file")
		return config.LoadFile(path)
	}

	serverConfigs, err := nacos.ParseServerConfigs(addrs)
	if err != nil {
		return nil, err
	}
	clientConfig := nacos.NewClientConfig(getEnv("NACOS_NAMESPACE", ""))
	client, err := nacos.NewConfigClient(serverConfigs, &clientConfig, getEnv("NACOS_GROUP", "DEFAULT_GROUP"))
	if err != nil {
		return nil, err
	}
	nacosConfigClient = client

	dataID := getEnv("NACOS_DATA_ID", config.Default().Infra.Nacos.DataID)
	content, err := client.Get(dataID)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Parse([]byte(content))
	if err != nil {
		return nil, err
	}

	err = client.Watch(dataID, func(data string) {
		next, err := config.Parse([]byte(data))
		if err != nil {
			zlog.Error().Err(err).Msg("🛑 Ignoring invalid config update from Nacos")
			return
		}
		next.ApplyEnv()
		setCurrentConfig(next)
		zlog.Info().Msg("✅ Config reloaded from Nacos")
	})
	if err != nil {
		zlog.Warn().Err(err).Msg("⚠️ Failed to watch Nacos config")
	}
	return cfg, nil
}
