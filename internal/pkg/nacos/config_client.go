// internal/pkg/nacos/config_client.go
package nacos

import (
	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
)

// ConfigClient 封装了 Nacos 配置中心客户端
type ConfigClient struct {
	client config_client.IConfigClient
	group  string
}

func NewConfigClient(serverConfigs []constant.ServerConfig, clientConfig *constant.ClientConfig, group string) (*ConfigClient, error) {
	if group == "" {
		group = defaultGroup
	}
	c, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create nacos config client")
	}
	return &ConfigClient{client: c, group: group}, nil
}

// Get 读取 dataId 的配置内容
func (c *ConfigClient) Get(dataId string) (string, error) {
	content, err := c.client.GetConfig(vo.ConfigParam{DataId: dataId, Group: c.group})
	if err != nil {
		return "", errors.Wrapf(err, "get nacos config %s/%s", c.group, dataId)
	}
	zlog.Info().Str("data_id", dataId).Str("group", c.group).Msg("✅ Loaded config from Nacos")
	return content, nil
}

// Watch 配置变更时回调 onChange
func (c *ConfigClient) Watch(dataId string, onChange func(content string)) error {
	return c.client.ListenConfig(vo.ConfigParam{
		DataId: dataId,
		Group:  c.group,
		OnChange: func(namespace, group, dataId, data string) {
			zlog.Info().Str("data_id", dataId).Msg("ℹ️ Nacos config changed")
			onChange(data)
		},
	})
}

func (c *ConfigClient) Close() {
	if c.client != nil {
		c.client.CloseClient()
	}
}
