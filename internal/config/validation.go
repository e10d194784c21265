package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("StoragePath", "不能为空")
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("FetchTimeout", "必须大于 0")
	}

	if err := validateOrigin(c.App.Origin); err != nil {
		return fmt.Errorf("App.Origin: %w", err)
	}

	return nil
}

// validateOrigin 要求 Origin 是不带路径、查询的绝对 http(s) 地址。
func validateOrigin(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return errors.New("不能为空")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("无法解析: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("仅支持 http/https")
	}
	if parsed.Host == "" {
		return errors.New("缺少主机名")
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return errors.New("不允许携带路径")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return errors.New("不允许携带查询或片段")
	}
	return nil
}
