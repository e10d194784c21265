package upstream

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shellsync/shellsync/internal/manifest"
)

// Origin 代表应用的部署源站，负责逻辑键与绝对 URL 的互相转换。
type Origin struct {
	base *url.URL
	raw  string
}

// ParseOrigin 解析形如 https://app.example.com 的源站地址。
func ParseOrigin(raw string) (*Origin, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return nil, errors.New("origin required")
	}
	base, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("origin must be absolute: %q", raw)
	}
	return &Origin{base: base, raw: trimmed}, nil
}

// String 返回不带结尾斜杠的源站地址。
func (o *Origin) String() string {
	return o.raw
}

// Resolve 将逻辑键转换为源站上的绝对 URL。
func (o *Origin) Resolve(key string) string {
	if key == "" || key == manifest.RootKey {
		return o.raw + "/"
	}
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return o.raw + key
}

// Strip 从绝对 URL 中剥掉源站前缀并恢复逻辑键；空余部分归一化为 "/"。
// 相对路径原样返回；属于其他源站的 URL 返回 false。
func (o *Origin) Strip(rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	if strings.HasPrefix(rawURL, "/") {
		return rawURL, true
	}
	if rawURL == o.raw {
		return manifest.RootKey, true
	}
	if rest, ok := strings.CutPrefix(rawURL, o.raw+"/"); ok {
		if rest == "" {
			return manifest.RootKey, true
		}
		return "/" + rest, true
	}
	return "", false
}
