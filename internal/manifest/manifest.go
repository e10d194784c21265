package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RootKey 是应用入口点的逻辑键，所有根路径变体都会归一化到它。
const RootKey = "/"

// Manifest 将逻辑资源键映射到内容指纹，加载后不可再修改。
type Manifest map[string]string

// Bundle 组合一份完整的构建清单：全部资源指纹与有序的核心子集。
type Bundle struct {
	Resources Manifest `json:"resources"`
	Core      []string `json:"core"`
}

// Load 解析并校验 JSON 清单，核心子集必须是资源键的子集。
func Load(data []byte) (*Bundle, error) {
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("解析清单失败: %w", err)
	}
	if err := bundle.validate(); err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (b *Bundle) validate() error {
	if len(b.Resources) == 0 {
		return fmt.Errorf("清单不能为空")
	}
	for key, fingerprint := range b.Resources {
		if !strings.HasPrefix(key, "/") {
			return fmt.Errorf("资源键必须以 / 开头: %q", key)
		}
		if fingerprint == "" {
			return fmt.Errorf("资源 %q 缺少指纹", key)
		}
	}
	if len(b.Core) == 0 {
		return fmt.Errorf("核心资源列表不能为空")
	}
	seen := make(map[string]struct{}, len(b.Core))
	for _, key := range b.Core {
		if _, ok := b.Resources[key]; !ok {
			return fmt.Errorf("核心资源 %q 未在清单中声明", key)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("核心资源 %q 重复", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Tracked 返回逻辑键是否由当前清单管理。
func (m Manifest) Tracked(key string) bool {
	_, ok := m[key]
	return ok
}

// Stale 判断从 prev 迁移到 next 时 key 对应的缓存是否必须淘汰：
// 新清单不再包含该键，或两份清单记录的指纹不一致。
func Stale(prev, next Manifest, key string) bool {
	nextFingerprint, ok := next[key]
	if !ok {
		return true
	}
	return nextFingerprint != prev[key]
}
