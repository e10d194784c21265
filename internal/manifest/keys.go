package manifest

import "strings"

// versionMarker 是调用方用于 cache-busting 的查询后缀，不参与键身份。
const versionMarker = "?v="

// fragmentMarker 标记 hash 路由导航，这类请求一律落到应用入口点。
const fragmentMarker = "#/"

// Key 将请求路径与原始查询串归一化为逻辑资源键。
// 规则：丢弃末尾的 ?v=... 版本后缀；其余查询串保留为键的一部分
// （带任意查询的键不会出现在清单里，自然走透传）；空路径、
// hash 路由前缀均归一化为入口点 "/"。
func Key(path, rawQuery string) string {
	key := path
	if rawQuery != "" && !strings.HasPrefix(rawQuery, "v=") {
		key = path + "?" + rawQuery
	}

	if idx := strings.Index(key, versionMarker); idx >= 0 {
		key = key[:idx]
	}

	if key == "" || key == RootKey {
		return RootKey
	}
	if strings.HasPrefix(key, fragmentMarker) || strings.HasPrefix(key, "/"+fragmentMarker) {
		return RootKey
	}
	return key
}
