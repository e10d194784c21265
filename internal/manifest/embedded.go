package manifest

import (
	_ "embed"
	"fmt"
	"sync"
)

//go:embed assets/manifest.json
var embeddedManifest []byte

var (
	embeddedOnce   sync.Once
	embeddedBundle *Bundle
)

// Default 返回编译期内置的构建清单，首次调用时解析并缓存。
// 内置清单非法属于构建产物损坏，直接 panic 终止进程。
func Default() *Bundle {
	embeddedOnce.Do(func() {
		bundle, err := Load(embeddedManifest)
		if err != nil {
			panic(fmt.Sprintf("embedded manifest invalid: %v", err))
		}
		embeddedBundle = bundle
	})
	return embeddedBundle
}
