package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供逻辑键/策略/命中状态字段，供请求日志复用。
func RequestFields(key, strategy string, tracked, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"key":       key,
		"strategy":  strategy,
		"tracked":   tracked,
		"cache_hit": cacheHit,
	}
}

// LifecycleFields 提供生命周期阶段日志字段，统一 install/activate 两个阶段的输出。
func LifecycleFields(action, phase string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"phase":  phase,
	}
}
