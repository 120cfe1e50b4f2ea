package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/arena-cache/arena-cache/internal/cache"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// EntryFields 提供 scope/arena/key 字段，供缓存访问日志复用。
func EntryFields(locator cache.Locator) logrus.Fields {
	return logrus.Fields{
		"scope": string(locator.Scope),
		"arena": locator.Arena,
		"key":   locator.Key,
	}
}

// ResultFields 在 EntryFields 基础上补充结果与耗时，供 HTTP 访问日志使用。
func ResultFields(locator cache.Locator, method, result string, status int, elapsedMS int64) logrus.Fields {
	fields := EntryFields(locator)
	fields["method"] = method
	fields["result"] = result
	fields["status"] = status
	fields["elapsed_ms"] = elapsedMS
	return fields
}
