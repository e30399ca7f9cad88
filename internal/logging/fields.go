package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// StoreFields 提供 store 名称与新鲜度等字段，供诊断请求日志复用。
func StoreFields(store, requestID string, entries int, fresh, locked bool) logrus.Fields {
	return logrus.Fields{
		"store":      store,
		"request_id": requestID,
		"entries":    entries,
		"fresh":      fresh,
		"locked":     locked,
	}
}
