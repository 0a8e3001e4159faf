package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供方法/路径/结果字段，供代理请求日志复用。
func RequestFields(method, pathAndQuery, outcome string, status int) logrus.Fields {
	return logrus.Fields{
		"method":  method,
		"path":    pathAndQuery,
		"outcome": outcome,
		"status":  status,
	}
}
