package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供工具请求的通用字段，供 HTTP 访问日志复用。
func RequestFields(requestID, method, route string, status int) logrus.Fields {
	return logrus.Fields{
		"action":     "tool_request",
		"request_id": requestID,
		"method":     method,
		"route":      route,
		"status":     status,
	}
}

// CacheFields 描述一次缓存读写操作。
func CacheFields(action, key string) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"cache_key": key,
	}
}

// SyncFields 汇总基线同步结果。
func SyncFields(added, removed, failed, total int) logrus.Fields {
	return logrus.Fields{
		"action":  "baseline_sync",
		"added":   added,
		"removed": removed,
		"failed":  failed,
		"total":   total,
	}
}

// CheckFields 描述一次相关性检查。
func CheckFields(entityID, mode string, threshold float64) logrus.Fields {
	return logrus.Fields{
		"action":    "correlation_check",
		"entity_id": entityID,
		"mode":      mode,
		"threshold": threshold,
	}
}
