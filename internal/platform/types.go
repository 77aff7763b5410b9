package platform

import "strings"

// Settings 是实体的模拟设置中与基线相关的部分。
type Settings struct {
	InstrumentType string `json:"instrumentType"`
	Region         string `json:"region"`
	Universe       string `json:"universe"`
	Delay          int    `json:"delay"`
}

// Performance 是样本内统计。
type Performance struct {
	Sharpe   *float64 `json:"sharpe"`
	Returns  *float64 `json:"returns"`
	Turnover *float64 `json:"turnover"`
	Fitness  *float64 `json:"fitness"`
	Margin   *float64 `json:"margin"`
}

// Classification 是平台给实体打的分类标签。
type Classification struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Entity 对应 /alphas/{id} 与名册条目的公共字段。
type Entity struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Stage           string           `json:"stage"`
	Status          string           `json:"status"`
	DateSubmitted   string           `json:"dateSubmitted"`
	Settings        Settings         `json:"settings"`
	IS              Performance      `json:"is"`
	Classifications []Classification `json:"classifications"`
}

// IsPowerPool 根据分类标签判断实体是否属于 power pool。
func (e Entity) IsPowerPool() bool {
	for _, c := range e.Classifications {
		if strings.Contains(strings.ToUpper(c.ID), "POWER_POOL") || strings.Contains(strings.ToUpper(c.Name), "POWER POOL") {
			return true
		}
	}
	return false
}

// EntityPage 是 /users/self/alphas 的分页结果。
type EntityPage struct {
	Count   int      `json:"count"`
	Results []Entity `json:"results"`
}

// ListOptions 控制名册查询。
type ListOptions struct {
	Stage  string
	Limit  int
	Offset int
	Order  string
}

// RecordSet 是 /alphas/{id}/recordsets/{name} 的响应。
type RecordSet struct {
	Schema struct {
		Name       string `json:"name"`
		Title      string `json:"title"`
		Properties []struct {
			Name  string `json:"name"`
			Title string `json:"title"`
			Type  string `json:"type"`
		} `json:"properties"`
	} `json:"schema"`
	Records [][]any `json:"records"`
}

// Rows 以 schema.properties 的名字把每行转换为 map，越界列为 nil。
func (r RecordSet) Rows() []map[string]any {
	if len(r.Schema.Properties) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(r.Records))
	for _, rec := range r.Records {
		row := make(map[string]any, len(r.Schema.Properties))
		for i, p := range r.Schema.Properties {
			if i < len(rec) {
				row[p.Name] = rec[i]
			} else {
				row[p.Name] = nil
			}
		}
		out = append(out, row)
	}
	return out
}

// DatasetQuery 是 /data-sets 的查询参数。
type DatasetQuery struct {
	InstrumentType string
	Region         string
	Universe       string
	Delay          int
	Theme          string
	Search         string
}

// DatasetPage 是 /data-sets 的响应。
type DatasetPage struct {
	Count   int              `json:"count"`
	Results []map[string]any `json:"results"`
}

// InstrumentOption 是一种可用的 (instrumentType, region, delay) 组合。
type InstrumentOption struct {
	InstrumentType string   `json:"InstrumentType"`
	Region         string   `json:"Region"`
	Delay          int      `json:"Delay"`
	Universe       []string `json:"Universe"`
	Neutralization []string `json:"Neutralization"`
}

// SettingOptions 汇总 OPTIONS /simulations 中的可选设置。
type SettingOptions struct {
	InstrumentOptions []InstrumentOption  `json:"instrument_options"`
	TotalCombinations int                 `json:"total_combinations"`
	InstrumentTypes   []string            `json:"instrument_types"`
	RegionsByType     map[string][]string `json:"regions_by_type"`
}
