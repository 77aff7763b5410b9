package baseline

// Entry 是名册中单个实体的元数据，字段名与 entities/index.json 保持一致。
type Entry struct {
	Name           string   `json:"name"`
	InstrumentType string   `json:"instrument_type"`
	Region         string   `json:"region"`
	Universe       string   `json:"universe"`
	IsPowerPool    bool     `json:"is_power_pool"`
	Sharpe         *float64 `json:"sharpe"`
	Returns        *float64 `json:"returns"`
	Turnover       *float64 `json:"turnover"`
	Fitness        *float64 `json:"fitness"`
	Margin         *float64 `json:"margin"`
}

// SharpeValue 返回 Sharpe，缺失时为 0。
func (e Entry) SharpeValue() float64 {
	if e.Sharpe == nil {
		return 0
	}
	return *e.Sharpe
}

// Tag 选择基线分区：SelfCorr 对应普通实体，PPAC 对应特殊池实体。
type Tag string

const (
	TagSelf      Tag = "SelfCorr"
	TagPowerPool Tag = "PPAC"
)

// Matches 判断实体是否属于该分区。
func (t Tag) Matches(e Entry) bool {
	switch t {
	case TagSelf:
		return !e.IsPowerPool
	case TagPowerPool:
		return e.IsPowerPool
	default:
		return false
	}
}
