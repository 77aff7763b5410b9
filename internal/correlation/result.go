package correlation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SchemaName 区分结果记录的形状，在构造或解码时确定一次。
type SchemaName string

const (
	SchemaSelf SchemaName = "selfCorrelation"
	SchemaProd SchemaName = "prodCorrelation"
)

// Property 描述 records 中一列。
type Property struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Schema 与远端接口的 schema 字段一致。
type Schema struct {
	Name       SchemaName `json:"name"`
	Title      string     `json:"title"`
	Properties []Property `json:"properties"`
}

// SelfRecord 是 selfCorrelation 结果中的一行。
type SelfRecord struct {
	ID             string
	Name           string
	InstrumentType string
	Region         string
	Universe       string
	Correlation    float64
	Sharpe         *float64
	Returns        *float64
	Turnover       *float64
	Fitness        *float64
	Margin         *float64
}

// ProdBucket 是 prodCorrelation 直方图中的一个桶。
type ProdBucket struct {
	Min   float64
	Max   float64
	Count int
}

// Result 是相关性结果的带标签联合：Schema.Name 决定 Self、Prod、Raw 中哪一个有效。
// Max 为 nil 表示没有可比较的数据。
type Result struct {
	Schema *Schema
	Max    *float64
	Min    *float64
	Self   []SelfRecord
	Prod   []ProdBucket
	// Raw 保存无法识别的 schema 的原始记录。
	Raw [][]any
}

var selfProperties = []string{"id", "name", "instrumentType", "region", "universe", "correlation", "sharpe", "returns", "turnover", "fitness", "margin"}

var prodProperties = []string{"min", "max", "alphas"}

// SelfSchema 返回本地计算结果使用的 schema。
func SelfSchema() *Schema {
	props := make([]Property, len(selfProperties))
	for i, name := range selfProperties {
		props[i] = Property{Name: name, Title: name, Type: "STRING"}
	}
	return &Schema{Name: SchemaSelf, Title: "Self Correlation", Properties: props}
}

// Kind 返回结果的 schema 名，空结果返回空串。
func (r Result) Kind() SchemaName {
	if r.Schema == nil {
		return ""
	}
	return r.Schema.Name
}

// NoData 表示结果不含可比较的数据。
func (r Result) NoData() bool {
	return r.Max == nil
}

// Len 返回记录数。
func (r Result) Len() int {
	switch r.Kind() {
	case SchemaSelf:
		return len(r.Self)
	case SchemaProd:
		return len(r.Prod)
	}
	return len(r.Raw)
}

type wireResult struct {
	Schema  *Schema             `json:"schema"`
	Max     *float64            `json:"max"`
	Min     *float64            `json:"min"`
	Records [][]json.RawMessage `json:"records"`
}

// MarshalJSON 输出 {schema, max, min, records:[[...]]}，与远端接口一致。
func (r Result) MarshalJSON() ([]byte, error) {
	records := make([][]any, 0, r.Len())
	switch r.Kind() {
	case SchemaSelf:
		for _, rec := range r.Self {
			records = append(records, []any{
				rec.ID, nullable(rec.Name), nullable(rec.InstrumentType), nullable(rec.Region), nullable(rec.Universe),
				rec.Correlation, rec.Sharpe, rec.Returns, rec.Turnover, rec.Fitness, rec.Margin,
			})
		}
	case SchemaProd:
		for _, b := range r.Prod {
			records = append(records, []any{b.Min, b.Max, b.Count})
		}
	default:
		records = append(records, r.Raw...)
	}
	return json.Marshal(struct {
		Schema  *Schema  `json:"schema"`
		Max     *float64 `json:"max"`
		Min     *float64 `json:"min"`
		Records [][]any  `json:"records"`
	}{r.Schema, r.Max, r.Min, records})
}

// UnmarshalJSON 依据 schema.name 决定记录形状；列位置优先按 schema.properties 的名字解析。
func (r *Result) UnmarshalJSON(data []byte) error {
	var wire wireResult
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Result{Schema: wire.Schema, Max: wire.Max, Min: wire.Min}

	switch r.Kind() {
	case SchemaSelf:
		cols := columnIndex(wire.Schema, selfProperties)
		for i, row := range wire.Records {
			rec, err := decodeSelf(row, cols)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			r.Self = append(r.Self, rec)
		}
	case SchemaProd:
		cols := columnIndex(wire.Schema, prodProperties)
		for i, row := range wire.Records {
			var b ProdBucket
			var count float64
			if err := decodeAt(row, cols["min"], &b.Min); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			if err := decodeAt(row, cols["max"], &b.Max); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			if err := decodeAt(row, cols["alphas"], &count); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			b.Count = int(count)
			r.Prod = append(r.Prod, b)
		}
	default:
		for _, row := range wire.Records {
			values := make([]any, len(row))
			for j, cell := range row {
				if err := json.Unmarshal(cell, &values[j]); err != nil {
					return err
				}
			}
			r.Raw = append(r.Raw, values)
		}
	}
	return nil
}

// columnIndex 以 schema.properties 的名字定位列，缺失时退回默认顺序。
func columnIndex(schema *Schema, defaults []string) map[string]int {
	cols := make(map[string]int, len(defaults))
	for i, name := range defaults {
		cols[name] = i
	}
	if schema == nil || len(schema.Properties) == 0 {
		return cols
	}
	for i, p := range schema.Properties {
		if _, known := cols[p.Name]; known {
			cols[p.Name] = i
		}
	}
	return cols
}

func decodeSelf(row []json.RawMessage, cols map[string]int) (SelfRecord, error) {
	var rec SelfRecord
	var id any
	if err := decodeAt(row, cols["id"], &id); err != nil {
		return rec, err
	}
	if id != nil {
		rec.ID = fmt.Sprint(id)
	}
	for name, dst := range map[string]*string{
		"name": &rec.Name, "instrumentType": &rec.InstrumentType, "region": &rec.Region, "universe": &rec.Universe,
	} {
		if err := decodeAt(row, cols[name], dst); err != nil {
			return rec, err
		}
	}
	if err := decodeAt(row, cols["correlation"], &rec.Correlation); err != nil {
		return rec, err
	}
	for name, dst := range map[string]**float64{
		"sharpe": &rec.Sharpe, "returns": &rec.Returns, "turnover": &rec.Turnover, "fitness": &rec.Fitness, "margin": &rec.Margin,
	} {
		if err := decodeAt(row, cols[name], dst); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// decodeAt 解码 row[idx]；越界或 null 时保持零值。
func decodeAt(row []json.RawMessage, idx int, dst any) error {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	cell := bytes.TrimSpace(row[idx])
	if len(cell) == 0 || bytes.Equal(cell, []byte("null")) {
		return nil
	}
	return json.Unmarshal(cell, dst)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
