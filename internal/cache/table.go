package cache

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// encodeTable 将行集写成 CSV。表头为所有行键按首次出现顺序的并集，
// 嵌套的 map/slice 先序列化为 JSON 字符串再放入单元格。
func encodeTable(rows []Row) ([]byte, error) {
	header := tableHeader(rows)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			cell, err := encodeCell(row[col])
			if err != nil {
				return nil, fmt.Errorf("encode column %s: %w", col, err)
			}
			record[i] = cell
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tableHeader(rows []Row) []string {
	seen := make(map[string]struct{})
	var header []string
	for _, row := range rows {
		// map 迭代无序，行内按键名排序保证列顺序稳定
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			header = append(header, k)
		}
	}
	return header
}

func encodeCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return encodeString(val)
	case bool:
		if val {
			return "True", nil
		}
		return "False", nil
	case float64:
		return formatFloat(val), nil
	case float32:
		return formatFloat(float64(val)), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val), nil
	case json.Number:
		return val.String(), nil
	}

	kind := reflect.ValueOf(v).Kind()
	if kind == reflect.Map || kind == reflect.Slice || kind == reflect.Array || kind == reflect.Struct {
		payload, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}
	return fmt.Sprint(v), nil
}

// encodeString 在字符串读回会变成别的类型时（空串、数字、布尔、JSON 样式）
// 写成带引号的 JSON 字符串，parseCell 会把它还原为原字符串。
func encodeString(s string) (string, error) {
	if parsed, ok := parseCell(s).(string); ok && parsed == s {
		return s, nil
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// formatFloat 保证整数值的浮点数仍带小数点，读回时不会被还原成整型。
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ""
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// decodeTable 读取 CSV 并逐格还原类型。
func decodeTable(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty table")
	}
	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = parseCell(record[i])
			} else {
				row[col] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseCell 尝试把以 { [ " 开头的单元格按 JSON 解析；空串还原为 nil。
func parseCell(value string) any {
	if value == "" {
		return nil
	}
	s := strings.TrimSpace(value)
	if s != "" && (s[0] == '{' || s[0] == '[' || s[0] == '"') {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return decoded
		}
		return value
	}
	switch s {
	case "True", "true":
		return true
	case "False", "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	switch s {
	case "inf":
		return math.Inf(1)
	case "-inf":
		return math.Inf(-1)
	}
	// nan、Infinity 之类只认作字符串，非有限值仅以 formatFloat 的写法出现
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return value
}
