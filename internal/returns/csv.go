package returns

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// WriteCSV 以 "date,<id>" 为表头写出序列。
func WriteCSV(w io.Writer, s Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", s.ID}); err != nil {
		return err
	}
	for _, p := range s.Points {
		if err := cw.Write([]string{p.Date.Format(DateLayout), formatValue(p.Value)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV 读取 WriteCSV 写出的文件；值列取第二列，空值行跳过。
// 表头中的列名作为序列 id，fallbackID 仅在表头缺少列名时使用。
func ReadCSV(r io.Reader, fallbackID string) (Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Series{}, errors.New("empty series file")
		}
		return Series{}, err
	}
	if len(header) < 2 {
		return Series{}, fmt.Errorf("series header needs 2 columns, got %d", len(header))
	}
	id := strings.TrimSpace(header[1])
	if id == "" {
		id = fallbackID
	}

	var points []Point
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Series{}, err
		}
		if len(record) < 2 || strings.TrimSpace(record[1]) == "" {
			continue
		}
		date, err := ParseDate(strings.TrimSpace(record[0]))
		if err != nil {
			return Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, Point{Date: date, Value: value})
	}
	return NewSeries(id, points), nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !math.IsInf(v, 0) {
		s += ".0"
	}
	return s
}
