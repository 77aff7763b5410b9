package correlation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jordane95/wqb-hub/internal/baseline"
)

// Type 对应远端 /alphas/{id}/correlations/{type} 的类型段。
type Type string

const (
	TypeProd      Type = "prod"
	TypeSelf      Type = "self"
	TypePowerPool Type = "power-pool"
)

// ErrUnsupportedType 表示请求了本地无法计算的相关性类型（PROD）。
var ErrUnsupportedType = errors.New("PROD correlation is not supported locally, use remote mode")

// ParseType 解析类型名，大小写与下划线写法均可。
func ParseType(raw string) (Type, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
	switch Type(normalized) {
	case TypeProd, TypeSelf, TypePowerPool:
		return Type(normalized), nil
	case "powerpool":
		return TypePowerPool, nil
	}
	return "", fmt.Errorf("unknown correlation type %q", raw)
}

// ParseTypes 解析类型列表并去重，保持输入顺序。
func ParseTypes(raw []string) ([]Type, error) {
	seen := make(map[Type]struct{}, len(raw))
	out := make([]Type, 0, len(raw))
	for _, r := range raw {
		t, err := ParseType(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// Tag 返回该类型在基线中的分区；PROD 没有本地分区。
func (t Type) Tag() (baseline.Tag, bool) {
	switch t {
	case TypeSelf:
		return baseline.TagSelf, true
	case TypePowerPool:
		return baseline.TagPowerPool, true
	}
	return "", false
}

// Local 表示该类型能否在本地计算。
func (t Type) Local() bool {
	_, ok := t.Tag()
	return ok
}

// RejectNonLocal 在任何计算之前拒绝 PROD。
func RejectNonLocal(types []Type) error {
	for _, t := range types {
		if !t.Local() {
			return fmt.Errorf("%w (requested %q)", ErrUnsupportedType, t)
		}
	}
	return nil
}
