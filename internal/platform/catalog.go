package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Operators 查询可用算子列表；平台可能直接返回数组，也可能包在 {operators:[...]} 中。
func (c *Client) Operators(ctx context.Context) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, call{name: "operators", path: "/operators"}, &raw); err != nil {
		return nil, err
	}
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Operators []map[string]any `json:"operators"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode /operators: %w", err)
	}
	return wrapped.Operators, nil
}

// Datasets 查询某个 instrument/region/universe/delay 组合下的数据集。
func (c *Client) Datasets(ctx context.Context, q DatasetQuery) (DatasetPage, error) {
	query := url.Values{}
	query.Set("instrumentType", q.InstrumentType)
	query.Set("region", q.Region)
	query.Set("delay", strconv.Itoa(q.Delay))
	query.Set("universe", q.Universe)
	theme := q.Theme
	if theme == "" {
		theme = "false"
	}
	query.Set("theme", theme)
	if q.Search != "" {
		query.Set("search", q.Search)
	}

	var page DatasetPage
	if err := c.getJSON(ctx, call{name: "datasets", path: "/data-sets", query: query}, &page); err != nil {
		return DatasetPage{}, err
	}
	return page, nil
}

type choice struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

type settingField struct {
	Choices json.RawMessage `json:"choices"`
}

type simulationOptions struct {
	Actions struct {
		POST struct {
			Settings struct {
				Children map[string]settingField `json:"children"`
			} `json:"settings"`
		} `json:"POST"`
	} `json:"actions"`
}

type byInstrument struct {
	InstrumentType map[string]json.RawMessage `json:"instrumentType"`
}

type byRegion struct {
	Region map[string][]choice `json:"region"`
}

// SettingOptions 通过 OPTIONS /simulations 获取所有 (instrumentType, region, delay) 组合及其 universe。
func (c *Client) SettingOptions(ctx context.Context) (SettingOptions, error) {
	resp, err := c.do(ctx, call{name: "settings", method: http.MethodOptions, path: "/simulations"})
	if err != nil {
		return SettingOptions{}, err
	}
	var doc simulationOptions
	if err := decode("/simulations", resp.body, &doc); err != nil {
		return SettingOptions{}, err
	}
	return parseSettingOptions(doc.Actions.POST.Settings.Children)
}

func parseSettingOptions(children map[string]settingField) (SettingOptions, error) {
	var (
		instruments    []choice
		regions        map[string][]choice
		universes      map[string]byRegion
		delays         map[string]byRegion
		neutralization map[string]byRegion
	)
	for name, field := range children {
		var err error
		switch name {
		case "instrumentType":
			err = json.Unmarshal(field.Choices, &instruments)
		case "region":
			regions, err = decodeByInstrument[[]choice](field.Choices)
		case "universe":
			universes, err = decodeByInstrument[byRegion](field.Choices)
		case "delay":
			delays, err = decodeByInstrument[byRegion](field.Choices)
		case "neutralization":
			neutralization, err = decodeByInstrument[byRegion](field.Choices)
		}
		if err != nil {
			return SettingOptions{}, fmt.Errorf("decode %s choices: %w", name, err)
		}
	}

	out := SettingOptions{RegionsByType: make(map[string][]string)}
	for _, inst := range instruments {
		instType := fmt.Sprint(inst.Value)
		out.InstrumentTypes = append(out.InstrumentTypes, instType)
		for _, region := range regions[instType] {
			regionName := fmt.Sprint(region.Value)
			out.RegionsByType[instType] = append(out.RegionsByType[instType], regionName)
			for _, delay := range delays[instType].Region[regionName] {
				d, _, err := toFloat(delay.Value)
				if err != nil {
					return SettingOptions{}, fmt.Errorf("delay for %s/%s: %w", instType, regionName, err)
				}
				out.InstrumentOptions = append(out.InstrumentOptions, InstrumentOption{
					InstrumentType: instType,
					Region:         regionName,
					Delay:          int(d),
					Universe:       values(universes[instType].Region[regionName]),
					Neutralization: values(neutralization[instType].Region[regionName]),
				})
			}
		}
	}
	out.TotalCombinations = len(out.InstrumentOptions)
	return out, nil
}

func decodeByInstrument[T any](raw json.RawMessage) (map[string]T, error) {
	var wrapper byInstrument
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, err
	}
	out := make(map[string]T, len(wrapper.InstrumentType))
	for key, payload := range wrapper.InstrumentType {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

func values(choices []choice) []string {
	out := make([]string, 0, len(choices))
	for _, c := range choices {
		out = append(out, fmt.Sprint(c.Value))
	}
	return out
}
