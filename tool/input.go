package tool

import (
	"bytes"
	"encoding/json"

	"github.com/viant/amgproxy/backend"
)

type (
	// DatasourceListInput takes no arguments.
	DatasourceListInput struct{}

	// QueryDatasourceInput accepts every alias amg-mcp versions have used.
	QueryDatasourceInput struct {
		DatasourceUid      *string `json:"datasourceUid,omitempty" description:"datasource uid"`
		DatasourceUID      *string `json:"datasourceUID,omitempty" description:"datasource uid (alias)"`
		DatasourceUIDSnake *string `json:"datasource_uid,omitempty" description:"datasource uid (alias)"`
		DatasourceName     *string `json:"datasourceName,omitempty" description:"datasource name, e.g. Loki (grocery) or Prometheus (AMW)"`
		Datasourcename     *string `json:"datasourcename,omitempty" description:"datasource name (alias)"`
		Query              *string `json:"query,omitempty" description:"LogQL or PromQL query"`
		Expr               *string `json:"expr,omitempty" description:"query expression (alias)"`
		Limit              *int64  `json:"limit,omitempty" description:"max entries"`
		FromMs             *int64  `json:"fromMs,omitempty" description:"range start, epoch ms"`
		ToMs               *int64  `json:"toMs,omitempty" description:"range end, epoch ms"`
		Fromms             *int64  `json:"fromms,omitempty"`
		Toms               *int64  `json:"toms,omitempty"`
		StartTime          *int64  `json:"startTime,omitempty"`
		EndTime            *int64  `json:"endTime,omitempty"`
		Starttime          *int64  `json:"starttime,omitempty"`
		Endtime            *int64  `json:"endtime,omitempty"`
	}

	// DashboardSearchInput searches dashboards by text.
	DashboardSearchInput struct {
		Query     *string        `json:"query,omitempty" description:"search text"`
		Search    *string        `json:"search,omitempty" description:"search text (alias)"`
		Arguments map[string]any `json:"arguments,omitempty" description:"extra amg-mcp arguments"`
	}

	// DashboardSummaryInput selects a dashboard.
	DashboardSummaryInput struct {
		DashboardUid *string `json:"dashboardUid,omitempty" description:"dashboard uid, defaults to the SRE overview"`
		Uid          *string `json:"uid,omitempty" description:"dashboard uid (alias)"`
	}

	// ImageRenderInput selects a dashboard or panel image.
	ImageRenderInput struct {
		DashboardUid *string        `json:"dashboardUid,omitempty" description:"dashboard uid"`
		Uid          *string        `json:"uid,omitempty" description:"dashboard uid (alias)"`
		PanelId      *int64         `json:"panelId,omitempty" description:"panel id, first panel when omitted"`
		FromMs       *int64         `json:"fromMs,omitempty" description:"range start, epoch ms"`
		ToMs         *int64         `json:"toMs,omitempty" description:"range end, epoch ms"`
		Width        *int64         `json:"width,omitempty"`
		Height       *int64         `json:"height,omitempty"`
		Arguments    map[string]any `json:"arguments,omitempty" description:"extra amg-mcp arguments"`
	}

	// PanelDataInput selects a template panel and its query window.
	PanelDataInput struct {
		DashboardUid *string        `json:"dashboardUid,omitempty" description:"dashboard uid, defaults to the SRE overview"`
		Uid          *string        `json:"uid,omitempty" description:"dashboard uid (alias)"`
		PanelTitle   *string        `json:"panelTitle,omitempty" description:"panel title, case insensitive"`
		App          *string        `json:"app,omitempty" description:"value for the $app variable"`
		TemplateVars map[string]any `json:"templateVars,omitempty" description:"template variable overrides"`
		FromMs       *int64         `json:"fromMs,omitempty" description:"range start, epoch ms, defaults to 60m before toMs"`
		ToMs         *int64         `json:"toMs,omitempty" description:"range end, epoch ms, defaults to now"`
		StepMs       *int64         `json:"stepMs,omitempty" description:"query step, defaults to 30000"`
		Limit        *int64         `json:"limit,omitempty"`
	}

	// ResourceLogInput runs KQL against resource logs.
	ResourceLogInput struct {
		Query      *string        `json:"query,omitempty" description:"KQL query"`
		Kql        *string        `json:"kql,omitempty" description:"KQL query (alias)"`
		ResourceId *string        `json:"resourceId,omitempty" description:"Azure resource id"`
		Arguments  map[string]any `json:"arguments,omitempty"`
	}

	// ResourceGraphInput runs an Azure Resource Graph query.
	ResourceGraphInput struct {
		Query         *string        `json:"query,omitempty" description:"resource graph query"`
		Kql           *string        `json:"kql,omitempty" description:"resource graph query (alias)"`
		Subscriptions []string       `json:"subscriptions,omitempty"`
		Arguments     map[string]any `json:"arguments,omitempty"`
	}

	// SubscriptionsInput lists visible subscriptions.
	SubscriptionsInput struct {
		Arguments map[string]any `json:"arguments,omitempty"`
	}

	// Output describes the fields every tool result carries.
	Output struct {
		OK        bool   `json:"ok"`
		Source    string `json:"source"`
		ErrorType string `json:"errorType,omitempty"`
		Error     string `json:"error,omitempty"`
		Hint      string `json:"hint,omitempty"`
	}
)

// arguments converts an input struct to a generic argument map, keeping only
// the fields that were set. Numbers stay json.Number.
func arguments(input any) backend.Arguments {
	ret := backend.Arguments{}
	data, err := json.Marshal(input)
	if err != nil {
		return ret
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	_ = decoder.Decode(&ret)
	return ret
}

// merge copies extra and then sets defaults for keys extra did not name.
func merge(extra map[string]any, defaults ...kv) backend.Arguments {
	ret := backend.Arguments{}
	for k, v := range extra {
		ret[k] = v
	}
	for _, item := range defaults {
		if item.value == nil {
			continue
		}
		if _, ok := ret[item.key]; !ok {
			ret[item.key] = item.value
		}
	}
	return ret
}

type kv struct {
	key   string
	value any
}

func first[T any](values ...*T) *T {
	for _, value := range values {
		if value != nil {
			return value
		}
	}
	return nil
}

func text(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// optional returns nil for a nil pointer so that merge skips it.
func optional[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}
