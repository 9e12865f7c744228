package dashboard

import (
	"sort"
	"strings"

	"github.com/viant/amgproxy/internal/conv"
)

type (
	// Info identifies a dashboard.
	Info struct {
		UID   string `json:"uid"`
		Slug  string `json:"slug"`
		Title any    `json:"title"`
	}

	// Panel is one flattened panel.
	Panel struct {
		ID         *int64         `json:"id"`
		PanelIndex int            `json:"panelIndex,omitempty"`
		Title      any            `json:"title"`
		Type       any            `json:"type"`
		RowTitle   *string        `json:"rowTitle,omitempty"`
		GridPos    map[string]any `json:"gridPos,omitempty"`
		Renderable bool           `json:"renderable"`
	}

	// Warning explains a degraded summary.
	Warning struct {
		Note string `json:"note"`
	}

	// Summary is a dashboard title and its flattened panels.
	Summary struct {
		Dashboard Info     `json:"dashboard"`
		Panels    []*Panel `json:"panels"`
		Warning   *Warning `json:"warning,omitempty"`
	}
)

var gridKeys = []string{"x", "y", "w", "h"}

// Slug returns meta.slug of a /api/dashboards/uid response, or "-".
func Slug(byUID map[string]any) string {
	meta, _ := byUID["meta"].(map[string]any)
	if slug, ok := meta["slug"].(string); ok && strings.TrimSpace(slug) != "" {
		return strings.TrimSpace(slug)
	}
	return "-"
}

func body(byUID map[string]any) map[string]any {
	ret, _ := byUID["dashboard"].(map[string]any)
	return ret
}

// FirstPanelID returns the id of the first renderable panel, depth first through
// rows.
func FirstPanelID(byUID map[string]any) *int64 {
	return firstPanelID(body(byUID)["panels"])
}

func firstPanelID(panels any) *int64 {
	list, _ := panels.([]any)
	for _, item := range list {
		panel, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if found := firstPanelID(panel["panels"]); found != nil {
			return found
		}
		switch panel["type"] {
		case "row", "dashboard", "text":
			continue
		}
		if id, ok := conv.AsInt64(panel["id"]); ok {
			return &id
		}
	}
	return nil
}

// Summarize flattens a /api/dashboards/uid response. Panels are ordered by id,
// then title.
func Summarize(uid string, byUID map[string]any) *Summary {
	dashboard := body(byUID)
	ret := &Summary{
		Dashboard: Info{UID: uid, Slug: Slug(byUID), Title: dashboard["title"]},
		Panels:    []*Panel{},
	}
	ret.walk(dashboard["panels"], nil)
	sort.SliceStable(ret.Panels, func(i, j int) bool {
		a, b := ret.Panels[i], ret.Panels[j]
		if idOf(a) != idOf(b) {
			return idOf(a) < idOf(b)
		}
		return titleOf(a) < titleOf(b)
	})
	return ret
}

func (s *Summary) walk(panels any, rowTitle *string) {
	list, _ := panels.([]any)
	for _, item := range list {
		panel, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if nested, ok := panel["panels"].([]any); ok {
			nestedRow := rowTitle
			if title, ok := panel["title"].(string); ok {
				nestedRow = &title
			}
			s.walk(nested, nestedRow)
		}
		summary := newPanel(panel)
		summary.RowTitle = rowTitle
		if id, ok := conv.AsInt64(panel["id"]); ok {
			summary.ID = &id
		}
		summary.Renderable = idOf(summary) > 0 && !container(panel["type"])
		s.Panels = append(s.Panels, summary)
	}
}

func newPanel(panel map[string]any) *Panel {
	ret := &Panel{Title: panel["title"], Type: panel["type"]}
	if grid, ok := panel["gridPos"].(map[string]any); ok {
		for _, key := range gridKeys {
			if value, ok := grid[key]; ok {
				if ret.GridPos == nil {
					ret.GridPos = map[string]any{}
				}
				ret.GridPos[key] = value
			}
		}
	}
	return ret
}

func container(panelType any) bool {
	return panelType == "row" || panelType == "dashboard"
}

func idOf(p *Panel) int64 {
	if p.ID == nil {
		return 0
	}
	return *p.ID
}

func titleOf(p *Panel) string {
	if title, ok := p.Title.(string); ok {
		return title
	}
	return ""
}
