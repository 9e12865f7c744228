package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/amgproxy/fault"
)

// TemplateNote is attached to summaries built from a baked-in template.
const TemplateNote = "Grafana API access was unavailable; panel list came from the baked-in dashboard template. Panel IDs are not available from the template."

// Templates maps a dashboard uid to its template file name.
var Templates = map[string]string{
	"afbppudwbhl34b": "grocery-sre-overview.dashboard.template.json",
}

type (
	// Store loads dashboard templates from a base location.
	Store struct {
		fs      afs.Service
		baseURL string
		files   map[string]string
	}

	// Template is a parsed dashboard template.
	Template struct {
		UID       string
		Dashboard map[string]any
	}

	// PanelQuery is the query selected from a template panel.
	PanelQuery struct {
		PanelIndex int    `json:"panelIndex"`
		Title      string `json:"title"`
		Type       any    `json:"type"`
		Expr       string `json:"-"`
	}
)

// NewStore creates a template store reading from baseURL.
func NewStore(baseURL string) *Store {
	return &Store{fs: afs.New(), baseURL: baseURL, files: Templates}
}

// Load reads and parses the template mapped to uid.
func (s *Store) Load(ctx context.Context, uid string) (*Template, error) {
	name, ok := s.files[uid]
	if !ok {
		return nil, fault.Newf(fault.InvalidArgument, "template", "no dashboard template mapping for uid=%s", uid)
	}
	URL := url.Join(s.baseURL, name)
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, &fault.Error{Kind: fault.Unreachable, Op: "template", Message: "dashboard template not found: " + URL, Err: err}
	}
	document := map[string]any{}
	if err = json.Unmarshal(data, &document); err != nil {
		return nil, &fault.Error{Kind: fault.Internal, Op: "template", Message: "invalid template " + URL, Err: err}
	}
	dashboard, ok := document["dashboard"].(map[string]any)
	if !ok {
		return nil, fault.New(fault.Internal, "template", "template JSON missing 'dashboard' object")
	}
	return &Template{UID: uid, Dashboard: dashboard}, nil
}

func (t *Template) panels() []any {
	ret, _ := t.Dashboard["panels"].([]any)
	return ret
}

// Summary lists top level template panels in document order.
func (t *Template) Summary() *Summary {
	ret := &Summary{
		Dashboard: Info{UID: t.UID, Slug: "-", Title: t.Dashboard["title"]},
		Panels:    []*Panel{},
		Warning:   &Warning{Note: TemplateNote},
	}
	for i, item := range t.panels() {
		panel, ok := item.(map[string]any)
		if !ok {
			continue
		}
		summary := newPanel(panel)
		summary.PanelIndex = i + 1
		summary.Renderable = !container(panel["type"])
		ret.Panels = append(ret.Panels, summary)
	}
	return ret
}

// DefaultVars returns templating.list[].current.value keyed by variable name.
func (t *Template) DefaultVars() map[string]string {
	ret := map[string]string{}
	templating, _ := t.Dashboard["templating"].(map[string]any)
	items, _ := templating["list"].([]any)
	for _, item := range items {
		variable, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := variable["name"].(string)
		if strings.TrimSpace(name) == "" {
			continue
		}
		current, _ := variable["current"].(map[string]any)
		if value, ok := current["value"].(string); ok && strings.TrimSpace(value) != "" {
			ret[name] = strings.TrimSpace(value)
		}
	}
	return ret
}

// PanelQuery finds the panel titled title (case insensitive) and returns the
// expression of its refID target, or of its first target.
func (t *Template) PanelQuery(title, refID string) (*PanelQuery, error) {
	wanted := strings.ToLower(strings.TrimSpace(title))
	if wanted == "" {
		return nil, fault.New(fault.InvalidArgument, "template", "panelTitle is required")
	}
	if _, ok := t.Dashboard["panels"].([]any); !ok {
		return nil, fault.New(fault.Internal, "template", "template JSON missing 'dashboard.panels' list")
	}
	for i, item := range t.panels() {
		panel, ok := item.(map[string]any)
		if !ok {
			continue
		}
		panelTitle, _ := panel["title"].(string)
		if strings.ToLower(strings.TrimSpace(panelTitle)) != wanted {
			continue
		}
		target, err := chooseTarget(panel, title, refID)
		if err != nil {
			return nil, err
		}
		expr, _ := target["expr"].(string)
		if strings.TrimSpace(expr) == "" {
			expr, _ = target["query"].(string)
		}
		if strings.TrimSpace(expr) == "" {
			return nil, fault.Newf(fault.InvalidArgument, "template", "panel '%s' target has no expr", title)
		}
		return &PanelQuery{PanelIndex: i + 1, Title: panelTitle, Type: panel["type"], Expr: expr}, nil
	}
	return nil, fault.Newf(fault.InvalidArgument, "template", "panel titled '%s' not found in template", title)
}

func chooseTarget(panel map[string]any, title, refID string) (map[string]any, error) {
	targets, _ := panel["targets"].([]any)
	if len(targets) == 0 {
		return nil, fault.Newf(fault.InvalidArgument, "template", "panel '%s' has no targets", title)
	}
	var first map[string]any
	for _, item := range targets {
		target, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if first == nil {
			first = target
		}
		ref := "A"
		if value, ok := target["refId"]; ok && value != nil && value != "" {
			ref = fmt.Sprint(value)
		}
		if strings.EqualFold(strings.TrimSpace(ref), strings.TrimSpace(refID)) {
			return target, nil
		}
	}
	if first == nil {
		return nil, fault.Newf(fault.InvalidArgument, "template", "panel '%s' has no usable target", title)
	}
	return first, nil
}
