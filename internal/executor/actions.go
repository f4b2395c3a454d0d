// File: internal/executor/actions.go
package executor

// Kind is the wire name of an action.
type Kind string

const (
	KindNavigate       Kind = "navigate"
	KindSwitchTab      Kind = "switch_tab"
	KindClick          Kind = "click"
	KindFillInput      Kind = "fill_input"
	KindClearInput     Kind = "clear_input"
	KindSelectOption   Kind = "select_dropdown_option"
	KindSelectListItem Kind = "select_list_item"
	KindRunWorkflow    Kind = "run_workflow"
)

// Action is a single instruction from the intent source. The set of
// implementations is closed; values are immutable once built.
type Action interface {
	Kind() Kind
	isAction()
}

// Routed is implemented by actions whose target element lives on a known
// route. An empty hint means "wherever the user is".
type Routed interface {
	Action
	RouteHint() string
}

type Navigate struct {
	Route string `json:"route"`
}

type SwitchTab struct {
	Target string `json:"target"`
	Route  string `json:"route,omitempty"`
}

type Click struct {
	Target string `json:"target"`
	Route  string `json:"route,omitempty"`
}

// FillInput writes Value into the named input, or into the input the user is
// most plausibly looking at when Target is empty.
type FillInput struct {
	Target string `json:"target,omitempty"`
	Value  string `json:"value"`
	Route  string `json:"route,omitempty"`
}

type ClearInput struct {
	Target string `json:"target,omitempty"`
	Route  string `json:"route,omitempty"`
}

// SelectOption picks an entry of a dropdown by explicit Value, else by
// zero-based Index (negative counts from the end), else by the spoken Option
// which may be ordinal language or an option name.
type SelectOption struct {
	Target string `json:"target,omitempty"`
	Value  string `json:"value,omitempty"`
	Index  *int   `json:"index,omitempty"`
	Option string `json:"option,omitempty"`
	Route  string `json:"route,omitempty"`
}

// SelectListItem clicks an entry of a list by ItemID, else Index, else the
// spoken Item.
type SelectListItem struct {
	Target string `json:"target,omitempty"`
	ItemID string `json:"itemId,omitempty"`
	Index  *int   `json:"index,omitempty"`
	Item   string `json:"item,omitempty"`
	Route  string `json:"route,omitempty"`
}

type RunWorkflow struct {
	Name  string `json:"name,omitempty"`
	Steps []Step `json:"steps"`
}

// Step is one entry of a workflow. WaitForLoad gates the next step on page
// stability; navigate steps are always gated.
type Step struct {
	Action      Action
	WaitForLoad bool
}

func (Navigate) Kind() Kind       { return KindNavigate }
func (SwitchTab) Kind() Kind      { return KindSwitchTab }
func (Click) Kind() Kind          { return KindClick }
func (FillInput) Kind() Kind      { return KindFillInput }
func (ClearInput) Kind() Kind     { return KindClearInput }
func (SelectOption) Kind() Kind   { return KindSelectOption }
func (SelectListItem) Kind() Kind { return KindSelectListItem }
func (RunWorkflow) Kind() Kind    { return KindRunWorkflow }

func (Navigate) isAction()       {}
func (SwitchTab) isAction()      {}
func (Click) isAction()          {}
func (FillInput) isAction()      {}
func (ClearInput) isAction()     {}
func (SelectOption) isAction()   {}
func (SelectListItem) isAction() {}
func (RunWorkflow) isAction()    {}

func (a SwitchTab) RouteHint() string      { return a.Route }
func (a Click) RouteHint() string          { return a.Route }
func (a FillInput) RouteHint() string      { return a.Route }
func (a ClearInput) RouteHint() string     { return a.Route }
func (a SelectOption) RouteHint() string   { return a.Route }
func (a SelectListItem) RouteHint() string { return a.Route }

// TargetOf returns the spoken target of an action, if it has one.
func TargetOf(a Action) string {
	switch v := a.(type) {
	case Navigate:
		return v.Route
	case SwitchTab:
		return v.Target
	case Click:
		return v.Target
	case FillInput:
		return v.Target
	case ClearInput:
		return v.Target
	case SelectOption:
		return v.Target
	case SelectListItem:
		return v.Target
	case RunWorkflow:
		return v.Name
	}
	return ""
}

// RouteHintOf returns the route an action's target lives on, or "".
func RouteHintOf(a Action) string {
	if r, ok := a.(Routed); ok {
		return r.RouteHint()
	}
	return ""
}
