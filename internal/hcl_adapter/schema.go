package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Form             *FormBlock         `hcl:"form,block"`
	Fields           []*FieldBlock      `hcl:"field,block"`
	Expressions      []*ExpressionBlock `hcl:"expression,block"`
	Constraints      []*ConstraintBlock `hcl:"constraint,block"`
	Actions          []*ActionBlock     `hcl:"action,block"`
	Groups           []*GroupBlock      `hcl:"group,block"`
	Target           *TargetBlock       `hcl:"target,block"`
	InitializeTarget *TargetBlock       `hcl:"initialize_target,block"`
	URLModelMask     *MaskBlock         `hcl:"url_model_mask,block"`
	Response         *ResponseBlock     `hcl:"response,block"`
	Messages         *MessagesBlock     `hcl:"messages,block"`
	Remain           hcl.Body           `hcl:",remain"`
}

// FormBlock carries form-wide settings.
type FormBlock struct {
	Name                   string            `hcl:"name,label"`
	Locale                 string            `hcl:"locale,optional"`
	SecurityResponsePrefix *string           `hcl:"security_response_prefix,optional"`
	URLStateParam          *string           `hcl:"url_state_param,optional"`
	BotTokenHeader         *string           `hcl:"bot_token_header,optional"`
	TagHeaders             map[string]string `hcl:"tag_headers,optional"`
}

// FieldBlock is one `field "name" {}` block.
type FieldBlock struct {
	Name                  string            `hcl:"name,label"`
	Default               hcl.Expression    `hcl:"default,optional"`
	DependsOn             *[]string         `hcl:"depends_on,optional"`
	ShowIf                string            `hcl:"show_if,optional"`
	DynamicExtend         map[string]string `hcl:"dynamic_extend,optional"`
	Transformer           string            `hcl:"transformer,optional"`
	ValuePersistence      string            `hcl:"value_persistence,optional"`
	Target                string            `hcl:"target,optional"`
	DataMapping           map[string]string `hcl:"data_mapping,optional"`
	DataMappingExpression string            `hcl:"data_mapping_expression,optional"`
	Options               []string          `hcl:"options,optional"`
	Properties            hcl.Expression    `hcl:"properties,optional"`
}

// ExpressionBlock is a named generic evaluation.
type ExpressionBlock struct {
	Name   string `hcl:"name,label"`
	Source string `hcl:"source"`
}

// ConstraintBlock is a submit-time check.
type ConstraintBlock struct {
	Description string `hcl:"description"`
	Evaluation  string `hcl:"evaluation"`
}

// ActionBlock is a post-submit navigation rule.
type ActionBlock struct {
	Name   string `hcl:"name,label"`
	Code   string `hcl:"code"`
	Target string `hcl:"target,optional"`
}

// GroupBlock is a visual container of fields and groups.
type GroupBlock struct {
	Name     string   `hcl:"name,label"`
	Children []string `hcl:"children,optional"`
	ShowIf   string   `hcl:"show_if,optional"`
}

// TargetBlock describes an outbound request.
type TargetBlock struct {
	URL         string            `hcl:"url,optional"`
	Method      string            `hcl:"method,optional"`
	Headers     map[string]string `hcl:"headers,optional"`
	Body        hcl.Expression    `hcl:"body,optional"`
	Mode        string            `hcl:"mode,optional"`
	Credentials string            `hcl:"credentials,optional"`
}

// MaskBlock selects which fields take part in the URL state. Allow and deny
// take a list of names or a tree shaped like the state, {model = {name = {value = true}}}.
type MaskBlock struct {
	Allow hcl.Expression `hcl:"allow,optional"`
	Deny  hcl.Expression `hcl:"deny,optional"`
}

// ResponseBlock locates the payload inside response bodies.
type ResponseBlock struct {
	WrapperPath string `hcl:"wrapper_path,optional"`
	Optional    bool   `hcl:"optional,optional"`
}

// MessagesBlock overrides user-facing texts.
type MessagesBlock struct {
	Invalid         string `hcl:"invalid,optional"`
	Generic         string `hcl:"generic,optional"`
	InvalidContact  string `hcl:"invalid_contact,optional"`
	Unauthenticated string `hcl:"unauthenticated,optional"`
	BotCheck        string `hcl:"bot_check,optional"`
	Stale           string `hcl:"stale,optional"`
}
