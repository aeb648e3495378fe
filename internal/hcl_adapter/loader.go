package hcl_adapter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/jform/internal/config"
	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/fsutil"
)

// Extensions recognised when walking directories.
var Extensions = []string{".hcl", ".json"}

// Loader is the HCL-specific implementation of the config.Loader interface.
// Files ending in .json are read with the HCL JSON syntax, everything else
// with the native syntax.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every file reachable from paths and merges their blocks into a
// single model. Fields, expressions, constraints, actions and groups keep
// their declaration order across files, in file order.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.CollectFiles(paths, Extensions...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no configuration files found")
	}
	logger.Debug("Discovered configuration files.", "count", len(files))

	model := config.New()
	parser := hclparse.NewParser()
	seen := map[string]string{}

	for _, file := range files {
		var hclFile *hcl.File
		var diags hcl.Diagnostics
		if filepath.Ext(file) == ".json" {
			hclFile, diags = parser.ParseJSONFile(file)
		} else {
			hclFile, diags = parser.ParseHCLFile(file)
		}
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse configuration file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode configuration file %s: %w", file, diags)
		}

		if err := l.merge(ctx, file, &root, model, seen); err != nil {
			return nil, err
		}
	}

	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid form configuration: %w", err)
	}

	logger.Debug("HCL loading complete.",
		"form", model.Name,
		"fields", len(model.Fields),
		"expressions", len(model.Expressions),
		"constraints", len(model.Constraints),
		"actions", len(model.Actions),
		"groups", len(model.Groups),
	)
	return model, nil
}

// merge folds one decoded file into the model. Singleton blocks may appear in
// only one file; seen records which file declared each of them.
func (l *Loader) merge(ctx context.Context, file string, root *fileRoot, model *config.Model, seen map[string]string) error {
	claim := func(block string) error {
		if prev, ok := seen[block]; ok {
			return fmt.Errorf("%s block declared in both %s and %s", block, prev, file)
		}
		seen[block] = file
		return nil
	}

	if root.Form != nil {
		if err := claim("form"); err != nil {
			return err
		}
		l.translateForm(ctx, root.Form, model)
	}

	for _, fb := range root.Fields {
		f, err := l.translateField(ctx, fb)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		model.Fields = append(model.Fields, f)
	}
	for _, eb := range root.Expressions {
		model.Expressions = append(model.Expressions, translateExpression(eb))
	}
	for _, cb := range root.Constraints {
		model.Constraints = append(model.Constraints, translateConstraint(cb))
	}
	for _, ab := range root.Actions {
		model.Actions = append(model.Actions, translateAction(ab))
	}
	for _, gb := range root.Groups {
		model.Groups = append(model.Groups, translateGroup(gb))
	}

	if root.Target != nil {
		if err := claim("target"); err != nil {
			return err
		}
		t, err := l.translateTarget(ctx, root.Target, "target")
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		model.Target = t
	}
	if root.InitializeTarget != nil {
		if err := claim("initialize_target"); err != nil {
			return err
		}
		t, err := l.translateTarget(ctx, root.InitializeTarget, "initialize_target")
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		model.InitializeTarget = t
	}
	if root.URLModelMask != nil {
		if err := claim("url_model_mask"); err != nil {
			return err
		}
		mask, err := translateMask(ctx, root.URLModelMask)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		model.URLModelMask = mask
	}
	if root.Response != nil {
		if err := claim("response"); err != nil {
			return err
		}
		model.ResponseWrapper = config.ResponseWrapper{Path: root.Response.WrapperPath, Optional: root.Response.Optional}
	}
	if root.Messages != nil {
		translateMessages(root.Messages, &model.Messages)
	}
	return nil
}
