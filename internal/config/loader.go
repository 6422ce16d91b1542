package config

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/cranebuild/crane/internal/ctxlog"
)

var rootSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "workers"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "log"},
		{Type: "cache"},
		{Type: "watch"},
	},
}

var logSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "level"},
		{Name: "format"},
	},
}

var cacheSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "max_entries"},
		{Name: "state_dir"},
	},
}

var watchSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "enabled"},
		{Name: "debounce_ms"},
		{Name: "ignore"},
	},
}

// Load reads crane.hcl at path and layers its settings over Default().
// A missing file is not an error: the defaults stand.
func Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	model := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("No config file found, using defaults.", "path", path)
		return model, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file %s: %s", path, diags.Error())
	}

	content, diags := file.Body.Content(rootSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config file %s: %s", path, diags.Error())
	}

	if attr, ok := content.Attributes["workers"]; ok {
		if err := decodeInto(attr, &model.Workers); err != nil {
			return nil, err
		}
	}

	for _, block := range content.Blocks {
		var err error
		switch block.Type {
		case "log":
			err = decodeLogBlock(block, &model.Log)
		case "cache":
			err = decodeCacheBlock(block, &model.Cache)
		case "watch":
			err = decodeWatchBlock(block, &model.Watch)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}
	logger.Debug("Config file loaded.", "path", path, "workers", model.Workers)
	return model, nil
}

func decodeLogBlock(block *hcl.Block, out *Log) error {
	content, diags := block.Body.Content(logSchema)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode log block: %s", diags.Error())
	}
	if attr, ok := content.Attributes["level"]; ok {
		if err := decodeInto(attr, &out.Level); err != nil {
			return err
		}
	}
	if attr, ok := content.Attributes["format"]; ok {
		if err := decodeInto(attr, &out.Format); err != nil {
			return err
		}
	}
	return nil
}

func decodeCacheBlock(block *hcl.Block, out *Cache) error {
	content, diags := block.Body.Content(cacheSchema)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode cache block: %s", diags.Error())
	}
	if attr, ok := content.Attributes["max_entries"]; ok {
		if err := decodeInto(attr, &out.MaxEntries); err != nil {
			return err
		}
	}
	if attr, ok := content.Attributes["state_dir"]; ok {
		if err := decodeInto(attr, &out.StateDir); err != nil {
			return err
		}
	}
	return nil
}

func decodeWatchBlock(block *hcl.Block, out *Watch) error {
	content, diags := block.Body.Content(watchSchema)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode watch block: %s", diags.Error())
	}
	if attr, ok := content.Attributes["enabled"]; ok {
		if err := decodeInto(attr, &out.Enabled); err != nil {
			return err
		}
	}
	if attr, ok := content.Attributes["debounce_ms"]; ok {
		if err := decodeInto(attr, &out.DebounceMS); err != nil {
			return err
		}
	}
	if attr, ok := content.Attributes["ignore"]; ok {
		list, err := decodeStringList(attr)
		if err != nil {
			return err
		}
		out.Ignore = list
	}
	return nil
}

// decodeInto evaluates an attribute expression and converts the cty value
// into the target Go value.
func decodeInto(attr *hcl.Attribute, target any) error {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return fmt.Errorf("failed to evaluate %s: %s", attr.Name, diags.Error())
	}
	if err := gocty.FromCtyValue(val, target); err != nil {
		return fmt.Errorf("invalid value for %s: %w", attr.Name, err)
	}
	return nil
}

func decodeStringList(attr *hcl.Attribute) ([]string, error) {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate %s: %s", attr.Name, diags.Error())
	}
	if !val.CanIterateElements() {
		return nil, fmt.Errorf("invalid value for %s: expected a list of strings", attr.Name)
	}
	var out []string
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.Type() != cty.String {
			return nil, fmt.Errorf("invalid value for %s: expected a list of strings, found %s", attr.Name, elem.Type().FriendlyName())
		}
		out = append(out, elem.AsString())
	}
	return out, nil
}
