package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/formgraph/formgraph/pkg/engine"
	"github.com/formgraph/formgraph/pkg/schema"
)

// parseAssignments turns key=value arguments into node writes. Values are
// decoded as YAML scalars, so numbers, booleans, lists, and quoted strings
// all work from the shell.
func parseAssignments(args []string) (map[string]cty.Value, error) {
	out := map[string]cty.Value{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q, want key=value", arg)
		}
		var decoded interface{}
		if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		v, err := schema.FromGo(decoded)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// parseExternal turns key=value arguments into the external context map.
func parseExternal(args []string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q, want key=value", arg)
		}
		var decoded interface{}
		if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		out[key] = decoded
	}
	return out, nil
}

// loadSeedFile reads a YAML file of key: value pairs as an initial seed.
func loadSeedFile(path string) (map[string]cty.Value, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	seed := map[string]cty.Value{}
	for key, value := range raw {
		v, err := schema.FromGo(value)
		if err != nil {
			return nil, fmt.Errorf("invalid seed value for %s: %w", key, err)
		}
		seed[key] = v
	}
	return seed, nil
}

// printSnapshot writes a settled snapshot to stdout, as indented JSON or
// as key: value lines.
func printSnapshot(snap engine.Snapshot) error {
	out := map[string]interface{}{}
	for _, key := range snap.Keys() {
		v, _ := snap.Get(key)
		gv, err := schema.ToGo(v)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", key, err)
		}
		out[key] = gv
	}

	if jsonOutput {
		buf, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(buf))
		return nil
	}

	buf, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Print(string(buf))
	return nil
}
