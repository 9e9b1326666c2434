package mesh

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/taskmesh/internal/ctxlog"
	"github.com/vk/taskmesh/internal/fsutil"
	"github.com/vk/taskmesh/internal/task"
)

// fileRoot decodes all possible top-level blocks of a mesh file.
type fileRoot struct {
	Settings []*settingsBlock `hcl:"settings,block"`
	Phases   []*phaseBlock    `hcl:"phase,block"`
	Tasks    []*taskBlock     `hcl:"task,block"`
}

type settingsBlock struct {
	MaxParallel     int  `hcl:"max_parallel,optional"`
	CancelOnFailure bool `hcl:"cancel_on_failure,optional"`
}

type phaseBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type taskBlock struct {
	Kind      string       `hcl:"kind,label"`
	Name      string       `hcl:"name,label"`
	Phase     string       `hcl:"phase"`
	DependsOn []string     `hcl:"depends_on,optional"`
	Params    *paramsBlock `hcl:"params,block"`
}

type paramsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Load parses a mesh from a single .hcl file or a directory of them.
// Files are processed in sorted path order so phase and task ordering is
// deterministic across platforms.
func Load(ctx context.Context, path string) (*Mesh, error) {
	logger := ctxlog.FromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("mesh path: %w", err)
	}
	var paths []string
	if info.IsDir() {
		paths, err = fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("discovering mesh files: %w", err)
		}
		sort.Strings(paths)
	} else {
		paths = []string{path}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .hcl mesh files found under %s", path)
	}
	logger.Debug("Discovered mesh files.", "count", len(paths))

	parser := hclparse.NewParser()
	m := &Mesh{}
	settingsSeen := false

	for _, filePath := range paths {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse mesh file %s: %w", filePath, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode mesh file %s: %w", filePath, diags)
		}

		for _, s := range root.Settings {
			if settingsSeen {
				return nil, fmt.Errorf("duplicate settings block in %s: only one settings block is allowed per mesh", filePath)
			}
			settingsSeen = true
			m.Settings = Settings{
				MaxParallel:     s.MaxParallel,
				CancelOnFailure: s.CancelOnFailure,
			}
		}
		for _, p := range root.Phases {
			m.Phases = append(m.Phases, p.Name)
		}
		for _, tb := range root.Tasks {
			t, err := translateTask(tb)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", filePath, err)
			}
			m.Tasks = append(m.Tasks, t)
		}
		logger.Debug("Loaded mesh file.", "file", filePath)
	}

	logger.Info("Mesh loaded.", "phases", len(m.Phases), "tasks", len(m.Tasks))
	return m, nil
}

// translateTask converts a decoded task block into the scheduler's task
// model. Params are statically evaluated here; mesh files carry literal
// values, not cross-task expressions.
func translateTask(tb *taskBlock) (*task.Task, error) {
	t := &task.Task{
		ID:        tb.Name,
		Name:      tb.Name,
		Kind:      tb.Kind,
		Phase:     tb.Phase,
		DependsOn: tb.DependsOn,
	}
	if tb.Params != nil {
		params, err := decodeParams(tb.Params.Body)
		if err != nil {
			return nil, fmt.Errorf("task '%s': %w", tb.Name, err)
		}
		t.Params = params
	}
	return t, nil
}

func decodeParams(body hcl.Body) (map[string]any, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("decoding params: %w", diags)
	}
	params := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("evaluating param '%s': %w", name, diags)
		}
		converted, err := ctyValueToInterface(val)
		if err != nil {
			return nil, fmt.Errorf("param '%s': %w", name, err)
		}
		params[name] = converted
	}
	return params, nil
}
