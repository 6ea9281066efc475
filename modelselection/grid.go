package modelselection

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/YuminosukeSato/gridtrack/pipeline"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// Grid maps stage name → parameter name → candidate values.
type Grid map[string]map[string][]interface{}

// ParseFlatGrid converts the scikit-learn style {"stage__param": values}
// literal into a Grid.
func ParseFlatGrid(flat map[string][]interface{}) (Grid, error) {
	g := make(Grid)
	for key, values := range flat {
		stage, param, ok := strings.Cut(key, pipeline.ParamSep)
		if !ok || stage == "" || param == "" {
			return nil, errors.NewInvalidGridError("", "",
				fmt.Sprintf("key %q is not of the form <stage>__<param>", key))
		}
		if g[stage] == nil {
			g[stage] = make(map[string][]interface{})
		}
		g[stage][param] = values
	}
	return g, nil
}

// paramAxis is one (stage, param) dimension of the grid.
type paramAxis struct {
	stage  string
	param  string
	values []interface{}
}

func (a paramAxis) key() string {
	return a.stage + pipeline.ParamSep + a.param
}

// ParamGrid is a Grid validated against a pipeline. Every stage exists in the
// pipeline, every parameter is known to its stage, every candidate list is
// non-empty and every candidate value is accepted by the stage.
type ParamGrid struct {
	axes   []paramAxis
	stages []string // stage names of the pipeline the grid was validated against
}

// NewParamGrid validates grid against template. No estimator is fitted.
func NewParamGrid(template *pipeline.Pipeline, grid Grid) (*ParamGrid, error) {
	if template == nil {
		return nil, errors.NewInvalidGridError("", "", "no pipeline to validate against")
	}

	var axes []paramAxis
	for stage, params := range grid {
		component, ok := template.Stage(stage)
		if !ok {
			return nil, errors.NewInvalidGridError(stage, "",
				fmt.Sprintf("no such pipeline stage (stages: %s)", strings.Join(template.Names(), ", ")))
		}
		known := component.GetParams()

		for param, values := range params {
			if _, ok := known[param]; !ok {
				return nil, errors.NewInvalidGridError(stage, param, "unknown parameter for this stage")
			}
			if len(values) == 0 {
				return nil, errors.NewInvalidGridError(stage, param, "no candidate values")
			}
			for _, v := range values {
				if err := component.Clone().SetParams(map[string]interface{}{param: v}); err != nil {
					return nil, errors.WithStack(&errors.InvalidGridError{
						Stage:  stage,
						Param:  param,
						Reason: fmt.Sprintf("candidate %v rejected: %v", v, err),
					})
				}
			}
			axes = append(axes, paramAxis{stage: stage, param: param, values: slices.Clone(values)})
		}
	}

	sort.Slice(axes, func(i, j int) bool {
		if axes[i].stage != axes[j].stage {
			return axes[i].stage < axes[j].stage
		}
		return axes[i].param < axes[j].param
	})

	return &ParamGrid{axes: axes, stages: template.Names()}, nil
}

// Len returns the number of combinations.
func (g *ParamGrid) Len() int {
	n := 1
	for _, a := range g.axes {
		n *= len(a.values)
	}
	return n
}

// Keys returns the flattened "stage__param" keys in iteration order.
func (g *ParamGrid) Keys() []string {
	keys := make([]string, len(g.axes))
	for i, a := range g.axes {
		keys[i] = a.key()
	}
	return keys
}

// Combinations returns every combination in deterministic order: axes sorted
// by (stage, param), the last axis varying fastest. Each combination is keyed
// by "stage__param". A grid with no axes yields one empty combination.
func (g *ParamGrid) Combinations() []Params {
	total := g.Len()
	out := make([]Params, total)
	for i := 0; i < total; i++ {
		p := make(Params, len(g.axes))
		rem := i
		for a := len(g.axes) - 1; a >= 0; a-- {
			axis := g.axes[a]
			p[axis.key()] = axis.values[rem%len(axis.values)]
			rem /= len(axis.values)
		}
		out[i] = p
	}
	return out
}

// compatible reports whether p has the stage names the grid was validated against.
func (g *ParamGrid) compatible(p *pipeline.Pipeline) bool {
	return slices.Equal(g.stages, p.Names())
}

// Params is one hyperparameter combination keyed by "stage__param".
type Params map[string]interface{}

// String renders the combination as sorted key=value pairs.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, ", ")
}

// ByStage splits the combination into per-stage parameter maps.
func (p Params) ByStage() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{})
	for k, v := range p {
		stage, param, _ := strings.Cut(k, pipeline.ParamSep)
		if out[stage] == nil {
			out[stage] = make(map[string]interface{})
		}
		out[stage][param] = v
	}
	return out
}
