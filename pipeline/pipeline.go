// Package pipeline chains transformers and a final estimator under stable
// stage names, so that hyperparameters can be addressed as "stage__param".
package pipeline

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gridtrack/core/model"
	"github.com/YuminosukeSato/gridtrack/metrics"
	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// ParamSep separates stage and parameter names in flattened keys.
const ParamSep = "__"

func init() {
	gob.Register(&Pipeline{})
}

// Step is a named pipeline stage.
type Step struct {
	Name      string
	Estimator model.Component
}

// Pipeline applies each transformer in order and fits the final estimator on
// the transformed data. Every step but the last must implement
// model.Transformer; the last must implement model.Estimator.
type Pipeline struct {
	model.BaseEstimator
	steps []Step
}

// New validates the steps and returns an unfitted pipeline.
func New(steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, errors.NewValidationError("steps", "pipeline needs at least one step", 0)
	}
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		switch {
		case s.Name == "":
			return nil, errors.NewValidationError("steps", "step name must not be empty", i)
		case strings.Contains(s.Name, ParamSep):
			return nil, errors.NewValidationError("steps", "step name must not contain "+ParamSep, s.Name)
		case seen[s.Name]:
			return nil, errors.NewValidationError("steps", "duplicate step name", s.Name)
		case s.Estimator == nil:
			return nil, errors.NewValidationError("steps", "step has no estimator", s.Name)
		}
		seen[s.Name] = true

		if i < len(steps)-1 {
			if _, ok := s.Estimator.(model.Transformer); !ok {
				return nil, errors.NewValidationError("steps", "intermediate step must be a transformer", s.Name)
			}
		} else if _, ok := s.Estimator.(model.Estimator); !ok {
			return nil, errors.NewValidationError("steps", "final step must be an estimator", s.Name)
		}
	}
	return &Pipeline{steps: append([]Step(nil), steps...)}, nil
}

// Steps returns a copy of the step list in execution order.
func (p *Pipeline) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// Names returns the stage names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

// Stage returns the component registered under name.
func (p *Pipeline) Stage(name string) (model.Component, bool) {
	for _, s := range p.steps {
		if s.Name == name {
			return s.Estimator, true
		}
	}
	return nil, false
}

func (p *Pipeline) final() model.Estimator {
	return p.steps[len(p.steps)-1].Estimator.(model.Estimator)
}

// Fit fits every transformer on the running X, then the final estimator.
func (p *Pipeline) Fit(X, y mat.Matrix) error {
	Xt := X
	for _, s := range p.steps[:len(p.steps)-1] {
		var err error
		Xt, err = s.Estimator.(model.Transformer).FitTransform(Xt)
		if err != nil {
			return errors.Wrapf(err, "pipeline step %q", s.Name)
		}
	}
	last := p.steps[len(p.steps)-1]
	if err := p.final().Fit(Xt, y); err != nil {
		return errors.Wrapf(err, "pipeline step %q", last.Name)
	}
	_, c := X.Dims()
	p.SetFitted(c)
	return nil
}

func (p *Pipeline) transform(X mat.Matrix) (mat.Matrix, error) {
	Xt := X
	for _, s := range p.steps[:len(p.steps)-1] {
		var err error
		Xt, err = s.Estimator.(model.Transformer).Transform(Xt)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline step %q", s.Name)
		}
	}
	return Xt, nil
}

// Predict transforms X through every transformer and predicts with the final estimator.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "Predict")
	}
	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.final().Predict(Xt)
}

// Score returns the R² of Predict(X) against y.
func (p *Pipeline) Score(X, y mat.Matrix) (float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(y, pred)
}

// GetParams returns every stage parameter keyed as "stage__param".
func (p *Pipeline) GetParams() map[string]interface{} {
	out := make(map[string]interface{})
	for _, s := range p.steps {
		for k, v := range s.Estimator.GetParams() {
			out[s.Name+ParamSep+k] = v
		}
	}
	return out
}

// SetParams sets parameters keyed as "stage__param". Keys are validated on
// clones first, so a failure leaves the pipeline unchanged.
func (p *Pipeline) SetParams(params map[string]interface{}) error {
	byStage := make(map[string]map[string]interface{})
	for key, v := range params {
		stage, param, ok := strings.Cut(key, ParamSep)
		if !ok || stage == "" || param == "" {
			return errors.NewInvalidGridError("", "", fmt.Sprintf("parameter %q is not of the form <stage>__<param>", key))
		}
		if byStage[stage] == nil {
			byStage[stage] = make(map[string]interface{})
		}
		byStage[stage][param] = v
	}

	for stage, ps := range byStage {
		c, ok := p.Stage(stage)
		if !ok {
			return errors.NewInvalidGridError(stage, "", "no such pipeline stage")
		}
		if err := c.Clone().SetParams(ps); err != nil {
			return err
		}
	}
	for stage, ps := range byStage {
		if err := p.SetStageParams(stage, ps); err != nil {
			return err
		}
	}
	return nil
}

// SetStageParams sets parameters on a single named stage.
func (p *Pipeline) SetStageParams(stage string, params map[string]interface{}) error {
	c, ok := p.Stage(stage)
	if !ok {
		return errors.NewInvalidGridError(stage, "", "no such pipeline stage")
	}
	if err := c.SetParams(params); err != nil {
		return err
	}
	p.Reset()
	return nil
}

// Clone returns an unfitted pipeline with cloned stages.
func (p *Pipeline) Clone() model.Component {
	steps := make([]Step, len(p.steps))
	for i, s := range p.steps {
		steps[i] = Step{Name: s.Name, Estimator: s.Estimator.Clone()}
	}
	return &Pipeline{steps: steps}
}

// ClonePipeline is Clone with the concrete type.
func (p *Pipeline) ClonePipeline() *Pipeline {
	return p.Clone().(*Pipeline)
}

// String renders the pipeline as Pipeline(steps=[(name, estimator), ...]).
func (p *Pipeline) String() string {
	parts := make([]string, len(p.steps))
	for i, s := range p.steps {
		parts[i] = fmt.Sprintf("(%q, %v)", s.Name, s.Estimator)
	}
	return "Pipeline(steps=[" + strings.Join(parts, ", ") + "])"
}

// pipelineState is the gob wire form of a Pipeline.
type pipelineState struct {
	Base  model.BaseEstimator
	Steps []Step
}

// GobEncode implements gob.GobEncoder. Stage types must be registered with gob.
func (p *Pipeline) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pipelineState{Base: p.BaseEstimator, Steps: p.steps}); err != nil {
		return nil, errors.Wrap(err, "encode pipeline")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (p *Pipeline) GobDecode(data []byte) error {
	var st pipelineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return errors.Wrap(err, "decode pipeline")
	}
	p.BaseEstimator = st.Base
	p.steps = st.Steps
	return nil
}
