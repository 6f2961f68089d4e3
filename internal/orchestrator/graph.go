package orchestrator

import "github.com/docscreen-io/docscreen/constants"

// StageRef identifies one stage of the pipeline. Two ner_processing stages
// exist, so the order integer is part of the identity.
type StageRef struct {
	Type  constants.TaskType
	Order int
}

// Stage is one node of the static pipeline graph.
type Stage struct {
	StageRef
	DependsOn []StageRef
}

// The pipeline is a closed set of five stages with fixed dependency edges.
// Dispatch decisions are derived from this graph only; there are no
// per-stage conditionals anywhere else. The reconciliation of the review
// verdicts against the comparison output is not a sixth stage: it is a
// derived value computed at read time from comparison and review outputs.
var pipelineStages = []Stage{
	{
		StageRef: StageRef{Type: constants.TaskTypeVLMExtraction, Order: constants.OrderExtraction},
	},
	{
		StageRef:  StageRef{Type: constants.TaskTypeNERProcessing, Order: constants.OrderNERFirst},
		DependsOn: []StageRef{{constants.TaskTypeVLMExtraction, constants.OrderExtraction}},
	},
	{
		StageRef:  StageRef{Type: constants.TaskTypeNERProcessing, Order: constants.OrderNERSecond},
		DependsOn: []StageRef{{constants.TaskTypeVLMExtraction, constants.OrderExtraction}},
	},
	{
		StageRef: StageRef{Type: constants.TaskTypeJSONComparison, Order: constants.OrderComparison},
		DependsOn: []StageRef{
			{constants.TaskTypeNERProcessing, constants.OrderNERFirst},
			{constants.TaskTypeNERProcessing, constants.OrderNERSecond},
		},
	},
	{
		StageRef:  StageRef{Type: constants.TaskTypeVLMReview, Order: constants.OrderReview},
		DependsOn: []StageRef{{constants.TaskTypeVLMExtraction, constants.OrderExtraction}},
	},
}

// Stages returns the pipeline stage set in task order.
func Stages() []Stage {
	out := make([]Stage, len(pipelineStages))
	copy(out, pipelineStages)
	return out
}

// dependenciesOf returns the dependency refs for the stage at the given order.
func dependenciesOf(order int) []StageRef {
	for _, s := range pipelineStages {
		if s.Order == order {
			return s.DependsOn
		}
	}
	return nil
}
