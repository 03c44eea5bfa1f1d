package types

// OptimizerStage names a state of a single optimization pass
type OptimizerStage string

const (
	StageSeparate          OptimizerStage = "separate"
	StageCheckRequired     OptimizerStage = "check-required"
	StageEmergencyTruncate OptimizerStage = "emergency-truncate"
	StageScoreOptional     OptimizerStage = "score-optional"
	StageGreedySelect      OptimizerStage = "greedy-select"
	StageApplyTypeCaps     OptimizerStage = "apply-type-caps"
	StageDone              OptimizerStage = "done"
)

// String returns the string representation of the stage
func (s OptimizerStage) String() string {
	return string(s)
}
