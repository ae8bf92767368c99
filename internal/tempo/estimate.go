package tempo

// Estimate is the winning tempo hypothesis published to the render cadence.
// Values are immutable once published; downstream readers always get a copy.
type Estimate struct {
	BPM        float64 `json:"bpm"`
	Confidence float64 `json:"confidence"`
	LockStage  int     `json:"lockStage"`
}

// Lock stages gate how hard the animation is allowed to groove while the
// estimator is still making up its mind.
const (
	StageDetecting = 0
	StageInitial   = 1
	StageRefining  = 2
	StageNearFinal = 3
	StageLocked    = 4
)

// stage confidence thresholds, inclusive lower bounds
var stageThresholds = [5]float64{0, 0.25, 0.5, 0.75, 0.9}

// stageCeilings maps each lock stage to its groove-intensity ceiling. This
// table is a hard contract shared with the confidence ramp.
var stageCeilings = [5]float64{0.15, 0.40, 0.65, 0.85, 1.0}

// StageFor maps a confidence score to its lock stage.
func StageFor(confidence float64) int {
	stage := StageDetecting
	for s := StageLocked; s > StageDetecting; s-- {
		if confidence >= stageThresholds[s] {
			stage = s
			break
		}
	}
	return stage
}

// StageCeiling returns the groove-intensity ceiling for a lock stage.
// Out-of-range stages clamp to the nearest valid stage.
func StageCeiling(stage int) float64 {
	if stage < StageDetecting {
		stage = StageDetecting
	}
	if stage > StageLocked {
		stage = StageLocked
	}
	return stageCeilings[stage]
}
