package localizer

import "fmt"

type Stage int32

const (
	Idle Stage = iota
	ApproachFirstLine
	DetectFirstLine
	CorrectAndRotate
	DetectSecondLine
	SweepAndCountCrossings
	FinalCorrection
	Done
)

var stageNames = [...]string{
	Idle:                   "idle",
	ApproachFirstLine:      "approach-first-line",
	DetectFirstLine:        "detect-first-line",
	CorrectAndRotate:       "correct-and-rotate",
	DetectSecondLine:       "detect-second-line",
	SweepAndCountCrossings: "sweep-and-count-crossings",
	FinalCorrection:        "final-correction",
	Done:                   "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int32(s))
	}
	return stageNames[s]
}
