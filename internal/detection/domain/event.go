package detection

// FallEvent marks one detected fall.
// MotionlessEndIdx is nil when the series ended during the motionless phase.
type FallEvent struct {
	ImpactStartIdx   int  `json:"impact_start_idx"`
	ImpactEndIdx     int  `json:"impact_end_idx"`
	WaitEndIdx       int  `json:"wait_end_idx"`
	MotionlessEndIdx *int `json:"motionless_end_idx,omitempty"`
	Truncated        bool `json:"truncated"`
}
