package window

// Classification is the outcome assigned to a marking or to a missing record.
type Classification string

const (
	// ClassificationPresent marks an on-time attendance.
	ClassificationPresent Classification = "present"
	// ClassificationLate marks an attendance after the late threshold.
	ClassificationLate Classification = "late"
	// ClassificationAbsent is synthesized for days without a record once the window closed.
	ClassificationAbsent Classification = "absent"
)

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationPresent, ClassificationLate, ClassificationAbsent:
		return true
	}
	return false
}

// Classify compares the marking minute against the late threshold. A marking
// exactly at the threshold is still on time. Absent is never produced here.
func Classify(markedAt, threshold Clock) Classification {
	if markedAt <= threshold {
		return ClassificationPresent
	}
	return ClassificationLate
}
