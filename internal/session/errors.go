package session

import (
	"errors"
	"fmt"

	"InterviewPulse/internal/questionbank"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionCompleted    = errors.New("session already completed")
	ErrSessionNotCompleted = errors.New("session not completed")
	ErrOrdinalMismatch     = errors.New("ordinal mismatch")
	ErrQuestionNotServed   = errors.New("question not served yet")
	ErrCapacityExceeded    = errors.New("too many active sessions")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidRole         = questionbank.ErrInvalidRole
)

// OrdinalMismatchError 提交的题号与当前题号不一致
type OrdinalMismatchError struct {
	Expected int
	Got      int
}

func (e *OrdinalMismatchError) Error() string {
	return fmt.Sprintf("ordinal mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Is 使 errors.Is(err, ErrOrdinalMismatch) 成立
func (e *OrdinalMismatchError) Is(target error) bool {
	return target == ErrOrdinalMismatch
}
