package dispatcher

import (
	"errors"

	"github.com/local/medgateway/internal/ai"
	"github.com/local/medgateway/internal/logger"
)

// classify labels an outcome for metrics and logs.
func classify(out ai.Outcome) string {
	switch out.Kind {
	case ai.KindSuccess:
		return "success"
	case ai.KindHardFailure:
		var userErr *ai.UserInputError
		if errors.As(out.Err, &userErr) {
			return "user_input"
		}
		return "transport"
	}

	err := out.Err
	switch {
	case ai.IsTimeout(err):
		return "timeout"
	case errors.Is(err, ai.ErrVisionInference), errors.Is(err, ai.ErrVisionUnavailable):
		return "vision_error"
	case errors.Is(err, ai.ErrProcessExit):
		return "exit_error"
	case errors.Is(err, ai.ErrProcessStart):
		return "start_error"
	default:
		return "io_error"
	}
}

func preview(s string) string { return logger.Preview(s, 50) }
