package app

import (
	"errors"

	"adichat/backend/client/pipeline"
	apperrors "adichat/backend/pkg/errors"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a transient message for the user
type Notice struct {
	Level Level
	Text  string
}

func noticeFor(err error) Notice {
	if errors.Is(err, pipeline.ErrCancelled) {
		return Notice{Level: LevelInfo, Text: "Request cancelled"}
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return Notice{Level: LevelError, Text: appErr.Message}
	}
	return Notice{Level: LevelError, Text: err.Error()}
}
