package claude

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrProjectNotFound   = errors.New("project not found")
	ErrProjectInUse      = errors.New("project is referenced by existing sessions")
	ErrInvalidWorkingDir = errors.New("working directory does not exist or is not a directory")
)
