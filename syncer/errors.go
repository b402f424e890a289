package syncer

import "errors"

// ErrTargetNotFound reports a configured target that does not exist in the
// directory. The run aborts with the distinguished exit code.
var ErrTargetNotFound = errors.New("target not found in directory")

// ErrGroupNameNotFound reports a group_names target with no directory match.
// Unlike ErrTargetNotFound it only fails the one target.
var ErrGroupNameNotFound = errors.New("group name not found in directory")

// ErrUnexpectedWorkingSet reports working-set files of no recognized kind,
// meaning something other than this tool wrote into the working-set
// directory. The run aborts with the distinguished exit code.
var ErrUnexpectedWorkingSet = errors.New("unexpected files in working set directory")
