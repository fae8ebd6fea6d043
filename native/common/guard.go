package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is returned by state-mutating entry points of a module that
// has been paused by an administrator.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the persisted pause switches.
type PauseView interface {
	IsPaused(module string) bool
}

// PausedError names the module whose switch blocked the call. It matches
// ErrModulePaused under errors.Is.
type PausedError struct {
	Module string
}

func (e *PausedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Module, ErrModulePaused)
}

func (e *PausedError) Unwrap() error { return ErrModulePaused }

// Guard fails with a *PausedError for the first paused module. A nil view
// never blocks.
func Guard(p PauseView, modules ...string) error {
	if p == nil {
		return nil
	}
	for _, module := range modules {
		if module == "" {
			continue
		}
		if p.IsPaused(module) {
			return &PausedError{Module: module}
		}
	}
	return nil
}
