package snaprun

import (
	"context"
	"errors"
	"fmt"
)

// Scripted is a Runner for tests: it replays canned results keyed by the
// full command line and records every invocation for assertions.
type Scripted struct {
	Responses map[string]ScriptedResult
	Calls     []string
}

type ScriptedResult struct {
	Stdout string
	Fail   bool
}

func NewScripted() *Scripted {
	return &Scripted{Responses: map[string]ScriptedResult{}}
}

func (s *Scripted) Script(commandLine string, result ScriptedResult) *Scripted {
	s.Responses[commandLine] = result
	return s
}

func (s *Scripted) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	result, err := s.lookup(name, args)
	if err != nil {
		return nil, err
	}

	return []byte(result.Stdout), nil
}

func (s *Scripted) Run(ctx context.Context, name string, args ...string) error {
	_, err := s.lookup(name, args)
	return err
}

func (s *Scripted) lookup(name string, args []string) (ScriptedResult, error) {
	line := commandLine(name, args)
	s.Calls = append(s.Calls, line)

	result, scripted := s.Responses[line]
	if !scripted {
		return ScriptedResult{}, fmt.Errorf("snaprun.Scripted: unscripted command: %s", line)
	}
	if result.Fail {
		return ScriptedResult{}, &CommandError{
			CommandLine: line,
			Stderr:      result.Stdout,
			Err:         errors.New("exit status 1"),
		}
	}

	return result, nil
}
