package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanzadigithubid/AI-Employee-System/internal/lifecycle"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/orchestrator"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("TAXONOMY_INVALID", "bad weight", map[string]int{"line": 42})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TAXONOMY_INVALID", resp.Error.Code)
	assert.Equal(t, "bad weight", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextRenderUsesCallback(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Render(42, func(w io.Writer) {
		fmt.Fprintln(w, "forty-two")
	})
	require.NoError(t, err)
	assert.Equal(t, "forty-two\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error("NOT_FOUND", "no such item", "gmail:404"))
	assert.Contains(t, buf.String(), "Error [NOT_FOUND]: no such item")
	assert.Contains(t, buf.String(), "Details: gmail:404")
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("loading %s", "taxonomy.cue")
	assert.Empty(t, out.String())
	assert.Equal(t, "loading taxonomy.cue\n", errOut.String())

	formatter.Verbose = false
	formatter.VerboseLog("hidden")
	assert.NotContains(t, errOut.String(), "hidden")
}

func TestOutputFormatter_FailJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := fmt.Errorf("task t1: %w", store.ErrNotFound)
	err := formatter.Fail(ExitFailure, "failed to update task", cause)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrNotFound)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "failed to update task: task t1: not found", resp.Error.Message)
}

func TestOutputFormatter_FailTextWritesNothing(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail(ExitCommandError, "bad flag", nil)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, buf.String())
}

func TestOutputFormatter_FailKeepsExitError(t *testing.T) {
	formatter := &OutputFormatter{Format: "text", Writer: io.Discard}
	orig := NewExitError(ExitCommandError, "failed to open database")

	err := formatter.Fail(ExitFailure, "ignored", orig)
	assert.Same(t, orig, err)
}

func TestExitError(t *testing.T) {
	err := NewExitError(ExitFailure, "determinism verification failed")
	assert.Equal(t, "determinism verification failed", err.Error())
	assert.Nil(t, err.Unwrap())

	cause := errors.New("disk full")
	wrapped := WrapExitError(ExitCommandError, "failed to open database", cause)
	assert.Equal(t, "failed to open database: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "x"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"lifecycle", lifecycle.NewInvalidTransitionError("a1", model.StateDone, model.EventHumanRejects), "INVALID_TRANSITION"},
		{"lifecycle wrapped", WrapExitError(ExitFailure, "x", lifecycle.NewGuardError("a1", model.StatePlanned, model.EventHumanApproves, "stale")), "GUARD_FAILED"},
		{"orchestrator", orchestrator.NewPersistenceError("create", "a1", 4, errors.New("locked")), "PERSISTENCE_FAILURE"},
		{"not found", fmt.Errorf("task: %w", store.ErrNotFound), "NOT_FOUND"},
		{"duplicate", fmt.Errorf("task: %w", store.ErrDuplicate), "DUPLICATE"},
		{"command", NewExitError(ExitCommandError, "bad"), "COMMAND_ERROR"},
		{"other", errors.New("boom"), "FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}
