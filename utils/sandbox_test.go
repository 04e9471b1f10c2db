package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waflow/models"
)

func TestRunFunctionReturnsObject(t *testing.T) {
	code := `(input, context) => ({ greeting: "hello " + input, owner: context.userId })`

	result, err := RunFunction(code, "world", map[string]interface{}{"userId": int64(7)}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Output["greeting"])
	assert.EqualValues(t, 7, result.Output["owner"])
	assert.Empty(t, result.Logs)
}

func TestRunFunctionHandlerStyle(t *testing.T) {
	code := `function handler(input) { return { echoed: input.text }; }`

	result, err := RunFunction(code, map[string]interface{}{"text": "hi"}, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Output["echoed"])
}

func TestRunFunctionScalarOutputIsWrapped(t *testing.T) {
	result, err := RunFunction(`() => 42`, nil, nil, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 42, result.Output["result"])
}

func TestRunFunctionConsoleCapture(t *testing.T) {
	code := `(input) => {
		console.log("starting", input);
		console.warn("count", 2);
		console.error({ reason: "none" });
		return {};
	}`

	result, err := RunFunction(code, "job", nil, time.Second)
	require.NoError(t, err)

	// Log lines keep their emission order; non-strings are JSON encoded.
	require.Len(t, result.Logs, 3)
	assert.Equal(t, "starting job", result.Logs[0])
	assert.Equal(t, "count 2", result.Logs[1])
	assert.Equal(t, `{"reason":"none"}`, result.Logs[2])
}

func TestRunFunctionHardTimeout(t *testing.T) {
	start := time.Now()
	_, err := RunFunction(`() => { while (true) {} }`, nil, nil, 150*time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrExecutionTimeout)
	// The interrupt is preemptive; a busy loop cannot outlive the limit by much.
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRunFunctionTimeoutDuringEvaluation(t *testing.T) {
	_, err := RunFunction(`while (true) {}`, nil, nil, 150*time.Millisecond)
	assert.ErrorIs(t, err, ErrExecutionTimeout)
}

func TestRunFunctionNotAFunction(t *testing.T) {
	_, err := RunFunction(`42`, nil, nil, time.Second)
	assert.ErrorIs(t, err, ErrNotAFunction)
}

func TestRunFunctionThrownError(t *testing.T) {
	_, err := RunFunction(`() => { throw new Error("boom") }`, nil, nil, time.Second)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "boom")
}

func TestRunFunctionFulfilledPromise(t *testing.T) {
	result, err := RunFunction(`() => Promise.resolve({ ok: true })`, nil, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, true, result.Output["ok"])
}

func TestRunFunctionRejectedPromise(t *testing.T) {
	_, err := RunFunction(`() => Promise.reject("nope")`, nil, nil, time.Second)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "nope")
}

func TestRunFunctionNoRuntimeEscapes(t *testing.T) {
	_, err := RunFunction(`() => require("fs")`, nil, nil, time.Second)
	assert.Error(t, err)
}

func TestClampTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(models.FunctionTimeoutMinMS)*time.Millisecond, ClampTimeout(0))
	assert.Equal(t, time.Duration(models.FunctionTimeoutMinMS)*time.Millisecond, ClampTimeout(-5))
	assert.Equal(t, 500*time.Millisecond, ClampTimeout(500))
	assert.Equal(t, time.Duration(models.FunctionTimeoutMaxMS)*time.Millisecond, ClampTimeout(1000000))
}
