package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"waflow/models"
)

var (
	// ErrNotAFunction means the code never produced something callable; a
	// configuration problem, not a runtime failure.
	ErrNotAFunction = errors.New("function code did not evaluate to a callable")
	// ErrExecutionTimeout means the hard wall-clock limit interrupted the run.
	ErrExecutionTimeout = errors.New("function execution timed out")
)

// ExecutionError wraps an error thrown inside the sandboxed code.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return "function execution failed: " + e.Message
}

// FunctionResult is the outcome of one sandboxed run.
type FunctionResult struct {
	Output   map[string]interface{} `json:"output"`
	Logs     []string               `json:"logs"`
	Duration time.Duration          `json:"-"`
}

// DurationMS reports the run time the way the API exposes it.
func (r *FunctionResult) DurationMS() int64 {
	return r.Duration.Milliseconds()
}

// ClampTimeout bounds a caller-supplied timeout to the allowed window.
func ClampTimeout(ms int) time.Duration {
	if ms < models.FunctionTimeoutMinMS {
		ms = models.FunctionTimeoutMinMS
	}
	if ms > models.FunctionTimeoutMaxMS {
		ms = models.FunctionTimeoutMaxMS
	}
	return time.Duration(ms) * time.Millisecond
}

// RunFunction executes user-authored code against {input, context} inside an
// isolated interpreter. The runtime exposes only input, context and console;
// there is no require, no filesystem and no network. The timeout is enforced
// with a preemptive interrupt because the code may never yield.
func RunFunction(code string, input interface{}, fnContext map[string]interface{}, timeout time.Duration) (*FunctionResult, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	result := &FunctionResult{Logs: []string{}}

	logLine := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, stringifyLogValue(arg.Export()))
		}
		result.Logs = append(result.Logs, strings.Join(parts, " "))
		return goja.Undefined()
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(level, logLine); err != nil {
			return nil, err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return nil, err
	}
	if err := vm.Set("input", input); err != nil {
		return nil, err
	}
	if err := vm.Set("context", fnContext); err != nil {
		return nil, err
	}

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(ErrExecutionTimeout)
	})
	defer timer.Stop()

	started := time.Now()
	value, err := vm.RunString(code)
	if err != nil {
		return nil, classifyRunError(err)
	}

	callable, ok := goja.AssertFunction(value)
	if !ok {
		// Module-style code assigns a handler instead of evaluating to one.
		callable, ok = goja.AssertFunction(vm.Get("handler"))
	}
	if !ok {
		return nil, ErrNotAFunction
	}

	returned, err := callable(goja.Undefined(), vm.ToValue(input), vm.ToValue(fnContext))
	if err != nil {
		return nil, classifyRunError(err)
	}

	exported := returned.Export()
	if promise, isPromise := exported.(*goja.Promise); isPromise {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			exported = promise.Result().Export()
		case goja.PromiseStateRejected:
			return nil, &ExecutionError{Message: promise.Result().String()}
		default:
			return nil, &ExecutionError{Message: "promise never settled"}
		}
	}

	result.Duration = time.Since(started)
	result.Output = normalizeOutput(exported)
	return result, nil
}

// RunFlowFunction executes one embedded FlowFunction with its own clamped
// timeout.
func RunFlowFunction(fn *models.FlowFunction, input interface{}, fnContext map[string]interface{}) (*FunctionResult, error) {
	return RunFunction(fn.Code, input, fnContext, ClampTimeout(fn.ClampedTimeoutMS()))
}

func classifyRunError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return ErrExecutionTimeout
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &ExecutionError{Message: exception.Value().String()}
	}
	return &ExecutionError{Message: err.Error()}
}

// normalizeOutput coerces the function's return value into a key/value map so
// every output key can become a placeholder downstream.
func normalizeOutput(v interface{}) map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"result": v}
}

func stringifyLogValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(encoded)
	}
}
