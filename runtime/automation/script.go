package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

const extractFunc = "extract"

// RunScript evaluates script, calls its extract(page) function and returns the
// object it produces. The VM is interrupted when ctx is done.
func RunScript(ctx context.Context, script string, page *Page) (map[string]any, error) {
	vm := goja.New()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	fields, err := runExtract(vm, script, page)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("%w: script interrupted: %v", ErrTimeout, interrupted.Value())
		}
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return fields, nil
}

func runExtract(vm *goja.Runtime, script string, page *Page) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panic: %v", r)
		}
	}()

	if _, err := vm.RunString(script); err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(vm.Get(extractFunc))
	if !ok {
		return nil, fmt.Errorf("script does not define %s(page)", extractFunc)
	}

	result, err := fn(goja.Undefined(), vm.ToValue(page.toScript()))
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(result) || goja.IsNull(result) {
		return map[string]any{}, nil
	}

	exported, ok := result.Export().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s(page) returned %T, want an object", extractFunc, result.Export())
	}
	return exported, nil
}
