package remote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"
)

// MaxScriptSize caps the remote entry script.
const MaxScriptSize = 1 << 20

var (
	ErrContainerMissing = errors.New("remote: container not registered")
	ErrModuleMissing    = errors.New("remote: module not exposed")
)

// Descriptor is what an exposed module's factory returns.
type Descriptor struct {
	Component string
	Title     string
	Props     map[string]any
}

type timer struct {
	id  int64
	due time.Duration
	fn  goja.Callable
}

// entry is one evaluation of a remote entry script in its own VM.
type entry struct {
	vm         *goja.Runtime
	log        *logrus.Entry
	containers map[string]goja.Value
	timers     map[int64]*timer
	nextID     int64
	now        time.Duration
}

func newEntry(log *logrus.Entry) (*entry, error) {
	e := &entry{
		vm:         goja.New(),
		log:        log,
		containers: make(map[string]goja.Value),
		timers:     make(map[int64]*timer),
	}

	if err := e.vm.Set("registerRemote", e.registerRemote); err != nil {
		return nil, fmt.Errorf("set registerRemote: %w", err)
	}
	if err := e.vm.Set("setTimeout", e.setTimeout); err != nil {
		return nil, fmt.Errorf("set setTimeout: %w", err)
	}
	if err := e.vm.Set("clearTimeout", e.clearTimeout); err != nil {
		return nil, fmt.Errorf("set clearTimeout: %w", err)
	}

	console := e.vm.NewObject()
	if err := console.Set("log", e.consoleLog); err != nil {
		return nil, fmt.Errorf("set console.log: %w", err)
	}
	if err := e.vm.Set("console", console); err != nil {
		return nil, fmt.Errorf("set console: %w", err)
	}
	return e, nil
}

// guard interrupts the VM when ctx ends or limit elapses. Call the returned func when done.
func (e *entry) guard(ctx context.Context, limit time.Duration) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTimer(limit)
		defer t.Stop()
		select {
		case <-t.C:
			e.vm.Interrupt("execution timeout")
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err().Error())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		e.vm.ClearInterrupt()
	}
}

func (e *entry) run(ctx context.Context, script string, limit time.Duration) error {
	if len(script) > MaxScriptSize {
		return fmt.Errorf("remote: script exceeds %d bytes", MaxScriptSize)
	}
	stop := e.guard(ctx, limit)
	defer stop()
	if _, err := e.vm.RunString(script); err != nil {
		return fmt.Errorf("remote: evaluate entry: %w", err)
	}
	return nil
}

// advance runs every timer due within d of virtual time, earliest first. Timers
// scheduled by timers join the queue relative to their parent's due time.
func (e *entry) advance(ctx context.Context, d, limit time.Duration) {
	stop := e.guard(ctx, limit)
	defer stop()
	for {
		next := e.nextDue(d)
		if next == nil {
			break
		}
		delete(e.timers, next.id)
		e.now = next.due
		if _, err := next.fn(goja.Undefined()); err != nil {
			e.log.WithError(err).Warn("remote timer callback failed")
			var interrupted *goja.InterruptedError
			if errors.As(err, &interrupted) {
				return
			}
		}
	}
	e.now = d
	if len(e.timers) > 0 {
		e.log.WithField("pending", len(e.timers)).Debug("remote timers left after grace period")
	}
}

func (e *entry) nextDue(limit time.Duration) *timer {
	var pending []*timer
	for _, t := range e.timers {
		if t.due <= limit {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].due == pending[j].due {
			return pending[i].id < pending[j].id
		}
		return pending[i].due < pending[j].due
	})
	return pending[0]
}

// importModule resolves container name's exposed module and runs its factory.
func (e *entry) importModule(ctx context.Context, name, module string, limit time.Duration) (Descriptor, error) {
	container, ok := e.containers[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrContainerMissing, name)
	}
	obj := container.ToObject(e.vm)
	exposed := obj.Get(module)
	if exposed == nil || goja.IsUndefined(exposed) || goja.IsNull(exposed) {
		return Descriptor{}, fmt.Errorf("%w: %q in %q", ErrModuleMissing, module, name)
	}

	result := exposed
	if factory, ok := goja.AssertFunction(exposed); ok {
		stop := e.guard(ctx, limit)
		v, err := factory(goja.Undefined())
		stop()
		if err != nil {
			return Descriptor{}, fmt.Errorf("remote: module factory: %w", err)
		}
		result = v
	}
	return e.descriptor(result)
}

func (e *entry) descriptor(v goja.Value) (Descriptor, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return Descriptor{}, fmt.Errorf("remote: module factory returned nothing")
	}
	raw, ok := v.Export().(map[string]any)
	if !ok {
		return Descriptor{}, fmt.Errorf("remote: module factory returned %T, want object", v.Export())
	}
	d := Descriptor{}
	d.Component, _ = raw["component"].(string)
	d.Title, _ = raw["title"].(string)
	if props, ok := raw["props"].(map[string]any); ok {
		d.Props = props
	}
	if strings.TrimSpace(d.Component) == "" {
		return Descriptor{}, fmt.Errorf("remote: descriptor has no component")
	}
	return d, nil
}

func (e *entry) registerRemote(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	exposes := call.Argument(1)
	if name == "" || goja.IsUndefined(exposes) || goja.IsNull(exposes) {
		panic(e.vm.NewTypeError("registerRemote(name, exposes) requires both arguments"))
	}
	e.containers[name] = exposes
	e.log.WithField("container", name).Debug("remote container registered")
	return goja.Undefined()
}

func (e *entry) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(e.vm.NewTypeError("setTimeout callback is not a function"))
	}
	e.nextID++
	e.timers[e.nextID] = &timer{id: e.nextID, due: dueAt(e.now, call.Argument(1).ToFloat()), fn: fn}
	return e.vm.ToValue(e.nextID)
}

// never is the due time of a timer that cannot fire.
const never = time.Duration(math.MaxInt64)

// dueAt converts a millisecond delay into a virtual due time, saturating at never.
// NaN and negative delays fire immediately.
func dueAt(now time.Duration, ms float64) time.Duration {
	if math.IsNaN(ms) || ms <= 0 {
		return now
	}
	if ms >= float64(never/time.Millisecond) {
		return never
	}
	delay := time.Duration(ms * float64(time.Millisecond))
	if now > never-delay {
		return never
	}
	return now + delay
}

func (e *entry) clearTimeout(call goja.FunctionCall) goja.Value {
	delete(e.timers, call.Argument(0).ToInteger())
	return goja.Undefined()
}

func (e *entry) consoleLog(call goja.FunctionCall) goja.Value {
	args := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		args[i] = arg.String()
	}
	e.log.WithField("source", "remote").Info(strings.Join(args, " "))
	return goja.Undefined()
}
