package avrkernel

// kernelOptions holds configuration assembled from KernelOption values
// before NewKernel builds the Kernel itself.
type kernelOptions struct {
	policy       Policy
	tick         TickSource
	eventSink    EventSink
	mainFn       TaskFunc
	mainPriority int8
}

// KernelOption configures a Kernel at construction time.
type KernelOption interface {
	applyKernel(*kernelOptions)
}

// kernelOptionImpl implements KernelOption with a plain closure.
type kernelOptionImpl struct {
	applyFunc func(*kernelOptions)
}

func (k *kernelOptionImpl) applyKernel(opts *kernelOptions) {
	k.applyFunc(opts)
}

// WithPolicy selects the scheduler policy. Default PolicyRoundRobin.
func WithPolicy(p Policy) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) {
		opts.policy = p
	}}
}

// WithTickSource supplies the TickSource driving the kernel's ISR-equivalent
// tick. Default a ManualTickSource, suited to host-simulator tests that
// step ticks explicitly.
func WithTickSource(ts TickSource) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) {
		opts.tick = ts
	}}
}

// WithEventSink configures a structured-logging sink for the kernel's
// diagnostics. Without one, the kernel still logs via log.Printf, it just
// skips the logiface path.
func WithEventSink(sink EventSink) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) {
		opts.eventSink = sink
	}}
}

// WithMainTask presets the function run in the idle/main slot, so
// DispatchTasks launches it directly instead of the default spin loop.
// Equivalent to calling StartTasks(fn, priority) instead of DispatchTasks,
// but lets the main task travel with the rest of a Kernel's construction
// options instead of being threaded through the launch call.
func WithMainTask(fn TaskFunc, priority int8) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) {
		opts.mainFn = fn
		opts.mainPriority = priority
	}}
}

// resolveKernelOptions applies KernelOption values over a set of defaults.
func resolveKernelOptions(opts []KernelOption) *kernelOptions {
	cfg := &kernelOptions{
		policy: PolicyRoundRobin,
		tick:   NewManualTickSource(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyKernel(cfg)
	}
	return cfg
}
