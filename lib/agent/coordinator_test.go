// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loomtrace/loom/lib/classcache"
	"github.com/loomtrace/loom/lib/collector"
	"github.com/loomtrace/loom/lib/collector/collectortest"
	"github.com/loomtrace/loom/lib/collector/wire"
	"github.com/loomtrace/loom/lib/config"
	"github.com/loomtrace/loom/lib/digest"
	"github.com/loomtrace/loom/lib/schema"
	"github.com/loomtrace/loom/lib/testutil"
)

const waitTimeout = 5 * time.Second

type fakeHost struct {
	mu            sync.Mutex
	captureStarts int
	methods       []schema.TracedMethod
	exceptions    []ExceptionEvent

	// onRegister, when set, runs after each registration is recorded,
	// outside mu.
	onRegister func(schema.TracedMethod)
}

func (h *fakeHost) StartCapture() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.captureStarts++
}

func (h *fakeHost) RegisterTracedMethod(method schema.TracedMethod) {
	h.mu.Lock()
	h.methods = append(h.methods, method)
	hook := h.onRegister
	h.mu.Unlock()
	if hook != nil {
		hook(method)
	}
}

func (h *fakeHost) setOnRegister(hook func(schema.TracedMethod)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRegister = hook
}

func (h *fakeHost) DeliverException(event ExceptionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exceptions = append(h.exceptions, event)
}

func (h *fakeHost) registered() []schema.TracedMethod {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]schema.TracedMethod(nil), h.methods...)
}

func (h *fakeHost) captureStartCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.captureStarts
}

type fatalRecorder struct {
	mu     sync.Mutex
	errors []error
}

func (f *fatalRecorder) handle(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, err)
}

func (f *fatalRecorder) recorded() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.errors...)
}

func startCollector(t *testing.T, collectorConfig collectortest.Config) *collectortest.Server {
	t.Helper()
	server, err := collectortest.Start(collectorConfig)
	if err != nil {
		t.Fatalf("starting stub collector: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server
}

// testConfig points a default configuration at server with a fresh
// cache root.
func testConfig(t *testing.T, server *collectortest.Server) *config.Config {
	t.Helper()
	host, portString, err := net.SplitHostPort(server.Address())
	if err != nil {
		t.Fatalf("splitting %q: %v", server.Address(), err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		t.Fatalf("parsing port %q: %v", portString, err)
	}
	cfg := config.Default()
	cfg.Collector.Host = host
	cfg.Collector.Port = port
	cfg.Collector.ClientName = "agent-test"
	cfg.Cache.Root = t.TempDir()
	return cfg
}

type harness struct {
	server      *collectortest.Server
	host        *fakeHost
	fatal       *fatalRecorder
	coordinator *Coordinator
}

func start(t *testing.T, server *collectortest.Server, cfg *config.Config, registerer prometheus.Registerer) *harness {
	t.Helper()
	h := &harness{server: server, host: &fakeHost{}, fatal: &fatalRecorder{}}
	coordinator, err := Start(context.Background(), cfg, h.host, StartOptions{
		Registerer: registerer,
		Fatal:      h.fatal.handle,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { coordinator.Shutdown() })
	h.coordinator = coordinator
	return h
}

func (h *harness) load(t *testing.T, name string, bytecode []byte) LoadResult {
	t.Helper()
	result, err := h.coordinator.Load(name, bytecode)
	if err != nil {
		t.Fatalf("Load(%q): %v", name, err)
	}
	return result
}

func instrumented(original []byte) []byte {
	return append(bytes.Clone(collectortest.Prefix), original...)
}

func defaultCacheRoot(cfg *config.Config) string {
	return filepath.Join(cfg.Cache.Root, classcache.Namespace(cfg.Scope.WorkingSet, ""))
}

func TestConcurrentLoadsPopulateCache(t *testing.T) {
	server := startCollector(t, collectortest.Config{HostID: 3, HostBits: 8})
	cfg := testConfig(t, server)
	h := start(t, server, cfg, nil)

	const classes = 32
	names := make([]string, classes)
	for i := range names {
		names[i] = fmt.Sprintf("com/acme/Class%02d", i)
	}

	results := make(chan error, classes)
	for _, name := range names {
		go func() {
			original := testutil.ClassBytes(name, 1)
			result, err := h.coordinator.Load(name, original)
			if err == nil && !bytes.Equal(result.Bytecode, instrumented(original)) {
				err = fmt.Errorf("%s: replacement %q is not the instrumented bytecode", name, result.Bytecode)
			}
			results <- err
		}()
	}
	for i := range classes {
		if err := testutil.RequireReceive(t, results, waitTimeout, "load %d", i); err != nil {
			t.Error(err)
		}
	}

	if got := server.Count(wire.InstrumentClass); got != classes {
		t.Errorf("INSTRUMENT_CLASS requests = %d, want %d", got, classes)
	}
	if err := h.coordinator.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	cache, err := classcache.Open(defaultCacheRoot(cfg), classcache.Options{})
	if err != nil {
		t.Fatalf("reopening cache: %v", err)
	}
	defer cache.Close()
	classIDs := make(map[int32]string)
	for _, name := range names {
		original := testutil.ClassBytes(name, 1)
		record, ok, err := cache.Lookup(name, digest.Of(original))
		if err != nil || !ok {
			t.Fatalf("Lookup(%s) = ok %v, err %v", name, ok, err)
		}
		if !record.Instrumented || !bytes.Equal(record.Bytecode, instrumented(original)) {
			t.Errorf("cached record for %s is wrong: instrumented=%v", name, record.Instrumented)
		}
		if previous, dup := classIDs[record.ClassID]; dup {
			t.Errorf("class id %d cached for both %s and %s", record.ClassID, previous, name)
		}
		classIDs[record.ClassID] = name
	}
}

func TestRestartUsesCache(t *testing.T) {
	server := startCollector(t, collectortest.Config{HostID: 1, HostBits: 4})
	cfg := testConfig(t, server)

	names := []string{"com/acme/Alpha", "com/acme/Beta", "com/acme/Gamma"}
	first := start(t, server, cfg, nil)
	for _, name := range names {
		first.load(t, name, testutil.ClassBytes(name, 1))
	}
	if err := first.coordinator.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	wantIDs := server.LastIDs()

	second := start(t, server, cfg, nil)
	for _, name := range names {
		original := testutil.ClassBytes(name, 1)
		result := second.load(t, name, original)
		if result.Outcome != OutcomeCacheHit {
			t.Errorf("%s outcome = %v, want cache_hit", name, result.Outcome)
		}
		if !bytes.Equal(result.Bytecode, instrumented(original)) {
			t.Errorf("%s replacement %q, want cached instrumented bytecode", name, result.Bytecode)
		}
	}

	if !server.WaitCount(wire.UseCachedClass, len(names), waitTimeout) {
		t.Fatalf("USE_CACHED_CLASS requests = %d, want %d", server.Count(wire.UseCachedClass), len(names))
	}
	if got := server.Count(wire.InstrumentClass); got != len(names) {
		t.Errorf("INSTRUMENT_CLASS requests = %d, want %d (none after restart)", got, len(names))
	}

	var synced []schema.LastIDs
	for _, request := range server.Requests() {
		if request.Command == wire.SyncCacheIDs {
			synced = append(synced, request.LastIDs)
		}
	}
	if len(synced) != 1 || synced[0] != wantIDs {
		t.Errorf("SYNC_CACHE_IDS payloads = %+v, want exactly [%+v]", synced, wantIDs)
	}
}

func TestChangedBytecodeIsReinstrumented(t *testing.T) {
	server := startCollector(t, collectortest.Config{})
	h := start(t, server, testConfig(t, server), nil)

	name := "com/acme/Mutable"
	h.load(t, name, testutil.ClassBytes(name, 1))
	result := h.load(t, name, testutil.ClassBytes(name, 2))
	if result.Outcome != OutcomeInstrumented {
		t.Errorf("outcome after bytecode change = %v, want instrumented", result.Outcome)
	}
	if got := server.Count(wire.InstrumentClass); got != 2 {
		t.Errorf("INSTRUMENT_CLASS requests = %d, want 2", got)
	}
}

func TestPendingRegistrationsDrainOnceInOrder(t *testing.T) {
	server := startCollector(t, collectortest.Config{Instrumenter: collectortest.AlwaysInstrument(2)})
	h := start(t, server, testConfig(t, server), nil)

	for _, name := range []string{"com/acme/A", "com/acme/B", "com/acme/C"} {
		result := h.load(t, name, testutil.ClassBytes(name, 1))
		if result.TracedMethods != 2 {
			t.Errorf("%s TracedMethods = %d, want 2", name, result.TracedMethods)
		}
	}
	if got := len(h.host.registered()); got != 0 {
		t.Fatalf("registered %d methods before runtime ready", got)
	}
	if got := h.coordinator.Stats().Pending; got != 6 {
		t.Fatalf("Pending = %d, want 6", got)
	}

	h.coordinator.OnRuntimeReady()
	registered := h.host.registered()
	if len(registered) != 6 {
		t.Fatalf("registered %d methods after drain, want 6", len(registered))
	}
	for i := 1; i < len(registered); i++ {
		if registered[i].BehaviorID <= registered[i-1].BehaviorID {
			t.Errorf("drain out of order: %+v", registered)
			break
		}
	}

	h.coordinator.OnRuntimeReady()
	if got := len(h.host.registered()); got != 6 {
		t.Errorf("second OnRuntimeReady re-registered: %d methods", got)
	}
	if got := h.coordinator.Stats().Pending; got != 0 {
		t.Errorf("Pending after drain = %d, want 0", got)
	}

	h.load(t, "com/acme/D", testutil.ClassBytes("com/acme/D", 1))
	if got := len(h.host.registered()); got != 8 {
		t.Errorf("registered %d methods after post-ready load, want 8", got)
	}
}

// The host may define classes from inside RegisterTracedMethod, both
// during the ready drain and for loads after it.
func TestRegistrationUpcallMayLoadClasses(t *testing.T) {
	server := startCollector(t, collectortest.Config{Instrumenter: collectortest.AlwaysInstrument(1)})
	h := start(t, server, testConfig(t, server), nil)

	h.load(t, "com/acme/Early", testutil.ClassBytes("com/acme/Early", 1))

	// The first registration (Early, during the drain) and the third
	// (Main, after it) each define another class.
	nested := map[int]string{1: "com/acme/DrainHelper", 3: "com/acme/Helper"}
	var nestedMu sync.Mutex
	calls := 0
	h.host.setOnRegister(func(schema.TracedMethod) {
		nestedMu.Lock()
		calls++
		name, ok := nested[calls]
		nestedMu.Unlock()
		if !ok {
			return
		}

		bytecode := testutil.ClassBytes(name, 1)
		if got := h.coordinator.OnClassLoad(name, bytecode); !bytes.Equal(got, instrumented(bytecode)) {
			t.Errorf("nested OnClassLoad(%q) = %q, want instrumented bytecode", name, got)
		}
	})

	ready := make(chan struct{})
	go func() {
		h.coordinator.OnRuntimeReady()
		close(ready)
	}()
	testutil.RequireClosed(t, ready, waitTimeout, "OnRuntimeReady did not return while the host loaded a class")

	done := make(chan LoadResult, 1)
	go func() {
		result, err := h.coordinator.Load("com/acme/Main", testutil.ClassBytes("com/acme/Main", 1))
		if err != nil {
			t.Errorf("Load(com/acme/Main): %v", err)
		}
		done <- result
	}()
	result := testutil.RequireReceive(t, done, waitTimeout, "Load did not return while the host loaded a class")
	if result.Outcome != OutcomeInstrumented {
		t.Errorf("Main outcome = %v, want instrumented", result.Outcome)
	}

	// Early, DrainHelper, Main, Helper: behavior ids follow instrument
	// order, and each nested class is delivered after the registration
	// that defined it.
	registered := h.host.registered()
	if len(registered) != 4 {
		t.Fatalf("registered %d methods, want 4: %+v", len(registered), registered)
	}
	for i := 1; i < len(registered); i++ {
		if registered[i].BehaviorID <= registered[i-1].BehaviorID {
			t.Errorf("registrations out of load order: %+v", registered)
			break
		}
	}
	if got := len(h.fatal.recorded()); got != 0 {
		t.Errorf("fatal handler called %d times", got)
	}
}

func TestOutOfScope(t *testing.T) {
	server := startCollector(t, collectortest.Config{})
	cfg := testConfig(t, server)
	cfg.Scope.WorkingSet = "[+com/acme/**]"
	cfg.Scope.RegisterOutOfScope = true
	h := start(t, server, cfg, nil)

	original := testutil.ClassBytes("org/other/Foo", 1)
	result := h.load(t, "org/other/Foo", original)
	if result.Outcome != OutcomeOutOfScope || result.Bytecode != nil {
		t.Fatalf("out-of-scope load = %+v, want out_of_scope with no replacement", result)
	}

	// A special case is instrumented even though the working set
	// excludes it.
	special := h.load(t, "java/util/ArrayList", testutil.ClassBytes("java/util/ArrayList", 1))
	if special.Outcome != OutcomeInstrumented {
		t.Errorf("special case outcome = %v, want instrumented", special.Outcome)
	}

	// The instrument round trip above orders the earlier REGISTER_CLASS.
	requests := server.Requests()
	if len(requests) != 2 || requests[0].Command != wire.RegisterClass || requests[0].Name != "org/other/Foo" {
		t.Fatalf("requests = %+v, want REGISTER_CLASS org/other/Foo then INSTRUMENT_CLASS", requests)
	}
	if !bytes.Equal(requests[0].Bytecode, original) {
		t.Errorf("REGISTER_CLASS carried %q, want the original bytecode", requests[0].Bytecode)
	}
}

func TestServerWorkingSetAppliesWithoutLocalOverride(t *testing.T) {
	server := startCollector(t, collectortest.Config{WorkingSet: "[+com/acme/**]"})
	cfg := testConfig(t, server)
	cfg.Scope.SpecialCases = ""
	h := start(t, server, cfg, nil)

	if result := h.load(t, "org/other/Foo", testutil.ClassBytes("org/other/Foo", 1)); result.Outcome != OutcomeOutOfScope {
		t.Errorf("outcome = %v, want out_of_scope under the collector's working set", result.Outcome)
	}

	cfg = testConfig(t, server)
	cfg.Scope.WorkingSet = "[+org/**]"
	local := start(t, server, cfg, nil)
	if result := local.load(t, "org/other/Foo", testutil.ClassBytes("org/other/Foo", 1)); result.Outcome != OutcomeInstrumented {
		t.Errorf("outcome = %v, want instrumented under the local working set", result.Outcome)
	}
}

func TestSkippedNamespaces(t *testing.T) {
	tests := []struct {
		name     string
		skipCore bool
		class    string
		want     Outcome
	}{
		{"empty name", false, "", OutcomeSkipped},
		{"agent runtime", false, "loom/runtime/Events", OutcomeSkipped},
		{"legacy agent", false, "com/yourkit/Probe", OutcomeSkipped},
		{"core kept", false, "java/lang/String", OutcomeInstrumented},
		{"core skipped", true, "java/lang/String", OutcomeSkipped},
		{"sun skipped", true, "com/sun/net/Handler", OutcomeSkipped},
		{"application", true, "com/acme/App", OutcomeInstrumented},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := startCollector(t, collectortest.Config{SkipCoreClasses: test.skipCore})
			h := start(t, server, testConfig(t, server), nil)
			result := h.load(t, test.class, testutil.ClassBytes(test.class, 1))
			if result.Outcome != test.want {
				t.Errorf("outcome = %v, want %v", result.Outcome, test.want)
			}
			if test.want == OutcomeSkipped && server.Count(wire.InstrumentClass) != 0 {
				t.Error("skipped class reached the collector")
			}
		})
	}
}

func TestCaptureStartsOnce(t *testing.T) {
	server := startCollector(t, collectortest.Config{})
	h := start(t, server, testConfig(t, server), nil)

	h.load(t, "java/lang/Object", testutil.ClassBytes("java/lang/Object", 1))
	h.load(t, "loom/Bootstrap", testutil.ClassBytes("loom/Bootstrap", 1))
	if got := h.host.captureStartCount(); got != 0 {
		t.Fatalf("StartCapture called %d times for bootstrap classes", got)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("com/acme/Main%d", i)
			h.coordinator.Load(name, testutil.ClassBytes(name, 1))
		}()
	}
	wg.Wait()
	if got := h.host.captureStartCount(); got != 1 {
		t.Errorf("StartCapture called %d times, want 1", got)
	}
	if !h.coordinator.Session().CaptureStarted() {
		t.Error("session does not record capture start")
	}
}

func TestNotInstrumentedIsCached(t *testing.T) {
	server := startCollector(t, collectortest.Config{Instrumenter: collectortest.NeverInstrument})
	h := start(t, server, testConfig(t, server), nil)

	name := "com/acme/Plain"
	original := testutil.ClassBytes(name, 1)
	if result := h.load(t, name, original); result.Outcome != OutcomeNotInstrumented || result.Bytecode != nil {
		t.Fatalf("first load = %+v, want not_instrumented with no replacement", result)
	}
	if result := h.load(t, name, original); result.Outcome != OutcomeCacheHit || result.Bytecode != nil {
		t.Fatalf("second load = %+v, want cache_hit with no replacement", result)
	}

	// Any USE_CACHED_CLASS would have arrived before this round trip.
	h.load(t, "com/acme/Other", testutil.ClassBytes("com/acme/Other", 1))
	if got := server.Count(wire.UseCachedClass); got != 0 {
		t.Errorf("USE_CACHED_CLASS sent %d times for a not-instrumented class", got)
	}
	if got := server.Count(wire.InstrumentClass); got != 2 {
		t.Errorf("INSTRUMENT_CLASS requests = %d, want 2", got)
	}
}

func TestCollectorFailureIsFatal(t *testing.T) {
	server := startCollector(t, collectortest.Config{
		Instrumenter: func(string, []byte) collectortest.Response {
			return collectortest.Response{Error: "java.lang.VerifyError: bad stack map"}
		},
	})
	h := start(t, server, testConfig(t, server), nil)

	if replacement := h.coordinator.OnClassLoad("com/acme/Broken", []byte{1}); replacement != nil {
		t.Errorf("OnClassLoad returned %q on failure, want nil", replacement)
	}
	recorded := h.fatal.recorded()
	if len(recorded) != 1 {
		t.Fatalf("fatal handler called %d times, want 1", len(recorded))
	}
	var serverError *collector.ServerError
	if !errors.As(recorded[0], &serverError) {
		t.Errorf("fatal error %v is not a *collector.ServerError", recorded[0])
	}
}

func TestOnClassLoadReturnsReplacement(t *testing.T) {
	server := startCollector(t, collectortest.Config{})
	h := start(t, server, testConfig(t, server), nil)

	original := testutil.ClassBytes("com/acme/Hook", 1)
	if got := h.coordinator.OnClassLoad("com/acme/Hook", original); !bytes.Equal(got, instrumented(original)) {
		t.Errorf("OnClassLoad = %q, want instrumented bytecode", got)
	}
	if got := len(h.fatal.recorded()); got != 0 {
		t.Errorf("fatal handler called %d times", got)
	}
}

func TestExceptionFilter(t *testing.T) {
	server := startCollector(t, collectortest.Config{CaptureExceptions: true})
	cfg := testConfig(t, server)
	cfg.Exceptions.IgnoredMethods = []string{"com/acme/Loader.find(Ljava/lang/String;)Ljava/lang/Class;"}
	h := start(t, server, cfg, nil)

	event := ExceptionEvent{
		ThrowingClass:   "com/acme/Service",
		ThrowingMethod:  "run",
		MethodSignature: "()V",
		BytecodeIndex:   12,
		ExceptionID:     99,
	}
	if h.coordinator.OnExceptionThrown(event) {
		t.Error("exception delivered before runtime ready")
	}

	h.coordinator.OnRuntimeReady()
	if !h.coordinator.OnExceptionThrown(event) {
		t.Error("exception not delivered after runtime ready")
	}
	ignored := ExceptionEvent{
		ThrowingClass:   "com/acme/Loader",
		ThrowingMethod:  "find",
		MethodSignature: "(Ljava/lang/String;)Ljava/lang/Class;",
	}
	if h.coordinator.OnExceptionThrown(ignored) {
		t.Error("exception from an ignored method was delivered")
	}
	overload := ExceptionEvent{
		ThrowingClass:   "com/acme/Loader",
		ThrowingMethod:  "find",
		MethodSignature: "(Ljava/lang/String;Z)Ljava/lang/Class;",
		BytecodeIndex:   4,
	}
	if !h.coordinator.OnExceptionThrown(overload) {
		t.Error("exception from an overload of an ignored method was not delivered")
	}

	h.host.mu.Lock()
	delivered := append([]ExceptionEvent(nil), h.host.exceptions...)
	h.host.mu.Unlock()
	if len(delivered) != 2 || delivered[0] != event || delivered[1] != overload {
		t.Errorf("delivered = %+v, want [%+v %+v]", delivered, event, overload)
	}
}

func TestDefaultIgnoredMethodsMatchEvents(t *testing.T) {
	coordinator, err := New(Options{
		Session:        &collector.Session{CaptureExceptions: true},
		Collector:      nopCollector{},
		Host:           &fakeHost{},
		IgnoredMethods: config.DefaultIgnoredMethods,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	coordinator.OnRuntimeReady()

	tests := []struct {
		event     ExceptionEvent
		delivered bool
	}{
		{ExceptionEvent{ThrowingClass: "java/lang/ClassLoader", ThrowingMethod: "findBootstrapClass", MethodSignature: "(Ljava/lang/String;)Ljava/lang/Class;"}, false},
		{ExceptionEvent{ThrowingClass: "java/net/URLClassLoader$1", ThrowingMethod: "run", MethodSignature: "()Ljava/lang/Object;"}, false},
		{ExceptionEvent{ThrowingClass: "java/net/URLClassLoader", ThrowingMethod: "findClass", MethodSignature: "(Ljava/lang/String;)Ljava/lang/Class;"}, false},
		{ExceptionEvent{ThrowingClass: "java/net/URLClassLoader", ThrowingMethod: "findClass", MethodSignature: "(Ljava/lang/String;Ljava/lang/String;)Ljava/lang/Class;"}, true},
		{ExceptionEvent{ThrowingClass: "java/net/URLClassLoader", ThrowingMethod: "findClass"}, true},
	}
	for _, test := range tests {
		if got := coordinator.OnExceptionThrown(test.event); got != test.delivered {
			t.Errorf("OnExceptionThrown(%s) = %v, want %v", test.event.MethodKey(), got, test.delivered)
		}
	}
}

func TestExceptionsDisabledBySession(t *testing.T) {
	server := startCollector(t, collectortest.Config{CaptureExceptions: false})
	h := start(t, server, testConfig(t, server), nil)
	h.coordinator.OnRuntimeReady()
	if h.coordinator.OnExceptionThrown(ExceptionEvent{ThrowingClass: "a/B", ThrowingMethod: "c"}) {
		t.Error("exception delivered although the session does not capture exceptions")
	}
}

func TestObjectID(t *testing.T) {
	server := startCollector(t, collectortest.Config{HostID: 5, HostBits: 8})
	h := start(t, server, testConfig(t, server), nil)

	first, fresh := h.coordinator.ObjectID(0)
	if !fresh || first&0xFF != 5 {
		t.Errorf("ObjectID(0) = %#x, fresh %v; want fresh id with host 5 in low bits", first, fresh)
	}
	second, _ := h.coordinator.ObjectID(0)
	if second == first {
		t.Errorf("two allocations returned %#x", first)
	}
	if id, fresh := h.coordinator.ObjectID(first); id != first || fresh {
		t.Errorf("ObjectID(%#x) = %#x, fresh %v; want the tag unchanged", first, id, fresh)
	}
}

func TestShutdown(t *testing.T) {
	server := startCollector(t, collectortest.Config{})
	h := start(t, server, testConfig(t, server), nil)

	if err := h.coordinator.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !server.WaitCount(wire.Flush, 1, waitTimeout) {
		t.Fatal("FLUSH not received")
	}
	if err := h.coordinator.Shutdown(); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if got := server.Count(wire.Flush); got != 1 {
		t.Errorf("FLUSH sent %d times, want 1", got)
	}

	result := h.load(t, "com/acme/Late", testutil.ClassBytes("com/acme/Late", 1))
	if result.Outcome != OutcomeSkipped || result.Bytecode != nil {
		t.Errorf("load after shutdown = %+v, want skipped", result)
	}
}

func TestStartWithoutCache(t *testing.T) {
	server := startCollector(t, collectortest.Config{})
	cfg := testConfig(t, server)
	cfg.Cache.Root = ""
	h := start(t, server, cfg, nil)

	name := "com/acme/Uncached"
	h.load(t, name, testutil.ClassBytes(name, 1))
	if result := h.load(t, name, testutil.ClassBytes(name, 1)); result.Outcome != OutcomeInstrumented {
		t.Errorf("second load outcome = %v, want instrumented with no cache", result.Outcome)
	}
	if got := server.Count(wire.InstrumentClass); got != 2 {
		t.Errorf("INSTRUMENT_CLASS requests = %d, want 2", got)
	}
}

func TestStartCollectorCachePathWins(t *testing.T) {
	serverCache := t.TempDir()
	server := startCollector(t, collectortest.Config{CachePath: serverCache})
	h := start(t, server, testConfig(t, server), nil)

	name := "com/acme/Placed"
	original := testutil.ClassBytes(name, 1)
	h.load(t, name, original)
	if err := h.coordinator.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	cache, err := classcache.Open(serverCache, classcache.Options{})
	if err != nil {
		t.Fatalf("opening collector cache path: %v", err)
	}
	defer cache.Close()
	if _, ok, err := cache.Lookup(name, digest.Of(original)); err != nil || !ok {
		t.Errorf("class not stored under the collector's cache path: ok %v, err %v", ok, err)
	}
}

func TestStartRejectsUnreachableCollector(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	address := listener.Addr().(*net.TCPAddr)
	listener.Close()

	cfg := config.Default()
	cfg.Collector.Host = "127.0.0.1"
	cfg.Collector.Port = address.Port
	if _, err := Start(context.Background(), cfg, &fakeHost{}, StartOptions{}); err == nil {
		t.Fatal("Start succeeded against a closed port")
	}
}

func TestNewValidatesOptions(t *testing.T) {
	session := &collector.Session{}
	tests := []struct {
		name    string
		options Options
	}{
		{"no session", Options{Host: &fakeHost{}}},
		{"no collector", Options{Session: session, Host: &fakeHost{}}},
		{"host bits overflow", Options{Session: &collector.Session{HostID: 300, HostBits: 8}, Collector: nopCollector{}, Host: &fakeHost{}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(test.options); err == nil {
				t.Error("New succeeded")
			}
		})
	}
}

type nopCollector struct{}

func (nopCollector) Instrument(string, []byte) (*collector.InstrumentResult, error) {
	return &collector.InstrumentResult{}, nil
}

func (nopCollector) UseCachedClass(int32) error { return nil }

func (nopCollector) RegisterClass(string, []byte) error { return nil }

func (nopCollector) Flush() error { return nil }

func (nopCollector) Close() error { return nil }

func TestStatsCountOutcomes(t *testing.T) {
	coordinator, err := New(Options{
		Session:   &collector.Session{},
		Collector: nopCollector{},
		Host:      &fakeHost{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, name := range []string{"", "loom/agent/Self", "com/acme/A", "com/acme/B"} {
		if _, err := coordinator.Load(name, []byte(name)); err != nil {
			t.Fatalf("Load(%q): %v", name, err)
		}
	}
	stats := coordinator.Stats()
	if stats.Skipped != 2 || stats.NotInstrumented != 2 || stats.Loads() != 4 {
		t.Errorf("Stats = %+v, want 2 skipped and 2 not instrumented", stats)
	}
}
