package engine

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/rb2js/errors"
	"github.com/wippyai/rb2js/internal/prismtest"
	"github.com/wippyai/rb2js/prismfmt"
)

func load(t *testing.T, opts prismtest.Options, cfg Config) *Instance {
	t.Helper()
	ctx := context.Background()
	inst, err := Instantiate(ctx, prismtest.Module(opts), cfg)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	t.Cleanup(func() { inst.Close(ctx) })
	return inst
}

func assertBalanced(t *testing.T, inst *Instance) {
	t.Helper()
	s := inst.Stats()
	if s.Allocations != s.Frees {
		t.Errorf("allocations %d != frees %d", s.Allocations, s.Frees)
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		location string
		want     Source
		wantErr  errors.Kind
	}{
		{"prism.wasm", FileSource{Path: "prism.wasm"}, ""},
		{"/opt/prism/prism.wasm", FileSource{Path: "/opt/prism/prism.wasm"}, ""},
		{"file:///opt/prism.wasm", FileSource{Path: "/opt/prism.wasm"}, ""},
		{"https://cdn.example.com/prism.wasm", HTTPSource{URL: "https://cdn.example.com/prism.wasm"}, ""},
		{"ftp://example.com/prism.wasm", nil, errors.KindUnsupported},
		{"", nil, errors.KindInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.location, func(t *testing.T) {
			got, err := ParseSource(tc.location)
			if tc.wantErr != "" {
				if !errors.IsKind(err, tc.wantErr) {
					t.Fatalf("expected %s, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSource failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestLoaderFirstSuccessWins(t *testing.T) {
	var (
		mu   sync.Mutex
		hits []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		if r.URL.Path != "/prism.wasm" {
			http.NotFound(w, r)
			return
		}
		w.Write(prismtest.Module(prismtest.Options{Echo: true}))
	}))
	defer srv.Close()

	loader := NewLoader(Config{},
		FileSource{Path: "/nonexistent/prism.wasm"},
		HTTPSource{URL: srv.URL + "/missing.wasm"},
		HTTPSource{URL: srv.URL + "/prism.wasm"},
		HTTPSource{URL: srv.URL + "/never.wasm"},
	)

	ctx := context.Background()
	inst, err := loader.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer inst.Close(ctx)

	mu.Lock()
	defer mu.Unlock()
	if got := strings.Join(hits, ","); got != "/missing.wasm,/prism.wasm" {
		t.Errorf("requests = %s", got)
	}
	if inst.Source().String() != srv.URL+"/prism.wasm" {
		t.Errorf("source = %s", inst.Source())
	}
}

func TestLoaderAllSourcesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	loader := NewLoader(Config{}, StaticSource{Name: "empty"}, HTTPSource{URL: srv.URL})
	_, _, err := loader.Fetch(context.Background())
	if !errors.IsKind(err, errors.KindModuleUnavailable) {
		t.Fatalf("expected module unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "no module source available") || !strings.Contains(err.Error(), "410") {
		t.Errorf("error = %v", err)
	}

	var e *errors.Error
	if !stderrors.As(err, &e) || e.Value != 2 {
		t.Errorf("expected 2 attempts, got %+v", e)
	}

	_, _, err = NewLoader(Config{}).Fetch(context.Background())
	if !errors.IsKind(err, errors.KindModuleUnavailable) {
		t.Errorf("no sources: %v", err)
	}
}

func TestInstantiateErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Instantiate(ctx, []byte("not wasm"), Config{})
	if !errors.IsKind(err, errors.KindInvalidData) {
		t.Errorf("garbage bytes: %v", err)
	}

	_, err = Instantiate(ctx, prismtest.Module(prismtest.Options{MissingImport: "env#js_eval"}), Config{})
	var mi *errors.MissingImportsError
	if !stderrors.As(err, &mi) {
		t.Fatalf("expected MissingImportsError, got %v", err)
	}
	if len(mi.Imports) != 1 || mi.Imports[0].Function != "js_eval" {
		t.Errorf("imports = %+v", mi.Imports)
	}
}

func TestSerialize(t *testing.T) {
	tests := []struct {
		name string
		opts prismtest.Options
	}{
		{"malloc", prismtest.Options{Echo: true}},
		{"buffer api", prismtest.Options{Echo: true, BufferAPI: true}},
		{"arena", prismtest.Options{Echo: true, NoAllocator: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inst := load(t, tc.opts, Config{})
			ctx := context.Background()

			for _, src := range []string{"x = 1", "puts \"héllo\"", ""} {
				out, err := inst.Serialize(ctx, src)
				if src == "" {
					if !errors.IsKind(err, errors.KindInvalidData) {
						t.Errorf("empty source: expected invalid data, got %v", err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("Serialize(%q) failed: %v", src, err)
				}
				if string(out.Bytes) != src || out.Exited {
					t.Errorf("Serialize(%q) = %+v", src, out)
				}
			}

			s := inst.Stats()
			if s.Allocations != 6 {
				t.Errorf("allocations = %d, want 6", s.Allocations)
			}
			assertBalanced(t, inst)
			if tc.opts.NoAllocator && s.ArenaUsed == 0 {
				t.Error("arena was not used")
			}
		})
	}
}

func TestSerializeParserModule(t *testing.T) {
	doc := &prismfmt.Document{Root: prismfmt.Program(prismfmt.LocalWrite("x", prismfmt.Integer(1)))}
	data, err := prismtest.ParserModule(doc, prismtest.Options{})
	if err != nil {
		t.Fatalf("ParserModule failed: %v", err)
	}
	ctx := context.Background()
	inst, err := Instantiate(ctx, data, Config{})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	defer inst.Close(ctx)

	out, err := inst.Serialize(ctx, "x = 1")
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	got, err := prismfmt.Decode(out.Bytes)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	body := got.Root.Node("statements").Nodes("body")
	if len(body) != 1 || body[0].Const("name") != "x" {
		t.Errorf("body = %+v", body)
	}
}

func TestSerializeProcExit(t *testing.T) {
	inst := load(t, prismtest.Options{Echo: true, Exit: prismtest.Exit(2)}, Config{})
	ctx := context.Background()

	for range 2 {
		out, err := inst.Serialize(ctx, "x = 1")
		if err != nil {
			t.Fatalf("Serialize failed: %v", err)
		}
		if !out.Exited || out.ExitCode != 2 || string(out.Bytes) != "x = 1" {
			t.Errorf("out = %+v", out)
		}
	}
	assertBalanced(t, inst)
}

func TestSerializeTrapReleasesMemory(t *testing.T) {
	inst := load(t, prismtest.Options{Trap: true}, Config{})

	_, err := inst.Serialize(context.Background(), "x = 1")
	if !errors.IsKind(err, errors.KindTrap) {
		t.Fatalf("expected trap, got %v", err)
	}
	if inst.Stats().Allocations != 2 {
		t.Errorf("allocations = %d", inst.Stats().Allocations)
	}
	assertBalanced(t, inst)
}

func TestGuestOutputIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	inst := load(t, prismtest.Options{Echo: true, Stdout: "parsing\n", Stderr: "warning: x"}, Config{})
	if _, err := inst.Serialize(context.Background(), "x"); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].LoggerName != "guest" || entries[0].ContextMap()["text"] != "parsing" {
		t.Errorf("stdout entry = %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["text"] != "warning: x" {
		t.Errorf("stderr entry = %+v", entries[1])
	}
}

func TestWriteString(t *testing.T) {
	inst := load(t, prismtest.Options{}, Config{})
	ctx := context.Background()

	ptr, n, err := inst.WriteString(ctx, "añb")
	if err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}
	if n != 4 {
		t.Errorf("length = %d, want 4", n)
	}
	data, err := inst.Memory().Read(ptr, n+1)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "añb\x00" {
		t.Errorf("memory = %q", data)
	}
	if err := inst.Free(ctx, ptr); err != nil {
		t.Errorf("Free failed: %v", err)
	}
	assertBalanced(t, inst)
}

func TestInvokeParseAndReadBuffer(t *testing.T) {
	inst := load(t, prismtest.Options{Echo: true}, Config{})
	ctx := context.Background()

	ptr, n, err := inst.WriteString(ctx, "a + b")
	if err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}
	desc, err := inst.InvokeParse(ctx, ptr, n, 0)
	if err != nil {
		t.Fatalf("InvokeParse failed: %v", err)
	}
	data, err := inst.ReadBuffer(ctx, desc)
	if err != nil || string(data) != "a + b" {
		t.Errorf("ReadBuffer = %q, %v", data, err)
	}
	if capacity, _ := inst.Memory().ReadU32(desc + 8); capacity != n {
		t.Errorf("capacity = %d", capacity)
	}
	if err := inst.ReleaseDescriptor(ctx, desc); err != nil {
		t.Errorf("ReleaseDescriptor failed: %v", err)
	}
	inst.Free(ctx, ptr)
	assertBalanced(t, inst)
}

func TestArenaOutOfMemory(t *testing.T) {
	inst := load(t, prismtest.Options{NoAllocator: true}, Config{})
	ctx := context.Background()

	size := inst.Memory().Size() - DefaultArenaBase
	ptr, err := inst.Allocate(ctx, size-16)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if ptr != DefaultArenaBase {
		t.Errorf("first arena pointer = %d", ptr)
	}

	_, err = inst.Allocate(ctx, 64)
	if !errors.IsKind(err, errors.KindOutOfMemory) {
		t.Fatalf("expected out of memory, got %v", err)
	}
	if !strings.Contains(err.Error(), "16 remaining") {
		t.Errorf("error = %v", err)
	}
	if err := inst.Free(ctx, 12); err == nil {
		t.Error("freeing a pointer outside the arena should fail")
	}
}

type fixedSize uint32

func (f fixedSize) Size() uint32 { return uint32(f) }

func TestArenaAlignment(t *testing.T) {
	a := newArena(fixedSize(256), 100)
	ctx := context.Background()

	tests := []struct {
		size uint32
		want uint32
	}{
		{3, 104},
		{8, 112},
		{0, 120},
		{1, 128},
	}
	for _, tc := range tests {
		got, err := a.Alloc(ctx, tc.size)
		if err != nil {
			t.Fatalf("Alloc(%d) failed: %v", tc.size, err)
		}
		if got != tc.want {
			t.Errorf("Alloc(%d) = %d, want %d", tc.size, got, tc.want)
		}
	}
	if a.Used() != 29 {
		t.Errorf("used = %d", a.Used())
	}
}

func TestScopeReleaseOrder(t *testing.T) {
	inst := load(t, prismtest.Options{}, Config{})
	ctx := context.Background()

	var order []string
	scope := inst.NewScope()
	if _, err := scope.Allocate(ctx, 8); err != nil {
		t.Fatal(err)
	}
	scope.Defer(func(context.Context) error {
		order = append(order, "cleanup")
		// Only the string allocated after Defer is freed by now.
		if inst.Stats().Frees != 1 {
			order = append(order, "wrong free count")
		}
		return nil
	})
	if _, _, err := scope.WriteString(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if scope.Len() != 3 {
		t.Errorf("Len = %d", scope.Len())
	}

	if err := scope.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := scope.Release(ctx); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
	if strings.Join(order, ",") != "cleanup" {
		t.Errorf("order = %v", order)
	}
	if s := inst.Stats(); s.Frees != 2 {
		t.Errorf("frees = %d, want 2", s.Frees)
	}
}

func TestCallAndClose(t *testing.T) {
	inst, err := Instantiate(context.Background(), prismtest.Module(prismtest.Options{}), Config{})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	ctx := context.Background()

	res, err := inst.Call(ctx, "malloc", 4)
	if err != nil || len(res) != 1 || res[0] == 0 {
		t.Errorf("Call(malloc) = %v, %v", res, err)
	}
	if _, err := inst.Call(ctx, "nope"); !errors.IsKind(err, errors.KindMissingExport) {
		t.Errorf("expected missing export, got %v", err)
	}

	if err := inst.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := inst.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if _, err := inst.Serialize(ctx, "x"); !errors.IsKind(err, errors.KindNotInitialized) {
		t.Errorf("Serialize after Close: %v", err)
	}
}
