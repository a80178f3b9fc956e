package compute

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestNewPass(t *testing.T) {
	p := NewPass("blur", "seed", "blur")
	if p.Name() != "blur" {
		t.Errorf("Name() = %q, want %q", p.Name(), "blur")
	}
	got := p.Inputs()
	if len(got) != 2 || got[0] != "seed" || got[1] != "blur" {
		t.Errorf("Inputs() = %v, want [seed blur]", got)
	}
	if _, ok := p.DispatchOverride(); ok {
		t.Error("expected no dispatch override")
	}

	p2 := p.WithDispatchOverride(64, 1, 1)
	ov, ok := p2.DispatchOverride()
	if !ok || ov != [3]uint32{64, 1, 1} {
		t.Errorf("DispatchOverride() = %v, %v", ov, ok)
	}
	if _, ok := p.DispatchOverride(); ok {
		t.Error("WithDispatchOverride must not mutate the receiver")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		wantErr error
	}{
		{
			name:    "no entry point",
			builder: NewBuilder(),
			wantErr: ErrNoEntryPoint,
		},
		{
			name: "too many inputs",
			builder: NewBuilder().Passes(
				NewPass("a"),
				NewPass("b", "a", "a", "a", "a"),
			),
			wantErr: ErrTooManyInputs,
		},
		{
			name: "unknown input buffer",
			builder: NewBuilder().Passes(
				NewPass("a", "missing"),
			),
			wantErr: ErrUnknownBuffer,
		},
		{
			name: "duplicate pass name",
			builder: NewBuilder().Passes(
				NewPass("a"),
				NewPass("a"),
			),
			wantErr: ErrDuplicatePass,
		},
		{
			name: "empty pass name",
			builder: NewBuilder().Passes(
				NewPass(""),
			),
			wantErr: ErrEmptyPassName,
		},
		{
			name:    "zero-sized storage buffer",
			builder: NewBuilder().EntryPoint("main").StorageBuffer(StorageBufferSpec{Name: "pts"}),
			wantErr: ErrBadStorageBuffer,
		},
		{
			name: "duplicate storage buffer",
			builder: NewBuilder().EntryPoint("main").
				StorageBuffer(StorageBufferSpec{Name: "pts", SizeBytes: 16}).
				StorageBuffer(StorageBufferSpec{Name: "pts", SizeBytes: 16}),
			wantErr: ErrBadStorageBuffer,
		},
		{
			name:    "zero workgroup dimension",
			builder: NewBuilder().EntryPoint("main").Workgroup(16, 0, 1),
			wantErr: ErrBadWorkgroup,
		},
		{
			name:    "too many channels",
			builder: NewBuilder().EntryPoint("main").Channels(MaxChannels + 1),
			wantErr: ErrTooManyChannels,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildLastCallWins(t *testing.T) {
	// Passes after EntryPoint: the pass list wins.
	cfg, err := NewBuilder().
		EntryPoint("single").
		Passes(NewPass("a"), NewPass("b", "a")).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	eps := cfg.EntryPoints()
	if len(eps) != 2 || eps[0] != "a" || eps[1] != "b" {
		t.Errorf("EntryPoints() = %v, want [a b]", eps)
	}

	// EntryPoint after Passes: the single entry wins.
	cfg, err = NewBuilder().
		Passes(NewPass("a"), NewPass("b", "a")).
		EntryPoint("single").
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	eps = cfg.EntryPoints()
	if len(eps) != 1 || eps[0] != "single" {
		t.Errorf("EntryPoints() = %v, want [single]", eps)
	}
}

func TestBuildHandleTable(t *testing.T) {
	cfg, err := NewBuilder().
		Passes(
			NewPass("buffer_a", "buffer_a"),
			NewPass("buffer_b", "buffer_a"),
			NewPass("main_image", "buffer_b"),
		).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if cfg.BufferCount() != 3 {
		t.Fatalf("BufferCount() = %d, want 3", cfg.BufferCount())
	}
	for i, name := range []string{"buffer_a", "buffer_b", "main_image"} {
		h := cfg.Handle(name)
		if h != BufferHandle(i) {
			t.Errorf("Handle(%q) = %d, want %d (declaration order)", name, h, i)
		}
		if cfg.BufferName(h) != name {
			t.Errorf("BufferName(%d) = %q, want %q", h, cfg.BufferName(h), name)
		}
	}
	if cfg.Handle("nope") != InvalidHandle {
		t.Error("Handle of unknown name must be InvalidHandle")
	}

	// Self-feedback resolves to the pass's own handle.
	ins := cfg.PassInputs(0)
	if len(ins) != 1 || ins[0] != cfg.PassHandle(0) {
		t.Errorf("buffer_a inputs = %v, want its own handle %d", ins, cfg.PassHandle(0))
	}
}

func TestBuildForwardReference(t *testing.T) {
	// An input may name a pass declared later.
	cfg, err := NewBuilder().
		Passes(
			NewPass("first", "second"),
			NewPass("second"),
		).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	ins := cfg.PassInputs(0)
	if len(ins) != 1 || ins[0] != cfg.Handle("second") {
		t.Errorf("forward reference resolved to %v", ins)
	}
}

func TestAuxBindingOrder(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		want    []AuxKind
	}{
		{
			name:    "none",
			builder: NewBuilder().EntryPoint("main"),
			want:    nil,
		},
		{
			name:    "all",
			builder: NewBuilder().EntryPoint("main").Mouse().Fonts().Audio(0).AudioSpectrum(0).AtomicBuffer().InputImage().Channels(2),
			want:    []AuxKind{AuxMouse, AuxFonts, AuxAudio, AuxAudioSpectrum, AuxAtomics, AuxInputImage, AuxChannel, AuxChannel},
		},
		{
			name:    "subset keeps relative order",
			builder: NewBuilder().EntryPoint("main").AtomicBuffer().Fonts(),
			want:    []AuxKind{AuxFonts, AuxAtomics},
		},
		{
			name:    "audio only",
			builder: NewBuilder().EntryPoint("main").AudioSpectrum(256),
			want:    []AuxKind{AuxAudioSpectrum},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.builder.Build()
			if err != nil {
				t.Fatalf("Build() failed: %v", err)
			}
			aux := cfg.AuxBindings()
			if len(aux) != len(tt.want) {
				t.Fatalf("got %d aux bindings, want %d", len(aux), len(tt.want))
			}
			for i, b := range aux {
				if b.Kind != tt.want[i] {
					t.Errorf("aux[%d].Kind = %v, want %v", i, b.Kind, tt.want[i])
				}
				if b.Binding != uint32(i) {
					t.Errorf("aux[%d].Binding = %d, want %d (dense sequential)", i, b.Binding, i)
				}
			}
		})
	}
}

func TestAuxChannelIndices(t *testing.T) {
	cfg, err := NewBuilder().EntryPoint("main").Channels(3).Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	aux := cfg.AuxBindings()
	for i, b := range aux {
		if b.Kind != AuxChannel || b.Channel != i {
			t.Errorf("aux[%d] = kind %v channel %d, want channel %d", i, b.Kind, b.Channel, i)
		}
	}
}

func TestGroupIndices(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		want    GroupIndices
	}{
		{
			name:    "bare",
			builder: NewBuilder().EntryPoint("main"),
			want:    GroupIndices{Frame: 0, Aux: -1, Storage: -1, IO: 1},
		},
		{
			name:    "aux only",
			builder: NewBuilder().EntryPoint("main").Mouse(),
			want:    GroupIndices{Frame: 0, Aux: 1, Storage: -1, IO: 2},
		},
		{
			name: "storage only",
			builder: NewBuilder().EntryPoint("main").
				StorageBuffer(StorageBufferSpec{Name: "pts", SizeBytes: 1024}),
			want: GroupIndices{Frame: 0, Aux: -1, Storage: 1, IO: 2},
		},
		{
			name: "aux and storage",
			builder: NewBuilder().EntryPoint("main").AtomicBuffer().
				StorageBuffer(StorageBufferSpec{Name: "pts", SizeBytes: 1024}),
			want: GroupIndices{Frame: 0, Aux: 1, Storage: 2, IO: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.builder.Build()
			if err != nil {
				t.Fatalf("Build() failed: %v", err)
			}
			if got := cfg.Groups(); got != tt.want {
				t.Errorf("Groups() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuilderDefaults(t *testing.T) {
	cfg, err := NewBuilder().EntryPoint("main").Audio(0).AudioSpectrum(0).Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if cfg.Workgroup() != [3]uint32{16, 16, 1} {
		t.Errorf("Workgroup() = %v, want [16 16 1]", cfg.Workgroup())
	}
	if cfg.Format() != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("Format() = %v, want RGBA8Unorm", cfg.Format())
	}
	if cfg.AudioSamples() != DefaultAudioSamples {
		t.Errorf("AudioSamples() = %d, want %d", cfg.AudioSamples(), DefaultAudioSamples)
	}
	if cfg.SpectrumBins() != DefaultSpectrumBins {
		t.Errorf("SpectrumBins() = %d, want %d", cfg.SpectrumBins(), DefaultSpectrumBins)
	}
	if cfg.DispatchOnce() {
		t.Error("DispatchOnce() = true by default")
	}
	if cfg.Label() != "compute" {
		t.Errorf("Label() = %q, want fallback %q", cfg.Label(), "compute")
	}
}

func TestEntryPointSinglePass(t *testing.T) {
	cfg, err := NewBuilder().EntryPoint("main_image").Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if cfg.PassCount() != 1 {
		t.Fatalf("PassCount() = %d, want 1", cfg.PassCount())
	}
	if cfg.PassName(0) != "main_image" {
		t.Errorf("PassName(0) = %q", cfg.PassName(0))
	}
	if got := cfg.PassInputs(0); len(got) != 0 {
		t.Errorf("PassInputs(0) = %v, want none", got)
	}
}
