package shader

import (
	"errors"
	"image/color"
	"testing"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/user-none/slidefx/effects"
)

func TestUniformValuesSetIfPresent(t *testing.T) {
	p := &Program{id: "test", uniforms: map[string]bool{UniformProgress: true, UniformFadeColor: true}}
	params := FrameParams{
		Progress:    0.5,
		AspectRatio: 16.0 / 9.0,
		Smoothness:  0.1,
		FadeColor:   color.RGBA{R: 255, A: 255},
	}

	got := p.uniformValues(params)
	if len(got) != 2 {
		t.Fatalf("expected 2 uniforms, got %v", got)
	}
	prog, ok := got[UniformProgress].(float32)
	if !ok {
		t.Fatalf("Progress has type %T", got[UniformProgress])
	}
	if prog < 0.7071 || prog > 0.7072 {
		t.Errorf("Progress = %v, want eased 0.7071", prog)
	}
	fc, ok := got[UniformFadeColor].([]float32)
	if !ok || len(fc) != 3 || fc[0] != 1 || fc[1] != 0 || fc[2] != 0 {
		t.Errorf("FadeColor = %v", got[UniformFadeColor])
	}
	if _, ok := got[UniformAspectRatio]; ok {
		t.Error("undeclared AspectRatio should not be bound")
	}
	if !p.unbound[UniformAspectRatio] || !p.unbound[UniformSmoothness] {
		t.Errorf("unbound uniforms not recorded: %v", p.unbound)
	}

	// A second frame must not fail either.
	if got := p.uniformValues(params); len(got) != 2 {
		t.Errorf("second frame bound %d uniforms", len(got))
	}
}

func TestColorVec3(t *testing.T) {
	tests := []struct {
		c    color.Color
		want []float32
	}{
		{nil, []float32{0, 0, 0}},
		{color.Black, []float32{0, 0, 0}},
		{color.White, []float32{1, 1, 1}},
		{color.RGBA{G: 255, A: 255}, []float32{0, 1, 0}},
	}
	for _, tt := range tests {
		got := colorVec3(tt.c)
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("colorVec3(%v) = %v, want %v", tt.c, got, tt.want)
				break
			}
		}
	}
}

func TestBuiltinEffectsCompile(t *testing.T) {
	store := effects.NewStore()
	rt := NewRuntime()
	defer rt.Release()

	for _, d := range store.LoadAll() {
		t.Run(d.ID, func(t *testing.T) {
			p, err := rt.Compile(d)
			if err != nil {
				var ce *CompileError
				if errors.As(err, &ce) {
					t.Fatalf("compile failed: %s\n%s", ce.Log, ce.Source)
				}
				t.Fatalf("compile failed: %v", err)
			}
			if !p.HasUniform(UniformProgress) {
				t.Error("program should declare Progress")
			}
			if p.EffectID() != d.ID {
				t.Errorf("EffectID() = %q", p.EffectID())
			}
		})
	}
	if rt.Len() != store.Len() {
		t.Errorf("runtime caches %d programs, want %d", rt.Len(), store.Len())
	}
}

func TestCompileCachesProgram(t *testing.T) {
	rt := NewRuntime()
	defer rt.Release()
	d := &effects.Descriptor{ID: "plain", Body: "func transition(uv vec2) vec4 {\n\treturn getToColor(uv)\n}\n"}

	a, err := rt.Compile(d)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	b, err := rt.Compile(d)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if a != b {
		t.Error("expected cached program on second compile")
	}

	changed := &effects.Descriptor{ID: "plain", Body: "func transition(uv vec2) vec4 {\n\treturn getFromColor(uv)\n}\n"}
	c, err := rt.Compile(changed)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if c == a {
		t.Error("changed body should produce a new program")
	}
	if rt.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rt.Len())
	}
}

func TestCompileError(t *testing.T) {
	rt := NewRuntime()
	defer rt.Release()
	d := &effects.Descriptor{ID: "broken", Body: "func transition(uv vec2) vec4 {\n\treturn undefinedThing(uv)\n}\n"}

	_, err := rt.Compile(d)
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %v", err)
	}
	if ce.EffectID != "broken" || ce.Log == "" || len(ce.Source) == 0 {
		t.Errorf("incomplete CompileError: %+v", ce)
	}

	_, again := rt.Compile(d)
	if again != err {
		t.Error("failure should be cached for an unchanged body")
	}
	if rt.Len() != 0 {
		t.Errorf("Len() = %d, want 0", rt.Len())
	}
}

func TestDrawWithoutProgram(t *testing.T) {
	rt := NewRuntime()
	dst := ebiten.NewImage(4, 4)
	if err := rt.Draw(dst); !errors.Is(err, ErrNoProgram) {
		t.Errorf("Draw() error = %v, want ErrNoProgram", err)
	}
}

func TestReleasedRuntime(t *testing.T) {
	rt := NewRuntime()
	rt.Release()
	rt.Release()
	if _, err := rt.Compile(&effects.Descriptor{ID: "x", Body: "func transition(uv vec2) vec4 {\n\treturn getToColor(uv)\n}\n"}); !errors.Is(err, ErrReleased) {
		t.Errorf("Compile after Release error = %v, want ErrReleased", err)
	}
}

func TestEvictClearsActive(t *testing.T) {
	rt := NewRuntime()
	defer rt.Release()
	d := &effects.Descriptor{ID: "plain", Body: "func transition(uv vec2) vec4 {\n\treturn getToColor(uv)\n}\n"}
	p, err := rt.Compile(d)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	rt.Use(p)
	rt.Evict("plain")
	if rt.Len() != 0 {
		t.Errorf("Len() = %d after evict", rt.Len())
	}
	if err := rt.Draw(ebiten.NewImage(2, 2)); !errors.Is(err, ErrNoProgram) {
		t.Errorf("Draw() error = %v, want ErrNoProgram", err)
	}
}
