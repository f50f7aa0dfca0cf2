// Package shader turns effect bodies into Kage programs and draws them.
package shader

import (
	"bytes"
	"regexp"
	"sort"
)

// Uniform names exposed to effect programs.
const (
	UniformProgress    = "Progress"
	UniformAspectRatio = "AspectRatio"
	UniformSmoothness  = "Smoothness"
	UniformFadeColor   = "FadeColor"
)

// optionalUniforms are declared only when the body mentions them.
var optionalUniforms = []struct {
	name string
	typ  string
	ref  *regexp.Regexp
}{
	{UniformAspectRatio, "float", regexp.MustCompile(`\bAspectRatio\b`)},
	{UniformSmoothness, "float", regexp.MustCompile(`\bSmoothness\b`)},
	{UniformFadeColor, "vec3", regexp.MustCompile(`\bFadeColor\b`)},
}

// uniformDecl finds exported package-level vars, which Kage treats as uniforms.
var uniformDecl = regexp.MustCompile(`(?m)^var\s+([A-Z][A-Za-z0-9_]*)\s+\w+`)

const prelude = `//kage:unit pixels

package main

`

const helpers = `
const PI = 3.14159265358979

func rand2(co vec2) float {
	return fract(sin(dot(co, vec2(12.9898, 78.233))) * 43758.5453)
}

func valueNoise(p vec2) float {
	i := floor(p)
	f := fract(p)
	u := f * f * (vec2(3) - 2*f)
	a := rand2(i)
	b := rand2(i + vec2(1, 0))
	c := rand2(i + vec2(0, 1))
	d := rand2(i + vec2(1, 1))
	return mix(mix(a, b, u.x), mix(c, d, u.x), u.y)
}

func sampleFrom(uv vec2) vec4 {
	size := imageSrc0Size()
	origin := imageSrc0Origin()
	p := uv*size - vec2(0.5)
	f := fract(p)
	b := floor(p) + vec2(0.5)
	lo := vec2(0.5)
	hi := size - vec2(0.5)
	c00 := imageSrc0UnsafeAt(origin + clamp(b, lo, hi))
	c10 := imageSrc0UnsafeAt(origin + clamp(b+vec2(1, 0), lo, hi))
	c01 := imageSrc0UnsafeAt(origin + clamp(b+vec2(0, 1), lo, hi))
	c11 := imageSrc0UnsafeAt(origin + clamp(b+vec2(1, 1), lo, hi))
	return mix(mix(c00, c10, f.x), mix(c01, c11, f.x), f.y)
}

func sampleTo(uv vec2) vec4 {
	size := imageSrc1Size()
	origin := imageSrc1Origin()
	p := uv*size - vec2(0.5)
	f := fract(p)
	b := floor(p) + vec2(0.5)
	lo := vec2(0.5)
	hi := size - vec2(0.5)
	c00 := imageSrc1UnsafeAt(origin + clamp(b, lo, hi))
	c10 := imageSrc1UnsafeAt(origin + clamp(b+vec2(1, 0), lo, hi))
	c01 := imageSrc1UnsafeAt(origin + clamp(b+vec2(0, 1), lo, hi))
	c11 := imageSrc1UnsafeAt(origin + clamp(b+vec2(1, 1), lo, hi))
	return mix(mix(c00, c10, f.x), mix(c01, c11, f.x), f.y)
}

func getFromColor(uv vec2) vec4 {
	return sampleFrom(uv)
}

func getToColor(uv vec2) vec4 {
	return sampleTo(uv)
}

`

const entry = `
func Fragment(dstPos vec4, srcPos vec2, color vec4) vec4 {
	uv := (srcPos - imageSrc0Origin()) / imageSrc0Size()
	return transition(uv)
}
`

// Assemble wraps an effect body in the fixed program around it: the unit
// directive, the uniform block, the sampling helpers and the Fragment entry
// point that maps each pixel to a top-left origin uv and calls transition.
func Assemble(body string) []byte {
	declared := declaredUniforms(body)

	var b bytes.Buffer
	b.WriteString(prelude)
	if !declared[UniformProgress] {
		b.WriteString("var Progress float\n")
	}
	for _, u := range optionalUniforms {
		if declared[u.name] || !u.ref.MatchString(body) {
			continue
		}
		b.WriteString("var " + u.name + " " + u.typ + "\n")
	}
	b.WriteString(helpers)
	b.WriteString(body)
	if len(body) > 0 && body[len(body)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString(entry)
	return b.Bytes()
}

// ReflectUniforms returns the uniform names a program source declares.
func ReflectUniforms(src []byte) []string {
	set := declaredUniforms(string(src))
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func declaredUniforms(src string) map[string]bool {
	set := make(map[string]bool)
	for _, m := range uniformDecl.FindAllStringSubmatch(src, -1) {
		set[m[1]] = true
	}
	return set
}
