package validation

import (
	"strings"
	"testing"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
)

func TestDetectImage(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		ext    string
		wantOK bool
	}{
		{name: "png", data: pngHeader, ext: ".png", wantOK: true},
		{name: "jpeg", data: jpegHeader, ext: ".jpg", wantOK: true},
		{name: "plain text", data: []byte("hello, world"), wantOK: false},
		{name: "empty", data: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ext, ok := DetectImage(tt.data)
			if ok != tt.wantOK {
				t.Fatalf("DetectImage ok = %v, want %v", ok, tt.wantOK)
			}
			if ext != tt.ext {
				t.Fatalf("DetectImage ext = %q, want %q", ext, tt.ext)
			}
		})
	}
}

func TestContentTypeForExt(t *testing.T) {
	if ct, ok := ContentTypeForExt(".PNG"); !ok || ct != "image/png" {
		t.Fatalf("ContentTypeForExt(.PNG) = %q, %v", ct, ok)
	}
	if _, ok := ContentTypeForExt(".exe"); ok {
		t.Fatalf("ContentTypeForExt(.exe) must fail")
	}
}

func TestIsValidPhotoName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{name: "1b4e28ba-2fa1-11d2-883f-0016d3cca427.jpg", valid: true},
		{name: "../etc/passwd", valid: false},
		{name: "a/b.jpg", valid: false},
		{name: ".hidden", valid: false},
		{name: "noext", valid: false},
		{name: "two.dots.jpg", valid: false},
		{name: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPhotoName(tt.name); got != tt.valid {
				t.Fatalf("IsValidPhotoName(%q) = %v, want %v", tt.name, got, tt.valid)
			}
		})
	}
}

func TestIsValidDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "regular", input: "John ACMHack", valid: true},
		{name: "blank", input: "   ", valid: false},
		{name: "control char", input: "bad\x00name", valid: false},
		{name: "too long", input: strings.Repeat("a", MaxNameLength+1), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidDisplayName(tt.input); got != tt.valid {
				t.Fatalf("IsValidDisplayName(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{email: "", valid: true},
		{email: "hack@uclaacm.com", valid: true},
		{email: "John <hack@uclaacm.com>", valid: false},
		{email: "not-an-email", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := IsValidEmail(tt.email); got != tt.valid {
				t.Fatalf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.valid)
			}
		})
	}
}
