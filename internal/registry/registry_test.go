package registry

import (
	"strings"
	"testing"
)

func validDescriptor() Descriptor {
	return Descriptor{
		Name:        "weather",
		Description: "Get weather information",
		Examples:    []string{"what's the weather like?"},
		Keywords:    []string{"weather", "forecast"},
		Slots: []Slot{
			{Name: "location", Type: SlotLocation, Required: true},
		},
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Descriptor) []Descriptor
		wantErr string
	}{
		{
			name: "valid catalog",
			mutate: func(d *Descriptor) []Descriptor {
				return []Descriptor{*d}
			},
		},
		{
			name: "duplicate capability name",
			mutate: func(d *Descriptor) []Descriptor {
				return []Descriptor{*d, *d}
			},
			wantErr: "duplicate",
		},
		{
			name: "unknown slot type",
			mutate: func(d *Descriptor) []Descriptor {
				d.Slots[0].Type = "geohash"
				return []Descriptor{*d}
			},
			wantErr: "unknown type",
		},
		{
			name: "no examples and no keywords",
			mutate: func(d *Descriptor) []Descriptor {
				d.Examples = nil
				d.Keywords = nil
				return []Descriptor{*d}
			},
			wantErr: "example",
		},
		{
			name: "duplicate slot name",
			mutate: func(d *Descriptor) []Descriptor {
				d.Slots = append(d.Slots, Slot{Name: "location", Type: SlotFreetext})
				return []Descriptor{*d}
			},
			wantErr: "duplicate parameter",
		},
		{
			name: "empty capability name",
			mutate: func(d *Descriptor) []Descriptor {
				d.Name = ""
				return []Descriptor{*d}
			},
			wantErr: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDescriptor()
			_, err := New(tt.mutate(&d))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("New() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_EmptyCatalog(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) expected error for empty catalog")
	}
}

func TestMissingSlots(t *testing.T) {
	d := Descriptor{
		Name: "adhan",
		Slots: []Slot{
			{Name: "city", Type: SlotLocation, Required: true},
			{Name: "method", Type: SlotFreetext, Required: false},
		},
		Keywords: []string{"prayer"},
	}

	tests := []struct {
		name     string
		entities map[string]string
		want     []string
	}{
		{name: "nothing filled", entities: nil, want: []string{"city"}},
		{name: "required filled", entities: map[string]string{"city": "Cairo"}, want: nil},
		{name: "blank value still missing", entities: map[string]string{"city": "  "}, want: []string{"city"}},
		{name: "optional only", entities: map[string]string{"method": "isna"}, want: []string{"city"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.MissingSlots(tt.entities)
			if len(got) != len(tt.want) {
				t.Fatalf("MissingSlots() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("MissingSlots()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRegistry_Lookup(t *testing.T) {
	d := validDescriptor()
	reg, err := New([]Descriptor{d})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	got, ok := reg.Get("weather")
	if !ok {
		t.Fatal("Get(weather) not found")
	}
	if got.Name != "weather" {
		t.Errorf("Get(weather).Name = %q", got.Name)
	}
	if _, ok := reg.Get("nonexistent"); ok {
		t.Error("Get(nonexistent) unexpectedly found")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}
