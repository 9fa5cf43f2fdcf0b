//go:build !nogpu

package gpu

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wavefront/compute"
)

func TestAlign4(t *testing.T) {
	tests := []struct{ in, want int }{{0, 0}, {1, 4}, {4, 4}, {5, 8}, {16, 16}}
	for _, tt := range tests {
		if got := align4(tt.in); got != tt.want {
			t.Errorf("align4(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLayoutEntries(t *testing.T) {
	params := []compute.Param{
		{Binding: 0, Kind: compute.ParamUniform},
		{Binding: 1, Kind: compute.ParamStorageRead},
		{Binding: 4, Kind: compute.ParamStorage},
	}
	want := []gputypes.BufferBindingType{
		gputypes.BufferBindingTypeUniform,
		gputypes.BufferBindingTypeReadOnlyStorage,
		gputypes.BufferBindingTypeStorage,
	}
	entries := layoutEntries(params)
	for i, e := range entries {
		if e.Binding != params[i].Binding {
			t.Errorf("entries[%d].Binding = %d, want %d", i, e.Binding, params[i].Binding)
		}
		if e.Buffer == nil || e.Buffer.Type != want[i] {
			t.Errorf("entries[%d] type = %+v, want %v", i, e.Buffer, want[i])
		}
	}
}

func TestBufferEntry_Size(t *testing.T) {
	e := bufferEntry(3, 0x1000, 256)
	bb, ok := e.Resource.(gputypes.BufferBinding)
	if !ok {
		t.Fatalf("Resource = %T, want gputypes.BufferBinding", e.Resource)
	}
	if e.Binding != 3 || bb.Buffer != 0x1000 || bb.Size != 256 {
		t.Errorf("bufferEntry = {%d %#x %d}, want {3 0x1000 256}", e.Binding, bb.Buffer, bb.Size)
	}
}

func TestBackend_Registered(t *testing.T) {
	names := compute.Backends()
	if len(names) == 0 || names[0] != BackendName {
		t.Errorf("Backends() = %v, want %s first", names, BackendName)
	}
}

func TestDevice_RoundTrip(t *testing.T) {
	devs := compute.EnumerateDevices(compute.DeviceSelector{Backend: BackendName})
	if len(devs) == 0 {
		t.Skip("no Vulkan adapter available")
	}

	b := &vulkanBackend{}
	dev, err := b.Open(devs[0], nil)
	if err != nil {
		t.Skipf("cannot open adapter: %v", err)
	}
	defer dev.Close()

	buf, err := dev.NewBuffer("roundtrip", 10)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()

	if err := dev.Write(buf, 1, []byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 5)
	if err := dev.Read(buf, 1, got); err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != byte(i+1) {
			t.Errorf("byte %d = %d, want %d", i, v, i+1)
		}
	}
}
