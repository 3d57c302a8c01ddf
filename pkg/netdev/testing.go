package netdev

// NewTestDevice constructs a standalone Device not tied to any Registry,
// for use by other packages' tests that need a Device with a known
// up/down state (e.g. pkg/gwdispatch's hot-path tests).
func NewTestDevice(index int, up bool) *Device {
	d := &Device{Index: index, Name: "test"}
	d.up.Store(up)
	return d
}
