package gwmod

import "fmt"

// Disabled is the sentinel value for FromIdx that marks a checksum spec
// inactive (spec §3 "Checksum Spec").
const Disabled int8 = 42

// CRC8Profile selects an extension to the base CRC8 walk.
type CRC8Profile uint8

const (
	CRC8ProfileUnspec CRC8Profile = iota
	CRC8ProfileXORValue
	CRC8ProfileXORDLC
)

// XORChecksum computes acc = InitXOR ^ data[lo] ^ ... ^ data[hi] and
// stores it at data[ResultIdx] (spec §4.2 "XOR checksum").
type XORChecksum struct {
	FromIdx, ToIdx, ResultIdx int8
	InitXOR                   uint8
}

// Enabled reports whether the spec is active (FromIdx != Disabled).
func (x *XORChecksum) Enabled() bool {
	return x != nil && x.FromIdx != Disabled
}

// Apply recomputes the XOR checksum in place.
func (x *XORChecksum) Apply(data *[8]byte, dlc uint8) error {
	lo, hi, err := resolveRange(x.FromIdx, x.ToIdx, dlc)
	if err != nil {
		return err
	}
	out, err := resolve(x.ResultIdx, dlc)
	if err != nil {
		return err
	}
	acc := x.InitXOR
	for i := lo; i <= hi; i++ {
		acc ^= data[i]
	}
	data[out] = acc
	return nil
}

// CRC8Checksum computes an 8-bit CRC by walking data[FromIdx..ToIdx]
// through Table starting from InitCRC, optionally extended per Profile,
// and stores the result at data[ResultIdx] (spec §4.2 "CRC8 checksum").
type CRC8Checksum struct {
	FromIdx, ToIdx, ResultIdx int8
	InitCRC                   uint8
	FinalXOR                  uint8
	Profile                   CRC8Profile
	ProfileValue              uint8 // used when Profile == CRC8ProfileXORValue
	Table                     [256]uint8
}

// Enabled reports whether the spec is active (FromIdx != Disabled).
func (c *CRC8Checksum) Enabled() bool {
	return c != nil && c.FromIdx != Disabled
}

// Apply recomputes the CRC8 checksum in place.
func (c *CRC8Checksum) Apply(data *[8]byte, dlc uint8) error {
	lo, hi, err := resolveRange(c.FromIdx, c.ToIdx, dlc)
	if err != nil {
		return err
	}
	out, err := resolve(c.ResultIdx, dlc)
	if err != nil {
		return err
	}

	crc := c.InitCRC
	switch c.Profile {
	case CRC8ProfileXORValue:
		crc ^= c.ProfileValue
	case CRC8ProfileXORDLC:
		crc ^= dlc
	}

	for i := lo; i <= hi; i++ {
		crc = c.Table[crc^data[i]]
	}
	data[out] = crc ^ c.FinalXOR
	return nil
}

// resolve implements spec §3's index-resolution rule: non-negative values
// are absolute byte offsets, negative values are relative to dlc (-1 is
// the last byte, -8 the first).
func resolve(i int8, dlc uint8) (int, error) {
	var idx int
	if i >= 0 {
		idx = int(i)
	} else {
		idx = int(dlc) + int(i)
	}
	if idx < 0 || idx > 7 {
		return 0, fmt.Errorf("gwmod: resolved checksum index %d out of range [0,7]", idx)
	}
	return idx, nil
}

// resolveRange resolves from/to and walks inclusively over
// [min(from,to), max(from,to)] — the Open Question decision recorded in
// DESIGN.md, since spec §4.2 leaves from>to/from==to unspecified.
func resolveRange(from, to int8, dlc uint8) (lo, hi int, err error) {
	a, err := resolve(from, dlc)
	if err != nil {
		return 0, 0, err
	}
	b, err := resolve(to, dlc)
	if err != nil {
		return 0, 0, err
	}
	if a > b {
		a, b = b, a
	}
	return a, b, nil
}

// CheckParams validates that from, to, result all lie in [-8, 7], the
// install-time range check performed by cgw_chk_csum_parms (spec §4.2).
// Unlike resolve, this does not need dlc: the range check is against the
// raw signed byte, before relative resolution.
func CheckParams(from, to, result int8) error {
	if from < -8 || from > 7 || to < -8 || to > 7 || result < -8 || result > 7 {
		return fmt.Errorf("gwmod: checksum index out of range [-8,7]: from=%d to=%d result=%d", from, to, result)
	}
	return nil
}
