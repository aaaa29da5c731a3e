package exif

import (
	"encoding/binary"
	"math"
	"testing"
)

// buildGeotaggedJPEG assembles a minimal JPEG carrying an EXIF APP1 segment
// with a big-endian TIFF block holding the given GPS rationals.
func buildGeotaggedJPEG(latRef byte, lat [3][2]uint32, lonRef byte, lon [3][2]uint32) []byte {
	be := binary.BigEndian

	tiff := make([]byte, 128)
	copy(tiff[0:2], "MM")
	be.PutUint16(tiff[2:4], 0x002A)
	be.PutUint32(tiff[4:8], 8)

	// IFD0 with a single GPS sub-IFD pointer entry.
	be.PutUint16(tiff[8:10], 1)
	be.PutUint16(tiff[10:12], tagGPSIFDPointer)
	be.PutUint16(tiff[12:14], 4)
	be.PutUint32(tiff[14:18], 1)
	be.PutUint32(tiff[18:22], 26)

	// GPS IFD with four entries.
	be.PutUint16(tiff[26:28], 4)
	writeEntry := func(idx int, tag, typ uint16, count, value uint32) {
		off := 28 + idx*12
		be.PutUint16(tiff[off:off+2], tag)
		be.PutUint16(tiff[off+2:off+4], typ)
		be.PutUint32(tiff[off+4:off+8], count)
		be.PutUint32(tiff[off+8:off+12], value)
	}
	writeEntry(0, tagGPSLatitudeRef, 2, 2, uint32(latRef)<<24)
	writeEntry(1, tagGPSLatitude, 5, 3, 80)
	writeEntry(2, tagGPSLongitudeRef, 2, 2, uint32(lonRef)<<24)
	writeEntry(3, tagGPSLongitude, 5, 3, 104)

	for i, r := range lat {
		be.PutUint32(tiff[80+i*8:80+i*8+4], r[0])
		be.PutUint32(tiff[80+i*8+4:80+i*8+8], r[1])
	}
	for i, r := range lon {
		be.PutUint32(tiff[104+i*8:104+i*8+4], r[0])
		be.PutUint32(tiff[104+i*8+4:104+i*8+8], r[1])
	}

	app1 := append([]byte("Exif\x00\x00"), tiff...)
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE1}
	var lenBuf [2]byte
	be.PutUint16(lenBuf[:], uint16(len(app1)+2))
	jpeg = append(jpeg, lenBuf[:]...)
	jpeg = append(jpeg, app1...)
	jpeg = append(jpeg, 0xFF, 0xD9)
	return jpeg
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestExtractGPS(t *testing.T) {
	// 37°48'30"N 122°25'15"W, the DMS form of a San Francisco waterfront spot.
	data := buildGeotaggedJPEG(
		'N', [3][2]uint32{{37, 1}, {48, 1}, {30, 1}},
		'W', [3][2]uint32{{122, 1}, {25, 1}, {15, 1}},
	)

	gps, ok := ExtractGPS(data)
	if !ok {
		t.Fatalf("expected GPS data, got none")
	}

	wantLat := 37.0 + 48.0/60 + 30.0/3600
	wantLon := -(122.0 + 25.0/60 + 15.0/3600)
	if !almostEqual(gps.Latitude, wantLat) {
		t.Errorf("latitude = %f, want %f", gps.Latitude, wantLat)
	}
	if !almostEqual(gps.Longitude, wantLon) {
		t.Errorf("longitude = %f, want %f", gps.Longitude, wantLon)
	}
}

func TestExtractGPSSouthernHemisphere(t *testing.T) {
	data := buildGeotaggedJPEG(
		'S', [3][2]uint32{{33, 1}, {51, 1}, {0, 1}},
		'E', [3][2]uint32{{151, 1}, {12, 1}, {0, 1}},
	)

	gps, ok := ExtractGPS(data)
	if !ok {
		t.Fatalf("expected GPS data, got none")
	}
	if gps.Latitude >= 0 {
		t.Errorf("latitude = %f, want negative", gps.Latitude)
	}
	if gps.Longitude <= 0 {
		t.Errorf("longitude = %f, want positive", gps.Longitude)
	}
}

func TestExtractGPSFractionalRationals(t *testing.T) {
	// Coordinates stored as degrees plus high-precision minutes.
	data := buildGeotaggedJPEG(
		'N', [3][2]uint32{{51, 1}, {30262, 1000}, {0, 1}},
		'W', [3][2]uint32{{0, 1}, {7391, 1000}, {0, 1}},
	)

	gps, ok := ExtractGPS(data)
	if !ok {
		t.Fatalf("expected GPS data, got none")
	}
	if !almostEqual(gps.Latitude, 51+30.262/60) {
		t.Errorf("latitude = %f, want %f", gps.Latitude, 51+30.262/60)
	}
	if !almostEqual(gps.Longitude, -7.391/60) {
		t.Errorf("longitude = %f, want %f", gps.Longitude, -7.391/60)
	}
}

func TestExtractGPSAbsent(t *testing.T) {
	cases := map[string][]byte{
		"empty":          nil,
		"not a jpeg":     []byte("plain text"),
		"jpeg no app1":   {0xFF, 0xD8, 0xFF, 0xDB, 0x00, 0x04, 0x00, 0x00, 0xFF, 0xD9},
		"truncated soi":  {0xFF, 0xD8},
		"corrupt marker": {0xFF, 0xD8, 0x00, 0x00, 0x00, 0x00},
	}

	for name, data := range cases {
		if _, ok := ExtractGPS(data); ok {
			t.Errorf("%s: expected no GPS data", name)
		}
	}
}

func TestExtractGPSCorruptTIFF(t *testing.T) {
	data := buildGeotaggedJPEG(
		'N', [3][2]uint32{{37, 1}, {48, 1}, {30, 1}},
		'E', [3][2]uint32{{122, 1}, {25, 1}, {15, 1}},
	)

	// Point the GPS IFD beyond the TIFF block.
	for i := 0; i+4 < len(data); i++ {
		if binary.BigEndian.Uint16(data[i:i+2]) == tagGPSIFDPointer {
			binary.BigEndian.PutUint32(data[i+8:i+12], 0xFFFF)
			break
		}
	}
	if _, ok := ExtractGPS(data); ok {
		t.Fatalf("expected extraction to fail on out-of-range IFD offset")
	}
}

func TestExtractGPSZeroDenominator(t *testing.T) {
	data := buildGeotaggedJPEG(
		'N', [3][2]uint32{{37, 0}, {48, 1}, {30, 1}},
		'E', [3][2]uint32{{122, 1}, {25, 1}, {15, 1}},
	)
	if _, ok := ExtractGPS(data); ok {
		t.Fatalf("expected extraction to fail on zero denominator")
	}
}
