// Package exif extracts GPS coordinates embedded in JPEG metadata.
//
// Only the subset of EXIF needed for geotag recovery is implemented: the
// APP1 segment is located, the TIFF structure inside it is walked to the
// GPS IFD, and the latitude/longitude rational triplets are converted to
// decimal degrees. Everything else in the metadata is ignored.
package exif

import (
	"bytes"
	"encoding/binary"
)

// GPS holds a decoded geotag in decimal degrees.
type GPS struct {
	Latitude  float64
	Longitude float64
}

const (
	tagGPSIFDPointer   = 0x8825
	tagGPSLatitudeRef  = 0x0001
	tagGPSLatitude     = 0x0002
	tagGPSLongitudeRef = 0x0003
	tagGPSLongitude    = 0x0004
)

var exifHeader = []byte("Exif\x00\x00")

// ExtractGPS scans a JPEG payload for an EXIF GPS tag. A missing or
// malformed geotag is not an error: the second return value reports
// whether usable coordinates were found.
func ExtractGPS(data []byte) (GPS, bool) {
	tiff, ok := findTIFF(data)
	if !ok {
		return GPS{}, false
	}
	return parseTIFF(tiff)
}

// findTIFF locates the TIFF block inside the JPEG APP1 segment.
func findTIFF(data []byte) ([]byte, bool) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, false
	}

	offset := 2
	for offset+4 <= len(data) {
		if data[offset] != 0xFF {
			return nil, false
		}
		marker := data[offset+1]

		// Standalone markers carry no length field.
		if marker == 0xD8 || (marker >= 0xD0 && marker <= 0xD7) {
			offset += 2
			continue
		}
		// Start of scan: no metadata beyond this point.
		if marker == 0xDA {
			return nil, false
		}

		segLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		if segLen < 2 || offset+2+segLen > len(data) {
			return nil, false
		}
		if marker == 0xE1 {
			seg := data[offset+4 : offset+2+segLen]
			if bytes.HasPrefix(seg, exifHeader) {
				return seg[len(exifHeader):], true
			}
		}
		offset += 2 + segLen
	}
	return nil, false
}

func parseTIFF(tiff []byte) (GPS, bool) {
	if len(tiff) < 8 {
		return GPS{}, false
	}

	var order binary.ByteOrder
	switch {
	case tiff[0] == 'I' && tiff[1] == 'I':
		order = binary.LittleEndian
	case tiff[0] == 'M' && tiff[1] == 'M':
		order = binary.BigEndian
	default:
		return GPS{}, false
	}
	if order.Uint16(tiff[2:4]) != 0x002A {
		return GPS{}, false
	}

	ifd0 := int(order.Uint32(tiff[4:8]))
	gpsIFD, ok := findGPSIFD(tiff, order, ifd0)
	if !ok {
		return GPS{}, false
	}
	return parseGPSIFD(tiff, order, gpsIFD)
}

// findGPSIFD walks IFD0 looking for the GPS sub-IFD pointer.
func findGPSIFD(tiff []byte, order binary.ByteOrder, ifd int) (int, bool) {
	entries, ok := ifdEntries(tiff, ifd)
	if !ok {
		return 0, false
	}
	for i := 0; i < entries; i++ {
		entry := tiff[ifd+2+i*12 : ifd+2+(i+1)*12]
		if order.Uint16(entry[0:2]) == tagGPSIFDPointer {
			return int(order.Uint32(entry[8:12])), true
		}
	}
	return 0, false
}

func parseGPSIFD(tiff []byte, order binary.ByteOrder, ifd int) (GPS, bool) {
	entries, ok := ifdEntries(tiff, ifd)
	if !ok {
		return GPS{}, false
	}

	var (
		latRef, lonRef   byte
		lat, lon         float64
		haveLat, haveLon bool
	)

	for i := 0; i < entries; i++ {
		entry := tiff[ifd+2+i*12 : ifd+2+(i+1)*12]
		tag := order.Uint16(entry[0:2])

		switch tag {
		case tagGPSLatitudeRef:
			latRef = refByte(entry)
		case tagGPSLongitudeRef:
			lonRef = refByte(entry)
		case tagGPSLatitude:
			lat, haveLat = readDMS(tiff, order, entry)
		case tagGPSLongitude:
			lon, haveLon = readDMS(tiff, order, entry)
		}
	}

	if !haveLat || !haveLon {
		return GPS{}, false
	}
	if latRef == 'S' {
		lat = -lat
	}
	if lonRef == 'W' {
		lon = -lon
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return GPS{}, false
	}
	return GPS{Latitude: lat, Longitude: lon}, true
}

// ifdEntries returns the entry count of the IFD at the given offset,
// verifying the whole entry table fits inside the buffer.
func ifdEntries(tiff []byte, ifd int) (int, bool) {
	if ifd < 0 || ifd+2 > len(tiff) {
		return 0, false
	}
	var order binary.ByteOrder = binary.BigEndian
	if tiff[0] == 'I' {
		order = binary.LittleEndian
	}
	entries := int(order.Uint16(tiff[ifd : ifd+2]))
	if entries == 0 || ifd+2+entries*12 > len(tiff) {
		return 0, false
	}
	return entries, true
}

// refByte reads the first character of an inline ASCII ref value (N/S/E/W).
func refByte(entry []byte) byte {
	if len(entry) < 9 {
		return 0
	}
	return entry[8]
}

// readDMS reads a degrees/minutes/seconds triplet of unsigned rationals
// and converts it to decimal degrees.
func readDMS(tiff []byte, order binary.ByteOrder, entry []byte) (float64, bool) {
	typ := order.Uint16(entry[2:4])
	count := order.Uint32(entry[4:8])
	if typ != 5 || count != 3 {
		return 0, false
	}
	off := int(order.Uint32(entry[8:12]))
	if off < 0 || off+24 > len(tiff) {
		return 0, false
	}

	vals := make([]float64, 3)
	for i := 0; i < 3; i++ {
		num := order.Uint32(tiff[off+i*8 : off+i*8+4])
		den := order.Uint32(tiff[off+i*8+4 : off+i*8+8])
		if den == 0 {
			if num == 0 {
				continue
			}
			return 0, false
		}
		vals[i] = float64(num) / float64(den)
	}
	return vals[0] + vals[1]/60 + vals[2]/3600, true
}
