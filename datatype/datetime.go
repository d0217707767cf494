package datatype

import (
	"time"

	"github.com/rob-gra/ebusd-go/ebuserr"
)

// epoch is the reference instant for DAY (days since) and DTM
// (minutes since), per spec §4.2.
var epoch = time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)

// dayNames are the values BDY/HDY decode to and encode from; the wire
// itself carries only the day index.
var dayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// DecodeDate decodes BDA, HDA and DAY fields to a Value formatted
// "DD.MM.YYYY". Wire byte order for BDA/HDA is [day, month, year] (and
// for the 4-byte variant, a trailing weekday byte which is ignored).
func (t *DataType) DecodeDate(data []byte) (Value, error) {
	if len(data) != t.Bytes {
		return Value{}, ebuserr.Newf(ebuserr.InvalidPos, "%s needs %d bytes, got %d", t.Name, t.Bytes, len(data))
	}
	switch t.Name {
	case "BDA", "HDA":
		dayB, monthB, yearB := data[0], data[1], data[2]
		var year, month, day int
		if t.Name == "BDA" {
			d, ok1 := bcdDigitPair(dayB)
			if !ok1 {
				return NullValue(), nil
			}
			m, ok2 := bcdDigitPair(monthB)
			if !ok2 {
				return NullValue(), nil
			}
			y, ok3 := bcdDigitPair(yearB)
			if !ok3 {
				return NullValue(), nil
			}
			day, month, year = d, m, y
		} else {
			if yearB > 99 || monthB > 99 || dayB > 99 {
				return NullValue(), nil
			}
			year, month, day = int(yearB), int(monthB), int(dayB)
		}
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return NullValue(), nil
		}
		fullYear := 1900 + year
		if year < 70 {
			fullYear = 2000 + year
		}
		return TimeValue(time.Date(fullYear, time.Month(month), day, 0, 0, 0, 0, time.UTC)), nil
	case "DAY":
		raw := readUint(data, false)
		if raw == 0xFFFF {
			return NullValue(), nil
		}
		return TimeValue(epoch.AddDate(0, 0, int(raw))), nil
	default:
		return Value{}, ebuserr.Newf(ebuserr.InvalidArg, "%s is not a date type", t.Name)
	}
}

// EncodeDate is the inverse of DecodeDate.
func (t *DataType) EncodeDate(v Value) ([]byte, error) {
	if v.Kind == ValueNull {
		switch t.Name {
		case "DAY":
			return writeUint(0xFFFF, 2, false), nil
		default:
			out := make([]byte, t.Bytes)
			for i := range out {
				out[i] = 0xFF
			}
			return out, nil
		}
	}
	switch t.Name {
	case "BDA", "HDA":
		tm := v.T
		year := tm.Year() % 100
		month := int(tm.Month())
		day := tm.Day()
		out := make([]byte, t.Bytes)
		if t.Name == "BDA" {
			out[0] = bcdFromDigitPair(day)
			out[1] = bcdFromDigitPair(month)
			out[2] = bcdFromDigitPair(year)
		} else {
			out[0] = byte(day)
			out[1] = byte(month)
			out[2] = byte(year)
		}
		if t.Bytes == 4 {
			out[3] = 0 // weekday emitted as 0 on encode, per spec §9 open question resolution
		}
		return out, nil
	case "DAY":
		days := int(v.T.Sub(epoch).Hours() / 24)
		return writeUint(uint64(days), 2, false), nil
	default:
		return nil, ebuserr.Newf(ebuserr.InvalidArg, "%s is not a date type", t.Name)
	}
}

// DecodeDateTime decodes DTM (minutes since epoch, 4 bytes LE).
func (t *DataType) DecodeDateTime(data []byte) (Value, error) {
	if len(data) != 4 {
		return Value{}, ebuserr.Newf(ebuserr.InvalidPos, "DTM needs 4 bytes, got %d", len(data))
	}
	raw := readUint(data, false)
	if raw == 0xFFFFFFFF {
		return NullValue(), nil
	}
	return DateTimeValue(epoch.Add(time.Duration(raw) * time.Minute)), nil
}

// EncodeDateTime is the inverse of DecodeDateTime.
func (t *DataType) EncodeDateTime(v Value) ([]byte, error) {
	if v.Kind == ValueNull {
		return writeUint(0xFFFFFFFF, 4, false), nil
	}
	minutes := uint64(v.T.Sub(epoch).Minutes())
	return writeUint(minutes, 4, false), nil
}

// DecodeTime decodes BTI/HTI/VTI (HH:MM:SS), BTM/HTM/VTM/MIN (HH:MM),
// and TTM/TTH/TTQ (coarse single-byte clock).
func (t *DataType) DecodeTime(data []byte) (Value, error) {
	if len(data) != t.Bytes {
		return Value{}, ebuserr.Newf(ebuserr.InvalidPos, "%s needs %d bytes, got %d", t.Name, t.Bytes, len(data))
	}
	switch t.Name {
	case "BTI", "HTI", "VTI":
		var h, m, s int
		var ok bool
		bcd := t.Name == "BTI"
		reversed := t.Name == "BTI" || t.Name == "VTI"
		b := data
		if reversed {
			b = []byte{data[2], data[1], data[0]}
		}
		if bcd {
			hh, ok1 := bcdDigitPair(b[0])
			mm, ok2 := bcdDigitPair(b[1])
			ss, ok3 := bcdDigitPair(b[2])
			h, m, s, ok = hh, mm, ss, ok1 && ok2 && ok3
		} else {
			ok = b[0] <= 99 && b[1] <= 99 && b[2] <= 99
			h, m, s = int(b[0]), int(b[1]), int(b[2])
		}
		if !ok || h > 23 || m > 59 || s > 59 {
			return NullValue(), nil
		}
		return TimeOfDaySecondsValue(time.Date(0, 1, 1, h, m, s, 0, time.UTC)), nil
	case "BTM", "HTM", "VTM":
		var h, m int
		var ok bool
		bcd := t.Name == "BTM"
		reversed := t.Name == "BTM" || t.Name == "VTM"
		b := data
		if reversed {
			b = []byte{data[1], data[0]}
		}
		if bcd {
			hh, ok1 := bcdDigitPair(b[0])
			mm, ok2 := bcdDigitPair(b[1])
			h, m, ok = hh, mm, ok1 && ok2
		} else {
			ok = b[0] <= 99 && b[1] <= 99
			h, m = int(b[0]), int(b[1])
		}
		if !ok || h > 23 || m > 59 {
			return NullValue(), nil
		}
		return TimeOfDayValue(time.Date(0, 1, 1, h, m, 0, 0, time.UTC)), nil
	case "MIN":
		raw := readUint(data, false)
		if raw == 0xFFFF || raw > 1439 {
			return NullValue(), nil
		}
		return TimeOfDayValue(time.Date(0, 1, 1, int(raw/60), int(raw%60), 0, 0, time.UTC)), nil
	case "TTM":
		return decodeCoarseTime(data[0], 6, 10)
	case "TTH":
		return decodeCoarseTime(data[0], 2, 30)
	case "TTQ":
		return decodeCoarseTime(data[0], 4, 15)
	default:
		return Value{}, ebuserr.Newf(ebuserr.InvalidArg, "%s is not a time type", t.Name)
	}
}

func decodeCoarseTime(raw byte, slotsPerHour, minutesPerSlot int) (Value, error) {
	if raw == 0xFF {
		return NullValue(), nil
	}
	hour := int(raw) / slotsPerHour
	slot := int(raw) % slotsPerHour
	if hour > 23 {
		return NullValue(), nil
	}
	return TimeOfDayValue(time.Date(0, 1, 1, hour, slot*minutesPerSlot, 0, 0, time.UTC)), nil
}

// EncodeTime is the inverse of DecodeTime.
func (t *DataType) EncodeTime(v Value) ([]byte, error) {
	if v.Kind == ValueNull {
		out := make([]byte, t.Bytes)
		for i := range out {
			out[i] = 0xFF
		}
		return out, nil
	}
	h, m, s := v.T.Hour(), v.T.Minute(), v.T.Second()
	switch t.Name {
	case "BTI", "HTI", "VTI":
		var out []byte
		if t.Name == "BTI" {
			out = []byte{bcdFromDigitPair(h), bcdFromDigitPair(m), bcdFromDigitPair(s)}
		} else {
			out = []byte{byte(h), byte(m), byte(s)}
		}
		if t.Name == "BTI" || t.Name == "VTI" {
			out = []byte{out[2], out[1], out[0]}
		}
		return out, nil
	case "BTM", "HTM", "VTM":
		var out []byte
		if t.Name == "BTM" {
			out = []byte{bcdFromDigitPair(h), bcdFromDigitPair(m)}
		} else {
			out = []byte{byte(h), byte(m)}
		}
		if t.Name == "BTM" || t.Name == "VTM" {
			out = []byte{out[1], out[0]}
		}
		return out, nil
	case "MIN":
		return writeUint(uint64(h*60+m), 2, false), nil
	case "TTM":
		return []byte{byte(h*6 + m/10)}, nil
	case "TTH":
		return []byte{byte(h*2 + m/30)}, nil
	case "TTQ":
		return []byte{byte(h*4 + m/15)}, nil
	default:
		return nil, ebuserr.Newf(ebuserr.InvalidArg, "%s is not a time type", t.Name)
	}
}

// DecodeDayOfWeek decodes BDY (0=Mon) / HDY (1=Mon).
func (t *DataType) DecodeDayOfWeek(data []byte) (Value, error) {
	if len(data) != 1 {
		return Value{}, ebuserr.Newf(ebuserr.InvalidPos, "%s needs 1 byte, got %d", t.Name, len(data))
	}
	idx := int(data[0])
	if t.Name == "HDY" {
		idx--
	}
	if idx < 0 || idx > 6 {
		return NullValue(), nil
	}
	return StringValue(dayNames[idx]), nil
}

// EncodeDayOfWeek is the inverse of DecodeDayOfWeek.
func (t *DataType) EncodeDayOfWeek(v Value) ([]byte, error) {
	if v.Kind == ValueNull {
		return []byte{0xFF}, nil
	}
	for i, name := range dayNames {
		if name == v.S {
			if t.Name == "HDY" {
				return []byte{byte(i + 1)}, nil
			}
			return []byte{byte(i)}, nil
		}
	}
	return nil, ebuserr.Newf(ebuserr.InvalidArg, "unknown weekday %q", v.S)
}

func bcdDigitPair(b byte) (int, bool) {
	hi, lo := b>>4, b&0x0F
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return int(hi)*10 + int(lo), true
}

func bcdFromDigitPair(v int) byte {
	return byte((v/10)<<4 | (v % 10))
}
